// Package transport implements the chunk/reassemble protocol that rides
// an unordered, unreliable data channel, plus the data channel wrapper
// itself with its buffered-amount flow control.
package transport

import (
	"sync/atomic"
	"time"

	"github.com/deskstream/deskstream/internal/media"
)

// Chunker splits a VideoBuffer's wire encoding into data-channel-sized
// chunks, tagging each with a monotonically increasing whole-buffer id.
// If the deadline passes before every chunk for a buffer has been
// emitted, the remainder is simply not sent — the receiver's assembler
// will time out the partial set on its own budget.
type Chunker struct {
	chunkSize int
	nextID    atomic.Uint32
}

// NewChunker returns a Chunker that splits encoded buffers into pieces
// no larger than chunkSize bytes.
func NewChunker(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 16_000
	}
	return &Chunker{chunkSize: chunkSize}
}

// Chunk serializes vb and emits its pieces on the returned channel,
// closing it once done (either because every piece was emitted, or the
// deadline passed first). Chunk does not block past the deadline: once
// it is reached, emission stops immediately even if the caller is slow
// to drain.
func (c *Chunker) Chunk(vb *media.VideoBuffer, deadline time.Time) <-chan media.Chunk {
	out := make(chan media.Chunk)
	go func() {
		defer close(out)

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return
		}

		wire := media.EncodeVideoBuffer(vb)
		total := uint32((len(wire) + c.chunkSize - 1) / c.chunkSize)
		if total == 0 {
			total = 1
		}
		id := c.nextID.Add(1)

		for part := uint32(0); part < total; part++ {
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				return
			}
			start := int(part) * c.chunkSize
			end := start + c.chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			chunk := media.Chunk{
				ID:    id,
				Part:  part,
				Total: total,
				Data:  append([]byte(nil), wire[start:end]...),
			}
			if deadline.IsZero() {
				out <- chunk
				continue
			}
			timer := time.NewTimer(time.Until(deadline))
			select {
			case out <- chunk:
				timer.Stop()
			case <-timer.C:
				return
			}
		}
	}()
	return out
}
