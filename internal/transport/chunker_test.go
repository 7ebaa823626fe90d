package transport

import (
	"testing"
	"time"

	"github.com/deskstream/deskstream/internal/media"
	"github.com/deskstream/deskstream/internal/timestamp"
)

func collectChunks(c <-chan media.Chunk) []media.Chunk {
	var out []media.Chunk
	for chunk := range c {
		out = append(out, chunk)
	}
	return out
}

func TestChunkerSplitsAndRoundTrips(t *testing.T) {
	vb := media.NewVideoBuffer(make([]byte, 100), []byte{1, 2}, timestamp.FromTicks100ns(1), 0, media.KeyFrameYes)

	chunker := NewChunker(32)
	chunks := collectChunks(chunker.Chunk(vb, time.Time{}))
	if len(chunks) < 2 {
		t.Fatalf("expected more than one chunk, got %d", len(chunks))
	}

	asm := NewAssembler(time.Second)
	defer asm.Close()
	for _, c := range chunks {
		asm.Feed(c)
	}

	select {
	case got := <-asm.Out():
		if len(got.Data) != len(vb.Data) {
			t.Fatalf("Data length = %d, want %d", len(got.Data), len(vb.Data))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reassembled buffer")
	}
}

func TestChunkerDropsWhenDeadlineAlreadyPassed(t *testing.T) {
	vb := media.NewVideoBuffer(make([]byte, 100), nil, timestamp.FromTicks100ns(1), 0, media.KeyFrameNo)
	chunker := NewChunker(32)

	chunks := collectChunks(chunker.Chunk(vb, time.Now().Add(-time.Second)))
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks emitted past deadline, got %d", len(chunks))
	}
}
