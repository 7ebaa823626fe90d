package transport

import (
	"sort"
	"sync"
	"time"

	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/media"
)

var log = logging.L("assembler")

type pendingSet struct {
	parts    map[uint32]media.Chunk
	total    uint32
	firstSeen time.Time
}

// Assembler reassembles Chunks back into whole VideoBuffers, deduping by
// (id, part), with each id's total taken from its first chunk, and discarding any whole-buffer id whose pieces
// haven't all arrived within budget.
type Assembler struct {
	budget time.Duration

	mu      sync.Mutex
	pending map[uint32]*pendingSet

	out chan *media.VideoBuffer

	sweepDone chan struct{}
}

// NewAssembler returns an Assembler that drops any incomplete chunk set
// older than budget. A background goroutine performs the sweep; call
// Close to stop it.
func NewAssembler(budget time.Duration) *Assembler {
	if budget <= 0 {
		budget = 250 * time.Millisecond
	}
	a := &Assembler{
		budget:    budget,
		pending:   make(map[uint32]*pendingSet),
		out:       make(chan *media.VideoBuffer, 8),
		sweepDone: make(chan struct{}),
	}
	go a.sweepLoop()
	return a
}

// Out returns the channel whole buffers are delivered on once fully
// reassembled.
func (a *Assembler) Out() <-chan *media.VideoBuffer {
	return a.out
}

// Feed submits one received chunk. Once every part of its whole-buffer
// id has arrived, the whole buffer is decoded and pushed to Out.
func (a *Assembler) Feed(c media.Chunk) {
	a.mu.Lock()
	set, ok := a.pending[c.ID]
	if !ok {
		set = &pendingSet{parts: make(map[uint32]media.Chunk), total: c.Total, firstSeen: time.Now()}
		a.pending[c.ID] = set
	}
	set.parts[c.Part] = c
	complete := uint32(len(set.parts)) == set.total
	if complete {
		delete(a.pending, c.ID)
	}
	a.mu.Unlock()

	if !complete {
		return
	}

	parts := make([]media.Chunk, 0, len(set.parts))
	for _, p := range set.parts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Part < parts[j].Part })

	wire := make([]byte, 0)
	for _, p := range parts {
		wire = append(wire, p.Data...)
	}

	vb, err := media.DecodeVideoBuffer(wire)
	if err != nil {
		log.Warn("discarding reassembled buffer that failed to decode", "id", c.ID, "error", err)
		return
	}
	a.out <- vb
}

func (a *Assembler) sweepLoop() {
	ticker := time.NewTicker(a.budget / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.sweep()
		case <-a.sweepDone:
			return
		}
	}
}

func (a *Assembler) sweep() {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, set := range a.pending {
		if now.Sub(set.firstSeen) > a.budget {
			log.Debug("dropping expired partial chunk set", "id", id, "have", len(set.parts), "want", set.total)
			delete(a.pending, id)
		}
	}
}

// Close stops the background sweep goroutine.
func (a *Assembler) Close() {
	close(a.sweepDone)
}
