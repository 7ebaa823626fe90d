// Package decode implements the H264 decoder stage, the mirror image of
// internal/encode: a Decoder façade over a pluggable decoderBackend,
// installing a sequence header on the input type only when a buffer
// carries one, and discarding any buffer that carries no sequence header
// before one has ever been seen.
package decode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/media"
	"github.com/deskstream/deskstream/internal/texture"
)

var log = logging.L("decoder")

var ErrNoSequenceHeader = errors.New("decode: no sequence header installed yet")

type decoderBackend interface {
	// Decode returns the decoded NV12 texture. Whenever vb.SequenceHeader
	// is non-empty the backend (re)installs its input state from it
	// before feeding data — mirroring the original decoder's "if sequence_header is
	// present, SetBlob(MF_MT_MPEG_SEQUENCE_HEADER, ...) before feeding"
	// contract.
	Decode(vb *media.VideoBuffer) (*texture.GpuTexture, error)
	SetOutputPool(pool *texture.TexturePool)
	Close() error
	Name() string
}

// Decoder is the decode stage's public façade. It tracks whether a
// sequence header has ever been installed and discards any buffer that
// carries no sequence header until one has been, whatever its KeyFrame
// value — the receive-side half of the spec's keyframe invariant.
type Decoder struct {
	mu              sync.Mutex
	backend         decoderBackend
	headerInstalled bool
}

func NewDecoder(pool *texture.TexturePool) *Decoder {
	backend := newSoftwareDecoder()
	backend.SetOutputPool(pool)
	return &Decoder{backend: backend}
}

// Decode feeds one reassembled VideoBuffer to the decoder. A buffer
// without a sequence header, received before one has ever been
// installed, is discarded, logged at debug level and reported as
// ErrNoSequenceHeader, which callers treat as non-fatal — the decoder
// has nothing to seed its input type with yet, so there is nothing
// correct to do except wait for the next unambiguous keyframe.
func (d *Decoder) Decode(vb *media.VideoBuffer) (*texture.GpuTexture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(vb.SequenceHeader) > 0 {
		d.headerInstalled = true
	}
	if !d.headerInstalled {
		log.Debug("discarding buffer received before any sequence header", "keyFrame", vb.KeyFrame)
		return nil, ErrNoSequenceHeader
	}

	tex, err := d.backend.Decode(vb)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return tex, nil
}

func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.backend == nil {
		return nil
	}
	return d.backend.Close()
}
