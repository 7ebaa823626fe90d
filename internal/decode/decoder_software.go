package decode

import (
	"context"
	"fmt"
	"sync"

	"github.com/y9o/go-openh264"

	"github.com/deskstream/deskstream/internal/media"
	"github.com/deskstream/deskstream/internal/texture"
)

// softwareDecoder wraps go-openh264's decoder, mirroring the inferred
// API surface documented in internal/encode/encoder_software.go. Every
// call that installs a sequence header recreates the underlying decoder
// instance, since a fresh SPS/PPS pair means a stream-change/renegotiate
// event the decoder has to restart its internal parser state for.
type softwareDecoder struct {
	mu   sync.Mutex
	dec  *openh264.Decoder
	pool *texture.TexturePool
}

func newSoftwareDecoder() *softwareDecoder {
	return &softwareDecoder{}
}

func (s *softwareDecoder) SetOutputPool(pool *texture.TexturePool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = pool
}

func (s *softwareDecoder) Decode(vb *media.VideoBuffer) (*texture.GpuTexture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vb.SequenceHeader) > 0 {
		if s.dec != nil {
			s.dec.Close()
		}
		dec, err := openh264.NewDecoder(openh264.DecoderOptions{SequenceHeader: vb.SequenceHeader})
		if err != nil {
			return nil, fmt.Errorf("openh264.NewDecoder: %w", err)
		}
		s.dec = dec
	}
	if s.dec == nil {
		return nil, ErrNoSequenceHeader
	}

	nv12, width, height, err := s.dec.DecodeToNV12(vb.Data)
	if err != nil {
		return nil, fmt.Errorf("DecodeToNV12: %w", err)
	}

	if s.pool == nil {
		return &texture.GpuTexture{Width: width, Height: height, Format: texture.FormatNV12, Data: nv12}, nil
	}

	tex, err := s.pool.Acquire(context.Background())
	if err != nil {
		return nil, fmt.Errorf("acquiring output texture: %w", err)
	}
	tex.Width, tex.Height = width, height
	tex.Format = texture.FormatNV12
	tex.Data = nv12
	return tex, nil
}

func (s *softwareDecoder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	return nil
}

func (s *softwareDecoder) Name() string { return "openh264-software" }
