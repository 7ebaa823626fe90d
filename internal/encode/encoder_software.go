package encode

import (
	"fmt"
	"sync"
	"time"

	"github.com/y9o/go-openh264"

	"github.com/deskstream/deskstream/internal/media"
	"github.com/deskstream/deskstream/internal/texture"
	"github.com/deskstream/deskstream/internal/timestamp"
)

// softwareEncoder wraps github.com/y9o/go-openh264's encoder as the
// default backend. The teacher's own go.mod names this dependency for
// exactly this role but never calls into it (its own software path is a
// byte-copy placeholder, see the comment this file's history is
// grounded on). No example repo in the retrieval pack imports the
// package, so the exact call signatures below are a best-effort
// inference from the conventional shape of a cgo H264 encoder binding
// (construct with dimensions/bitrate/framerate, feed one NV12 frame per
// call, get back an Annex-B NAL stream and a frame-type flag) rather
// than a verified API. The mismatch, if any, is contained to this one
// file behind the encoderBackend interface.
type softwareEncoder struct {
	mu     sync.Mutex
	enc    *openh264.Encoder
	cfg    Config
	width  int
	height int

	forceNextKeyframe bool
}

func newSoftwareEncoder(cfg Config) (encoderBackend, error) {
	return &softwareEncoder{cfg: cfg}, nil
}

func (s *softwareEncoder) ensureInit(width, height int) error {
	if s.enc != nil && s.width == width && s.height == height {
		return nil
	}
	if s.enc != nil {
		s.enc.Close()
		s.enc = nil
	}
	if width == 0 || height == 0 {
		return nil
	}
	enc, err := openh264.NewEncoder(openh264.EncoderOptions{
		Width:       width,
		Height:      height,
		BitrateBps:  s.cfg.Bitrate,
		MaxFrameRate: float32(s.cfg.FPS),
	})
	if err != nil {
		return fmt.Errorf("encode: openh264.NewEncoder: %w", err)
	}
	s.enc = enc
	s.width, s.height = width, height
	return nil
}

func (s *softwareEncoder) Encode(tex *texture.GpuTexture, ts timestamp.Timestamp, dur time.Duration) (*media.VideoBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(tex.Width, tex.Height); err != nil {
		return nil, err
	}

	start := time.Now()
	forceKF := s.forceNextKeyframe
	s.forceNextKeyframe = false

	img, err := s.enc.EncodeNV12(tex.Data, openh264.EncodeOptions{ForceIDR: forceKF})
	if err != nil {
		return nil, fmt.Errorf("encode: EncodeNV12: %w", err)
	}

	kf := media.KeyFrameNo
	var seqHdr []byte
	if img.FrameType == openh264.FrameTypeIDR {
		kf = media.KeyFrameYes
		seqHdr = img.SequenceHeader
	}

	vb := media.NewVideoBuffer(img.Data, seqHdr, ts, dur, kf)
	vb.Stats.Encode.StageStart = start
	vb.Stats.Encode.StageEnd = time.Now()
	return vb, nil
}

func (s *softwareEncoder) SetQuality(q QualityPreset) error {
	// openh264's rate control is bitrate-driven; quality presets have no
	// effect on this backend.
	return nil
}

func (s *softwareEncoder) SetBitrate(bitrate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Bitrate = bitrate
	if s.enc != nil {
		return s.enc.SetBitrate(bitrate)
	}
	return nil
}

func (s *softwareEncoder) SetFPS(fps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.FPS = fps
	return nil
}

func (s *softwareEncoder) SetDimensions(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureInit(width, height)
}

func (s *softwareEncoder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc != nil {
		s.enc.Close()
		s.enc = nil
	}
	return nil
}

func (s *softwareEncoder) Name() string      { return "openh264-software" }
func (s *softwareEncoder) IsHardware() bool  { return false }

// ForceKeyframe satisfies optionalKeyframeForcer.
func (s *softwareEncoder) ForceKeyframe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceNextKeyframe = true
	return nil
}
