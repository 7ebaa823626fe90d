// Package encode implements the H264 encoder stage: a VideoEncoder
// façade in front of a pluggable encoderBackend, with a software
// (go-openh264) backend wired by default and a hardware backend
// extension point mirroring the teacher's registerHardwareFactory
// pattern for a platform build to fill in.
package encode

import (
	"errors"
	"fmt"
	"sync"

	"time"

	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/media"
	"github.com/deskstream/deskstream/internal/texture"
	"github.com/deskstream/deskstream/internal/timestamp"
)

var log = logging.L("encoder")

type QualityPreset string

const (
	QualityAuto   QualityPreset = "auto"
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
	QualityUltra  QualityPreset = "ultra"
)

func (q QualityPreset) valid() bool {
	switch q {
	case QualityAuto, QualityLow, QualityMedium, QualityHigh, QualityUltra:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidQuality = errors.New("invalid quality preset")
	ErrInvalidBitrate = errors.New("invalid bitrate")
	ErrInvalidFPS     = errors.New("invalid fps")
)

// Config configures a VideoEncoder. Codec is always H264 — this pipeline
// has one encoded media type (spec §1's scope), unlike the teacher's
// agent which supports vp8/vp9/av1 for its own different use case.
type Config struct {
	Quality        QualityPreset
	Bitrate        int
	FPS            int
	Width, Height  int
	PreferHardware bool
}

func DefaultConfig() Config {
	return Config{
		Quality: QualityAuto,
		Bitrate: 2_500_000,
		FPS:     30,
	}
}

// encoderBackend is the extension point a concrete encoder implements.
// The tri-state keyframe classification a hardware MFT backend may only
// be able to answer ambiguously is expressed directly in the
// media.VideoBuffer it returns.
type encoderBackend interface {
	Encode(tex *texture.GpuTexture, ts timestamp.Timestamp, dur time.Duration) (*media.VideoBuffer, error)
	SetQuality(quality QualityPreset) error
	SetBitrate(bitrate int) error
	SetFPS(fps int) error
	SetDimensions(width, height int) error
	Close() error
	Name() string
	IsHardware() bool
}

// optionalKeyframeForcer is implemented by backends that can force the
// next output to be an IDR (reached through VideoEncoder.ForceKeyframe,
// which the pipeline calls on a request_keyframe logic-channel message).
type optionalKeyframeForcer interface {
	ForceKeyframe() error
}

type backendFactory func(cfg Config) (encoderBackend, error)

var (
	hardwareFactoriesMu sync.Mutex
	hardwareFactories   []backendFactory
)

// registerHardwareFactory registers a hardware backend constructor,
// tried in registration order before falling back to software. No
// concrete Windows/macOS hardware backend ships in this tree (see
// DESIGN.md); the registration point exists so a platform build can add
// one without touching VideoEncoder.
func registerHardwareFactory(factory backendFactory) {
	hardwareFactoriesMu.Lock()
	defer hardwareFactoriesMu.Unlock()
	hardwareFactories = append(hardwareFactories, factory)
}

// VideoEncoder is the encoder stage's public façade.
type VideoEncoder struct {
	mu      sync.Mutex
	cfg     Config
	backend encoderBackend
}

func NewVideoEncoder(cfg Config) (*VideoEncoder, error) {
	cfg = applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("encoder backend selected", "name", backend.Name(), "hardware", backend.IsHardware())

	return &VideoEncoder{cfg: cfg, backend: backend}, nil
}

func (v *VideoEncoder) Encode(tex *texture.GpuTexture, ts timestamp.Timestamp, dur time.Duration) (*media.VideoBuffer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.backend == nil {
		return nil, errors.New("encoder: not initialized")
	}
	return v.backend.Encode(tex, ts, dur)
}

func (v *VideoEncoder) SetQuality(q QualityPreset) error {
	if !q.valid() {
		return fmt.Errorf("%w: %s", ErrInvalidQuality, q)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.backend.SetQuality(q); err != nil {
		return err
	}
	v.cfg.Quality = q
	return nil
}

func (v *VideoEncoder) SetBitrate(bitrate int) error {
	if bitrate <= 0 {
		return ErrInvalidBitrate
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.backend.SetBitrate(bitrate); err != nil {
		return err
	}
	v.cfg.Bitrate = bitrate
	return nil
}

func (v *VideoEncoder) SetFPS(fps int) error {
	if fps <= 0 {
		return ErrInvalidFPS
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.backend.SetFPS(fps); err != nil {
		return err
	}
	v.cfg.FPS = fps
	return nil
}

func (v *VideoEncoder) SetDimensions(width, height int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.backend.SetDimensions(width, height)
}

func (v *VideoEncoder) Close() error {
	v.mu.Lock()
	backend := v.backend
	v.backend = nil
	v.mu.Unlock()
	if backend == nil {
		return nil
	}
	return backend.Close()
}

// ForceKeyframe requests an IDR as soon as possible. No-op if the
// backend doesn't support it.
func (v *VideoEncoder) ForceKeyframe() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.backend == nil {
		return errors.New("encoder: not initialized")
	}
	if kf, ok := v.backend.(optionalKeyframeForcer); ok {
		return kf.ForceKeyframe()
	}
	return nil
}

func (v *VideoEncoder) BackendName() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.backend == nil {
		return ""
	}
	return v.backend.Name()
}

func (v *VideoEncoder) IsHardware() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.backend != nil && v.backend.IsHardware()
}

func applyDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Quality == "" {
		cfg.Quality = defaults.Quality
	}
	if cfg.Bitrate == 0 {
		cfg.Bitrate = defaults.Bitrate
	}
	if cfg.FPS == 0 {
		cfg.FPS = defaults.FPS
	}
	return cfg
}

func validateConfig(cfg Config) error {
	if !cfg.Quality.valid() {
		return fmt.Errorf("%w: %s", ErrInvalidQuality, cfg.Quality)
	}
	if cfg.Bitrate <= 0 {
		return ErrInvalidBitrate
	}
	if cfg.FPS <= 0 {
		return ErrInvalidFPS
	}
	return nil
}

func newBackend(cfg Config) (encoderBackend, error) {
	if cfg.PreferHardware {
		if backend := tryHardware(cfg); backend != nil {
			return backend, nil
		}
	}
	return newSoftwareEncoder(cfg)
}

func tryHardware(cfg Config) encoderBackend {
	hardwareFactoriesMu.Lock()
	factories := append([]backendFactory(nil), hardwareFactories...)
	hardwareFactoriesMu.Unlock()
	for _, factory := range factories {
		backend, err := factory(cfg)
		if err == nil && backend != nil {
			return backend
		}
	}
	return nil
}
