// Package render implements the consumer-side presentation stage: it
// takes a decoded NV12 GpuTexture and hands pixels to whatever display
// surface the host provides.
package render

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/deskstream/deskstream/internal/convert"
	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/media"
	"github.com/deskstream/deskstream/internal/texture"
	"github.com/deskstream/deskstream/internal/timestamp"
)

var log = logging.L("render")

// Sink is the presentation stage's contract: one decoded frame in, pixels
// on screen (or wherever Display puts them) out.
type Sink interface {
	Present(tex *texture.GpuTexture, ts timestamp.Timestamp, stats media.Statistics) error
	Close() error
}

// Display abstracts the actual pixel surface. A real UI host supplies a
// swap-chain-backed implementation; tests use NullDisplay.
type Display interface {
	Draw(img *image.RGBA, ts timestamp.Timestamp) error
}

// ImageSink materializes NV12 textures into image.RGBA frames via the
// convert package's inverse conversion and forwards them to a Display.
type ImageSink struct {
	mu      sync.Mutex
	display Display
	frames  atomic.Uint64
}

func NewImageSink(display Display) *ImageSink {
	return &ImageSink{display: display}
}

func (s *ImageSink) Present(tex *texture.GpuTexture, ts timestamp.Timestamp, stats media.Statistics) error {
	if tex == nil {
		return fmt.Errorf("render: nil texture")
	}
	if tex.Format != texture.FormatNV12 {
		return fmt.Errorf("render: unsupported input format %s, want NV12", tex.Format)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rgba := nv12TextureToImage(tex)
	s.frames.Add(1)
	if err := s.display.Draw(rgba, ts); err != nil {
		return fmt.Errorf("render: draw: %w", err)
	}
	return nil
}

func (s *ImageSink) FramesPresented() uint64 {
	return s.frames.Load()
}

func (s *ImageSink) Close() error {
	return nil
}

// nv12TextureToImage reuses internal/convert's BT.601 inverse conversion
// rather than duplicating the math here.
func nv12TextureToImage(tex *texture.GpuTexture) *image.RGBA {
	bgra := convert.NV12ToBGRA(tex.Data, tex.Width, tex.Height)
	img := image.NewRGBA(image.Rect(0, 0, tex.Width, tex.Height))
	for i := 0; i+4 <= len(bgra) && i+4 <= len(img.Pix); i += 4 {
		b, g, r, a := bgra[i], bgra[i+1], bgra[i+2], bgra[i+3]
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = a
	}
	return img
}

// NullDisplay is a no-op Display used by tests and by the peer pipeline
// when no UI host is attached: it just counts frames and records the
// most recent timestamp, which is enough to assert the render stage was
// driven end to end (spec §8 scenarios).
type NullDisplay struct {
	mu       sync.Mutex
	count    int
	lastTime timestamp.Timestamp
}

func (d *NullDisplay) Draw(img *image.RGBA, ts timestamp.Timestamp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	d.lastTime = ts
	return nil
}

func (d *NullDisplay) FrameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

func (d *NullDisplay) LastTimestamp() timestamp.Timestamp {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTime
}
