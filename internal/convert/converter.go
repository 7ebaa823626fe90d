package convert

import (
	"context"
	"fmt"
	"sync"

	"github.com/deskstream/deskstream/internal/logging"
	"github.com/deskstream/deskstream/internal/texture"
)

var log = logging.L("convert")

// Converter transforms one GpuTexture into another pixel format.
// Implementations must handle an input resolution change as a
// first-class event: drain any in-flight state, resize their output
// texture pool, and only then process the new frame.
type Converter interface {
	Convert(ctx context.Context, in *texture.GpuTexture) (*texture.GpuTexture, error)
	Close()
}

// SoftwareConverter does BGRA<->NV12 conversion on the CPU. It owns an
// output TexturePool sized to the last-seen input resolution and rebuilds
// it via TexturePool.UpdateFormat whenever that resolution changes.
type SoftwareConverter struct {
	target texture.PixelFormat
	count  int

	mu         sync.Mutex
	lastW      int
	lastH      int
	outputPool *texture.TexturePool
}

// NewSoftwareConverter returns a Converter that produces textures in
// target format, backed by a pool of count output textures.
func NewSoftwareConverter(target texture.PixelFormat, count int) *SoftwareConverter {
	if count <= 0 {
		count = 3
	}
	return &SoftwareConverter{target: target, count: count}
}

func (c *SoftwareConverter) Convert(ctx context.Context, in *texture.GpuTexture) (*texture.GpuTexture, error) {
	c.mu.Lock()
	if in.Width != c.lastW || in.Height != c.lastH {
		log.Info("input resolution changed, reformatting output pool",
			"oldW", c.lastW, "oldH", c.lastH, "newW", in.Width, "newH", in.Height)
		c.lastW, c.lastH = in.Width, in.Height
		factory := c.outputFactory(in.Width, in.Height)
		if c.outputPool == nil {
			c.outputPool = texture.NewTexturePool(factory, c.count)
		} else {
			c.outputPool.UpdateFormat(factory, c.count)
		}
	}
	pool := c.outputPool
	c.mu.Unlock()

	out, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("convert: acquiring output texture: %w", err)
	}

	switch {
	case in.Format == texture.FormatBGRA && c.target == texture.FormatNV12:
		out.Data = bgraToNV12(in.Data, in.Width, in.Height, in.Width*4)
	case in.Format == texture.FormatNV12 && c.target == texture.FormatBGRA:
		copy(out.Data, nv12ToBGRA(in.Data, in.Width, in.Height))
	case in.Format == c.target:
		copy(out.Data, in.Data)
	default:
		pool.Release(out)
		return nil, fmt.Errorf("convert: no conversion path from %s to %s", in.Format, c.target)
	}
	out.Width, out.Height = in.Width, in.Height
	out.Format = c.target
	return out, nil
}

func (c *SoftwareConverter) outputFactory(w, h int) func() *texture.GpuTexture {
	target := c.target
	return func() *texture.GpuTexture {
		var size int
		switch target {
		case texture.FormatNV12:
			size = w*h + w*h/2
		default:
			size = w * h * 4
		}
		return &texture.GpuTexture{Width: w, Height: h, Format: target, Data: make([]byte, size)}
	}
}

func (c *SoftwareConverter) Close() {}
