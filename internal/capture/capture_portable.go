package capture

import (
	"github.com/deskstream/deskstream/internal/texture"
)

// newPlatformGrabber returns the portable software frame source: a
// periodic poll of a synthetic BGRA test pattern. No OS-level desktop
// duplication API is portable across the pack's target platforms
// without cgo (the teacher's own capture_other.go / capture_*_nocgo.go
// files return ErrNotSupported for exactly this reason); this backend
// exists so DesktopSource's state machine and the rest of the pipeline
// are exercisable end to end without a platform build.
func newPlatformGrabber() (frameGrabber, error) {
	return &syntheticGrabber{width: 1920, height: 1080}, nil
}

type syntheticGrabber struct {
	width, height int
	frameIdx      uint64
}

func (g *syntheticGrabber) Grab() (*texture.GpuTexture, error) {
	g.frameIdx++
	data := make([]byte, g.width*g.height*4)
	shift := byte(g.frameIdx % 256)
	for i := 0; i < len(data); i += 4 {
		data[i+0] = shift          // B
		data[i+1] = byte(i >> 8)   // G
		data[i+2] = byte(i)        // R
		data[i+3] = 255            // A
	}
	return &texture.GpuTexture{
		Width:  g.width,
		Height: g.height,
		Format: texture.FormatBGRA,
		Data:   data,
	}, nil
}

func (g *syntheticGrabber) Close() error { return nil }
