// Package convert implements the pixel format conversions the pipeline
// needs between the capture source's native BGRA textures and the
// encoder's NV12 input, and back again on the decode side for the
// render sink.
package convert

import "sync"

// nv12BufferPool pools NV12 byte buffers for a fixed resolution, reset
// whenever the resolution changes. Matches the teacher's per-resolution
// sync.Pool idiom (internal/texture's GpuTexture pool, by contrast, is a
// fixed-cardinality pool built on a channel of free slots).
var nv12BufferPool = struct {
	pool sync.Pool
	w, h int
	mu   sync.Mutex
}{}

func getNV12Buffer(w, h int) []byte {
	size := w*h + w*h/2 // Y + UV
	nv12BufferPool.mu.Lock()
	if nv12BufferPool.w == w && nv12BufferPool.h == h {
		nv12BufferPool.mu.Unlock()
		if v := nv12BufferPool.pool.Get(); v != nil {
			return v.([]byte)
		}
		return make([]byte, size)
	}
	nv12BufferPool.w = w
	nv12BufferPool.h = h
	nv12BufferPool.pool = sync.Pool{}
	nv12BufferPool.mu.Unlock()
	return make([]byte, size)
}

func putNV12Buffer(buf []byte) {
	nv12BufferPool.pool.Put(buf)
}

// bgraToNV12 converts BGRA pixel data to NV12 format for H264 encoding.
// NV12 layout: [Y plane: w*h bytes] [UV interleaved plane: w*h/2 bytes].
// Uses BT.601 coefficients with fixed-point integer arithmetic.
func bgraToNV12(bgra []byte, width, height, stride int) []byte {
	nv12 := getNV12Buffer(width, height)
	yPlane := nv12[:width*height]
	uvPlane := nv12[width*height:]

	for y := 0; y < height; y++ {
		rowOff := y * stride
		yOff := y * width

		for x := 0; x < width; x++ {
			pi := rowOff + x*4
			b := int(bgra[pi+0])
			g := int(bgra[pi+1])
			r := int(bgra[pi+2])

			yVal := (66*r + 129*g + 25*b + 128) >> 8
			yVal += 16
			yVal = clamp(yVal, 16, 235)
			yPlane[yOff+x] = byte(yVal)

			if y%2 == 0 && x%2 == 0 {
				uVal := (-38*r - 74*g + 112*b + 128) >> 8
				uVal += 128
				uVal = clamp(uVal, 16, 240)

				vVal := (112*r - 94*g - 18*b + 128) >> 8
				vVal += 128
				vVal = clamp(vVal, 16, 240)

				uvIdx := (y/2)*width + (x/2)*2
				uvPlane[uvIdx+0] = byte(uVal)
				uvPlane[uvIdx+1] = byte(vVal)
			}
		}
	}
	return nv12
}

// nv12ToBGRA is the render-side inverse of bgraToNV12, used by the
// software render sink to present a decoded NV12 frame.
func nv12ToBGRA(nv12 []byte, width, height int) []byte {
	yPlane := nv12[:width*height]
	uvPlane := nv12[width*height:]
	bgra := make([]byte, width*height*4)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			yVal := int(yPlane[y*width+x]) - 16
			uvIdx := (y/2)*width + (x/2)*2
			u := int(uvPlane[uvIdx+0]) - 128
			v := int(uvPlane[uvIdx+1]) - 128

			r := clamp((298*yVal+409*v+128)>>8, 0, 255)
			g := clamp((298*yVal-100*u-208*v+128)>>8, 0, 255)
			b := clamp((298*yVal+516*u+128)>>8, 0, 255)

			pi := (y*width + x) * 4
			bgra[pi+0] = byte(b)
			bgra[pi+1] = byte(g)
			bgra[pi+2] = byte(r)
			bgra[pi+3] = 255
		}
	}
	return bgra
}

// NV12ToBGRA exposes the NV12->BGRA inverse conversion for packages
// outside convert, such as internal/render's software presentation path.
func NV12ToBGRA(nv12 []byte, width, height int) []byte {
	return nv12ToBGRA(nv12, width, height)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
