package render

import (
	"testing"

	"github.com/deskstream/deskstream/internal/media"
	"github.com/deskstream/deskstream/internal/texture"
	"github.com/deskstream/deskstream/internal/timestamp"
)

func flatNV12(width, height int, luma, chroma byte) []byte {
	nv12 := make([]byte, width*height+width*height/2)
	for i := 0; i < width*height; i++ {
		nv12[i] = luma
	}
	for i := width * height; i < len(nv12); i++ {
		nv12[i] = chroma
	}
	return nv12
}

func TestImageSinkPresentsNV12TextureAsRGBA(t *testing.T) {
	width, height := 4, 4
	tex := &texture.GpuTexture{
		Width:  width,
		Height: height,
		Format: texture.FormatNV12,
		Data:   flatNV12(width, height, 180, 128),
	}

	display := &NullDisplay{}
	sink := NewImageSink(display)

	ts := timestamp.FromTicks100ns(1234)
	if err := sink.Present(tex, ts, media.Statistics{}); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if display.FrameCount() != 1 {
		t.Fatalf("FrameCount() = %d, want 1", display.FrameCount())
	}
	if display.LastTimestamp() != ts {
		t.Fatalf("LastTimestamp() = %v, want %v", display.LastTimestamp(), ts)
	}
	if sink.FramesPresented() != 1 {
		t.Fatalf("FramesPresented() = %d, want 1", sink.FramesPresented())
	}
}

func TestImageSinkRejectsNonNV12Texture(t *testing.T) {
	tex := &texture.GpuTexture{Width: 2, Height: 2, Format: texture.FormatBGRA, Data: make([]byte, 16)}
	sink := NewImageSink(&NullDisplay{})
	if err := sink.Present(tex, timestamp.FromTicks100ns(0), media.Statistics{}); err == nil {
		t.Fatal("expected an error for a non-NV12 input texture")
	}
}

func TestImageSinkRejectsNilTexture(t *testing.T) {
	sink := NewImageSink(&NullDisplay{})
	if err := sink.Present(nil, timestamp.FromTicks100ns(0), media.Statistics{}); err == nil {
		t.Fatal("expected an error for a nil texture")
	}
}

func TestNV12ToImageAlphaIsOpaque(t *testing.T) {
	width, height := 2, 2
	img := nv12TextureToImage(&texture.GpuTexture{
		Width: width, Height: height, Format: texture.FormatNV12,
		Data: flatNV12(width, height, 128, 128),
	})
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			t.Fatalf("alpha at pixel %d = %d, want 255", i/4, img.Pix[i])
		}
	}
}
