package convert

import (
	"context"
	"testing"

	"github.com/deskstream/deskstream/internal/texture"
)

func TestSoftwareConverterBGRAToNV12(t *testing.T) {
	c := NewSoftwareConverter(texture.FormatNV12, 2)
	defer c.Close()

	in := &texture.GpuTexture{
		Width: 2, Height: 2, Format: texture.FormatBGRA,
		Data: []byte{
			0, 0, 255, 255, 0, 255, 0, 255,
			255, 0, 0, 255, 255, 255, 255, 255,
		},
	}

	out, err := c.Convert(context.Background(), in)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.Format != texture.FormatNV12 {
		t.Fatalf("Format = %v, want NV12", out.Format)
	}
	if len(out.Data) != 6 {
		t.Fatalf("Data length = %d, want 6", len(out.Data))
	}
}

func TestSoftwareConverterHandlesResolutionChange(t *testing.T) {
	c := NewSoftwareConverter(texture.FormatNV12, 2)
	defer c.Close()

	small := &texture.GpuTexture{Width: 2, Height: 2, Format: texture.FormatBGRA, Data: make([]byte, 2*2*4)}
	if _, err := c.Convert(context.Background(), small); err != nil {
		t.Fatalf("Convert (small): %v", err)
	}

	big := &texture.GpuTexture{Width: 4, Height: 4, Format: texture.FormatBGRA, Data: make([]byte, 4*4*4)}
	out, err := c.Convert(context.Background(), big)
	if err != nil {
		t.Fatalf("Convert (big): %v", err)
	}
	wantSize := 4*4 + 4*4/2
	if len(out.Data) != wantSize {
		t.Fatalf("Data length = %d, want %d after resolution change", len(out.Data), wantSize)
	}
}
