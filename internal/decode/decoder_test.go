package decode

import (
	"testing"

	"github.com/deskstream/deskstream/internal/media"
	"github.com/deskstream/deskstream/internal/texture"
	"github.com/deskstream/deskstream/internal/timestamp"
)

type fakeBackend struct {
	decodeCalls int
}

func (f *fakeBackend) Decode(vb *media.VideoBuffer) (*texture.GpuTexture, error) {
	f.decodeCalls++
	return &texture.GpuTexture{Width: 4, Height: 4, Format: texture.FormatNV12, Data: vb.Data}, nil
}
func (f *fakeBackend) SetOutputPool(pool *texture.TexturePool) {}
func (f *fakeBackend) Close() error                            { return nil }
func (f *fakeBackend) Name() string                            { return "fake" }

func newDecoderWithBackend(b decoderBackend) *Decoder {
	return &Decoder{backend: b}
}

func TestDecoderDiscardsBufferBeforeAnySequenceHeader(t *testing.T) {
	fb := &fakeBackend{}
	d := newDecoderWithBackend(fb)

	vb := media.NewVideoBuffer([]byte{1, 2, 3}, nil, timestamp.FromTicks100ns(0), 0, media.KeyFramePerhaps)
	if _, err := d.Decode(vb); err != ErrNoSequenceHeader {
		t.Fatalf("Decode() error = %v, want ErrNoSequenceHeader", err)
	}
	if fb.decodeCalls != 0 {
		t.Fatalf("expected backend.Decode not to be called, got %d calls", fb.decodeCalls)
	}
}

func TestDecoderInstallsHeaderThenAcceptsSubsequentBuffers(t *testing.T) {
	fb := &fakeBackend{}
	d := newDecoderWithBackend(fb)

	keyframe := media.NewVideoBuffer([]byte{1, 2, 3}, []byte{0x67, 0x42}, timestamp.FromTicks100ns(0), 0, media.KeyFrameYes)
	if _, err := d.Decode(keyframe); err != nil {
		t.Fatalf("Decode(keyframe): %v", err)
	}
	if fb.decodeCalls != 1 {
		t.Fatalf("expected 1 decode call, got %d", fb.decodeCalls)
	}

	// A later non-keyframe buffer with no header should now be accepted,
	// since a header has already been installed once.
	follow := media.NewVideoBuffer([]byte{4, 5, 6}, nil, timestamp.FromTicks100ns(1), 0, media.KeyFrameNo)
	if _, err := d.Decode(follow); err != nil {
		t.Fatalf("Decode(follow): %v", err)
	}
	if fb.decodeCalls != 2 {
		t.Fatalf("expected 2 decode calls, got %d", fb.decodeCalls)
	}
}
