package convert

import "testing"

func TestBGRAtoNV12_2x2(t *testing.T) {
	// (0,0)=red, (1,0)=green, (0,1)=blue, (1,1)=white, in BGRA byte order.
	bgra := []byte{
		0, 0, 255, 255, 0, 255, 0, 255,
		255, 0, 0, 255, 255, 255, 255, 255,
	}

	nv12 := bgraToNV12(bgra, 2, 2, 2*4)
	defer putNV12Buffer(nv12)

	if len(nv12) != 6 {
		t.Fatalf("expected nv12 length 6, got %d", len(nv12))
	}

	want := []byte{
		82, 144,
		41, 235,
		90, 240,
	}
	for i := range want {
		if nv12[i] != want[i] {
			t.Fatalf("byte[%d]: expected %d, got %d (nv12=%v)", i, want[i], nv12[i], nv12)
		}
	}
}

func TestNV12toBGRARoundTripKeepsAlphaOpaque(t *testing.T) {
	bgra := []byte{
		0, 0, 255, 255, 0, 255, 0, 255,
		255, 0, 0, 255, 255, 255, 255, 255,
	}
	nv12 := bgraToNV12(bgra, 2, 2, 2*4)
	defer putNV12Buffer(nv12)

	back := nv12ToBGRA(nv12, 2, 2)
	if len(back) != len(bgra) {
		t.Fatalf("expected round-tripped length %d, got %d", len(bgra), len(back))
	}
	// Lossy 4:2:0 chroma subsampling means exact pixel equality isn't
	// expected; check the alpha channel is always opaque, which is what
	// callers actually depend on.
	for i := 3; i < len(back); i += 4 {
		if back[i] != 255 {
			t.Fatalf("expected alpha=255 at pixel byte %d, got %d", i, back[i])
		}
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(-5, 0, 255); got != 0 {
		t.Fatalf("clamp(-5,0,255) = %d, want 0", got)
	}
	if got := clamp(300, 0, 255); got != 255 {
		t.Fatalf("clamp(300,0,255) = %d, want 255", got)
	}
	if got := clamp(100, 0, 255); got != 100 {
		t.Fatalf("clamp(100,0,255) = %d, want 100", got)
	}
}
