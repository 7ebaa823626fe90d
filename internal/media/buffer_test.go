package media

import (
	"testing"
	"time"

	"github.com/deskstream/deskstream/internal/timestamp"
)

func TestNewVideoBufferPanicsOnMissingSequenceHeaderForKeyframe(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for KeyFrameYes without a sequence header")
		}
	}()
	NewVideoBuffer([]byte{1, 2, 3}, nil, timestamp.FromTicks100ns(0), 0, KeyFrameYes)
}

func TestNewVideoBufferAllowsPerhapsWithoutSequenceHeader(t *testing.T) {
	vb := NewVideoBuffer([]byte{1, 2, 3}, nil, timestamp.FromTicks100ns(0), 0, KeyFramePerhaps)
	if vb.SequenceHeader != nil {
		t.Fatal("expected nil sequence header")
	}
}

func TestEncodeDecodeVideoBufferRoundTrip(t *testing.T) {
	ts := timestamp.FromTicks100ns(12345)
	orig := NewVideoBuffer([]byte{0xde, 0xad, 0xbe, 0xef}, []byte{0x67, 0x42}, ts, 33*time.Millisecond, KeyFrameYes)

	wire := EncodeVideoBuffer(orig)
	got, err := DecodeVideoBuffer(wire)
	if err != nil {
		t.Fatalf("DecodeVideoBuffer: %v", err)
	}

	if string(got.Data) != string(orig.Data) {
		t.Fatalf("Data = %v, want %v", got.Data, orig.Data)
	}
	if string(got.SequenceHeader) != string(orig.SequenceHeader) {
		t.Fatalf("SequenceHeader = %v, want %v", got.SequenceHeader, orig.SequenceHeader)
	}
	if got.Time.Ticks100ns() != orig.Time.Ticks100ns() {
		t.Fatalf("Time = %v, want %v", got.Time, orig.Time)
	}
	if got.Duration != orig.Duration {
		t.Fatalf("Duration = %v, want %v", got.Duration, orig.Duration)
	}
	if got.KeyFrame != orig.KeyFrame {
		t.Fatalf("KeyFrame = %v, want %v", got.KeyFrame, orig.KeyFrame)
	}
}

func TestDecodeVideoBufferRejectsTruncatedInput(t *testing.T) {
	if _, err := DecodeVideoBuffer([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error decoding a truncated buffer")
	}
}
