package peer

import (
	"testing"

	"github.com/deskstream/deskstream/internal/config"
	"github.com/deskstream/deskstream/internal/render"
)

// Pipeline has no branching logic of its own beyond wiring together
// capture/convert/encode/chunk on one side and receive/assemble/decode/render
// on the other: each of those primitives already gets its own scenario
// coverage (internal/transport's chunker_test.go and assembler_test.go for
// loss/reorder/deadline behavior, internal/media's buffer_test.go and
// internal/decode's decoder_test.go for the Perhaps/sequence-header
// invariants). A real end-to-end run additionally needs a negotiated
// *webrtc.DataChannel, since transport.DataChannel.Wrap only adapts an
// established one; two local PeerConnections is authorship-heavy enough to
// not attempt without being able to exercise it, so what's tested here is
// the part of Pipeline this package can actually own: construction and the
// metrics surface.

func TestNewPipelineStartsWithZeroedMetrics(t *testing.T) {
	p := NewPipeline(nil, nil, nil, config.Default())

	if _, ok := p.sink.(*render.ImageSink); !ok {
		t.Fatalf("NewPipeline should default to an ImageSink, got %T", p.sink)
	}

	s := p.Metrics().Snapshot()
	if s.FramesCaptured != 0 || s.FramesEncoded != 0 || s.FramesSent != 0 ||
		s.FramesDecoded != 0 || s.FramesPresented != 0 || s.FramesDropped != 0 {
		t.Fatalf("fresh Pipeline should report zeroed metrics, got %+v", s)
	}
}

func TestPipelineMetricsReflectRecordedActivity(t *testing.T) {
	p := NewPipeline(nil, nil, nil, config.Default())

	p.metrics.RecordCapture()
	p.metrics.RecordDrop()

	s := p.Metrics().Snapshot()
	if s.FramesCaptured != 1 {
		t.Fatalf("FramesCaptured = %d, want 1", s.FramesCaptured)
	}
	if s.FramesDropped != 1 {
		t.Fatalf("FramesDropped = %d, want 1", s.FramesDropped)
	}
}
