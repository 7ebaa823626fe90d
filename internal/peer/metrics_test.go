package peer

import (
	"testing"
	"time"
)

func TestStreamMetricsSnapshotAccumulates(t *testing.T) {
	m := newStreamMetrics()

	m.RecordCapture()
	m.RecordCapture()
	m.RecordEncode(5*time.Millisecond, 1200)
	m.RecordSend(600)
	m.RecordSend(600)
	m.RecordDecode()
	m.RecordPresent()
	m.RecordDrop()

	s := m.Snapshot()

	if s.FramesCaptured != 2 {
		t.Fatalf("FramesCaptured = %d, want 2", s.FramesCaptured)
	}
	if s.FramesEncoded != 1 {
		t.Fatalf("FramesEncoded = %d, want 1", s.FramesEncoded)
	}
	if s.FramesSent != 2 {
		t.Fatalf("FramesSent = %d, want 2", s.FramesSent)
	}
	if s.FramesDecoded != 1 {
		t.Fatalf("FramesDecoded = %d, want 1", s.FramesDecoded)
	}
	if s.FramesPresented != 1 {
		t.Fatalf("FramesPresented = %d, want 1", s.FramesPresented)
	}
	if s.FramesDropped != 1 {
		t.Fatalf("FramesDropped = %d, want 1", s.FramesDropped)
	}
	if s.LastFrameSize != 1200 {
		t.Fatalf("LastFrameSize = %d, want 1200", s.LastFrameSize)
	}
	if s.EncodeMs <= 0 {
		t.Fatalf("EncodeMs = %f, want > 0", s.EncodeMs)
	}
}

func TestStreamMetricsBandwidthIsZeroWithNoUptime(t *testing.T) {
	m := newStreamMetrics()
	s := m.Snapshot()
	if s.BandwidthKBps != 0 {
		t.Fatalf("BandwidthKBps = %f, want 0 immediately after creation", s.BandwidthKBps)
	}
}
