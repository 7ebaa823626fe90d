package peer

import (
	"sync"
	"time"
)

// StreamMetrics tracks real-time performance data for one Pipeline run,
// grounded on the teacher's internal/remote/desktop stream_metrics.go.
// Spec §3's Statistics wants end-to-end latency observable per frame at
// the sink; a snapshot/logger pair is the ambient surface for that.
type StreamMetrics struct {
	mu sync.RWMutex

	FramesCaptured  uint64
	FramesEncoded   uint64
	FramesSent      uint64
	FramesDecoded   uint64
	FramesPresented uint64
	FramesDropped   uint64

	LastEncodeTime time.Duration
	LastFrameSize  int

	TotalBytesSent uint64
	startTime      time.Time
}

func newStreamMetrics() *StreamMetrics {
	return &StreamMetrics{startTime: time.Now()}
}

func (m *StreamMetrics) RecordCapture() {
	m.mu.Lock()
	m.FramesCaptured++
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordEncode(d time.Duration, size int) {
	m.mu.Lock()
	m.FramesEncoded++
	m.LastEncodeTime = d
	m.LastFrameSize = size
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordSend(size int) {
	m.mu.Lock()
	m.FramesSent++
	m.TotalBytesSent += uint64(size)
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordDecode() {
	m.mu.Lock()
	m.FramesDecoded++
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordPresent() {
	m.mu.Lock()
	m.FramesPresented++
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordDrop() {
	m.mu.Lock()
	m.FramesDropped++
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of StreamMetrics for logging.
type MetricsSnapshot struct {
	FramesCaptured  uint64
	FramesEncoded   uint64
	FramesSent      uint64
	FramesDecoded   uint64
	FramesPresented uint64
	FramesDropped   uint64
	EncodeMs        float64
	LastFrameSize   int
	BandwidthKBps   float64
	Uptime          time.Duration
}

func (m *StreamMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	bw := float64(0)
	if uptime.Seconds() > 0 {
		bw = float64(m.TotalBytesSent) / uptime.Seconds() / 1024.0
	}

	return MetricsSnapshot{
		FramesCaptured:  m.FramesCaptured,
		FramesEncoded:   m.FramesEncoded,
		FramesSent:      m.FramesSent,
		FramesDecoded:   m.FramesDecoded,
		FramesPresented: m.FramesPresented,
		FramesDropped:   m.FramesDropped,
		EncodeMs:        float64(m.LastEncodeTime.Microseconds()) / 1000.0,
		LastFrameSize:   m.LastFrameSize,
		BandwidthKBps:   bw,
		Uptime:          uptime,
	}
}

// logSnapshot periodically logs a MetricsSnapshot until done is closed, the
// same cadence as the teacher's own heartbeat-driven metrics logging.
func logSnapshot(done <-chan struct{}, m *StreamMetrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s := m.Snapshot()
			log.Info("stream metrics",
				"captured", s.FramesCaptured,
				"encoded", s.FramesEncoded,
				"sent", s.FramesSent,
				"decoded", s.FramesDecoded,
				"presented", s.FramesPresented,
				"dropped", s.FramesDropped,
				"encodeMs", s.EncodeMs,
				"bandwidthKBps", s.BandwidthKBps,
			)
		}
	}
}
