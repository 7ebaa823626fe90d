// Package media defines the wire-level media types that flow between the
// encoder, chunker, data channel, assembler and decoder: encoded video
// buffers, per-stage statistics, and the keyframe tri-state a hardware
// encoder backend may only be able to answer ambiguously.
package media

import (
	"fmt"
	"time"

	"github.com/deskstream/deskstream/internal/timestamp"
)

// KeyFrameState answers "is this an IDR/clean-point frame" with an
// explicit third state for backends (hardware MFTs in particular) whose
// clean-point attribute can be absent or erroring rather than a crisp
// yes/no.
type KeyFrameState int

const (
	KeyFrameNo KeyFrameState = iota
	KeyFrameYes
	KeyFramePerhaps
)

func (k KeyFrameState) String() string {
	switch k {
	case KeyFrameYes:
		return "yes"
	case KeyFramePerhaps:
		return "perhaps"
	default:
		return "no"
	}
}

// VideoBuffer is one encoded access unit ready to be chunked and sent, or
// one that has just been reassembled and is ready to decode.
//
// SequenceHeader carries the SPS/PPS blob, present only when KeyFrame is
// KeyFrameYes. KeyFramePerhaps is deliberately treated the same as
// KeyFrameNo for sequence-header extraction: a backend that can't say for
// certain a frame is a clean point shouldn't have a decoder re-seed its
// input type from it, since a stale or wrong sequence header would break
// the assembler's "first buffer after reconnect carries a header"
// contract for every decoder downstream. A decoder that actually needed
// a fresh header will simply fail to decode an ambiguous frame and wait
// for the next unambiguous keyframe.
type VideoBuffer struct {
	Data           []byte
	SequenceHeader []byte
	Time           timestamp.Timestamp
	Duration       time.Duration
	KeyFrame       KeyFrameState
	Stats          Statistics
}

// NewVideoBuffer validates the keyframe/sequence-header invariant before
// constructing a VideoBuffer. A KeyFrameYes buffer without a sequence
// header is a programmer error in the encoder backend, not a condition
// that can arise from network or peer behaviour, so it panics rather
// than returning an error.
func NewVideoBuffer(data, seqHdr []byte, ts timestamp.Timestamp, dur time.Duration, kf KeyFrameState) *VideoBuffer {
	if kf == KeyFrameYes && len(seqHdr) == 0 {
		panic("media: KeyFrameYes buffer constructed without a sequence header")
	}
	return &VideoBuffer{
		Data:           data,
		SequenceHeader: seqHdr,
		Time:           ts,
		Duration:       dur,
		KeyFrame:       kf,
	}
}

func (v *VideoBuffer) String() string {
	return fmt.Sprintf("videoBuffer(%dB key=%s ts=%v)", len(v.Data), v.KeyFrame, v.Time.Duration())
}

// StageStats records queueing and timing observed at a single pipeline
// stage, sampled once per processed buffer.
type StageStats struct {
	QueueDepth int
	Interval   time.Duration
	StageStart time.Time
	StageEnd   time.Time
}

// Elapsed returns how long the stage spent on this buffer.
func (s StageStats) Elapsed() time.Duration {
	if s.StageStart.IsZero() || s.StageEnd.IsZero() {
		return 0
	}
	return s.StageEnd.Sub(s.StageStart)
}

// Statistics aggregates per-stage timing for a single frame as it moves
// through convert, encode and decode, so end-to-end latency is
// observable at the render sink without any separate tracing
// infrastructure.
type Statistics struct {
	Convert StageStats
	Encode  StageStats
	Decode  StageStats
}
