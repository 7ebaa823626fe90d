package media

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/deskstream/deskstream/internal/timestamp"
)

// EncodeVideoBuffer serializes a VideoBuffer to its wire form. Statistics
// are not carried over the wire — they are a local observability
// concern, re-populated independently by the receiving side's own
// stages.
//
// Layout: u8 keyFrame | u32 dataLen | data | u32 seqHdrLen | seqHdr |
// i64 timeTicks100ns | i64 durationNanos
func EncodeVideoBuffer(v *VideoBuffer) []byte {
	out := make([]byte, 0, 1+4+len(v.Data)+4+len(v.SequenceHeader)+8+8)
	out = append(out, byte(v.KeyFrame))
	out = binary.BigEndian.AppendUint32(out, uint32(len(v.Data)))
	out = append(out, v.Data...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(v.SequenceHeader)))
	out = append(out, v.SequenceHeader...)
	out = binary.BigEndian.AppendUint64(out, uint64(v.Time.Ticks100ns()))
	out = binary.BigEndian.AppendUint64(out, uint64(v.Duration))
	return out
}

// DecodeVideoBuffer parses the wire form produced by EncodeVideoBuffer.
func DecodeVideoBuffer(b []byte) (*VideoBuffer, error) {
	if len(b) < 1+4 {
		return nil, fmt.Errorf("media: buffer too short (%d bytes)", len(b))
	}
	kf := KeyFrameState(b[0])
	b = b[1:]

	dataLen := binary.BigEndian.Uint32(b)
	b = b[4:]
	if uint32(len(b)) < dataLen {
		return nil, fmt.Errorf("media: truncated data (want %d, have %d)", dataLen, len(b))
	}
	data := b[:dataLen]
	b = b[dataLen:]

	if len(b) < 4 {
		return nil, fmt.Errorf("media: missing sequence header length")
	}
	seqLen := binary.BigEndian.Uint32(b)
	b = b[4:]
	if uint32(len(b)) < seqLen {
		return nil, fmt.Errorf("media: truncated sequence header (want %d, have %d)", seqLen, len(b))
	}
	var seqHdr []byte
	if seqLen > 0 {
		seqHdr = b[:seqLen]
	}
	b = b[seqLen:]

	if len(b) < 16 {
		return nil, fmt.Errorf("media: missing timestamp/duration")
	}
	ticks := int64(binary.BigEndian.Uint64(b[:8]))
	dur := int64(binary.BigEndian.Uint64(b[8:16]))

	return &VideoBuffer{
		Data:           append([]byte(nil), data...),
		SequenceHeader: append([]byte(nil), seqHdr...),
		Time:           timestamp.FromTicks100ns(ticks),
		Duration:       time.Duration(dur),
		KeyFrame:       kf,
	}, nil
}

// EncodeAudioChunk serializes one PCM sample chunk for the audio data
// channel, which carries raw payloads unchunked (spec §4.6's "no
// chunking" option for the audio channel — each message is one chunk).
//
// Layout: i64 timeTicks100ns | u32 sampleCount | samples (i16 BE each)
func EncodeAudioChunk(samples []int16, ts timestamp.Timestamp) []byte {
	out := make([]byte, 0, 8+4+len(samples)*2)
	out = binary.BigEndian.AppendUint64(out, uint64(ts.Ticks100ns()))
	out = binary.BigEndian.AppendUint32(out, uint32(len(samples)))
	for _, s := range samples {
		out = binary.BigEndian.AppendUint16(out, uint16(s))
	}
	return out
}

// DecodeAudioChunk parses the wire form produced by EncodeAudioChunk.
func DecodeAudioChunk(b []byte) ([]int16, timestamp.Timestamp, error) {
	if len(b) < 8+4 {
		return nil, timestamp.Timestamp{}, fmt.Errorf("media: audio chunk too short (%d bytes)", len(b))
	}
	ticks := int64(binary.BigEndian.Uint64(b[:8]))
	b = b[8:]

	count := binary.BigEndian.Uint32(b)
	b = b[4:]
	if uint32(len(b)) < count*2 {
		return nil, timestamp.Timestamp{}, fmt.Errorf("media: truncated audio samples (want %d, have %d)", count*2, len(b))
	}

	samples := make([]int16, count)
	for i := range samples {
		samples[i] = int16(binary.BigEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples, timestamp.FromTicks100ns(ticks), nil
}
