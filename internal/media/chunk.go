package media

import (
	"encoding/binary"
	"fmt"
)

// Chunk is one fragment of a VideoBuffer's wire encoding, sized to fit
// under the data channel's message size limit. Because Data is a slice,
// Chunk itself is not comparable; its (ID, Part, Total) identity is
// exposed through Key instead of a hand-written equality/hash the way
// the original Rust type does it.
type Chunk struct {
	ID    uint32
	Part  uint32
	Total uint32
	Data  []byte
}

// ChunkKey is the (ID, Part, Total) triple used for dedup in the
// assembler's per-id set. Chunk itself can't be used directly as a map
// key because it embeds a []byte.
type ChunkKey struct {
	ID    uint32
	Part  uint32
	Total uint32
}

// Key returns the chunk's dedup/ordering identity.
func (c Chunk) Key() ChunkKey {
	return ChunkKey{ID: c.ID, Part: c.Part, Total: c.Total}
}

// EncodeChunk serializes a Chunk for one data-channel message: three
// u32 header fields followed by the fragment's bytes.
func EncodeChunk(c Chunk) []byte {
	buf := make([]byte, 12+len(c.Data))
	binary.BigEndian.PutUint32(buf[0:4], c.ID)
	binary.BigEndian.PutUint32(buf[4:8], c.Part)
	binary.BigEndian.PutUint32(buf[8:12], c.Total)
	copy(buf[12:], c.Data)
	return buf
}

// DecodeChunk is EncodeChunk's inverse.
func DecodeChunk(b []byte) (Chunk, error) {
	if len(b) < 12 {
		return Chunk{}, fmt.Errorf("media: chunk header truncated, got %d bytes", len(b))
	}
	data := make([]byte, len(b)-12)
	copy(data, b[12:])
	return Chunk{
		ID:    binary.BigEndian.Uint32(b[0:4]),
		Part:  binary.BigEndian.Uint32(b[4:8]),
		Total: binary.BigEndian.Uint32(b[8:12]),
		Data:  data,
	}, nil
}
