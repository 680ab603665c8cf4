package encoding

import (
	"encoding/binary"
	"fmt"
)

// AppendUvarints appends each id as an unsigned LEB128 varint.
func AppendUvarints(dst []byte, ids []int) []byte {
	var tmp [binary.MaxVarintLen64]byte
	for _, id := range ids {
		n := binary.PutUvarint(tmp[:], uint64(id))
		dst = append(dst, tmp[:n]...)
	}
	return dst
}

// DecodeUvarints decodes a packed varint stream. Truncated or overlong
// varints are errors.
func DecodeUvarints(raw []byte) ([]int, error) {
	out := make([]int, 0, len(raw))
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		if v > 1<<31-1 {
			return nil, fmt.Errorf("id too large at %d: %d", i, v)
		}
		out = append(out, int(v))
		i += n
	}
	return out, nil
}
