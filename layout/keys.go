package layout

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/graphid/varint"
)

// KeyLen is the size of a fixed-width storage key.
const KeyLen = 8

// AppendKey appends the big-endian form of id to dst. Byte order of keys
// matches numeric order of ids, so all ids of one partition are contiguous.
func AppendKey(dst []byte, id ID) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(id))
}

// FromKey reads an identifier from the first KeyLen bytes of b.
func FromKey(b []byte) (ID, error) {
	if len(b) < KeyLen {
		return 0, fmt.Errorf("%w: key has %d bytes, need %d", ErrUnrecognizedIdentifier, len(b), KeyLen)
	}
	id := ID(binary.BigEndian.Uint64(b))
	if err := validID(id); err != nil {
		return 0, err
	}
	return id, nil
}

// AppendCompact appends the variable-length form of id to dst.
func AppendCompact(dst []byte, id ID) ([]byte, error) {
	if err := validID(id); err != nil {
		return dst, err
	}
	return varint.AppendPositive(dst, id.Int64())
}

// ReadCompact reads an identifier written by AppendCompact.
func ReadCompact(r io.ByteReader) (ID, error) {
	v, err := varint.ReadPositive(r)
	if err != nil {
		return 0, err
	}
	id := ID(v)
	if err := validID(id); err != nil {
		return 0, err
	}
	return id, nil
}
