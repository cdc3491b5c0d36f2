package hash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// RecordSize is the size of a checksummed counter record.
const RecordSize = 12

// ErrChecksum is returned for records whose checksum does not match.
var ErrChecksum = errors.New("hash: checksum mismatch")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// AppendRecord appends v as a record: 8 bytes big-endian value followed by
// the 4-byte big-endian CRC32C of those 8 bytes.
func AppendRecord(dst []byte, v uint64) []byte {
	start := len(dst)
	dst = binary.BigEndian.AppendUint64(dst, v)
	return binary.BigEndian.AppendUint32(dst, CRC32C(dst[start:]))
}

// ParseRecord decodes a record written by AppendRecord.
func ParseRecord(b []byte) (uint64, error) {
	if len(b) != RecordSize {
		return 0, fmt.Errorf("%w: %d byte record, want %d", ErrChecksum, len(b), RecordSize)
	}
	if got, want := CRC32C(b[:8]), binary.BigEndian.Uint32(b[8:]); got != want {
		return 0, fmt.Errorf("%w: %08x, want %08x", ErrChecksum, got, want)
	}
	return binary.BigEndian.Uint64(b[:8]), nil
}
