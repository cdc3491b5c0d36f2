package varint

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
)

// MaxLen is the maximum number of bytes a single encoded value occupies.
const MaxLen = 10

const (
	dataMask = 0x7f
	stopBit  = 0x80
	groupLen = 7
)

// ErrEncoding is returned for malformed byte streams and for values outside
// the domain of the requested encoding.
var ErrEncoding = errors.New("varint: encoding error")

func bitLength(u uint64) int {
	if u == 0 {
		return 1
	}
	return bits.Len64(u)
}

func numBlocks(numBits int) int {
	return (numBits-1)/groupLen + 1
}

func appendUnsigned(dst []byte, u uint64) []byte {
	return appendBlocks(dst, numBlocks(bitLength(u))*groupLen, u)
}

// appendBlocks writes the low offset bits of u as offset/7 groups.
func appendBlocks(dst []byte, offset int, u uint64) []byte {
	for offset > 0 {
		offset -= groupLen
		b := byte(u>>uint(offset)) & dataMask
		if offset == 0 {
			b |= stopBit
		}
		dst = append(dst, b)
	}
	return dst
}

func writeUnsigned(w io.ByteWriter, u uint64) error {
	var scratch [MaxLen]byte
	for _, b := range appendUnsigned(scratch[:0], u) {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// readUnsigned returns the decoded value and the number of bytes consumed.
func readUnsigned(r io.ByteReader) (uint64, int, error) {
	var u uint64
	for i := 0; i < MaxLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if i == 0 {
					return 0, 0, fmt.Errorf("%w: %w", ErrEncoding, io.EOF)
				}
				return 0, i, fmt.Errorf("%w: %w", ErrEncoding, io.ErrUnexpectedEOF)
			}
			return 0, i, err
		}
		if u > math.MaxUint64>>groupLen {
			return 0, i + 1, fmt.Errorf("%w: value overflows 64 bits", ErrEncoding)
		}
		u = u<<groupLen | uint64(b&dataMask)
		if b&stopBit != 0 {
			return u, i + 1, nil
		}
	}
	return 0, MaxLen, fmt.Errorf("%w: value longer than %d bytes", ErrEncoding, MaxLen)
}

func toUnsigned(v int64) uint64 {
	switch {
	case v >= 0:
		return uint64(v) << 1
	case v == math.MinInt64:
		return 1
	default:
		return uint64(-v)<<1 | 1
	}
}

func fromUnsigned(u uint64) int64 {
	if u&1 == 0 {
		return int64(u >> 1)
	}
	if u == 1 {
		return math.MinInt64
	}
	return -int64(u >> 1)
}

func checkPositive(v int64) error {
	if v < 0 {
		return fmt.Errorf("%w: negative value %d for positive encoding", ErrEncoding, v)
	}
	return nil
}

// WritePositive writes a non-negative value. Negative values fail with ErrEncoding.
func WritePositive(w io.ByteWriter, v int64) error {
	if err := checkPositive(v); err != nil {
		return err
	}
	return writeUnsigned(w, uint64(v))
}

// ReadPositive reads a value written by WritePositive.
func ReadPositive(r io.ByteReader) (int64, error) {
	u, _, err := readUnsigned(r)
	if err != nil {
		return 0, err
	}
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%w: positive value overflows int64", ErrEncoding)
	}
	return int64(u), nil
}

// Write writes any int64 value.
func Write(w io.ByteWriter, v int64) error {
	return writeUnsigned(w, toUnsigned(v))
}

// Read reads a value written by Write.
func Read(r io.ByteReader) (int64, error) {
	u, _, err := readUnsigned(r)
	if err != nil {
		return 0, err
	}
	return fromUnsigned(u), nil
}

// AppendPositive appends the encoding of a non-negative value to dst.
func AppendPositive(dst []byte, v int64) ([]byte, error) {
	if err := checkPositive(v); err != nil {
		return dst, err
	}
	return appendUnsigned(dst, uint64(v)), nil
}

// Append appends the signed encoding of v to dst.
func Append(dst []byte, v int64) []byte {
	return appendUnsigned(dst, toUnsigned(v))
}

// DecodePositive decodes a positive value from the start of b and returns the
// number of bytes consumed.
func DecodePositive(b []byte) (int64, int, error) {
	r := byteSlice{b: b}
	v, err := ReadPositive(&r)
	return v, r.pos, err
}

// Decode decodes a signed value from the start of b and returns the number of
// bytes consumed.
func Decode(b []byte) (int64, int, error) {
	r := byteSlice{b: b}
	v, err := Read(&r)
	return v, r.pos, err
}

// PositiveLength returns the encoded size of a non-negative value, or 0 for
// negative input.
func PositiveLength(v int64) int {
	if v < 0 {
		return 0
	}
	return numBlocks(bitLength(uint64(v)))
}

// Length returns the encoded size of v under the signed encoding.
func Length(v int64) int {
	return numBlocks(bitLength(toUnsigned(v)))
}

type byteSlice struct {
	b   []byte
	pos int
}

func (s *byteSlice) ReadByte() (byte, error) {
	if s.pos >= len(s.b) {
		return 0, io.EOF
	}
	b := s.b[s.pos]
	s.pos++
	return b, nil
}
