package varint

import (
	"fmt"
	"io"
	"math"
	"math/bits"
)

// MaxPrefixBits is the widest prefix WritePositiveWithPrefix can pack into the
// first byte.
const MaxPrefixBits = 5

func checkPrefix(prefix uint8, prefixBits int) error {
	if prefixBits < 1 || prefixBits > MaxPrefixBits {
		return fmt.Errorf("%w: prefix width %d outside [1,%d]", ErrEncoding, prefixBits, MaxPrefixBits)
	}
	if uint(prefix) >= 1<<uint(prefixBits) {
		return fmt.Errorf("%w: prefix %d does not fit %d bits", ErrEncoding, prefix, prefixBits)
	}
	return nil
}

// WritePositiveWithPrefix writes a non-negative value together with a
// fixed-width prefix stored in the high bits of the first byte.
//
// First byte layout: [prefix | continue flag | high value bits].
func WritePositiveWithPrefix(w io.ByteWriter, v int64, prefix uint8, prefixBits int) error {
	if err := checkPositive(v); err != nil {
		return err
	}
	if err := checkPrefix(prefix, prefixBits); err != nil {
		return err
	}

	u := uint64(v)
	deltaLen := 8 - prefixBits
	first := prefix << uint(deltaLen)
	valueLen := bitLength(u)
	mod := valueLen % groupLen
	if mod <= deltaLen-1 {
		offset := valueLen - mod
		first |= byte(u >> uint(offset))
		u &= (1 << uint(offset)) - 1
		valueLen -= mod
	} else {
		valueLen += groupLen - mod
	}
	if valueLen > 0 {
		first |= 1 << uint(deltaLen-1)
	}
	if err := w.WriteByte(first); err != nil {
		return err
	}
	if valueLen == 0 {
		return nil
	}
	var scratch [MaxLen]byte
	for _, b := range appendBlocks(scratch[:0], valueLen, u) {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// ReadPositiveWithPrefix reads a value written by WritePositiveWithPrefix and
// returns it together with its prefix.
func ReadPositiveWithPrefix(r io.ByteReader, prefixBits int) (int64, uint8, error) {
	if err := checkPrefix(0, prefixBits); err != nil {
		return 0, 0, err
	}
	first, err := r.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	deltaLen := 8 - prefixBits
	prefix := first >> uint(deltaLen)
	value := uint64(first) & ((1 << uint(deltaLen-1)) - 1)
	if (first>>uint(deltaLen-1))&1 == 0 {
		return int64(value), prefix, nil
	}

	rem, n, err := readUnsigned(r)
	if err != nil {
		if n == 0 {
			// The first byte announced more data.
			return 0, 0, fmt.Errorf("%w: %w", ErrEncoding, io.ErrUnexpectedEOF)
		}
		return 0, 0, err
	}
	shift := n * groupLen
	if value != 0 && bits.Len64(value)+shift > 63 {
		return 0, 0, fmt.Errorf("%w: prefixed value overflows int64", ErrEncoding)
	}
	if value != 0 {
		rem |= value << uint(shift)
	}
	if rem > math.MaxInt64 {
		return 0, 0, fmt.Errorf("%w: prefixed value overflows int64", ErrEncoding)
	}
	return int64(rem), prefix, nil
}

// PositiveWithPrefixLength returns the encoded size of v with a prefix of the
// given width.
func PositiveWithPrefixLength(v int64, prefixBits int) int {
	if v < 0 {
		return 0
	}
	return numBlocks(bitLength(uint64(v)) + prefixBits)
}
