package hash

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC32C_KnownValue(t *testing.T) {
	// Check value from RFC 3720, B.4.
	assert.Equal(t, uint32(0xe3069283), CRC32C([]byte("123456789")))
}

func TestRecord_RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 10001, math.MaxInt64, math.MaxUint64} {
		rec := AppendRecord(nil, v)
		require.Len(t, rec, RecordSize)

		got, err := ParseRecord(rec)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestRecord_AppendsToPrefix(t *testing.T) {
	rec := AppendRecord([]byte{0xAA}, 7)
	require.Len(t, rec, 1+RecordSize)

	got, err := ParseRecord(rec[1:])
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)
}

func TestRecord_Corrupt(t *testing.T) {
	rec := AppendRecord(nil, 42)
	rec[3] ^= 0x01
	_, err := ParseRecord(rec)
	assert.ErrorIs(t, err, ErrChecksum)

	_, err = ParseRecord(rec[:5])
	assert.ErrorIs(t, err, ErrChecksum)
}
