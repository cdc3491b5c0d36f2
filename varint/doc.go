// Package varint implements the variable-length integer encoding used to
// persist identifiers, counts and generic longs in storage keys and log records.
//
// # Format
//
// Values are split into 7-bit groups written most significant group first.
// The high bit of a byte is set only on the last byte of a value:
//
//	300 = 0b10_0101100  →  0x02 0xAC
//	          ^^ ^^^^^^^
//	          |  └ last group, stop bit set
//	          └ first group
//
// Since the stop bit marks the end and groups are written big-endian, encoded
// non-negative values of equal length sort in numeric order.
//
// Signed values are mapped onto the unsigned domain before encoding:
//
//	v ≥ 0           → 2v
//	v < 0           → 2|v| + 1
//	math.MinInt64   → 1
//
// The mapping is a bijection over the full int64 range. No value needs more than
// [MaxLen] bytes.
//
// # Usage
//
//	var buf bytes.Buffer
//	_ = varint.WritePositive(&buf, 42)
//	v, err := varint.ReadPositive(&buf)
//
//	b := varint.Append(nil, -7)
//	v, n, err := varint.Decode(b)
//
// This format is a storage contract: changing it invalidates persisted data.
package varint
