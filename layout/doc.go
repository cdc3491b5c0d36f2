// Package layout packs graph identifiers into 63-bit integers.
//
// An identifier carries three fields: the kind of entity it names, the
// partition the entity lives in and a counter unique within that
// (partition, kind) pair. The kind is stored as a low-order tag so ids of
// different kinds never collide; the partition occupies the most significant
// bits so that, as keys, all ids of one partition sort together.
//
// Layout values are immutable:
//
//	l, err := layout.New(layout.Config{PartitionBits: 5})
//	if err != nil {
//		return err
//	}
//	id, err := l.Encode(layout.Vertex, 42, 3)
//	d, err := l.Decode(id) // {Vertex, 3, 42}
//
// The configuration is part of the storage format. Changing PartitionBits or
// ReserveSentinel on existing data makes old ids decode differently.
package layout
