package layout

import (
	"errors"
	"fmt"
	"math"
)

// TotalBits is the number of usable identifier bits. Bit 63 is always zero so
// every identifier is also a non-negative int64.
const TotalBits = 63

// MaxPartitionBits is the widest supported partition field.
const MaxPartitionBits = 31

// DefaultMinCounterBits is the smallest counter field a layout accepts.
const DefaultMinCounterBits = 4

var (
	// ErrInvalidArgument is returned for out-of-bounds counters or partitions
	// and for decoding a field a kind does not have.
	ErrInvalidArgument = errors.New("layout: invalid argument")

	// ErrUnrecognizedIdentifier is returned when a value cannot be an
	// identifier of this layout.
	ErrUnrecognizedIdentifier = errors.New("layout: unrecognized identifier")

	// ErrInvalidConfig is returned by New for layouts that leave too few
	// counter bits.
	ErrInvalidConfig = errors.New("layout: invalid configuration")
)

// ID is a packed 63-bit identifier.
//
// Format (most to least significant bit):
//
//	[ 0 | partition (P bits) | counter (C bits) | tag (T bits) ]
//
// C = 63 - P - T. A zero partition is not written, so unpartitioned
// deployments produce the same ids as a layout with P = 0.
type ID uint64

// Int64 returns the identifier as a signed integer. It is never negative.
func (id ID) Int64() int64 {
	return int64(id)
}

func (id ID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Config holds the deployment-time layout constants. They are part of the
// storage format and must not change once data exists.
type Config struct {
	// PartitionBits is the width of the partition field, 0 to 31.
	PartitionBits uint

	// MinCounterBits is the minimum counter width any kind may be left with.
	// If 0, DefaultMinCounterBits is used.
	MinCounterBits uint

	// ReserveSentinel withholds the top counter value of every kind so callers
	// can use it as an exclusive upper bound.
	ReserveSentinel bool
}

// Decoded is the unpacked form of an identifier.
type Decoded struct {
	Kind      Kind
	Partition uint64
	Counter   uint64
}

// Layout packs and unpacks identifiers. It is immutable and safe for
// concurrent use.
type Layout struct {
	cfg             Config
	partitionOffset uint
	partitionMask   uint64 // bits below the partition field
	maxPartition    uint64
	maxCounter      [EdgeLabel + 1]uint64
}

// New validates cfg and returns a layout.
func New(cfg Config) (*Layout, error) {
	if cfg.MinCounterBits == 0 {
		cfg.MinCounterBits = DefaultMinCounterBits
	}
	if cfg.PartitionBits > MaxPartitionBits {
		return nil, fmt.Errorf("%w: partition bits can be at most %d, got %d",
			ErrInvalidConfig, MaxPartitionBits, cfg.PartitionBits)
	}

	l := &Layout{
		cfg:             cfg,
		partitionOffset: TotalBits - cfg.PartitionBits,
		maxPartition:    1<<cfg.PartitionBits - 1,
	}
	l.partitionMask = 1<<l.partitionOffset - 1

	for _, k := range Kinds {
		counterBits := TotalBits - cfg.PartitionBits - k.TagBits()
		if counterBits < cfg.MinCounterBits {
			return nil, fmt.Errorf("%w: no bits left for %s ids: %d counter bits, need at least %d",
				ErrInvalidConfig, k, counterBits, cfg.MinCounterBits)
		}
		maxCounter := uint64(1)<<counterBits - 1
		if cfg.ReserveSentinel {
			maxCounter--
		}
		l.maxCounter[k] = maxCounter
	}
	return l, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(cfg Config) *Layout {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// Config returns the layout's configuration.
func (l *Layout) Config() Config { return l.cfg }

// PartitionBits returns the width of the partition field.
func (l *Layout) PartitionBits() uint { return l.cfg.PartitionBits }

// MaxPartition returns the largest encodable partition.
func (l *Layout) MaxPartition() uint64 { return l.maxPartition }

// CounterBits returns the width of the counter field for kind, or 0 for an
// unknown kind.
func (l *Layout) CounterBits(kind Kind) uint {
	if !kind.Valid() {
		return 0
	}
	return TotalBits - l.cfg.PartitionBits - kind.TagBits()
}

// MaxCounter returns the largest counter encodable for kind, or 0 for an
// unknown kind.
func (l *Layout) MaxCounter(kind Kind) uint64 {
	if !kind.Valid() {
		return 0
	}
	return l.maxCounter[kind]
}

// Encode packs (kind, counter, partition) into an identifier.
//
// counter must be in [1, MaxCounter(kind)] and partition in [0, MaxPartition].
// Schema types only accept partition 0. Out-of-bounds input fails with
// ErrInvalidArgument; nothing is truncated.
func (l *Layout) Encode(kind Kind, counter, partition uint64) (ID, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown kind %s", ErrInvalidArgument, kind)
	}
	if counter == 0 || counter > l.maxCounter[kind] {
		return 0, fmt.Errorf("%w: %s counter %d outside [1,%d]",
			ErrInvalidArgument, kind, counter, l.maxCounter[kind])
	}
	if partition > l.maxPartition {
		return 0, fmt.Errorf("%w: partition %d exceeds limit of %d",
			ErrInvalidArgument, partition, l.maxPartition)
	}
	if partition > 0 && kind.IsSchemaType() {
		return 0, fmt.Errorf("%w: %s ids are not partitioned, got partition %d",
			ErrInvalidArgument, kind, partition)
	}

	id := counter<<kind.TagBits() | kind.TagValue()
	if partition > 0 {
		id |= partition << l.partitionOffset
	}
	return ID(id), nil
}

// MustEncode is like Encode but panics on invalid input.
func (l *Layout) MustEncode(kind Kind, counter, partition uint64) ID {
	id, err := l.Encode(kind, counter, partition)
	if err != nil {
		panic(err)
	}
	return id
}

func validID(id ID) error {
	if id == 0 || uint64(id) > math.MaxInt64 {
		return fmt.Errorf("%w: %d", ErrUnrecognizedIdentifier, uint64(id))
	}
	return nil
}

// KindOf returns the kind encoded in id's tag.
func (l *Layout) KindOf(id ID) (Kind, error) {
	if err := validID(id); err != nil {
		return 0, err
	}
	for _, k := range Kinds {
		if k.matches(uint64(id)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: no tag matches %d", ErrUnrecognizedIdentifier, uint64(id))
}

// Is reports whether id is a well-formed identifier of the given kind.
func (l *Layout) Is(kind Kind, id ID) bool {
	k, err := l.KindOf(id)
	return err == nil && k == kind
}

// IsSchemaType reports whether id belongs to the schema-type class.
func (l *Layout) IsSchemaType(id ID) bool {
	if validID(id) != nil {
		return false
	}
	return uint64(id)&(1<<schemaTypeTagBits-1) == schemaTypeTagValue
}

// PartitionOf returns the partition of a vertex or relation id. Schema-type
// ids have no partition and fail with ErrInvalidArgument.
func (l *Layout) PartitionOf(id ID) (uint64, error) {
	kind, err := l.KindOf(id)
	if err != nil {
		return 0, err
	}
	if !kind.Partitioned() {
		return 0, fmt.Errorf("%w: %s ids have no partition", ErrInvalidArgument, kind)
	}
	return l.partition(id), nil
}

func (l *Layout) partition(id ID) uint64 {
	if l.cfg.PartitionBits == 0 {
		return 0
	}
	return uint64(id) >> l.partitionOffset
}

// CounterOf returns the counter field of id.
func (l *Layout) CounterOf(id ID) (uint64, error) {
	kind, err := l.KindOf(id)
	if err != nil {
		return 0, err
	}
	return (uint64(id) & l.partitionMask) >> kind.TagBits(), nil
}

// Decode unpacks id. It fails with ErrUnrecognizedIdentifier for values no
// Encode call could have produced.
func (l *Layout) Decode(id ID) (Decoded, error) {
	kind, err := l.KindOf(id)
	if err != nil {
		return Decoded{}, err
	}
	d := Decoded{
		Kind:    kind,
		Counter: (uint64(id) & l.partitionMask) >> kind.TagBits(),
	}
	partition := l.partition(id)
	if kind.Partitioned() {
		d.Partition = partition
	} else if partition != 0 {
		return Decoded{}, fmt.Errorf("%w: %s id %d has a partition field",
			ErrUnrecognizedIdentifier, kind, uint64(id))
	}
	if d.Counter == 0 || d.Counter > l.maxCounter[kind] {
		return Decoded{}, fmt.Errorf("%w: %s id %d has counter %d outside [1,%d]",
			ErrUnrecognizedIdentifier, kind, uint64(id), d.Counter, l.maxCounter[kind])
	}
	return d, nil
}

// Encode re-packs a decoded identifier.
func (d Decoded) Encode(l *Layout) (ID, error) {
	return l.Encode(d.Kind, d.Counter, d.Partition)
}

// SystemID returns the identifier of a built-in schema type. System types
// live in the low counters of the schema namespace and are never partitioned.
func (l *Layout) SystemID(kind Kind, counter uint64) (ID, error) {
	if !kind.IsSchemaType() {
		return 0, fmt.Errorf("%w: system ids exist only for schema types, got %s",
			ErrInvalidArgument, kind)
	}
	return l.Encode(kind, counter, 0)
}
