package authority

import (
	"context"
	"fmt"
)

// Namespaces separate counter spaces that have different upper bounds.
const (
	NamespaceVertex   uint32 = 0
	NamespaceRelation uint32 = 1
	NamespaceSchema   uint32 = 2
)

// Authority grants non-overlapping counter blocks.
type Authority interface {
	// GetIDBlock reserves the next block for (partition, namespace). The
	// returned block is owned by the caller; abandoned blocks are never
	// granted again.
	GetIDBlock(ctx context.Context, partition, namespace uint32) (Block, error)

	// SetBlockSizer installs the sizing policy. It succeeds at most once and
	// only before the first GetIDBlock.
	SetBlockSizer(s BlockSizer) error

	// Close releases backend resources.
	Close() error
}

// Block is the half-open counter range [Start, End).
type Block struct {
	Start uint64
	End   uint64
}

// Len returns the number of counters in the block.
func (b Block) Len() uint64 {
	if b.End <= b.Start {
		return 0
	}
	return b.End - b.Start
}

// Contains reports whether counter lies in the block.
func (b Block) Contains(counter uint64) bool {
	return counter >= b.Start && counter < b.End
}

// Overlaps reports whether b and o share a counter.
func (b Block) Overlaps(o Block) bool {
	return b.Start < o.End && o.Start < b.End
}

// Validate checks the invariants 1 <= Start < End.
func (b Block) Validate() error {
	if b.Start == 0 || b.End <= b.Start {
		return Permanent(fmt.Errorf("invalid block [%d,%d)", b.Start, b.End))
	}
	return nil
}

func (b Block) String() string {
	return fmt.Sprintf("[%d,%d)", b.Start, b.End)
}

// Next returns the block that starts at start under sizer's policy. The last
// block of a namespace is cut at the upper bound; a start at or beyond the
// bound yields ErrExhausted.
func Next(sizer BlockSizer, namespace uint32, start uint64) (Block, error) {
	if start == 0 {
		start = 1
	}
	upper := sizer.UpperBound(namespace)
	if start >= upper {
		return Block{}, fmt.Errorf("%w: namespace %d reached upper bound %d", ErrExhausted, namespace, upper)
	}
	size := sizer.BlockSize(namespace)
	if size == 0 {
		return Block{}, Permanent(fmt.Errorf("zero block size for namespace %d", namespace))
	}
	end := start + size
	if end > upper || end < start {
		end = upper
	}
	return Block{Start: start, End: end}, nil
}
