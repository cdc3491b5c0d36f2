package authority

import (
	"math"
	"sync"
)

// DefaultUpperBound is used for namespaces a sizer has no bound for.
const DefaultUpperBound uint64 = math.MaxInt64

// BlockSizer decides how large granted blocks are and where a namespace ends.
type BlockSizer interface {
	// BlockSize returns the size of the next block in namespace.
	BlockSize(namespace uint32) uint64
	// UpperBound returns the exclusive upper bound of counters in namespace.
	UpperBound(namespace uint32) uint64
}

// FixedSizer grants blocks of one size.
type FixedSizer struct {
	Size   uint64
	Bounds map[uint32]uint64
}

// NewFixedSizer returns a sizer granting size counters per block.
func NewFixedSizer(size uint64, bounds map[uint32]uint64) FixedSizer {
	return FixedSizer{Size: size, Bounds: bounds}
}

// BlockSize implements BlockSizer.
func (s FixedSizer) BlockSize(uint32) uint64 {
	return s.Size
}

// UpperBound implements BlockSizer.
func (s FixedSizer) UpperBound(namespace uint32) uint64 {
	return upperBound(s.Bounds, namespace)
}

// GrowingSizer doubles the block size of a namespace with every grant until
// Max is reached. Instances that allocate a lot converge to large blocks
// while short-lived ones waste little.
type GrowingSizer struct {
	Initial uint64
	Max     uint64
	Bounds  map[uint32]uint64

	mu   sync.Mutex
	next map[uint32]uint64
}

// NewGrowingSizer returns a sizer starting at initial and capped at max.
func NewGrowingSizer(initial, max uint64, bounds map[uint32]uint64) *GrowingSizer {
	if max < initial {
		max = initial
	}
	return &GrowingSizer{Initial: initial, Max: max, Bounds: bounds}
}

// BlockSize implements BlockSizer.
func (s *GrowingSizer) BlockSize(namespace uint32) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next == nil {
		s.next = make(map[uint32]uint64)
	}
	size, ok := s.next[namespace]
	if !ok {
		size = s.Initial
	}
	grown := size * 2
	if grown > s.Max || grown < size {
		grown = s.Max
	}
	s.next[namespace] = grown
	return size
}

// UpperBound implements BlockSizer.
func (s *GrowingSizer) UpperBound(namespace uint32) uint64 {
	return upperBound(s.Bounds, namespace)
}

func upperBound(bounds map[uint32]uint64, namespace uint32) uint64 {
	if b, ok := bounds[namespace]; ok {
		return b
	}
	return DefaultUpperBound
}
