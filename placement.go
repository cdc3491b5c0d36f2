package graphid

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// PlacementStrategy picks the partition of a new vertex.
type PlacementStrategy interface {
	Partition(ctx context.Context) (uint64, error)
}

// RandomPlacement spreads vertices uniformly over [0, MaxPartition].
type RandomPlacement struct {
	mu           sync.Mutex
	rng          *rand.Rand
	maxPartition uint64
}

// NewRandomPlacement returns a strategy drawing from its own generator.
func NewRandomPlacement(maxPartition, seed uint64) *RandomPlacement {
	return &RandomPlacement{
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		maxPartition: maxPartition,
	}
}

// Partition implements PlacementStrategy.
func (p *RandomPlacement) Partition(context.Context) (uint64, error) {
	if p.maxPartition == 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Uint64N(p.maxPartition + 1), nil
}

// FixedPlacement places every vertex in one partition.
type FixedPlacement uint64

// Partition implements PlacementStrategy.
func (p FixedPlacement) Partition(context.Context) (uint64, error) {
	return uint64(p), nil
}

func defaultSeed() uint64 {
	return uint64(time.Now().UnixNano())
}
