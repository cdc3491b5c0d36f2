// Package memory implements an in-process authority.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hupe1980/graphid/authority"
)

type key struct {
	partition uint32
	namespace uint32
}

// Store is the shared counter state. Several Authority handles may share one
// Store to model independent processes.
type Store struct {
	mu   sync.Mutex
	next map[key]uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{next: make(map[key]uint64)}
}

// Option configures an Authority.
type Option func(*Authority)

// WithStore shares an existing store.
func WithStore(s *Store) Option {
	return func(a *Authority) {
		a.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = l
	}
}

// Authority grants blocks from a Store.
type Authority struct {
	authority.Base

	store  *Store
	logger *slog.Logger
}

// New returns an authority over a private store unless WithStore is given.
func New(optFns ...Option) *Authority {
	a := &Authority{}
	for _, fn := range optFns {
		fn(a)
	}
	if a.store == nil {
		a.store = NewStore()
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

// GetIDBlock implements authority.Authority.
func (a *Authority) GetIDBlock(ctx context.Context, partition, namespace uint32) (authority.Block, error) {
	if err := ctx.Err(); err != nil {
		return authority.Block{}, authority.Temporary(err)
	}
	sizer, err := a.Sizer()
	if err != nil {
		return authority.Block{}, err
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()

	k := key{partition: partition, namespace: namespace}
	b, err := authority.Next(sizer, namespace, a.store.next[k])
	if err != nil {
		return authority.Block{}, err
	}
	a.store.next[k] = b.End

	a.logger.Debug("granted id block", "partition", partition, "namespace", namespace, "block", b.String())
	return b, nil
}

// Close implements authority.Authority.
func (a *Authority) Close() error {
	a.MarkClosed()
	return nil
}
