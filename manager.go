package graphid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hupe1980/graphid/authority"
	"github.com/hupe1980/graphid/internal/conv"
	"github.com/hupe1980/graphid/internal/idpool"
	"github.com/hupe1980/graphid/internal/resource"
	"github.com/hupe1980/graphid/layout"
)

type (
	// ID is a packed 63-bit identifier.
	ID = layout.ID
	// Kind identifies the entity an identifier refers to.
	Kind = layout.Kind
	// Decoded is the unpacked form of an identifier.
	Decoded = layout.Decoded
)

// Identifier kinds.
const (
	Vertex      = layout.Vertex
	Relation    = layout.Relation
	PropertyKey = layout.PropertyKey
	EdgeLabel   = layout.EdgeLabel
)

type poolKey struct {
	namespace uint32
	partition uint32
}

// PoolStats describes the pool of one (namespace, partition) counter space.
type PoolStats struct {
	Namespace uint32
	Partition uint32
	Current   authority.Block
	Reserve   authority.Block
	Renewals  uint64
	Failures  uint64
	Abandoned uint64
}

// Manager allocates and decodes graph identifiers.
//
// Allocation draws counters from per-(namespace, partition) pools which in
// turn reserve blocks from the authority. Decoding never touches the pools.
// A Manager is safe for concurrent use.
type Manager struct {
	auth       authority.Authority
	layout     *layout.Layout
	bounds     map[uint32]uint64
	opts       options
	controller *resource.Controller
	placement  PlacementStrategy

	mu     sync.RWMutex
	pools  map[poolKey]*idpool.Pool
	closed bool
}

// New returns a manager drawing blocks from auth.
//
// New installs the block sizer on auth. An authority that already has a
// sizer, for example one shared with another manager, keeps it.
func New(auth authority.Authority, optFns ...Option) (*Manager, error) {
	if auth == nil {
		return nil, fmt.Errorf("%w: nil authority", ErrInvalidArgument)
	}
	o := applyOptions(optFns)

	l, err := layout.New(o.layout)
	if err != nil {
		return nil, translateError(err)
	}

	m := &Manager{
		auth:       auth,
		layout:     l,
		bounds:     namespaceBounds(l),
		opts:       o,
		controller: resource.NewController(o.limits),
		placement:  o.placement,
		pools:      make(map[poolKey]*idpool.Pool),
	}
	if m.placement == nil {
		m.placement = NewRandomPlacement(l.MaxPartition(), defaultSeed())
	}

	if err := auth.SetBlockSizer(m.sizer()); err != nil {
		if !errors.Is(err, authority.ErrSizerAlreadySet) && !errors.Is(err, authority.ErrSizerInUse) {
			return nil, translateError(err)
		}
		o.logger.Warn("authority keeps its existing block sizer", "error", err)
	}
	return m, nil
}

// namespaceBounds maps each namespace to one past its largest counter.
// Property keys and edge labels share the schema namespace.
func namespaceBounds(l *layout.Layout) map[uint32]uint64 {
	return map[uint32]uint64{
		authority.NamespaceVertex:   conv.SaturatingAdd(l.MaxCounter(Vertex), 1),
		authority.NamespaceRelation: conv.SaturatingAdd(l.MaxCounter(Relation), 1),
		authority.NamespaceSchema:   conv.SaturatingAdd(min(l.MaxCounter(PropertyKey), l.MaxCounter(EdgeLabel)), 1),
	}
}

func namespaceOf(kind Kind) uint32 {
	switch {
	case kind == Vertex:
		return authority.NamespaceVertex
	case kind == Relation:
		return authority.NamespaceRelation
	default:
		return authority.NamespaceSchema
	}
}

func (m *Manager) sizer() authority.BlockSizer {
	switch {
	case m.opts.sizer != nil:
		return m.opts.sizer
	case m.opts.growMaxBlockSize > 0:
		return authority.NewGrowingSizer(m.opts.blockSize, m.opts.growMaxBlockSize, m.bounds)
	default:
		return authority.NewFixedSizer(m.opts.blockSize, m.bounds)
	}
}

// Layout returns the identifier layout.
func (m *Manager) Layout() *layout.Layout {
	return m.layout
}

// NewID allocates an identifier of kind in partition. Schema kinds are not
// partitioned and ignore partition.
//
// NewID blocks only when the pool has to renew its block. If ctx ends while
// waiting, ctx.Err() is returned and the renewal carries on for later
// callers.
func (m *Manager) NewID(ctx context.Context, kind Kind, partition uint64) (ID, error) {
	start := time.Now()
	if kind.IsSchemaType() {
		partition = 0
	}

	id, err := m.newID(ctx, kind, partition)
	m.opts.metricsCollector.RecordAllocation(kind, time.Since(start), err)
	if err != nil {
		err = &AllocationError{Kind: kind, Partition: partition, cause: err}
		m.opts.logger.LogAllocation(ctx, kind, partition, err)
		return 0, err
	}
	return id, nil
}

func (m *Manager) newID(ctx context.Context, kind Kind, partition uint64) (ID, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown kind %s", ErrInvalidArgument, kind)
	}
	if partition > m.layout.MaxPartition() {
		return 0, fmt.Errorf("%w: partition %d exceeds limit of %d", ErrInvalidArgument, partition, m.layout.MaxPartition())
	}

	p, err := m.pool(namespaceOf(kind), partition)
	if err != nil {
		return 0, err
	}
	counter, err := p.NextID(ctx)
	if err != nil {
		return 0, translateError(err)
	}
	id, err := m.layout.Encode(kind, counter, partition)
	if err != nil {
		return 0, translateError(err)
	}
	return id, nil
}

// NewVertexID allocates a vertex identifier in partition.
func (m *Manager) NewVertexID(ctx context.Context, partition uint64) (ID, error) {
	return m.NewID(ctx, Vertex, partition)
}

// NewVertexIDPlaced allocates a vertex identifier in the partition chosen by
// the placement strategy.
func (m *Manager) NewVertexIDPlaced(ctx context.Context) (ID, error) {
	partition, err := m.placement.Partition(ctx)
	if err != nil {
		return 0, &AllocationError{Kind: Vertex, cause: err}
	}
	return m.NewID(ctx, Vertex, partition)
}

// NewRelationID allocates a relation identifier in partition.
func (m *Manager) NewRelationID(ctx context.Context, partition uint64) (ID, error) {
	return m.NewID(ctx, Relation, partition)
}

// NewRelationIDFor allocates a relation identifier in the partition of the
// vertex that owns it.
func (m *Manager) NewRelationIDFor(ctx context.Context, owner ID) (ID, error) {
	if !m.layout.Is(Vertex, owner) {
		return 0, &AllocationError{Kind: Relation, cause: fmt.Errorf("%w: owner %d is not a vertex id", ErrInvalidArgument, uint64(owner))}
	}
	partition, err := m.layout.PartitionOf(owner)
	if err != nil {
		return 0, &AllocationError{Kind: Relation, cause: translateError(err)}
	}
	return m.NewID(ctx, Relation, partition)
}

// NewPropertyKeyID allocates a property-key identifier.
func (m *Manager) NewPropertyKeyID(ctx context.Context) (ID, error) {
	return m.NewID(ctx, PropertyKey, 0)
}

// NewEdgeLabelID allocates an edge-label identifier.
func (m *Manager) NewEdgeLabelID(ctx context.Context) (ID, error) {
	return m.NewID(ctx, EdgeLabel, 0)
}

func (m *Manager) pool(namespace uint32, partition uint64) (*idpool.Pool, error) {
	p32, err := conv.Uint64ToUint32(partition)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	key := poolKey{namespace: namespace, partition: p32}

	m.mu.RLock()
	p, closed := m.pools[key], m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if p != nil {
		return p, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if p = m.pools[key]; p == nil {
		p = idpool.New(m.auth, m.poolOptions(key))
		m.pools[key] = p
	}
	return p, nil
}

func (m *Manager) poolOptions(key poolKey) idpool.Options {
	logger := m.opts.logger.WithPartition(uint64(key.partition)).WithNamespace(key.namespace)
	return idpool.Options{
		Partition:          key.partition,
		Namespace:          key.namespace,
		UpperBound:         m.bounds[key.namespace],
		RenewTimeout:       m.opts.renewTimeout,
		MaxAttempts:        m.opts.maxRenewAttempts,
		InitialBackoff:     m.opts.initialBackoff,
		MaxBackoff:         m.opts.maxBackoff,
		RenewBufferPercent: m.opts.renewBufferPercent,
		RenewCount:         m.opts.renewCount,
		DisablePrefetch:    m.opts.disablePrefetch,
		Controller:         m.controller,
		Logger:             logger.Logger,
		OnRenewal: func(d time.Duration, err error) {
			m.opts.metricsCollector.RecordRenewal(key.partition, key.namespace, d, err)
			m.opts.logger.LogRenewal(context.Background(), key.partition, key.namespace, d, err)
		},
	}
}

// Stats returns a snapshot of every pool created so far.
func (m *Manager) Stats() []PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]PoolStats, 0, len(m.pools))
	for key, p := range m.pools {
		s := p.Stats()
		stats = append(stats, PoolStats{
			Namespace: key.namespace,
			Partition: key.partition,
			Current:   s.Current,
			Reserve:   s.Reserve,
			Renewals:  s.Renewals,
			Failures:  s.Failures,
			Abandoned: s.Abandoned,
		})
	}
	return stats
}

// Kind returns the kind of id.
func (m *Manager) Kind(id ID) (Kind, error) {
	k, err := m.layout.KindOf(id)
	return k, translateError(err)
}

// Is reports whether id is an identifier of kind.
func (m *Manager) Is(kind Kind, id ID) bool {
	return m.layout.Is(kind, id)
}

// IsSchemaType reports whether id names a property key or an edge label.
func (m *Manager) IsSchemaType(id ID) bool {
	return m.layout.IsSchemaType(id)
}

// Partition returns the partition of a vertex or relation id.
func (m *Manager) Partition(id ID) (uint64, error) {
	p, err := m.layout.PartitionOf(id)
	return p, translateError(err)
}

// Counter returns the counter field of id.
func (m *Manager) Counter(id ID) (uint64, error) {
	c, err := m.layout.CounterOf(id)
	return c, translateError(err)
}

// Decode unpacks id.
func (m *Manager) Decode(id ID) (Decoded, error) {
	d, err := m.layout.Decode(id)
	return d, translateError(err)
}

// Key returns the 8-byte, order-preserving storage key of id.
func (m *Manager) Key(id ID) []byte {
	return layout.AppendKey(nil, id)
}

// FromKey parses a storage key and checks it is a valid identifier.
func (m *Manager) FromKey(b []byte) (ID, error) {
	id, err := layout.FromKey(b)
	if err != nil {
		return 0, translateError(err)
	}
	if _, err := m.layout.Decode(id); err != nil {
		return 0, translateError(err)
	}
	return id, nil
}

// AppendCompact appends the variable-length form of id to dst.
func (m *Manager) AppendCompact(dst []byte, id ID) ([]byte, error) {
	b, err := layout.AppendCompact(dst, id)
	return b, translateError(err)
}

// ReadCompact reads an identifier written by AppendCompact and checks it is
// valid.
func (m *Manager) ReadCompact(r io.ByteReader) (ID, error) {
	id, err := layout.ReadCompact(r)
	if err != nil {
		return 0, translateError(err)
	}
	if _, err := m.layout.Decode(id); err != nil {
		return 0, translateError(err)
	}
	return id, nil
}
