// Package authoritytest is a conformance suite for authority backends.
package authoritytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/graphid/authority"
)

// Opener returns a new handle onto one shared backing store. Handles model
// separate processes coordinating through the store.
type Opener func() authority.Authority

// Backend creates a fresh, empty backing store for a single test.
type Backend func(t *testing.T) Opener

// Options tune the suite for slow backends.
type Options struct {
	// Handles is the number of concurrent handles in the contention test.
	Handles int
	// BlocksPerHandle is the number of blocks each handle claims there.
	BlocksPerHandle int
	// Timeout bounds each GetIDBlock call.
	Timeout time.Duration
}

func (o *Options) defaults() {
	if o.Handles == 0 {
		o.Handles = 4
	}
	if o.BlocksPerHandle == 0 {
		o.BlocksPerHandle = 25
	}
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
}

func open(t *testing.T, opener Opener, sizer authority.BlockSizer) authority.Authority {
	t.Helper()
	a := opener()
	require.NoError(t, a.SetBlockSizer(sizer))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// Run executes the conformance suite against backend.
func Run(t *testing.T, backend Backend, opts Options) {
	opts.defaults()

	ctx := func(t *testing.T) context.Context {
		c, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		t.Cleanup(cancel)
		return c
	}

	t.Run("SizerLifecycle", func(t *testing.T) {
		opener := backend(t)
		a := opener()
		defer a.Close()

		_, err := a.GetIDBlock(ctx(t), 0, authority.NamespaceVertex)
		assert.ErrorIs(t, err, authority.ErrSizerNotSet)

		require.NoError(t, a.SetBlockSizer(authority.NewFixedSizer(10, nil)))
		assert.ErrorIs(t, a.SetBlockSizer(authority.NewFixedSizer(10, nil)), authority.ErrSizerAlreadySet)
	})

	t.Run("SetSizerAfterUse", func(t *testing.T) {
		opener := backend(t)
		a := open(t, opener, authority.NewFixedSizer(10, nil))

		_, err := a.GetIDBlock(ctx(t), 0, authority.NamespaceVertex)
		require.NoError(t, err)
		assert.ErrorIs(t, a.SetBlockSizer(authority.NewFixedSizer(5, nil)), authority.ErrSizerInUse)
	})

	t.Run("Sequential", func(t *testing.T) {
		opener := backend(t)
		a := open(t, opener, authority.NewFixedSizer(100, nil))

		var prev authority.Block
		for i := 0; i < 10; i++ {
			b, err := a.GetIDBlock(ctx(t), 3, authority.NamespaceRelation)
			require.NoError(t, err)
			require.NoError(t, b.Validate())
			assert.Equal(t, uint64(100), b.Len())
			assert.GreaterOrEqual(t, b.Start, prev.End)
			prev = b
		}
	})

	t.Run("IndependentKeys", func(t *testing.T) {
		opener := backend(t)
		a := open(t, opener, authority.NewFixedSizer(10, nil))

		first := make(map[[2]uint32]authority.Block)
		for _, p := range []uint32{0, 1, 7} {
			for _, ns := range []uint32{authority.NamespaceVertex, authority.NamespaceRelation, authority.NamespaceSchema} {
				b, err := a.GetIDBlock(ctx(t), p, ns)
				require.NoError(t, err)
				first[[2]uint32{p, ns}] = b
			}
		}
		for key, b := range first {
			assert.Equal(t, uint64(1), b.Start, "partition %d namespace %d", key[0], key[1])
		}
	})

	t.Run("SharedAcrossHandles", func(t *testing.T) {
		opener := backend(t)
		a := open(t, opener, authority.NewFixedSizer(10, nil))
		b := open(t, opener, authority.NewFixedSizer(10, nil))

		ba, err := a.GetIDBlock(ctx(t), 0, authority.NamespaceVertex)
		require.NoError(t, err)
		bb, err := b.GetIDBlock(ctx(t), 0, authority.NamespaceVertex)
		require.NoError(t, err)
		assert.False(t, ba.Overlaps(bb), "%s overlaps %s", ba, bb)
	})

	t.Run("Contention", func(t *testing.T) {
		opener := backend(t)

		handles := make([]authority.Authority, opts.Handles)
		for i := range handles {
			// Different sizes across handles must still not overlap.
			handles[i] = open(t, opener, authority.NewFixedSizer(uint64(5+i*3), nil))
		}

		var (
			mu     sync.Mutex
			seen   = roaring64.New()
			total  uint64
			wg     sync.WaitGroup
			errs   = make(chan error, opts.Handles)
			callCt = ctx(t)
		)
		for _, h := range handles {
			wg.Add(1)
			go func(h authority.Authority) {
				defer wg.Done()
				for i := 0; i < opts.BlocksPerHandle; i++ {
					b, err := h.GetIDBlock(callCt, 0, authority.NamespaceVertex)
					if authority.IsTemporary(err) && callCt.Err() == nil {
						i--
						continue
					}
					if err != nil {
						errs <- err
						return
					}
					mu.Lock()
					seen.AddRange(b.Start, b.End)
					total += b.Len()
					mu.Unlock()
				}
			}(h)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		assert.Equal(t, total, seen.GetCardinality(), "granted blocks overlap")
	})

	t.Run("Exhaustion", func(t *testing.T) {
		opener := backend(t)
		bounds := map[uint32]uint64{authority.NamespaceSchema: 10}
		a := open(t, opener, authority.NewFixedSizer(4, bounds))

		var got []authority.Block
		for {
			b, err := a.GetIDBlock(ctx(t), 0, authority.NamespaceSchema)
			if err != nil {
				assert.ErrorIs(t, err, authority.ErrExhausted)
				assert.True(t, authority.IsPermanent(err))
				break
			}
			got = append(got, b)
			require.Less(t, len(got), 10, "authority never exhausted")
		}
		require.NotEmpty(t, got)
		for _, b := range got {
			assert.LessOrEqual(t, b.End, uint64(10))
		}
		assert.Equal(t, uint64(10), got[len(got)-1].End)

		// Other namespaces are unaffected.
		_, err := a.GetIDBlock(ctx(t), 0, authority.NamespaceVertex)
		assert.NoError(t, err)
	})

	t.Run("Closed", func(t *testing.T) {
		opener := backend(t)
		a := opener()
		require.NoError(t, a.SetBlockSizer(authority.NewFixedSizer(10, nil)))
		require.NoError(t, a.Close())

		_, err := a.GetIDBlock(ctx(t), 0, authority.NamespaceVertex)
		assert.True(t, authority.IsPermanent(err))
	})
}
