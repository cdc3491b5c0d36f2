package idpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/graphid/authority"
	"github.com/hupe1980/graphid/authority/memory"
	"github.com/hupe1980/graphid/internal/resource"
)

// countingAuthority wraps an authority with call counting, fault injection
// and an optional gate that holds calls until it is closed.
type countingAuthority struct {
	authority.Authority

	calls atomic.Int64
	fail  func(call int64) error
	gate  chan struct{}
}

func newCountingAuthority(t *testing.T, sizer authority.BlockSizer) *countingAuthority {
	t.Helper()
	inner := memory.New()
	require.NoError(t, inner.SetBlockSizer(sizer))
	return &countingAuthority{Authority: inner}
}

func (a *countingAuthority) GetIDBlock(ctx context.Context, partition, namespace uint32) (authority.Block, error) {
	n := a.calls.Add(1)
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return authority.Block{}, authority.Temporary(ctx.Err())
		}
	}
	if a.fail != nil {
		if err := a.fail(n); err != nil {
			return authority.Block{}, err
		}
	}
	return a.Authority.GetIDBlock(ctx, partition, namespace)
}

func fastOptions() Options {
	return Options{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestNextID_Sequential(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	opts := fastOptions()
	opts.DisablePrefetch = true
	p := New(auth, opts)
	defer p.Close()

	for want := uint64(1); want <= 25; want++ {
		got, err := p.NextID(t.Context())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	assert.Equal(t, int64(3), auth.calls.Load())
	assert.Equal(t, uint64(3), p.Stats().Renewals)
}

func TestNextID_SmallBlocksConcurrent(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(2, nil))
	p := New(auth, fastOptions())
	defer p.Close()

	var (
		mu  sync.Mutex
		ids []uint64
		wg  sync.WaitGroup
	)
	quota := []int{2, 2, 1}
	for _, n := range quota {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range n {
				id, err := p.NextID(t.Context())
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids = append(ids, id)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []uint64{1, 2, 3, 4, 5}, ids)
	assert.GreaterOrEqual(t, auth.calls.Load(), int64(2))
}

func TestNextID_UniqueUnderContention(t *testing.T) {
	const (
		workers = 16
		perWork = 2000
	)
	auth := newCountingAuthority(t, authority.NewGrowingSizer(7, 256, nil))
	opts := fastOptions()
	opts.RenewCount = 5
	p := New(auth, opts)
	defer p.Close()

	results := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWork {
				id, err := p.NextID(t.Context())
				if !assert.NoError(t, err) {
					return
				}
				results[w] = append(results[w], id)
			}
		}()
	}
	wg.Wait()

	seen := roaring64.New()
	for _, ids := range results {
		for _, id := range ids {
			require.True(t, seen.CheckedAdd(id), "duplicate id %d", id)
		}
	}
	assert.Equal(t, uint64(workers*perWork), seen.GetCardinality())
}

func TestNextID_TemporaryFailureCeiling(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	boom := errors.New("backend unavailable")
	var failing atomic.Bool
	failing.Store(true)
	auth.fail = func(int64) error {
		if failing.Load() {
			return authority.Temporary(boom)
		}
		return nil
	}

	opts := fastOptions()
	opts.MaxAttempts = 3
	p := New(auth, opts)
	defer p.Close()

	_, err := p.NextID(t.Context())
	require.ErrorIs(t, err, ErrRenewalFailed)
	assert.ErrorIs(t, err, boom)
	assert.True(t, authority.IsTemporary(err))
	assert.Equal(t, int64(3), auth.calls.Load())
	assert.Equal(t, uint64(1), p.Stats().Failures)

	// Temporary failures do not poison the pool.
	failing.Store(false)
	id, err := p.NextID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestNextID_RecoversWithinCeiling(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	auth.fail = func(n int64) error {
		if n < 3 {
			return authority.Temporary(errors.New("flaky"))
		}
		return nil
	}

	opts := fastOptions()
	opts.MaxAttempts = 3
	opts.DisablePrefetch = true
	p := New(auth, opts)
	defer p.Close()

	id, err := p.NextID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, int64(3), auth.calls.Load())
}

func TestNextID_PermanentFailsFast(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	auth.fail = func(int64) error {
		return authority.Permanent(errors.New("access denied"))
	}

	opts := fastOptions()
	opts.MaxAttempts = 5
	p := New(auth, opts)
	defer p.Close()

	_, err := p.NextID(t.Context())
	require.Error(t, err)
	assert.True(t, authority.IsPermanent(err))
	assert.NotErrorIs(t, err, ErrRenewalFailed)
	assert.Equal(t, int64(1), auth.calls.Load())

	_, err = p.NextID(t.Context())
	assert.True(t, authority.IsPermanent(err))
	assert.Equal(t, int64(1), auth.calls.Load())
}

func TestNextID_InvalidBlockIsPermanent(t *testing.T) {
	p := New(blockAuthority{b: authority.Block{Start: 5, End: 5}}, fastOptions())
	defer p.Close()

	_, err := p.NextID(t.Context())
	assert.True(t, authority.IsPermanent(err))
}

type blockAuthority struct {
	authority.Authority
	b authority.Block
}

func (a blockAuthority) GetIDBlock(context.Context, uint32, uint32) (authority.Block, error) {
	return a.b, nil
}

func TestNextID_AuthorityExhaustion(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(2, map[uint32]uint64{0: 6}))
	p := New(auth, fastOptions())
	defer p.Close()

	for want := uint64(1); want <= 5; want++ {
		got, err := p.NextID(t.Context())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := p.NextID(t.Context())
	assert.ErrorIs(t, err, authority.ErrExhausted)
	_, err = p.NextID(t.Context())
	assert.ErrorIs(t, err, authority.ErrExhausted)
}

func TestNextID_PoolUpperBound(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	opts := fastOptions()
	opts.UpperBound = 4
	p := New(auth, opts)
	defer p.Close()

	for want := uint64(1); want <= 3; want++ {
		got, err := p.NextID(t.Context())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := p.NextID(t.Context())
	assert.ErrorIs(t, err, authority.ErrExhausted)
}

func TestNextID_CancelledWaiter(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	auth.gate = make(chan struct{})
	opts := fastOptions()
	opts.DisablePrefetch = true
	p := New(auth, opts)
	defer p.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err := p.NextID(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The renewal keeps running and its block is installed.
	close(auth.gate)
	id, err := p.NextID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, int64(1), auth.calls.Load())
}

func TestNextID_Prefetch(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	opts := fastOptions()
	opts.RenewCount = 3
	p := New(auth, opts)
	defer p.Close()

	for range 8 {
		_, err := p.NextID(t.Context())
		require.NoError(t, err)
	}
	// Two counters left in [1,11): below the threshold of 3.
	require.Eventually(t, func() bool {
		return p.Stats().Reserve == authority.Block{Start: 11, End: 21}
	}, time.Second, time.Millisecond)

	for want := uint64(9); want <= 12; want++ {
		got, err := p.NextID(t.Context())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	assert.Equal(t, authority.Block{Start: 11, End: 21}, p.Stats().Current)
	assert.Equal(t, int64(2), auth.calls.Load())
}

func TestNextID_Controller(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(1, nil))
	opts := fastOptions()
	opts.DisablePrefetch = true
	opts.Controller = resource.NewController(resource.Config{MaxConcurrentRenewals: 1})

	var renewals atomic.Int64
	opts.OnRenewal = func(_ time.Duration, err error) {
		assert.NoError(t, err)
		renewals.Add(1)
	}
	p := New(auth, opts)
	defer p.Close()

	for range 5 {
		_, err := p.NextID(t.Context())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(5), renewals.Load())
	assert.Zero(t, opts.Controller.InFlight())
}

func TestClose(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	opts := fastOptions()
	opts.DisablePrefetch = true
	p := New(auth, opts)

	_, err := p.NextID(t.Context())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.NextID(t.Context())
	assert.ErrorIs(t, err, ErrClosed)

	s := p.Stats()
	assert.Equal(t, authority.Block{}, s.Current)
	assert.Equal(t, uint64(9), s.Abandoned)
}

func TestClose_WaitsForInFlightRenewal(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	auth.gate = make(chan struct{})
	p := New(auth, fastOptions())

	errc := make(chan error, 1)
	go func() {
		_, err := p.NextID(context.Background())
		errc <- err
	}()
	require.Eventually(t, func() bool { return auth.calls.Load() == 1 }, time.Second, time.Millisecond)

	// Close cancels the renewal context, which releases the gated call.
	require.NoError(t, p.Close())
	assert.ErrorIs(t, <-errc, ErrClosed)
	assert.Equal(t, authority.Block{}, p.Stats().Current)
}

// stuckAuthority ignores its context and blocks until release is closed.
type stuckAuthority struct {
	*countingAuthority
	release chan struct{}
}

func newStuckAuthority(t *testing.T) *stuckAuthority {
	t.Helper()
	a := &stuckAuthority{
		countingAuthority: newCountingAuthority(t, authority.NewFixedSizer(10, nil)),
		release:           make(chan struct{}),
	}
	t.Cleanup(func() { close(a.release) })
	return a
}

func (a *stuckAuthority) GetIDBlock(ctx context.Context, partition, namespace uint32) (authority.Block, error) {
	a.calls.Add(1)
	<-a.release
	return a.Authority.GetIDBlock(ctx, partition, namespace)
}

func TestNextID_RenewTimeoutWithStuckAuthority(t *testing.T) {
	auth := newStuckAuthority(t)

	opts := fastOptions()
	opts.RenewTimeout = 50 * time.Millisecond
	opts.MaxAttempts = 2
	opts.DisablePrefetch = true
	p := New(auth, opts)
	defer p.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := p.NextID(context.Background())
		errc <- err
	}()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrRenewalFailed)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, authority.IsTemporary(err))
	case <-time.After(3 * time.Second):
		t.Fatal("NextID did not honor RenewTimeout")
	}
	assert.Equal(t, int64(2), auth.calls.Load())
	assert.Equal(t, uint64(1), p.Stats().Failures)
}

func TestClose_DoesNotWaitForStuckAuthority(t *testing.T) {
	auth := newStuckAuthority(t)

	opts := fastOptions()
	opts.RenewTimeout = time.Minute
	p := New(auth, opts)

	errc := make(chan error, 1)
	go func() {
		_, err := p.NextID(context.Background())
		errc <- err
	}()
	require.Eventually(t, func() bool { return auth.calls.Load() == 1 }, time.Second, time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- p.Close() }()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on a stuck authority call")
	}
	assert.ErrorIs(t, <-errc, ErrClosed)
}

func TestRenewIfExhausted_SkipsFetchForUsableBlock(t *testing.T) {
	auth := newCountingAuthority(t, authority.NewFixedSizer(10, nil))
	opts := fastOptions()
	opts.DisablePrefetch = true
	p := New(auth, opts)
	defer p.Close()

	_, err := p.NextID(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(1), auth.calls.Load())

	// A renewal that lost the race to an earlier one finds a usable block.
	_, err = p.renewIfExhausted()
	require.NoError(t, err)
	assert.Equal(t, int64(1), auth.calls.Load())
	assert.Equal(t, authority.Block{}, p.Stats().Reserve)

	// Early fetches still reserve the next block.
	_, err = p.fetchEarly()
	require.NoError(t, err)
	assert.Equal(t, int64(2), auth.calls.Load())
	assert.Equal(t, authority.Block{Start: 11, End: 21}, p.Stats().Reserve)
}
