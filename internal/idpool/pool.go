package idpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/graphid/authority"
	"github.com/hupe1980/graphid/internal/resource"
)

// Defaults for zero-valued Options fields.
const (
	DefaultRenewTimeout       = 2 * time.Minute
	DefaultMaxAttempts        = 5
	DefaultRenewBufferPercent = 0.3
	DefaultRenewCount         = 100
	DefaultInitialBackoff     = 50 * time.Millisecond
	DefaultMaxBackoff         = 5 * time.Second
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("idpool: closed")

	// ErrRenewalFailed is returned when every attempt to renew a block failed
	// with a temporary error. It wraps the last of those errors.
	ErrRenewalFailed = errors.New("idpool: block renewal failed")
)

const fetchKey = "fetch"

// Options configures a Pool.
type Options struct {
	Partition uint32
	Namespace uint32

	// UpperBound is the exclusive upper bound of issued counters.
	// If 0, math.MaxInt64.
	UpperBound uint64

	// RenewTimeout bounds a single authority call.
	RenewTimeout time.Duration

	// MaxAttempts bounds the authority calls per renewal.
	MaxAttempts int

	// InitialBackoff and MaxBackoff shape the delay between attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// A renewal starts early once fewer than
	// max(RenewCount, RenewBufferPercent*blockLen) counters remain.
	RenewBufferPercent float64
	RenewCount         uint64

	// DisablePrefetch turns early renewal off.
	DisablePrefetch bool

	// Controller throttles authority calls. May be nil.
	Controller *resource.Controller

	// OnRenewal is called after every renewal with its duration and result.
	OnRenewal func(d time.Duration, err error)

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.UpperBound == 0 {
		o.UpperBound = math.MaxInt64
	}
	if o.RenewTimeout <= 0 {
		o.RenewTimeout = DefaultRenewTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = max(DefaultMaxBackoff, o.InitialBackoff)
	}
	if o.RenewBufferPercent <= 0 || o.RenewBufferPercent > 1 {
		o.RenewBufferPercent = DefaultRenewBufferPercent
	}
	if o.RenewCount == 0 {
		o.RenewCount = DefaultRenewCount
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// block is a granted range with its allocation cursor.
type block struct {
	authority.Block
	next       atomic.Uint64
	threshold  uint64
	prefetched atomic.Bool
}

func newBlock(b authority.Block, opts *Options) *block {
	blk := &block{Block: b}
	blk.next.Store(b.Start)
	blk.threshold = max(opts.RenewCount, uint64(opts.RenewBufferPercent*float64(b.Len())))
	return blk
}

func (b *block) exhausted() bool {
	return b == nil || b.next.Load() >= b.End
}

// Stats is a snapshot of pool state.
type Stats struct {
	Current   authority.Block
	Reserve   authority.Block
	Renewals  uint64
	Failures  uint64
	Abandoned uint64 // counters dropped when blocks were replaced or closed
}

// Pool allocates counters of one (partition, namespace) space.
type Pool struct {
	auth authority.Authority
	opts Options

	current atomic.Pointer[block]

	mu      sync.Mutex
	reserve *authority.Block
	failed  error // sticky permanent failure
	closed  bool

	group  singleflight.Group
	wg     sync.WaitGroup
	ctx    context.Context // detached from callers, cancelled by Close
	cancel context.CancelFunc

	renewals  atomic.Uint64
	failures  atomic.Uint64
	abandoned atomic.Uint64
}

// New returns a pool drawing blocks from auth. No block is fetched until the
// first NextID call.
func New(auth authority.Authority, opts Options) *Pool {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		auth:   auth,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// NextID returns an unused counter.
//
// If the current block is exhausted the call waits for a renewal. A caller
// whose ctx ends while waiting gets ctx.Err(); the renewal itself carries
// on and its block is installed for later callers.
func (p *Pool) NextID(ctx context.Context) (uint64, error) {
	for {
		if b := p.current.Load(); b != nil {
			c := b.next.Add(1) - 1
			if c < b.End {
				if c >= p.opts.UpperBound {
					return 0, fmt.Errorf("%w: counter %d reached upper bound %d", authority.ErrExhausted, c, p.opts.UpperBound)
				}
				if !p.opts.DisablePrefetch && b.End-c-1 < b.threshold && b.prefetched.CompareAndSwap(false, true) {
					p.prefetch()
				}
				return c, nil
			}
		}

		if err := p.renew(ctx); err != nil {
			return 0, err
		}
	}
}

func (p *Pool) renew(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.current.Load().exhausted() {
		p.mu.Unlock()
		return nil
	}
	if p.reserve != nil {
		p.installLocked(*p.reserve)
		p.mu.Unlock()
		return nil
	}
	if p.failed != nil {
		err := p.failed
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	select {
	case res := <-p.group.DoChan(fetchKey, p.renewIfExhausted):
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) prefetch() {
	p.mu.Lock()
	skip := p.closed || p.failed != nil || p.reserve != nil
	p.mu.Unlock()
	if skip {
		return
	}
	p.group.DoChan(fetchKey, p.fetchEarly)
}

func (p *Pool) renewIfExhausted() (any, error) { return p.fetchAndInstall(true) }

func (p *Pool) fetchEarly() (any, error) { return p.fetchAndInstall(false) }

// fetchAndInstall runs at most once at a time per pool. With onlyIfExhausted
// set it returns without a fetch when another renewal already installed a
// usable block.
func (p *Pool) fetchAndInstall(onlyIfExhausted bool) (any, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if onlyIfExhausted && !p.current.Load().exhausted() {
		p.mu.Unlock()
		return nil, nil
	}
	if p.reserve != nil {
		if p.current.Load().exhausted() {
			p.installLocked(*p.reserve)
		}
		p.mu.Unlock()
		return nil, nil
	}
	if p.failed != nil {
		err := p.failed
		p.mu.Unlock()
		return nil, err
	}
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	start := time.Now()
	b, err := p.fetch(p.ctx)
	if p.opts.OnRenewal != nil {
		p.opts.OnRenewal(time.Since(start), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if err != nil {
		p.failures.Add(1)
		if authority.IsPermanent(err) {
			p.failed = err
		}
		p.opts.Logger.Warn("id block renewal failed",
			"partition", p.opts.Partition, "namespace", p.opts.Namespace, "error", err)
		return nil, err
	}

	p.renewals.Add(1)
	p.opts.Logger.Debug("renewed id block",
		"partition", p.opts.Partition, "namespace", p.opts.Namespace,
		"block", b.String(), "duration", time.Since(start))
	p.installLocked(b)
	return nil, nil
}

func (p *Pool) installLocked(b authority.Block) {
	cur := p.current.Load()
	switch {
	case p.reserve != nil && *p.reserve == b:
		p.reserve = nil
		p.current.Store(newBlock(b, &p.opts))
	case cur.exhausted():
		p.current.Store(newBlock(b, &p.opts))
	case p.reserve == nil:
		p.reserve = &b
	default:
		p.abandoned.Add(b.Len())
		p.opts.Logger.Warn("abandoning surplus id block", "block", b.String())
	}
}

type grant struct {
	block authority.Block
	err   error
}

// getIDBlock makes one authority call bounded by RenewTimeout. The wait ends
// on timeout even if the authority ignores its context; a block granted after
// that is abandoned.
func (p *Pool) getIDBlock(ctx context.Context) (authority.Block, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.RenewTimeout)
	defer cancel()

	done := make(chan grant, 1)
	go func() {
		b, err := p.auth.GetIDBlock(callCtx, p.opts.Partition, p.opts.Namespace)
		done <- grant{block: b, err: err}
	}()

	select {
	case g := <-done:
		return g.block, g.err
	case <-callCtx.Done():
		go p.abandonLate(done)
		if err := ctx.Err(); err != nil {
			return authority.Block{}, authority.Temporary(err)
		}
		return authority.Block{}, authority.Temporary(fmt.Errorf("id block request timed out after %s: %w",
			p.opts.RenewTimeout, context.DeadlineExceeded))
	}
}

func (p *Pool) abandonLate(done <-chan grant) {
	g := <-done
	if g.err != nil || g.block.Validate() != nil {
		return
	}
	p.abandoned.Add(g.block.Len())
	p.opts.Logger.Warn("abandoning id block granted after timeout",
		"partition", p.opts.Partition, "namespace", p.opts.Namespace, "block", g.block.String())
}

func (p *Pool) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.opts.InitialBackoff),
		backoff.WithMaxInterval(p.opts.MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.opts.MaxAttempts-1)), ctx)
}

// fetch obtains a block, retrying temporary failures.
func (p *Pool) fetch(ctx context.Context) (authority.Block, error) {
	var (
		b        authority.Block
		last     error
		attempts int
	)

	op := func() error {
		attempts++
		release, err := p.opts.Controller.Acquire(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer release()

		got, err := p.getIDBlock(ctx)
		if err == nil {
			err = got.Validate()
		}
		if err == nil && got.Start >= p.opts.UpperBound {
			err = fmt.Errorf("%w: block %s starts at or beyond upper bound %d", authority.ErrExhausted, got, p.opts.UpperBound)
		}
		if err != nil {
			if authority.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			last = err
			return err
		}
		b = got
		return nil
	}

	notify := func(err error, d time.Duration) {
		p.opts.Logger.Debug("retrying id block renewal",
			"partition", p.opts.Partition, "namespace", p.opts.Namespace,
			"attempt", attempts, "delay", d, "error", err)
	}

	err := backoff.RetryNotify(op, p.newBackOff(ctx), notify)
	switch {
	case err == nil:
		return b, nil
	case authority.IsPermanent(err):
		return authority.Block{}, err
	case ctx.Err() != nil:
		return authority.Block{}, ErrClosed
	case last == nil:
		return authority.Block{}, err
	default:
		return authority.Block{}, fmt.Errorf("%w after %d attempts: %w", ErrRenewalFailed, attempts, last)
	}
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Renewals:  p.renewals.Load(),
		Failures:  p.failures.Load(),
		Abandoned: p.abandoned.Load(),
	}
	if cur := p.current.Load(); cur != nil {
		s.Current = cur.Block
	}
	if p.reserve != nil {
		s.Reserve = *p.reserve
	}
	return s
}

// Close stops renewals, waits for in-flight renewals to give up and drops all
// blocks. Authority calls that ignore cancellation are not waited for. Unissued counters are abandoned. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	if cur := p.current.Swap(nil); cur != nil {
		if next := cur.next.Load(); next < cur.End {
			p.abandoned.Add(cur.End - next)
		}
	}
	if p.reserve != nil {
		p.abandoned.Add(p.reserve.Len())
		p.reserve = nil
	}
	return nil
}
