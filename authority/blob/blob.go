// Package blob implements an authority on top of a conditional blob store.
//
// Each granted block is recorded as a claim object named by the block's
// zero-padded start and holding its end. A new claim always starts where the
// newest claim ends and is written with PutIfAbsent, so two processes that
// race for the same start cannot both win. Claims form one chain per
// (partition, namespace); block sizes may differ between claims.
//
// Claim objects are immutable, which makes the store a good fit for
// blobstore.CachingStore.
package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/graphid/authority"
	"github.com/hupe1980/graphid/blobstore"
)

// DefaultMaxClaimAttempts bounds the lost races a single GetIDBlock call
// tolerates before giving up with a temporary error.
const DefaultMaxClaimAttempts = 16

// ErrContention is returned, as a temporary error, when every claim attempt
// lost to another process.
var ErrContention = errors.New("blob: claim contention")

type key struct {
	partition uint32
	namespace uint32
}

// Authority grants blocks by writing claim objects.
type Authority struct {
	authority.Base

	store       blobstore.ConditionalStore
	prefix      string
	maxAttempts int
	logger      *slog.Logger

	mu   sync.Mutex
	tips map[key]uint64 // last known chain end per key
}

// Option configures an Authority.
type Option func(*Authority)

// WithPrefix sets the object prefix claims are written under.
func WithPrefix(prefix string) Option {
	return func(a *Authority) {
		a.prefix = prefix
	}
}

// WithMaxClaimAttempts overrides DefaultMaxClaimAttempts.
func WithMaxClaimAttempts(n int) Option {
	return func(a *Authority) {
		a.maxAttempts = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = l
	}
}

// New returns an authority writing claims to store.
func New(store blobstore.ConditionalStore, optFns ...Option) *Authority {
	a := &Authority{
		store:       store,
		prefix:      "idblocks",
		maxAttempts: DefaultMaxClaimAttempts,
		tips:        make(map[key]uint64),
	}
	for _, fn := range optFns {
		fn(a)
	}
	if a.maxAttempts <= 0 {
		a.maxAttempts = DefaultMaxClaimAttempts
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

func (a *Authority) dir(k key) string {
	return path.Join(a.prefix, strconv.FormatUint(uint64(k.partition), 10), strconv.FormatUint(uint64(k.namespace), 10)) + "/"
}

// claimName pads the start so lexical and numeric order agree.
func claimName(dir string, start uint64) string {
	return fmt.Sprintf("%s%020d", dir, start)
}

// GetIDBlock implements authority.Authority.
func (a *Authority) GetIDBlock(ctx context.Context, partition, namespace uint32) (authority.Block, error) {
	sizer, err := a.Sizer()
	if err != nil {
		return authority.Block{}, err
	}

	k := key{partition: partition, namespace: namespace}
	dir := a.dir(k)

	a.mu.Lock()
	tip, known := a.tips[k]
	a.mu.Unlock()

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return authority.Block{}, authority.Temporary(err)
		}
		if !known {
			if tip, err = a.chainEnd(ctx, dir); err != nil {
				return authority.Block{}, err
			}
		}

		b, err := authority.Next(sizer, namespace, tip)
		if err != nil {
			return authority.Block{}, err
		}

		err = a.store.PutIfAbsent(ctx, claimName(dir, b.Start), []byte(strconv.FormatUint(b.End, 10)))
		switch {
		case err == nil:
			a.setTip(k, b.End)
			a.logger.Debug("claimed id block", "partition", partition, "namespace", namespace, "block", b.String(), "attempt", attempt+1)
			return b, nil
		case errors.Is(err, blobstore.ErrExists):
			// Lost the race or the cached tip is stale.
			known = false
			continue
		default:
			return authority.Block{}, authority.Temporary(fmt.Errorf("blob: write claim %s: %w", b, err))
		}
	}
	return authority.Block{}, authority.Temporary(fmt.Errorf("%w: %d attempts for partition %d namespace %d",
		ErrContention, a.maxAttempts, partition, namespace))
}

func (a *Authority) setTip(k key, end uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tips[k] = end
}

// chainEnd returns the end of the newest claim under dir, or 0 if none exists.
func (a *Authority) chainEnd(ctx context.Context, dir string) (uint64, error) {
	names, err := a.store.List(ctx, dir)
	if err != nil {
		return 0, authority.Temporary(fmt.Errorf("blob: list claims: %w", err))
	}
	if len(names) == 0 {
		return 0, nil
	}

	tipName := names[len(names)-1]
	start, err := strconv.ParseUint(strings.TrimPrefix(tipName, dir), 10, 64)
	if err != nil {
		return 0, authority.Permanent(fmt.Errorf("blob: malformed claim name %q: %w", tipName, err))
	}
	data, err := a.store.Get(ctx, tipName)
	if err != nil {
		return 0, authority.Temporary(fmt.Errorf("blob: read claim %q: %w", tipName, err))
	}
	end, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || end <= start {
		return 0, authority.Permanent(fmt.Errorf("blob: corrupt claim %q: %q", tipName, data))
	}
	return end, nil
}

// Close implements authority.Authority.
func (a *Authority) Close() error {
	a.MarkClosed()
	return nil
}
