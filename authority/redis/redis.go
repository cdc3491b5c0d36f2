// Package redis implements an authority on Redis.
//
// Counters are plain string keys holding the next free counter. A grant
// watches the key, reads it, and writes the advanced value in MULTI/EXEC.
// Counters can approach 2^63, so the arithmetic happens in Go rather than in
// a Lua script.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hupe1980/graphid/authority"
)

// DefaultMaxAttempts bounds the aborted transactions a single GetIDBlock
// call tolerates.
const DefaultMaxAttempts = 16

// ErrContention is returned, as a temporary error, when every transaction
// was aborted by a concurrent writer.
var ErrContention = errors.New("redis: transaction contention")

// Authority grants blocks from Redis counters.
type Authority struct {
	authority.Base

	client      goredis.UniversalClient
	prefix      string
	maxAttempts int
	owned       bool
	logger      *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(a *Authority) {
		a.prefix = prefix
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
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

// WithOwnedClient makes Close close the client.
func WithOwnedClient() Option {
	return func(a *Authority) {
		a.owned = true
	}
}

// New returns an authority on client.
func New(client goredis.UniversalClient, optFns ...Option) *Authority {
	a := &Authority{
		client:      client,
		prefix:      "graphid:idblocks",
		maxAttempts: DefaultMaxAttempts,
	}
	for _, fn := range optFns {
		fn(a)
	}
	if a.maxAttempts <= 0 {
		a.maxAttempts = DefaultMaxAttempts
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

func (a *Authority) key(partition, namespace uint32) string {
	return fmt.Sprintf("%s:%d:%d", a.prefix, partition, namespace)
}

// GetIDBlock implements authority.Authority.
func (a *Authority) GetIDBlock(ctx context.Context, partition, namespace uint32) (authority.Block, error) {
	sizer, err := a.Sizer()
	if err != nil {
		return authority.Block{}, err
	}
	key := a.key(partition, namespace)

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		var b authority.Block
		err := a.client.Watch(ctx, func(tx *goredis.Tx) error {
			next, err := readCounter(ctx, tx, key)
			if err != nil {
				return err
			}
			if b, err = authority.Next(sizer, namespace, next); err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, strconv.FormatUint(b.End, 10), 0)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			a.logger.Debug("granted id block", "partition", partition, "namespace", namespace, "block", b.String(), "attempt", attempt+1)
			return b, nil
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case errors.Is(err, authority.ErrTemporary), errors.Is(err, authority.ErrPermanent):
			return authority.Block{}, err
		default:
			return authority.Block{}, authority.Temporary(fmt.Errorf("redis: %s: %w", key, err))
		}
	}
	return authority.Block{}, authority.Temporary(fmt.Errorf("%w: %d attempts on %s", ErrContention, a.maxAttempts, key))
}

func readCounter(ctx context.Context, tx *goredis.Tx, key string) (uint64, error) {
	s, err := tx.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	next, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, authority.Permanent(fmt.Errorf("redis: corrupt counter %s: %w", key, err))
	}
	return next, nil
}

// Close implements authority.Authority.
func (a *Authority) Close() error {
	if !a.MarkClosed() || !a.owned {
		return nil
	}
	return a.client.Close()
}
