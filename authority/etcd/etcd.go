// Package etcd implements an authority on etcd.
//
// Each (partition, namespace) pair owns one key holding the next free
// counter. A grant reads the key and writes the advanced value in a
// transaction guarded by the key's revision; a losing writer re-reads and
// tries again.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/hupe1980/graphid/authority"
)

// DefaultMaxAttempts bounds the lost transactions a single GetIDBlock call
// tolerates.
const DefaultMaxAttempts = 16

// ErrContention is returned, as a temporary error, when every transaction
// lost to another writer.
var ErrContention = errors.New("etcd: transaction contention")

// KV is the subset of clientv3.KV the authority uses. *clientv3.Client
// satisfies it.
type KV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Txn(ctx context.Context) clientv3.Txn
}

// Authority grants blocks from etcd counters.
type Authority struct {
	authority.Base

	kv          KV
	prefix      string
	maxAttempts int
	closer      func() error
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

// New returns an authority on kv. The caller keeps ownership of kv.
func New(kv KV, optFns ...Option) *Authority {
	a := &Authority{
		kv:          kv,
		prefix:      "/graphid/idblocks",
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

// Dial connects to etcd. Close closes the connection.
func Dial(cfg clientv3.Config, optFns ...Option) (*Authority, error) {
	cli, err := clientv3.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("etcd: connect: %w", err)
	}
	a := New(cli, optFns...)
	a.closer = cli.Close
	return a, nil
}

func (a *Authority) key(partition, namespace uint32) string {
	return fmt.Sprintf("%s/%d/%d", a.prefix, partition, namespace)
}

// GetIDBlock implements authority.Authority.
func (a *Authority) GetIDBlock(ctx context.Context, partition, namespace uint32) (authority.Block, error) {
	sizer, err := a.Sizer()
	if err != nil {
		return authority.Block{}, err
	}
	key := a.key(partition, namespace)

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		resp, err := a.kv.Get(ctx, key)
		if err != nil {
			return authority.Block{}, authority.Temporary(fmt.Errorf("etcd: get %s: %w", key, err))
		}

		var (
			next uint64
			cmp  clientv3.Cmp
		)
		if len(resp.Kvs) == 0 {
			cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
		} else {
			kv := resp.Kvs[0]
			if next, err = strconv.ParseUint(string(kv.Value), 10, 64); err != nil {
				return authority.Block{}, authority.Permanent(fmt.Errorf("etcd: corrupt counter %s: %w", key, err))
			}
			cmp = clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)
		}

		b, err := authority.Next(sizer, namespace, next)
		if err != nil {
			return authority.Block{}, err
		}

		txn, err := a.kv.Txn(ctx).
			If(cmp).
			Then(clientv3.OpPut(key, strconv.FormatUint(b.End, 10))).
			Commit()
		if err != nil {
			return authority.Block{}, authority.Temporary(fmt.Errorf("etcd: commit %s: %w", key, err))
		}
		if txn.Succeeded {
			a.logger.Debug("granted id block", "partition", partition, "namespace", namespace, "block", b.String(), "attempt", attempt+1)
			return b, nil
		}
	}
	return authority.Block{}, authority.Temporary(fmt.Errorf("%w: %d attempts on %s", ErrContention, a.maxAttempts, key))
}

// Close implements authority.Authority.
func (a *Authority) Close() error {
	if !a.MarkClosed() || a.closer == nil {
		return nil
	}
	return a.closer()
}
