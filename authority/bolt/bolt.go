// Package bolt implements an authority on a bbolt database file.
//
// bbolt serialises write transactions and holds an exclusive file lock, so
// one process owns the counters at a time. It suits single-host deployments
// that run several graph instances behind one allocator process.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/hupe1980/graphid/authority"
)

// DefaultBucket holds the counters.
const DefaultBucket = "idblocks"

// ErrCorrupt is returned, as a permanent error, for counter values that are
// not 8 bytes long.
var ErrCorrupt = errors.New("bolt: corrupt counter")

// Authority grants blocks from counters in a bbolt bucket.
type Authority struct {
	authority.Base

	db     *bbolt.DB
	bucket []byte
	owned  bool
	logger *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithBucket overrides DefaultBucket.
func WithBucket(name string) Option {
	return func(a *Authority) {
		a.bucket = []byte(name)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = l
	}
}

// Open opens or creates the database at path. Close closes it.
func Open(path string, optFns ...Option) (*Authority, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	a, err := New(db, optFns...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.owned = true
	return a, nil
}

// New returns an authority on an open database. The caller keeps ownership
// of db.
func New(db *bbolt.DB, optFns ...Option) (*Authority, error) {
	a := &Authority{
		db:     db,
		bucket: []byte(DefaultBucket),
	}
	for _, fn := range optFns {
		fn(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(a.bucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("bolt: create bucket: %w", err)
	}
	return a, nil
}

func counterKey(partition, namespace uint32) []byte {
	var k [8]byte
	binary.BigEndian.PutUint32(k[:4], partition)
	binary.BigEndian.PutUint32(k[4:], namespace)
	return k[:]
}

// GetIDBlock implements authority.Authority.
func (a *Authority) GetIDBlock(ctx context.Context, partition, namespace uint32) (authority.Block, error) {
	sizer, err := a.Sizer()
	if err != nil {
		return authority.Block{}, err
	}
	if err := ctx.Err(); err != nil {
		return authority.Block{}, authority.Temporary(err)
	}

	var b authority.Block
	err = a.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(a.bucket)
		key := counterKey(partition, namespace)

		var next uint64
		if v := bkt.Get(key); v != nil {
			if len(v) != 8 {
				return authority.Permanent(fmt.Errorf("%w: partition %d namespace %d: %d bytes", ErrCorrupt, partition, namespace, len(v)))
			}
			next = binary.BigEndian.Uint64(v)
		}

		var err error
		if b, err = authority.Next(sizer, namespace, next); err != nil {
			return err
		}
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], b.End)
		return bkt.Put(key, v[:])
	})
	if err != nil {
		if errors.Is(err, authority.ErrPermanent) || errors.Is(err, authority.ErrTemporary) {
			return authority.Block{}, err
		}
		return authority.Block{}, authority.Temporary(fmt.Errorf("bolt: update: %w", err))
	}

	a.logger.Debug("granted id block", "partition", partition, "namespace", namespace, "block", b.String())
	return b, nil
}

// Close implements authority.Authority.
func (a *Authority) Close() error {
	if !a.MarkClosed() || !a.owned {
		return nil
	}
	return a.db.Close()
}
