// Package local implements an authority backed by counter files in a local
// directory. Processes on one host coordinate through advisory file locks,
// so the directory may be shared by several graph instances.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/graphid/authority"
	"github.com/hupe1980/graphid/internal/fs"
	"github.com/hupe1980/graphid/internal/hash"
)

// DefaultLockPollInterval is how often a blocked caller retries the lock.
const DefaultLockPollInterval = 5 * time.Millisecond

// ErrCorrupt is returned for counter files failing their checksum.
var ErrCorrupt = errors.New("local: corrupt counter file")

// Authority grants blocks from counter files.
type Authority struct {
	authority.Base

	dir          string
	fs           fs.FileSystem
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithFileSystem replaces the file system, e.g. with a fault-injecting one.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(a *Authority) {
		a.fs = fsys
	}
}

// WithLockPollInterval sets how often a blocked caller retries the lock.
func WithLockPollInterval(d time.Duration) Option {
	return func(a *Authority) {
		a.pollInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = l
	}
}

// New returns an authority storing counters in dir. The directory is created
// if needed.
func New(dir string, optFns ...Option) (*Authority, error) {
	a := &Authority{
		dir:          dir,
		fs:           fs.Default,
		pollInterval: DefaultLockPollInterval,
	}
	for _, fn := range optFns {
		fn(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local: create %s: %w", dir, err)
	}
	return a, nil
}

func (a *Authority) path(partition, namespace uint32) string {
	return filepath.Join(a.dir, fmt.Sprintf("p%d-ns%d.ctr", partition, namespace))
}

// GetIDBlock implements authority.Authority.
func (a *Authority) GetIDBlock(ctx context.Context, partition, namespace uint32) (authority.Block, error) {
	sizer, err := a.Sizer()
	if err != nil {
		return authority.Block{}, err
	}

	f, err := a.fs.OpenFile(a.path(partition, namespace), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return authority.Block{}, authority.Temporary(fmt.Errorf("local: open counter: %w", err))
	}
	defer f.Close()

	if err := a.lock(ctx, f); err != nil {
		return authority.Block{}, err
	}
	defer func() { _ = unlock(f) }()

	next, err := readRecord(f)
	if err != nil {
		return authority.Block{}, err
	}
	b, err := authority.Next(sizer, namespace, next)
	if err != nil {
		return authority.Block{}, err
	}
	if err := writeRecord(f, b.End); err != nil {
		return authority.Block{}, authority.Temporary(fmt.Errorf("local: write counter: %w", err))
	}

	a.logger.Debug("granted id block", "partition", partition, "namespace", namespace, "block", b.String())
	return b, nil
}

// lock polls for the exclusive lock until it is acquired or ctx ends.
func (a *Authority) lock(ctx context.Context, f fs.File) error {
	var ticker *time.Ticker
	for {
		ok, err := tryLock(f)
		if err != nil {
			return authority.Temporary(fmt.Errorf("local: lock counter: %w", err))
		}
		if ok {
			return nil
		}
		if ticker == nil {
			ticker = time.NewTicker(a.pollInterval)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return authority.Temporary(ctx.Err())
		case <-ticker.C:
		}
	}
}

func readRecord(f fs.File) (uint64, error) {
	var buf [hash.RecordSize]byte
	n, err := f.ReadAt(buf[:], 0)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, authority.Temporary(fmt.Errorf("local: read counter: %w", err))
	}
	next, err := hash.ParseRecord(buf[:n])
	if err != nil {
		return 0, authority.Permanent(fmt.Errorf("%w: %w", ErrCorrupt, err))
	}
	return next, nil
}

func writeRecord(f fs.File, next uint64) error {
	if _, err := f.WriteAt(hash.AppendRecord(nil, next), 0); err != nil {
		return err
	}
	return f.Sync()
}

// Close implements authority.Authority.
func (a *Authority) Close() error {
	a.MarkClosed()
	return nil
}
