package graphid

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Close stops all pools and abandons their unissued counters. Abandoned
// counters are never handed out again. With WithCloseAuthority, the authority
// is closed as well.
//
// Allocations after Close return ErrClosed. Close is idempotent.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pools := m.pools
	m.pools = nil
	m.mu.Unlock()

	var g errgroup.Group
	for _, p := range pools {
		g.Go(p.Close)
	}
	err := g.Wait()

	if m.opts.closeAuthority {
		err = errors.Join(err, m.auth.Close())
	}

	m.opts.logger.LogClose(context.Background(), len(pools), err)
	return err
}
