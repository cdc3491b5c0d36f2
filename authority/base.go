package authority

import (
	"sync"
)

// Base tracks the BlockSizer lifecycle. Backends embed it and call Sizer at
// the start of GetIDBlock.
type Base struct {
	mu     sync.Mutex
	sizer  BlockSizer
	used   bool
	closed bool
}

// SetBlockSizer implements Authority.
func (b *Base) SetBlockSizer(s BlockSizer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.used:
		return ErrSizerInUse
	case b.sizer != nil:
		return ErrSizerAlreadySet
	}
	b.sizer = s
	return nil
}

// Sizer returns the installed sizer and marks it in use.
func (b *Base) Sizer() (BlockSizer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.sizer == nil {
		return nil, ErrSizerNotSet
	}
	b.used = true
	return b.sizer, nil
}

// MarkClosed makes later Sizer calls fail with ErrClosed. It reports whether
// the call changed the state.
func (b *Base) MarkClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.closed = true
	return true
}
