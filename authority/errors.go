package authority

import (
	"errors"
	"fmt"
)

var (
	// ErrTemporary marks failures a caller may retry: timeouts, lost
	// claim races, unavailable backends.
	ErrTemporary = errors.New("authority: temporary failure")

	// ErrPermanent marks failures retrying cannot fix.
	ErrPermanent = errors.New("authority: permanent failure")

	// ErrExhausted is returned when no further block fits below the
	// namespace's upper bound. It is permanent.
	ErrExhausted = fmt.Errorf("%w: id space exhausted", ErrPermanent)

	// ErrSizerAlreadySet is returned by a second SetBlockSizer call.
	ErrSizerAlreadySet = errors.New("authority: block sizer already set")

	// ErrSizerInUse is returned by SetBlockSizer after blocks were granted.
	ErrSizerInUse = errors.New("authority: block sizer set after first use")

	// ErrSizerNotSet is returned by GetIDBlock before SetBlockSizer.
	ErrSizerNotSet = fmt.Errorf("%w: block sizer not set", ErrPermanent)

	// ErrClosed is returned after Close.
	ErrClosed = fmt.Errorf("%w: authority closed", ErrPermanent)
)

type classified struct {
	class error
	err   error
}

func (e *classified) Error() string {
	return e.class.Error() + ": " + e.err.Error()
}

func (e *classified) Unwrap() []error {
	return []error{e.class, e.err}
}

// Temporary marks err as retryable. It returns nil for a nil error and err
// unchanged if it is already classified.
func Temporary(err error) error {
	if err == nil || IsTemporary(err) || IsPermanent(err) {
		return err
	}
	return &classified{class: ErrTemporary, err: err}
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &classified{class: ErrPermanent, err: err}
}

// IsTemporary reports whether err is classified as retryable.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTemporary)
}

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
