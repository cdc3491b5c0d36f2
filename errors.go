package graphid

import (
	"errors"
	"fmt"

	"github.com/hupe1980/graphid/authority"
	"github.com/hupe1980/graphid/internal/idpool"
	"github.com/hupe1980/graphid/layout"
	"github.com/hupe1980/graphid/varint"
)

var (
	// ErrInvalidArgument is returned for out-of-range counters, partitions,
	// kinds and layout settings.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnrecognizedID is returned when a value is not an identifier of the
	// manager's layout.
	ErrUnrecognizedID = errors.New("unrecognized identifier")

	// ErrAuthorityTemporary is returned when the block authority failed in a
	// way that may succeed on a later call.
	ErrAuthorityTemporary = errors.New("authority temporarily unavailable")

	// ErrAuthorityPermanent is returned when the block authority failed in a
	// way retrying cannot fix.
	ErrAuthorityPermanent = errors.New("authority failed permanently")

	// ErrExhausted is returned when a counter space has no ids left.
	ErrExhausted = fmt.Errorf("%w: id space exhausted", ErrAuthorityPermanent)

	// ErrEncoding is returned for malformed variable-length input.
	ErrEncoding = errors.New("encoding error")

	// ErrClosed is returned by allocations after Close.
	ErrClosed = errors.New("manager closed")
)

// AllocationError describes a failed NewID call.
//
// The original underlying error can be accessed via errors.Unwrap.
type AllocationError struct {
	Kind      Kind
	Partition uint64
	cause     error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocate %s id in partition %d: %v", e.Kind, e.Partition, e.cause)
}

func (e *AllocationError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, idpool.ErrClosed), errors.Is(err, authority.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)

	case errors.Is(err, layout.ErrInvalidArgument), errors.Is(err, layout.ErrInvalidConfig):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, layout.ErrUnrecognizedIdentifier):
		return fmt.Errorf("%w: %w", ErrUnrecognizedID, err)
	case errors.Is(err, varint.ErrEncoding):
		return fmt.Errorf("%w: %w", ErrEncoding, err)

	case errors.Is(err, authority.ErrExhausted):
		return fmt.Errorf("%w: %w", ErrExhausted, err)
	case authority.IsPermanent(err):
		return fmt.Errorf("%w: %w", ErrAuthorityPermanent, err)
	case authority.IsTemporary(err), errors.Is(err, idpool.ErrRenewalFailed):
		return fmt.Errorf("%w: %w", ErrAuthorityTemporary, err)
	}

	return err
}
