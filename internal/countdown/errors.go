package countdown

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request that was refused before any state changed.
	ErrValidation = errors.New("invalid request")
	// ErrThrottled marks a travel request that arrived inside the team's cooldown.
	ErrThrottled = errors.New("too many requests")
	// ErrPersistence wraps a failed store write; the operation did not take effect.
	ErrPersistence = errors.New("persistence failure")
	ErrClosed      = errors.New("scheduler closed")
	ErrNotReady    = errors.New("scheduler not recovered yet")
)

// Rejection is returned when a request is refused. Kind is ErrValidation or
// ErrThrottled; Reason is safe to show to the requester.
type Rejection struct {
	Kind   error
	Reason string
}

func (r *Rejection) Error() string { return fmt.Sprintf("%v: %s", r.Kind, r.Reason) }

func (r *Rejection) Unwrap() error { return r.Kind }

func invalid(format string, args ...any) error {
	return &Rejection{Kind: ErrValidation, Reason: fmt.Sprintf(format, args...)}
}

// Outcome is the result of a cancel request. Only a store failure is an error.
type Outcome uint8

const (
	Cancelled Outcome = iota
	NotFound
	Forbidden
	GraceExpired
)

func (o Outcome) String() string {
	switch o {
	case Cancelled:
		return "cancelled"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case GraceExpired:
		return "grace_expired"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}
