package round

import (
	"errors"
	"fmt"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"
)

// ErrorKind classifies a rejected request.
type ErrorKind string

const (
	InvalidInput      ErrorKind = "INVALID_INPUT"
	InsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	UnknownUser       ErrorKind = "UNKNOWN_USER"
	PhaseViolation    ErrorKind = "PHASE_VIOLATION"
	AlreadySettled    ErrorKind = "ALREADY_SETTLED"
	TooLate           ErrorKind = "TOO_LATE"
	Unavailable       ErrorKind = "UNAVAILABLE"
)

// Error is returned by engine operations. Every kind except Unavailable is a
// clean rejection that left round and balance state untouched.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrTooLate) works
// regardless of reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Reason == "" && t.Err == nil
}

var (
	ErrInvalidInput      = &Error{Kind: InvalidInput}
	ErrInsufficientFunds = &Error{Kind: InsufficientFunds}
	ErrUnknownUser       = &Error{Kind: UnknownUser}
	ErrPhaseViolation    = &Error{Kind: PhaseViolation}
	ErrAlreadySettled    = &Error{Kind: AlreadySettled}
	ErrTooLate           = &Error{Kind: TooLate}
	ErrUnavailable       = &Error{Kind: Unavailable}
)

// Reject builds a rejection of kind with a formatted reason.
func Reject(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// FromWallet maps a Balance Store failure to the rejection taxonomy.
func FromWallet(err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return &Error{Kind: InsufficientFunds, Reason: "insufficient balance", Err: err}
	case errors.Is(err, wallet.ErrUserNotFound):
		return &Error{Kind: UnknownUser, Reason: "user not found", Err: err}
	case errors.Is(err, wallet.ErrInvalidAmount):
		return &Error{Kind: InvalidInput, Reason: "invalid amount", Err: err}
	}
	return &Error{Kind: Unavailable, Reason: "balance store", Err: err}
}

// KindOf returns the kind carried by err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
