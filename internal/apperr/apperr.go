package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure surfaced by the statistics core
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindExhausted   Kind = "exhausted"
	KindConfigInUse Kind = "config_in_use"
	KindNotFound    Kind = "not_found"
	KindStore       Kind = "store"
)

// Sentinels for errors.Is; every *Error matches the sentinel of its kind.
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrExhausted   = &Error{Kind: KindExhausted}
	ErrConfigInUse = &Error{Kind: KindConfigInUse}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrStore       = &Error{Kind: KindStore}
)

// Error is a typed failure carrying the operation that produced it
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Conflict(op string, err error) error {
	return &Error{Kind: KindConflict, Op: op, Message: "concurrent modification", Err: err}
}

func Exhausted(op string, attempts int, err error) error {
	return &Error{Kind: KindExhausted, Op: op, Message: fmt.Sprintf("gave up after %d attempts", attempts), Err: err}
}

func ConfigInUse(op string, configID uint) error {
	return &Error{
		Kind:    KindConfigInUse,
		Op:      op,
		Message: fmt.Sprintf("match config %d is referenced by recorded games and its gameplay settings cannot change", configID),
	}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Store wraps a non-transient store failure so raw driver errors never reach callers untyped
func Store(op string, err error) error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
