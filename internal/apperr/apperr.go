// Package apperr defines the closed set of error kinds surfaced by the guardian core.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindPolicy       Kind = "policy_rejection"
	KindProvider     Kind = "provider"
	KindSignalSource Kind = "signal_source"
	KindState        Kind = "state"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// Error carries a Kind alongside the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func State(op, format string, args ...any) *Error {
	return &Error{Kind: KindState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Policy(op, format string, args ...any) *Error {
	return &Error{Kind: KindPolicy, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Provider(op string, err error) *Error {
	return &Error{Kind: KindProvider, Op: op, Err: err}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Kinded lets package-local error types report a Kind without wrapping in *Error.
type Kinded interface {
	AppErrorKind() Kind
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.AppErrorKind()
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
