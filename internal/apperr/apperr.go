// Package apperr classifies service errors so that transports can map them
// to status codes without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInvalidState
	KindUpstream
	// KindParse is an upstream response that could not be interpreted.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindUpstream:
		return "upstream"
	case KindParse:
		return "parse"
	default:
		return "internal"
	}
}

// Error is a classified error. Op names the operation that failed, Msg is
// safe to show to callers, Err is the underlying cause if any.
type Error struct {
	Kind   Kind
	Op     string
	Msg    string
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

// ValidationFields carries per-field failures (field name to rule).
func ValidationFields(op, msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg, Fields: fields}
}

func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

func Conflict(op, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg}
}

func InvalidState(op, msg string) *Error {
	return &Error{Kind: KindInvalidState, Op: op, Msg: msg}
}

func Upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Msg: "upstream service failed", Err: err}
}

func Parse(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Msg: "could not parse upstream response", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is of kind k. A parse error also counts as upstream.
func Is(err error, k Kind) bool {
	got := KindOf(err)
	if got == k {
		return true
	}
	return k == KindUpstream && got == KindParse
}

// FieldsOf returns validation field details carried by err, if any.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Message returns the caller-safe message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}
