package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure for the caller-facing boundary.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindDenied
	KindNotFound
	KindConflict
	KindCrypto
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Denied(msg string) error {
	return &Error{Kind: KindDenied, Msg: msg}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Crypto wraps a low-level cryptographic failure behind a fixed message.
// The cause is kept for server logs but never shown to callers, so a
// wrong key and corrupted data are indistinguishable from outside.
func Crypto(err error) error {
	return &Error{Kind: KindCrypto, Msg: "decryption failed", Err: err}
}

func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Message returns the caller-safe message for err, or a generic one.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Msg
	}
	return "internal error"
}
