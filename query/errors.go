// Package query compiles a restricted SQL dialect plus inline ABI event
// signatures into executable SQL against the log/transaction storage.
package query

import "fmt"

// ErrorKind is the closed taxonomy of failures surfaced to API clients.
type ErrorKind string

const (
	ErrSignature  ErrorKind = "SignatureError"
	ErrBind       ErrorKind = "BindError"
	ErrParse      ErrorKind = "ParseError"
	ErrValidation ErrorKind = "ValidationError"
	ErrDecode     ErrorKind = "DecodeError"
	ErrCursor     ErrorKind = "CursorError"
	ErrTimeout    ErrorKind = "TimeoutError"
	ErrStorage    ErrorKind = "StorageError"
)

// Error is a typed compile or execution failure. Pos is the approximate
// byte offset in the source the error refers to, or -1 when not applicable.
type Error struct {
	Kind ErrorKind
	Msg  string
	Pos  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func errf(kind ErrorKind, pos int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// NewError builds an Error without source position context.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return errf(kind, -1, format, args...)
}
