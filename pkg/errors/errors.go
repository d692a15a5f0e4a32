package errors

import (
	"context"
	"errors"
	"fmt"
)

// ConnError carries a stable code alongside the human-readable message so
// callers can branch on failure class without string matching. Conn names the
// connection the failure belongs to when there is one.
type ConnError struct {
	Code    string
	Message string
	Cause   error
	Conn    string
}

func (e *ConnError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ConnError) Unwrap() error { return e.Cause }

const (
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	ErrCodeFormat        = "FORMAT_ERROR"
	ErrCodeConnectFailed = "CONNECT_FAILED"
	ErrCodeBindFailed    = "BIND_FAILED"
	ErrCodeSendFailed    = "SEND_FAILED"
	ErrCodeReadFailed    = "READ_FAILED"
	ErrCodeDisposed      = "DISPOSED"
	ErrCodeNotFound      = "NOT_FOUND"
)

func ErrInvalidConfig(msg string, cause error) *ConnError {
	return &ConnError{
		Code:    ErrCodeInvalidConfig,
		Message: msg,
		Cause:   cause,
	}
}

// ErrFormat reports a payload that cannot be turned into bytes (odd-length or
// non-hex input, invalid base64). Raised before anything touches a socket.
func ErrFormat(msg string, cause error) *ConnError {
	return &ConnError{
		Code:    ErrCodeFormat,
		Message: msg,
		Cause:   cause,
	}
}

func ErrConnectFailed(conn, msg string, cause error) *ConnError {
	return &ConnError{
		Code:    ErrCodeConnectFailed,
		Message: msg,
		Cause:   cause,
		Conn:    conn,
	}
}

func ErrBindFailed(conn, msg string, cause error) *ConnError {
	return &ConnError{
		Code:    ErrCodeBindFailed,
		Message: msg,
		Cause:   cause,
		Conn:    conn,
	}
}

func ErrSendFailed(conn string, cause error) *ConnError {
	return &ConnError{
		Code:    ErrCodeSendFailed,
		Message: "send failed",
		Cause:   cause,
		Conn:    conn,
	}
}

func ErrReadFailed(conn string, cause error) *ConnError {
	return &ConnError{
		Code:    ErrCodeReadFailed,
		Message: "read failed",
		Cause:   cause,
		Conn:    conn,
	}
}

func ErrDisposed(conn string) *ConnError {
	return &ConnError{
		Code:    ErrCodeDisposed,
		Message: "instance disposed",
		Conn:    conn,
	}
}

func ErrNotFound(id string) *ConnError {
	return &ConnError{
		Code:    ErrCodeNotFound,
		Message: "no instance with id " + id,
	}
}

// CodeOf returns the ConnError code carried by err, or "" when err has none.
func CodeOf(err error) string {
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
