package ringtcp

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured engine error: an operation name, the connection
// and reactor it concerns (when applicable), a high-level category, and
// the kernel errno that produced it, if any.
type Error struct {
	Op        string // Operation that failed (e.g., "accept", "receive", "send")
	ConnFD    int32  // Client descriptor (0 if not applicable)
	ReactorID int    // Reactor index (-1 if not applicable)
	Code      ErrorCode
	Errno     syscall.Errno
	Msg       string
	Inner     error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.ConnFD != 0 {
		parts = append(parts, fmt.Sprintf("fd=%d", e.ConnFD))
	}
	if e.ReactorID >= 0 {
		parts = append(parts, fmt.Sprintf("reactor=%d", e.ReactorID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("ringtcp: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("ringtcp: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is provides errors.Is support keyed on error category.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode is a high-level error category attached to an Error.
type ErrorCode string

const (
	ErrCodeConnectionClosed   ErrorCode = "connection closed"
	ErrCodeRingFull           ErrorCode = "inbound ring full"
	ErrCodeContractViolation  ErrorCode = "contract violation"
	ErrCodeKernelNotSupported ErrorCode = "kernel does not support io_uring features required"
	ErrCodeInvalidParameters  ErrorCode = "invalid parameters"
	ErrCodePermissionDenied   ErrorCode = "permission denied"
	ErrCodeInsufficientMemory ErrorCode = "insufficient memory"
	ErrCodeIOError            ErrorCode = "I/O error"
	ErrCodeTimeout            ErrorCode = "timeout"
	ErrCodeAcceptFailed       ErrorCode = "accept failed"
)

// NewError creates a structured error with no connection/reactor context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, ConnFD: 0, ReactorID: -1, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a structured error carrying a kernel errno.
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{Op: op, ReactorID: -1, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewConnError creates an error scoped to a connection.
func NewConnError(op string, connFD int32, reactorID int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, ConnFD: connFD, ReactorID: reactorID, Code: code, Msg: msg}
}

// WrapError wraps an existing error with engine context, mapping syscall
// errnos to a category and passing through an already-structured Error
// with its operation name updated.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if e, ok := inner.(*Error); ok {
		return &Error{
			Op:        op,
			ConnFD:    e.ConnFD,
			ReactorID: e.ReactorID,
			Code:      e.Code,
			Errno:     e.Errno,
			Msg:       e.Msg,
			Inner:     e.Inner,
		}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{
			Op:        op,
			ReactorID: -1,
			Code:      mapErrnoToCode(errno),
			Errno:     errno,
			Msg:       errno.Error(),
			Inner:     inner,
		}
	}

	return &Error{Op: op, ReactorID: -1, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ECONNRESET, syscall.EPIPE, syscall.ENOTCONN:
		return ErrCodeConnectionClosed
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidParameters
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeKernelNotSupported
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeInsufficientMemory
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	case syscall.ECONNABORTED:
		return ErrCodeAcceptFailed
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err is a structured Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsErrno reports whether err is a structured Error carrying the given
// kernel errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno == errno
	}
	return false
}
