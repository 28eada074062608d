package ringtcp

import (
	"errors"
	"syscall"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("create_engine", ErrCodeInvalidParameters, "invalid bind address")

	if err.Op != "create_engine" {
		t.Errorf("Expected Op=create_engine, got %s", err.Op)
	}
	if err.Code != ErrCodeInvalidParameters {
		t.Errorf("Expected Code=ErrCodeInvalidParameters, got %s", err.Code)
	}

	expected := "ringtcp: invalid bind address (op=create_engine)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrorWithErrno(t *testing.T) {
	err := NewErrorWithErrno("accept", ErrCodeAcceptFailed, syscall.ECONNABORTED)

	if err.Errno != syscall.ECONNABORTED {
		t.Errorf("Expected Errno=ECONNABORTED, got %v", err.Errno)
	}
	if err.Code != ErrCodeAcceptFailed {
		t.Errorf("Expected Code=ErrCodeAcceptFailed, got %s", err.Code)
	}
}

func TestConnError(t *testing.T) {
	err := NewConnError("send", 7, 2, ErrCodeConnectionClosed, "remote closed")

	if err.ConnFD != 7 {
		t.Errorf("Expected ConnFD=7, got %d", err.ConnFD)
	}
	if err.ReactorID != 2 {
		t.Errorf("Expected ReactorID=2, got %d", err.ReactorID)
	}

	expected := "ringtcp: remote closed (op=send)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapError(t *testing.T) {
	inner := syscall.ECONNRESET
	err := WrapError("receive", inner)

	if err.Code != ErrCodeConnectionClosed {
		t.Errorf("Expected Code=ErrCodeConnectionClosed, got %s", err.Code)
	}
	if err.Errno != syscall.ECONNRESET {
		t.Errorf("Expected Errno=ECONNRESET, got %v", err.Errno)
	}
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Error("Expected wrapped error to satisfy errors.Is for ECONNRESET")
	}
}

func TestWrapErrorPreservesStructuredContext(t *testing.T) {
	inner := NewConnError("receive", 9, 1, ErrCodeRingFull, "ring full")
	wrapped := WrapError("teardown", inner)

	if wrapped.ConnFD != 9 || wrapped.ReactorID != 1 {
		t.Errorf("expected connection context preserved, got %+v", wrapped)
	}
	if wrapped.Op != "teardown" {
		t.Errorf("expected Op overwritten to teardown, got %s", wrapped.Op)
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("test", ErrCodeTimeout, "operation timed out")

	if !IsCode(err, ErrCodeTimeout) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeIOError) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeTimeout) {
		t.Error("IsCode should return false for nil error")
	}
}

func TestIsErrno(t *testing.T) {
	err := NewErrorWithErrno("test", ErrCodeIOError, syscall.EIO)

	if !IsErrno(err, syscall.EIO) {
		t.Error("IsErrno should return true for matching errno")
	}
	if IsErrno(err, syscall.EPERM) {
		t.Error("IsErrno should return false for non-matching errno")
	}
	if IsErrno(nil, syscall.EIO) {
		t.Error("IsErrno should return false for nil error")
	}
}

func TestErrnoMapping(t *testing.T) {
	testCases := []struct {
		errno    syscall.Errno
		expected ErrorCode
	}{
		{syscall.ECONNRESET, ErrCodeConnectionClosed},
		{syscall.EPIPE, ErrCodeConnectionClosed},
		{syscall.EINVAL, ErrCodeInvalidParameters},
		{syscall.EPERM, ErrCodePermissionDenied},
		{syscall.ENOMEM, ErrCodeInsufficientMemory},
		{syscall.ETIMEDOUT, ErrCodeTimeout},
		{syscall.ENOSYS, ErrCodeKernelNotSupported},
		{syscall.ECONNABORTED, ErrCodeAcceptFailed},
	}

	for _, tc := range testCases {
		code := mapErrnoToCode(tc.errno)
		if code != tc.expected {
			t.Errorf("mapErrnoToCode(%v) = %s, want %s", tc.errno, code, tc.expected)
		}
	}
}
