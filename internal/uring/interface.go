// Package uring provides the abstract kernel binding the reactor and
// acceptor consume: ring lifecycle, a registered buffer ring, and the
// handful of SQE/CQE operations the engine needs (multishot accept,
// multishot receive with buffer-select, send, cancel). The real
// implementation binds to github.com/pawelgaczynski/giouring on Linux;
// non-Linux builds get a stub that errors at construction time.
package uring

import (
	"errors"
	"time"
)

// ErrSubmissionQueueFull is returned when no free submission entry is
// available even after one submit to free space; the Prep* methods try
// that single submit-and-retry themselves rather than spinning unbounded.
var ErrSubmissionQueueFull = errors.New("uring: submission queue full")

// ErrNotSupported is returned by the non-Linux stub ring.
var ErrNotSupported = errors.New("uring: io_uring not supported on this platform")

// Completion flag bits, as read off a CQE's Flags field.
const (
	FlagMore          uint32 = 1 << 1 // IORING_CQE_F_MORE: further completions for this SQE will arrive
	FlagBuffer        uint32 = 1 << 0 // IORING_CQE_F_BUFFER: a provided buffer id is packed in the upper 16 bits
	FlagBufferNotDone uint32 = 1 << 4 // IORING_CQE_F_BUF_MORE: kernel not yet done writing this buffer (incremental)
)

// Kind tags packed into the upper 32 bits of a completion's user-data.
type Kind uint32

const (
	KindAccept Kind = iota + 1
	KindReceive
	KindSend
	KindCancel
)

// UserData packs a completion kind and a descriptor into a single 64-bit
// value: kind in the upper word, descriptor in the lower word. This lets
// the reactor's dispatcher classify a completion with one load.
func UserData(kind Kind, fd int32) uint64 {
	return uint64(kind)<<32 | uint64(uint32(fd))
}

// SplitUserData reverses UserData.
func SplitUserData(ud uint64) (Kind, int32) {
	return Kind(ud >> 32), int32(uint32(ud))
}

// Completion is a single completion queue entry.
type Completion struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// Kind returns the completion's kind tag decoded from its user data.
func (c Completion) Kind() Kind { return Kind(c.UserData >> 32) }

// FD returns the descriptor decoded from the completion's user data.
func (c Completion) FD() int32 { return int32(uint32(c.UserData)) }

// BufferID extracts the provided-buffer id, valid only when FlagBuffer is set.
func (c Completion) BufferID() uint16 { return uint16(c.Flags >> 16) }

// MoreToCome reports whether the multishot operation that produced this
// completion will produce further completions without resubmission.
func (c Completion) MoreToCome() bool { return c.Flags&FlagMore != 0 }

// BufferNotDone reports whether, with incremental buffer consumption
// enabled, the kernel still intends to write more into this buffer.
func (c Completion) BufferNotDone() bool { return c.Flags&FlagBufferNotDone != 0 }

// Config describes how to create a ring.
type Config struct {
	Entries      uint32
	SingleIssuer bool
	DeferTaskrun bool
	SQPoll       bool
	SQPollCPU    int
	SQPollIdle   time.Duration
	CQSize       uint32 // 0 uses the kernel default of 2x Entries
}

// BufferRing is a kernel-registered provided-buffer ring.
type BufferRing interface {
	// GroupID returns the buffer group id SQEs select from.
	GroupID() uint16
	// AddBuffer makes buffer id available to the kernel at the given
	// address/length, masked against the ring's own entry count. Entries
	// added this way are not visible to the kernel until Advance is
	// called.
	AddBuffer(id uint16, addr uintptr, length uint32)
	// Advance publishes n previously-added buffers in one step.
	Advance(n int)
	// Free unregisters the buffer ring.
	Free() error
}

// Ring is the per-thread (acceptor or reactor) kernel ring.
type Ring interface {
	Close() error

	// RegisterBufferRing registers a provided buffer ring of entries
	// chunks under groupID. entries must be a power of two.
	RegisterBufferRing(groupID uint16, entries uint16) (BufferRing, error)

	// PrepMultishotAccept arms a self-resubmitting accept on listenFD.
	PrepMultishotAccept(listenFD int32, userData uint64) error
	// PrepMultishotReceive arms a self-resubmitting buffer-select receive
	// on connFD, selecting from the buffer group bgid.
	PrepMultishotReceive(connFD int32, bgid uint16, userData uint64) error
	// PrepSend prepares a send of data on connFD.
	PrepSend(connFD int32, data []byte, userData uint64) error
	// PrepCancel requests cancellation of any outstanding operation on
	// targetFD (e.g. the multishot accept or receive armed for a
	// descriptor being torn down).
	PrepCancel(targetFD int32, userData uint64) error

	// Submit flushes prepared SQEs with a single io_uring_enter call.
	Submit() (uint32, error)
	// SubmitAndWaitTimeout flushes prepared SQEs and waits for at least
	// waitNr completions or until timeout elapses.
	SubmitAndWaitTimeout(waitNr uint32, timeout time.Duration) (uint32, error)

	// PeekBatchCompletions copies up to len(batch) pending completions
	// into batch without advancing the completion queue, returning the
	// count copied.
	PeekBatchCompletions(batch []Completion) int
	// AdvanceCompletions marks n completions as consumed.
	AdvanceCompletions(n uint32)
}

// NewRing creates a platform ring: the real giouring-backed
// implementation on Linux, or a stub returning ErrNotSupported elsewhere.
func NewRing(cfg Config) (Ring, error) {
	return newPlatformRing(cfg)
}
