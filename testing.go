package ringtcp

import (
	"fmt"
	"sync"

	"github.com/ringtcp/ringtcp/internal/conn"
	"github.com/ringtcp/ringtcp/internal/mpscqueue"
)

// MockLogger is a Logger that records formatted lines instead of writing
// them anywhere, for assertions in tests that exercise engine internals.
type MockLogger struct {
	mu    sync.Mutex
	Lines []string
	Debug []string
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// Printf implements Logger.
func (m *MockLogger) Printf(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lines = append(m.Lines, fmt.Sprintf(format, args...))
}

// Debugf implements Logger.
func (m *MockLogger) Debugf(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Debug = append(m.Debug, fmt.Sprintf(format, args...))
}

// All returns a snapshot of every recorded line, Printf and Debugf
// interleaved in call order is not preserved; use Lines/Debug directly
// when call order across the two matters.
func (m *MockLogger) All() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Lines)+len(m.Debug))
	out = append(out, m.Lines...)
	out = append(out, m.Debug...)
	return out
}

// NoOpLogger discards everything. Used as Options.Logger's zero value
// substitute so internal packages never need a nil check.
type NoOpLogger struct{}

func (NoOpLogger) Printf(string, ...interface{}) {}
func (NoOpLogger) Debugf(string, ...interface{}) {}

var (
	_ Logger = (*MockLogger)(nil)
	_ Logger = NoOpLogger{}
)

// NewLoopbackConnection builds a Connection bound to fd against
// standalone queues, with no reactor or kernel ring behind it. Handler
// code driving it must play the reactor's role itself: call
// EnqueueRingItem to deliver bytes, drain the return/flush queues
// returned alongside it, and call CompleteFlush/MarkClosed as
// appropriate. Intended for unit tests of handler logic that would
// otherwise require a live kernel ring.
func NewLoopbackConnection(fd int32, inboundCapacity, writeSlabSize int) (*Connection, *mpscqueue.SeqSlot[uint16], *mpscqueue.MonotonicTail[uint32]) {
	returns := mpscqueue.NewSeqSlot[uint16](64)
	flushes := mpscqueue.NewMonotonicTail[uint32](64)
	c := conn.New(inboundCapacity, writeSlabSize)
	c.Bind(fd, 0, returns, flushes)
	return c, returns, flushes
}
