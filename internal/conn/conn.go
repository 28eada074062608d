// Package conn implements Connection, the rendezvous between a reactor
// (producer of inbound chunks, consumer of outbound send progress) and a
// user handler goroutine (consumer of inbound chunks, producer of
// outbound bytes).
//
// Connection holds direct references to its owning reactor's two MPSC
// queues rather than a pointer back to the reactor itself, so this
// package never imports the reactor package: ownership flows one
// direction (reactor -> connection), and the connection's back-reference
// is a pair of queue handles, not the reactor.
package conn

import (
	"errors"
	"sync/atomic"

	"github.com/ringtcp/ringtcp/internal/mpscqueue"
	"github.com/ringtcp/ringtcp/internal/spscring"
)

// ErrContractViolation signals a programming-contract violation: a write
// while a flush is in progress, a write or span the slab has no room for,
// or a negative or out-of-bounds advance. These are distinct from network
// errors. A second concurrent reader or flusher panics instead.
var ErrContractViolation = errors.New("conn: contract violation")

// RingItem is a received chunk: a pointer into the owning reactor's buffer
// ring slab, a length, and the buffer id it came from. The pointer is
// valid only until BufferID is returned via ReturnRing.
type RingItem struct {
	Ptr      uintptr
	Len      int
	BufferID uint16
}

// ReadSnapshot is handed to a read_async waiter: the tail position
// observed, whether the connection is closed, and an error code if so.
type ReadSnapshot struct {
	Tail   uint64
	Closed bool
	Err    error
}

// FlushResult is handed to a flush_async waiter.
type FlushResult struct {
	Closed bool
	Err    error
}

const (
	defaultInboundCapacity = 1024
	defaultWriteSlabSize   = 16 << 10
)

type readSignal struct {
	generation uint64
	snapshot   ReadSnapshot
}

type flushSignal struct {
	generation uint64
	result     FlushResult
}

// Connection is the central per-accepted-descriptor entity. See package
// doc for the ownership model.
type Connection struct {
	fd         int32
	reactorID  int
	generation atomic.Uint64

	inbound *spscring.Ring[RingItem]
	armed   atomic.Bool
	pending atomic.Bool
	closed  atomic.Bool

	readArmedGen atomic.Uint64
	readWaiter   chan readSignal

	writeSlab     []byte
	head          atomic.Uint32
	tail          atomic.Uint32
	inFlight      atomic.Uint32
	flushInProg   atomic.Bool
	sendInflight  atomic.Bool
	flushArmedGen atomic.Uint64
	flushWaiter   chan flushSignal

	returnQueue *mpscqueue.SeqSlot[uint16]
	flushQueue  *mpscqueue.MonotonicTail[uint32]
}

// New allocates a Connection with the given inbound ring capacity and
// write slab size. A zero value for either uses the spec's nominal
// defaults (1024 inbound entries, 16 KiB write slab).
func New(inboundCapacity, writeSlabSize int) *Connection {
	if inboundCapacity <= 0 {
		inboundCapacity = defaultInboundCapacity
	}
	if writeSlabSize <= 0 {
		writeSlabSize = defaultWriteSlabSize
	}
	return &Connection{
		inbound:     spscring.New[RingItem](inboundCapacity),
		writeSlab:   make([]byte, writeSlabSize),
		readWaiter:  make(chan readSignal, 1),
		flushWaiter: make(chan flushSignal, 1),
	}
}

// Bind associates the connection with a newly accepted descriptor and its
// owning reactor's queues. Called by the reactor on the drain-new-
// descriptors step, before the connection is published to users.
func (c *Connection) Bind(fd int32, reactorID int, returnQueue *mpscqueue.SeqSlot[uint16], flushQueue *mpscqueue.MonotonicTail[uint32]) {
	c.fd = fd
	c.reactorID = reactorID
	c.returnQueue = returnQueue
	c.flushQueue = flushQueue
	c.closed.Store(false)
}

// FD returns the connection's client descriptor.
func (c *Connection) FD() int32 { return c.fd }

// ReactorID returns the id of the reactor this connection belongs to.
func (c *Connection) ReactorID() int { return c.reactorID }

// Generation returns the current reuse generation.
func (c *Connection) Generation() uint64 { return c.generation.Load() }

// IsClosed reports whether the connection has been torn down.
func (c *Connection) IsClosed() bool { return c.closed.Load() }

// ReadAsync returns a snapshot of drainable inbound data, suspending the
// calling goroutine if nothing is available yet. Only one goroutine may
// have a ReadAsync call outstanding on a connection at a time; a second
// concurrent call is a contract violation.
func (c *Connection) ReadAsync() ReadSnapshot {
	if c.closed.Load() {
		return ReadSnapshot{Closed: true}
	}

	if c.pending.CompareAndSwap(true, false) {
		return ReadSnapshot{Tail: c.inbound.SnapshotTail()}
	}

	snap := c.inbound.SnapshotTail()
	if !c.inbound.IsEmpty(snap) {
		return ReadSnapshot{Tail: snap}
	}

	gen := c.generation.Load()
	if !c.armed.CompareAndSwap(false, true) {
		panic("conn: double reader: read_async called while a reader is already armed")
	}
	c.readArmedGen.Store(gen)

	sig := <-c.readWaiter
	if sig.generation != gen {
		return ReadSnapshot{Closed: true, Err: ErrStaleGeneration}
	}
	return sig.snapshot
}

// ErrStaleGeneration is returned when a suspended operation resumes after
// the connection has been recycled for a different descriptor.
var ErrStaleGeneration = errors.New("conn: stale generation")

// ResetRead clears the suspension primitive for reuse. If the reactor
// produced items while the handler was draining, the next ReadAsync
// returns immediately instead of re-suspending.
func (c *Connection) ResetRead() {
	c.armed.Store(false)
}

// TryGetRing drains one item from the inbound ring up to snapshot.
func (c *Connection) TryGetRing(snapshot uint64) (RingItem, bool) {
	return c.inbound.TryDequeueUntil(snapshot)
}

// TryGetRingBatch drains up to len(out) items, returning the count filled.
func (c *Connection) TryGetRingBatch(snapshot uint64, out []RingItem) int {
	n := 0
	for n < len(out) {
		item, ok := c.inbound.TryDequeueUntil(snapshot)
		if !ok {
			break
		}
		out[n] = item
		n++
	}
	return n
}

// ReturnRing enqueues bufferID on the owning reactor's return queue.
// Safe to call from any goroutine.
func (c *Connection) ReturnRing(bufferID uint16) {
	c.returnQueue.EnqueueBlocking(bufferID)
}

// Write copies bytes into the write slab at the current tail. Fails with
// ErrContractViolation, copying nothing, if a flush is in progress or the
// slab has less room left than len(data).
func (c *Connection) Write(data []byte) (int, error) {
	if c.flushInProg.Load() {
		return 0, ErrContractViolation
	}
	tail := c.tail.Load()
	room := len(c.writeSlab) - int(tail)
	n := len(data)
	if room <= 0 || n > room {
		return 0, ErrContractViolation
	}
	copy(c.writeSlab[tail:], data[:n])
	c.tail.Store(tail + uint32(n))
	return n, nil
}

// GetSpan returns a writable slice of up to hint bytes at the current
// tail, without advancing it. The caller must follow up with Advance.
func (c *Connection) GetSpan(hint int) ([]byte, error) {
	if c.flushInProg.Load() {
		return nil, ErrContractViolation
	}
	tail := c.tail.Load()
	room := len(c.writeSlab) - int(tail)
	if room <= 0 {
		return nil, ErrContractViolation
	}
	if hint <= 0 || hint > room {
		hint = room
	}
	return c.writeSlab[tail : tail+uint32(hint)], nil
}

// Advance moves the write tail forward by n bytes after the caller has
// filled a span obtained from GetSpan. A negative n or one that would
// push tail past the slab is a contract violation.
func (c *Connection) Advance(n int) error {
	if n < 0 {
		return ErrContractViolation
	}
	tail := c.tail.Load()
	if int(tail)+n > len(c.writeSlab) {
		return ErrContractViolation
	}
	c.tail.Store(tail + uint32(n))
	return nil
}

// FlushAsync flushes bytes written since the last flush. Completes
// immediately if tail == head. Otherwise captures in_flight, marks a
// flush in progress, enqueues the descriptor for the reactor, and
// suspends until the reactor observes the send complete.
func (c *Connection) FlushAsync() FlushResult {
	tail := c.tail.Load()
	head := c.head.Load()
	if tail == head {
		return FlushResult{}
	}
	if !c.flushInProg.CompareAndSwap(false, true) {
		panic("conn: flush_async called while a flush is already in progress")
	}
	c.inFlight.Store(tail)

	gen := c.generation.Load()
	c.flushArmedGen.Store(gen)
	c.flushQueue.EnqueueBlocking(uint32(c.fd))

	sig := <-c.flushWaiter
	if sig.generation != gen {
		return FlushResult{Closed: true, Err: ErrStaleGeneration}
	}
	return sig.result
}

// HeadTailInFlight returns the write slab's three positional markers, for
// the reactor's send-preparation step.
func (c *Connection) HeadTailInFlight() (head, tail, inFlight uint32) {
	return c.head.Load(), c.tail.Load(), c.inFlight.Load()
}

// WriteSlab returns the underlying write slab, for the reactor to read
// the bytes between head and in_flight when preparing a send.
func (c *Connection) WriteSlab() []byte { return c.writeSlab }

// SendInflight reports whether the reactor currently has a send SQE
// outstanding for this connection.
func (c *Connection) SendInflight() bool { return c.sendInflight.Load() }

// SetSendInflight is called by the reactor when it submits or completes a
// send for this connection.
func (c *Connection) SetSendInflight(v bool) { c.sendInflight.Store(v) }

// AdvanceHead is called by the reactor on a positive send completion.
func (c *Connection) AdvanceHead(n uint32) {
	c.head.Add(n)
}

// --- Operations consumed by the owning reactor (producer side) ---

// EnqueueRingItem publishes a received chunk. If the ring is full, the
// connection is marked closed (ring-full is fatal per the engine's flow
// control policy). If a waiter is armed, it is signalled; otherwise
// pending is set so the next ReadAsync returns immediately.
func (c *Connection) EnqueueRingItem(item RingItem) {
	if !c.inbound.TryEnqueue(item) {
		c.MarkClosed(ErrRingFull)
		return
	}
	c.wakeReader(ReadSnapshot{Tail: c.inbound.SnapshotTail()})
}

// ErrRingFull is the error code attached to a closed snapshot produced by
// SPSC ring overflow.
var ErrRingFull = errors.New("conn: inbound ring full")

// ErrConnectionClosed is the error code attached to a closed snapshot or
// flush result produced by an ordinary peer disconnect or a failed send,
// as opposed to ring overflow (ErrRingFull) or a stale-generation reuse
// (ErrStaleGeneration).
var ErrConnectionClosed = errors.New("conn: connection closed")

func (c *Connection) wakeReader(snap ReadSnapshot) {
	if c.armed.CompareAndSwap(true, false) {
		c.readWaiter <- readSignal{generation: c.readArmedGen.Load(), snapshot: snap}
		return
	}
	c.pending.Store(true)
}

// MarkClosed marks the connection closed and, if a reader is armed,
// signals it with a closed snapshot carrying errCode.
func (c *Connection) MarkClosed(errCode error) {
	c.closed.Store(true)
	if c.armed.CompareAndSwap(true, false) {
		c.readWaiter <- readSignal{generation: c.readArmedGen.Load(), snapshot: ReadSnapshot{Closed: true, Err: errCode}}
	}
	if c.flushInProg.Load() {
		c.flushInProg.Store(false)
		select {
		case c.flushWaiter <- flushSignal{generation: c.flushArmedGen.Load(), result: FlushResult{Closed: true, Err: errCode}}:
		default:
		}
	}
}

// CompleteFlush resets head/tail/in_flight to zero, clears flush_in_progress,
// and signals the flush waiter. Called by the reactor once a flush's send
// has fully drained.
func (c *Connection) CompleteFlush() {
	c.head.Store(0)
	c.tail.Store(0)
	c.inFlight.Store(0)
	c.flushInProg.Store(false)
	gen := c.generation.Load()
	select {
	case c.flushWaiter <- flushSignal{generation: gen, result: FlushResult{}}:
	default:
	}
}

// Clear prepares the connection for reuse from a pool: bumps generation,
// marks closed, releases any waiters with a closed result, and resets
// slab offsets and the inbound ring.
func (c *Connection) Clear() {
	c.closed.Store(true)
	if c.armed.CompareAndSwap(true, false) {
		select {
		case c.readWaiter <- readSignal{generation: c.readArmedGen.Load(), snapshot: ReadSnapshot{Closed: true}}:
		default:
		}
	}
	if c.flushInProg.CompareAndSwap(true, false) {
		select {
		case c.flushWaiter <- flushSignal{generation: c.flushArmedGen.Load(), result: FlushResult{Closed: true}}:
		default:
		}
	}
	c.pending.Store(false)
	c.head.Store(0)
	c.tail.Store(0)
	c.inFlight.Store(0)
	c.sendInflight.Store(false)
	c.inbound.Clear()
	c.generation.Add(1)
}

// FastClear is Clear without releasing waiters, for the path where the
// caller has already established no waiter can be outstanding.
func (c *Connection) FastClear() {
	c.closed.Store(true)
	c.armed.Store(false)
	c.pending.Store(false)
	c.flushInProg.Store(false)
	c.head.Store(0)
	c.tail.Store(0)
	c.inFlight.Store(0)
	c.sendInflight.Store(false)
	c.inbound.Clear()
	c.generation.Add(1)
}
