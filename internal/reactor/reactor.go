// Package reactor implements the per-reactor event loop: it owns a
// kernel ring, a buffer-ring slab, a descriptor-to-Connection map, and
// the two MPSC queues handler goroutines use to hand work back.
package reactor

import (
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/agilira/go-timecache"
	"golang.org/x/sys/unix"

	"github.com/ringtcp/ringtcp/internal/bufring"
	"github.com/ringtcp/ringtcp/internal/conn"
	"github.com/ringtcp/ringtcp/internal/constants"
	"github.com/ringtcp/ringtcp/internal/interfaces"
	"github.com/ringtcp/ringtcp/internal/mpscqueue"
	"github.com/ringtcp/ringtcp/internal/uring"
)

// ptrOf returns the address of b's backing array. b is a sub-slice of the
// reactor's buffer-ring slab, which is pinned for the lifetime of the
// reactor, so the address stays valid until the buffer is returned.
func ptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Config configures a single reactor.
type Config struct {
	RingFlags          uring.Config
	ReceiveBufferSize  int
	BufferRingEntries  int // power of two
	CompletionBatch    int
	MaxConnections     int
	WaitTimeout        time.Duration
	IncrementalConsume bool
	CPUAffinity        int // -1 disables pinning
	Logger             interfaces.Logger
	Observer           interfaces.Observer
}

const (
	defaultCompletionBatch = 4096
	defaultWaitTimeout     = 10 * time.Millisecond
	bufferGroupID          = 1
)

// Reactor owns one kernel ring and a set of connections.
type Reactor struct {
	id  int
	cfg Config

	ring       uring.Ring
	slab       *bufring.Slab
	bufferRing uring.BufferRing
	refcounts  *bufring.RefcountManager

	conns map[int32]*conn.Connection
	pool  sync.Pool

	newDescs    chan int32
	returnQueue *mpscqueue.SeqSlot[uint16]
	flushQueue  *mpscqueue.MonotonicTail[uint32]

	publish func(*conn.Connection)

	clock *timecache.TimeCache

	stop chan struct{}
	done chan struct{}
}

// New constructs a reactor. publish is called once per newly bound
// Connection, to hand it to the engine's accept channel.
func New(id int, cfg Config, publish func(*conn.Connection)) (*Reactor, error) {
	if cfg.ReceiveBufferSize <= 0 {
		cfg.ReceiveBufferSize = 4096
	}
	if cfg.BufferRingEntries <= 0 {
		cfg.BufferRingEntries = 4096
	}
	if cfg.CompletionBatch <= 0 {
		cfg.CompletionBatch = defaultCompletionBatch
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 65536
	}

	ring, err := uring.NewRing(cfg.RingFlags)
	if err != nil {
		return nil, err
	}

	slab, err := bufring.NewSlab(cfg.BufferRingEntries, cfg.ReceiveBufferSize)
	if err != nil {
		ring.Close()
		return nil, err
	}

	bufRing, err := ring.RegisterBufferRing(bufferGroupID, uint16(cfg.BufferRingEntries))
	if err != nil {
		ring.Close()
		return nil, err
	}
	for i := 0; i < slab.Entries(); i++ {
		id := uint16(i)
		bufRing.AddBuffer(id, slab.BasePointer()+uintptr(i*slab.BufferSize()), uint32(slab.BufferSize()))
	}
	bufRing.Advance(slab.Entries())

	var refcounts *bufring.RefcountManager
	if cfg.IncrementalConsume {
		refcounts = bufring.NewRefcountManager(slab.Entries())
	}

	r := &Reactor{
		id:          id,
		cfg:         cfg,
		ring:        ring,
		slab:        slab,
		bufferRing:  bufRing,
		refcounts:   refcounts,
		conns:       make(map[int32]*conn.Connection, cfg.MaxConnections),
		newDescs:    make(chan int32, cfg.MaxConnections),
		returnQueue: mpscqueue.NewSeqSlot[uint16](cfg.BufferRingEntries),
		flushQueue:  mpscqueue.NewMonotonicTail[uint32](cfg.MaxConnections),
		publish:     publish,
		clock:       timecache.NewWithResolution(time.Millisecond),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	r.pool.New = func() interface{} {
		return conn.New(0, 0)
	}
	return r, nil
}

// ID returns the reactor's index within the engine's reactor pool.
func (r *Reactor) ID() int { return r.id }

// ReturnQueue exposes the buffer-return MPSC queue for Connection.Bind.
func (r *Reactor) ReturnQueue() *mpscqueue.SeqSlot[uint16] { return r.returnQueue }

// FlushQueue exposes the flush-request MPSC queue for Connection.Bind.
func (r *Reactor) FlushQueue() *mpscqueue.MonotonicTail[uint32] { return r.flushQueue }

// Dispatch is called by the acceptor to hand off a newly accepted
// descriptor. Safe to call from any goroutine.
func (r *Reactor) Dispatch(fd int32) {
	r.newDescs <- fd
}

// Run pins the calling goroutine to an OS thread and runs the event loop
// until Stop is called.
func (r *Reactor) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	if r.cfg.CPUAffinity >= 0 {
		var set unix.CPUSet
		set.Zero()
		set.Set(r.cfg.CPUAffinity)
		_ = unix.SchedSetaffinity(0, &set)
	}

	batch := make([]uring.Completion, r.cfg.CompletionBatch)
	for {
		select {
		case <-r.stop:
			r.drainOnShutdown(batch)
			return nil
		default:
		}

		r.drainNewDescriptors()
		r.drainReturns()
		r.drainFlushes()
		r.sampleQueueDepths()

		n, err := r.ring.SubmitAndWaitTimeout(1, r.cfg.WaitTimeout)
		if err != nil {
			continue // kernel timeout or transient error: no-op continue
		}
		if n == 0 {
			continue
		}

		count := r.ring.PeekBatchCompletions(batch)
		for i := 0; i < count; i++ {
			r.handleCompletion(batch[i])
		}
		r.ring.AdvanceCompletions(uint32(count))
	}
}

// drainOnShutdown gives connections with a send in flight up to
// ShutdownDrainGrace to complete before Run returns, so Stop doesn't sever
// a write mid-flight. Connections with nothing outstanding are left for
// Stop to close immediately.
func (r *Reactor) drainOnShutdown(batch []uring.Completion) {
	deadline := time.Now().Add(constants.ShutdownDrainGrace)
	for r.anySendInflight() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		wait := remaining
		if wait > r.cfg.WaitTimeout {
			wait = r.cfg.WaitTimeout
		}
		n, err := r.ring.SubmitAndWaitTimeout(1, wait)
		if err != nil || n == 0 {
			continue
		}
		count := r.ring.PeekBatchCompletions(batch)
		for i := 0; i < count; i++ {
			r.handleCompletion(batch[i])
		}
		r.ring.AdvanceCompletions(uint32(count))
	}
}

func (r *Reactor) anySendInflight() bool {
	for _, c := range r.conns {
		if c.SendInflight() {
			return true
		}
	}
	return false
}

func (r *Reactor) sampleQueueDepths() {
	if r.cfg.Observer == nil {
		return
	}
	r.cfg.Observer.ObserveQueueDepth("inbound", uint32(len(r.newDescs)))
	r.cfg.Observer.ObserveQueueDepth("return", r.returnQueue.Depth())
	r.cfg.Observer.ObserveQueueDepth("flush", r.flushQueue.Depth())
}

func (r *Reactor) drainNewDescriptors() {
	for {
		select {
		case fd := <-r.newDescs:
			r.acceptNew(fd)
		default:
			return
		}
	}
}

func (r *Reactor) acceptNew(fd int32) {
	c, _ := r.pool.Get().(*conn.Connection)
	c.Bind(fd, r.id, r.returnQueue, r.flushQueue)
	r.conns[fd] = c

	if err := r.ring.PrepMultishotReceive(fd, bufferGroupID, uring.UserData(uring.KindReceive, fd)); err != nil {
		if r.cfg.Logger != nil {
			r.cfg.Logger.Debugf("reactor %d: arm receive for fd %d: %v", r.id, fd, err)
		}
	}
	r.publish(c)
}

func (r *Reactor) drainReturns() {
	published := 0
	for {
		id, err := r.returnQueue.TryDequeue()
		if err != nil {
			break
		}
		if r.refcounts != nil {
			r.refcounts.OnReturn(id)
			if !r.refcounts.Reclaimable(id) {
				continue
			}
			r.refcounts.Reclaim(id)
		}
		r.bufferRing.AddBuffer(id, r.slab.BasePointer()+uintptr(int(id)*r.slab.BufferSize()), uint32(r.slab.BufferSize()))
		published++
	}
	if published > 0 {
		r.bufferRing.Advance(published)
	}
}

func (r *Reactor) drainFlushes() {
	snap := r.flushQueue.SnapshotTail()
	for {
		fdRaw, err := r.flushQueue.TryDequeueUntil(snap)
		if err != nil {
			break
		}
		fd := int32(fdRaw)
		c, ok := r.conns[fd]
		if !ok {
			continue
		}
		head, _, inFlight := c.HeadTailInFlight()
		if inFlight <= head {
			continue
		}
		data := c.WriteSlab()[head:inFlight]
		if err := r.ring.PrepSend(fd, data, uring.UserData(uring.KindSend, fd)); err != nil {
			if r.cfg.Logger != nil {
				r.cfg.Logger.Debugf("reactor %d: prep send for fd %d: %v", r.id, fd, err)
			}
			continue
		}
		c.SetSendInflight(true)
	}
}

func (r *Reactor) handleCompletion(c uring.Completion) {
	switch c.Kind() {
	case uring.KindReceive:
		r.handleReceive(c)
	case uring.KindSend:
		r.handleSend(c)
	case uring.KindCancel:
		// diagnostics only
	}
}

func (r *Reactor) handleReceive(cqe uring.Completion) {
	start := r.clock.CachedTime()
	fd := cqe.FD()
	connection, ok := r.conns[fd]

	if cqe.Res <= 0 {
		if cqe.Flags&uring.FlagBuffer != 0 {
			r.returnBufferDirect(cqe.BufferID())
		}
		if ok {
			r.teardown(connection, conn.ErrConnectionClosed)
		}
		return
	}

	if !ok {
		// Race with teardown: still return the provided buffer so the
		// ring doesn't leak an entry.
		if cqe.Flags&uring.FlagBuffer != 0 {
			r.returnBufferDirect(cqe.BufferID())
		}
		return
	}

	bufID := cqe.BufferID()
	length := int(cqe.Res)
	final := !cqe.BufferNotDone()

	var offset uint32
	if r.refcounts != nil {
		r.refcounts.OnReceive(bufID, length, final)
		offset = r.refcounts.Offset(bufID) - uint32(length)
	}

	chunk := r.slab.Buffer(bufID)[offset : int(offset)+length]
	connection.EnqueueRingItem(conn.RingItem{
		Ptr:      ptrOf(chunk),
		Len:      length,
		BufferID: bufID,
	})

	if !cqe.MoreToCome() {
		_ = r.ring.PrepMultishotReceive(fd, bufferGroupID, uring.UserData(uring.KindReceive, fd))
	}

	if r.cfg.Observer != nil {
		latencyNs := r.clock.CachedTime().Sub(start).Nanoseconds()
		if latencyNs < 0 {
			latencyNs = 0
		}
		r.cfg.Observer.ObserveReceive(uint64(length), uint64(latencyNs), true)
	}
}

func (r *Reactor) returnBufferDirect(id uint16) {
	if r.refcounts != nil {
		r.refcounts.OnReturn(id)
		if !r.refcounts.Reclaimable(id) {
			return
		}
		r.refcounts.Reclaim(id)
	}
	r.bufferRing.AddBuffer(id, r.slab.BasePointer()+uintptr(int(id)*r.slab.BufferSize()), uint32(r.slab.BufferSize()))
	r.bufferRing.Advance(1)
}

func (r *Reactor) handleSend(cqe uring.Completion) {
	start := r.clock.CachedTime()
	fd := cqe.FD()
	connection, ok := r.conns[fd]
	if !ok {
		return
	}

	if cqe.Res <= 0 {
		r.teardown(connection, conn.ErrConnectionClosed)
		return
	}

	connection.AdvanceHead(uint32(cqe.Res))
	connection.SetSendInflight(false)

	head, _, inFlight := connection.HeadTailInFlight()
	if head < inFlight {
		data := connection.WriteSlab()[head:inFlight]
		if err := r.ring.PrepSend(fd, data, uring.UserData(uring.KindSend, fd)); err == nil {
			connection.SetSendInflight(true)
		}
		return
	}
	connection.CompleteFlush()

	if r.cfg.Observer != nil {
		latencyNs := r.clock.CachedTime().Sub(start).Nanoseconds()
		if latencyNs < 0 {
			latencyNs = 0
		}
		r.cfg.Observer.ObserveSend(uint64(cqe.Res), uint64(latencyNs), true)
	}
}

func (r *Reactor) teardown(c *conn.Connection, errCode error) {
	delete(r.conns, c.FD())
	unix.Close(int(c.FD()))
	c.MarkClosed(errCode)
	c.Clear()
	r.pool.Put(c)
	if r.cfg.Observer != nil {
		r.cfg.Observer.ObserveTeardown(0)
	}
}

// Stop signals the event loop to exit, waits for it to give in-flight
// sends up to ShutdownDrainGrace to complete (see drainOnShutdown), force
// closes whatever connections remain, and tears down the reactor's kernel
// resources: buffer ring freed before the ring is destroyed.
func (r *Reactor) Stop() error {
	close(r.stop)
	<-r.done

	for fd, c := range r.conns {
		unix.Close(int(fd))
		c.MarkClosed(nil)
	}
	r.clock.Stop()

	if err := r.bufferRing.Free(); err != nil {
		return err
	}
	return r.ring.Close()
}
