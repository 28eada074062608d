// Package acceptor implements the single thread that owns the listening
// socket: it arms a multishot-accept operation and dispatches accepted
// descriptors round-robin to the reactor pool.
package acceptor

import (
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ringtcp/ringtcp/internal/interfaces"
	"github.com/ringtcp/ringtcp/internal/uring"
)

// Config configures the acceptor thread.
type Config struct {
	BindAddress string
	Port        uint16
	Backlog     int
	IPv6Only    bool
	RingFlags   uring.Config
	WaitTimeout time.Duration // default 100ms, accept bursts are infrequent
	AcceptBatch int
	Logger      interfaces.Logger
	Observer    interfaces.Observer
}

// DefaultWaitTimeout is the acceptor's default submit-and-wait timeout.
const DefaultWaitTimeout = 100 * time.Millisecond

const defaultAcceptBatch = 256

// Dispatch is the function the acceptor calls for every accepted
// descriptor, chosen round-robin over the reactor pool. Implementations
// enqueue fd onto the target reactor's new-descriptor queue.
type Dispatch func(reactorIndex int, fd int32)

// Acceptor owns the listening socket and its dedicated ring.
type Acceptor struct {
	listenFD    int32
	ring        uring.Ring
	cfg         Config
	numReactors int
	next        int
	dispatch    Dispatch
	stop        chan struct{}
	done        chan struct{}
}

// New creates and binds the listening socket, but does not start the
// accept loop.
func New(cfg Config, numReactors int, dispatch Dispatch) (*Acceptor, error) {
	if numReactors <= 0 {
		return nil, fmt.Errorf("acceptor: numReactors must be positive")
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.AcceptBatch <= 0 {
		cfg.AcceptBatch = defaultAcceptBatch
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = 1024
	}

	fd, err := bindListener(cfg)
	if err != nil {
		return nil, err
	}

	ring, err := uring.NewRing(cfg.RingFlags)
	if err != nil {
		unix.Close(int(fd))
		return nil, fmt.Errorf("acceptor: create ring: %w", err)
	}

	return &Acceptor{
		listenFD:    fd,
		ring:        ring,
		cfg:         cfg,
		numReactors: numReactors,
		dispatch:    dispatch,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// Run pins the calling goroutine to an OS thread and runs the accept
// loop until Stop is called. Intended to be the body of a dedicated
// goroutine started with runtime.LockOSThread semantics.
func (a *Acceptor) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(a.done)

	if err := a.ring.PrepMultishotAccept(a.listenFD, uring.UserData(uring.KindAccept, a.listenFD)); err != nil {
		return fmt.Errorf("acceptor: arm multishot accept: %w", err)
	}
	if _, err := a.ring.Submit(); err != nil {
		return fmt.Errorf("acceptor: initial submit: %w", err)
	}

	batch := make([]uring.Completion, a.cfg.AcceptBatch)
	for {
		select {
		case <-a.stop:
			return nil
		default:
		}

		n, err := a.ring.SubmitAndWaitTimeout(1, a.cfg.WaitTimeout)
		if err != nil {
			// Kernel timeout is a no-op continue; other errors get logged
			// and the loop continues since multishot-accept is
			// self-sustaining.
			if a.cfg.Logger != nil {
				a.cfg.Logger.Debugf("acceptor: submit-and-wait: %v", err)
			}
			continue
		}
		if n == 0 {
			continue
		}

		count := a.ring.PeekBatchCompletions(batch)
		for i := 0; i < count; i++ {
			a.handleCompletion(batch[i])
		}
		a.ring.AdvanceCompletions(uint32(count))
	}
}

func (a *Acceptor) handleCompletion(c uring.Completion) {
	start := time.Now().UnixNano()
	if c.Res < 0 {
		if a.cfg.Logger != nil {
			a.cfg.Logger.Debugf("acceptor: accept completion error res=%d", c.Res)
		}
		if a.cfg.Observer != nil {
			a.cfg.Observer.ObserveAccept(uint64(time.Now().UnixNano()-start), false)
		}
		return
	}

	fd := int32(c.Res)
	setNoDelay(fd)

	idx := a.next
	a.next = (a.next + 1) % a.numReactors
	a.dispatch(idx, fd)

	if a.cfg.Observer != nil {
		a.cfg.Observer.ObserveAccept(uint64(time.Now().UnixNano()-start), true)
	}
}

// Stop signals the accept loop to exit and blocks until it has.
func (a *Acceptor) Stop() error {
	close(a.stop)
	<-a.done
	if err := a.ring.Close(); err != nil {
		return err
	}
	return unix.Close(int(a.listenFD))
}

func setNoDelay(fd int32) {
	_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}
