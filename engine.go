// Package ringtcp is the public façade of a high-throughput TCP server
// engine built on Linux io_uring: an acceptor thread, a pool of reactor
// threads, and per-connection async read/write state machines.
package ringtcp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ringtcp/ringtcp/internal/acceptor"
	"github.com/ringtcp/ringtcp/internal/conn"
	"github.com/ringtcp/ringtcp/internal/reactor"
)

// Connection is the public alias of the internal connection type: the
// rendezvous between a reactor and a handler goroutine. See its method
// docs for read_async/write/flush_async/etc semantics.
type Connection = conn.Connection

// RingItem is the public alias of a received chunk descriptor, as
// delivered by Connection.TryGetRing.
type RingItem = conn.RingItem

// ReadSnapshot is the public alias of a read_async result.
type ReadSnapshot = conn.ReadSnapshot

// FlushResult is the public alias of a flush_async result.
type FlushResult = conn.FlushResult

// Options carries cross-cutting collaborators for Engine construction.
type Options struct {
	// Logger receives diagnostic messages. Defaults to NoOpLogger.
	Logger Logger
	// Observer receives per-event metrics callbacks. Defaults to a
	// MetricsObserver backed by a fresh Metrics instance.
	Observer Observer
}

// Engine owns one acceptor thread and a pool of reactor threads.
type Engine struct {
	cfg      EngineConfig
	logger   Logger
	observer Observer
	metrics  *Metrics

	acceptorImpl *acceptor.Acceptor
	reactors     []*reactor.Reactor

	accepted chan *Connection
	running  atomic.Bool

	wg sync.WaitGroup
}

// New constructs an Engine: binds the listening socket and creates every
// reactor's kernel ring and buffer-ring slab. Nothing is started yet.
func New(cfg EngineConfig, opts *Options) (*Engine, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = NoOpLogger{}
	}
	metrics := NewMetrics()
	observer := opts.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		observer: observer,
		metrics:  metrics,
		accepted: make(chan *Connection, constructAcceptChanSize(cfg)),
	}

	numReactors := cfg.reactorCount()
	e.reactors = make([]*reactor.Reactor, numReactors)
	for i := 0; i < numReactors; i++ {
		rcfg := cfg.reactorConfig(i).toInternal(logger, observer)
		r, err := reactor.New(i, rcfg, e.publishConnection)
		if err != nil {
			e.closeReactors(i)
			return nil, fmt.Errorf("ringtcp: create reactor %d: %w", i, err)
		}
		e.reactors[i] = r
	}

	acc, err := acceptor.New(cfg.Acceptor.toInternal(cfg.BindAddress, cfg.Port, logger, observer), numReactors, e.dispatch)
	if err != nil {
		e.closeReactors(numReactors)
		return nil, fmt.Errorf("ringtcp: create acceptor: %w", err)
	}
	e.acceptorImpl = acc

	return e, nil
}

func constructAcceptChanSize(cfg EngineConfig) int {
	n := cfg.Acceptor.AcceptBatch
	if n <= 0 {
		n = 256
	}
	return n * 4
}

func (e *Engine) closeReactors(n int) {
	for i := 0; i < n; i++ {
		if e.reactors[i] != nil {
			e.reactors[i].Stop()
		}
	}
}

// dispatch is handed to the acceptor: it forwards an accepted descriptor
// to the chosen reactor's inbound queue. Safe to call from the acceptor
// thread only.
func (e *Engine) dispatch(reactorIndex int, fd int32) {
	e.reactors[reactorIndex].Dispatch(fd)
}

// publishConnection is handed to every reactor: it forwards a newly
// bound Connection to the engine's accept channel. Safe to call from
// any reactor thread. The channel holds four times the accept batch
// size; once it is full, the calling reactor blocks until an AcceptAsync
// caller takes a Connection. Once the engine is no longer running, the
// Connection is not published.
func (e *Engine) publishConnection(c *Connection) {
	if !e.running.Load() {
		return
	}
	// Blocks a reactor if AcceptAsync callers fall far behind, rather
	// than dropping a Connection and leaking its descriptor forever.
	e.accepted <- c
}

// Start launches the acceptor and reactor threads. Non-blocking: each
// thread runs its event loop on a dedicated goroutine pinned to an OS
// thread.
func (e *Engine) Start() error {
	e.running.Store(true)

	for _, r := range e.reactors {
		r := r
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := r.Run(); err != nil {
				e.logger.Printf("ringtcp: reactor %d exited: %v", r.ID(), err)
			}
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.acceptorImpl.Run(); err != nil {
			e.logger.Printf("ringtcp: acceptor exited: %v", err)
		}
	}()

	return nil
}

// AcceptAsync returns the next accepted Connection, or nil if ctx is
// cancelled first or the engine has been stopped.
func (e *Engine) AcceptAsync(ctx context.Context) (*Connection, error) {
	select {
	case c, ok := <-e.accepted:
		if !ok {
			return nil, nil
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Metrics returns the engine's built-in metrics instance. Populated only
// when Options.Observer was left nil at construction (in which case a
// MetricsObserver was installed automatically).
func (e *Engine) Metrics() *Metrics { return e.metrics }

// MetricsSnapshot returns a point-in-time snapshot of engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot { return e.metrics.Snapshot() }

// IsRunning reports whether Start has been called and Stop has not.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// Stop performs an orderly shutdown: the acceptor closes its listener
// and destroys its ring; each reactor closes its remaining connections,
// frees its buffer ring, and destroys its ring. Pending AcceptAsync
// callers observe the accept channel close.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}

	var firstErr error
	if err := e.acceptorImpl.Stop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("ringtcp: stop acceptor: %w", err)
	}
	for _, r := range e.reactors {
		if err := r.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("ringtcp: stop reactor %d: %w", r.ID(), err)
		}
	}

	e.wg.Wait()
	close(e.accepted)
	e.metrics.Stop()

	return firstErr
}
