package ringtcp

import (
	"runtime"
	"time"

	"github.com/ringtcp/ringtcp/internal/acceptor"
	"github.com/ringtcp/ringtcp/internal/constants"
	"github.com/ringtcp/ringtcp/internal/reactor"
	"github.com/ringtcp/ringtcp/internal/uring"
)

// RingConfig describes the kernel ring setup flags shared by the
// acceptor and every reactor: single-submitter, deferred task-run,
// kernel-side polled submission with an optional pinned CPU and idle
// timeout, and queue sizing.
type RingConfig struct {
	Entries      uint32        // submission queue entries
	CQSize       uint32        // completion queue entries (0 = kernel default, 2x Entries)
	SingleIssuer bool          // IORING_SETUP_SINGLE_ISSUER
	DeferTaskrun bool          // IORING_SETUP_DEFER_TASKRUN
	SQPoll       bool          // IORING_SETUP_SQPOLL
	SQPollCPU    int           // CPU to pin the kernel poll thread to, when SQPoll is set
	SQPollIdle   time.Duration // kernel poll thread idle timeout before it sleeps
}

func (c RingConfig) toInternal() uring.Config {
	return uring.Config{
		Entries:      c.Entries,
		CQSize:       c.CQSize,
		SingleIssuer: c.SingleIssuer,
		DeferTaskrun: c.DeferTaskrun,
		SQPoll:       c.SQPoll,
		SQPollCPU:    c.SQPollCPU,
		SQPollIdle:   c.SQPollIdle,
	}
}

// DefaultRingConfig returns a RingConfig suitable for most deployments:
// single-issuer and deferred task-run enabled, kernel polling off.
func DefaultRingConfig() RingConfig {
	return RingConfig{
		Entries:      constants.DefaultRingEntries,
		SingleIssuer: true,
		DeferTaskrun: true,
	}
}

// ReactorConfig configures one reactor thread.
type ReactorConfig struct {
	Ring               RingConfig
	ReceiveBufferSize  int           // bytes per buffer-ring entry
	BufferRingEntries  int           // power of two
	CompletionBatch    int           // completions peeked per loop iteration
	MaxConnections     int           // connection table/pool sizing hint
	WaitTimeout        time.Duration // submit-and-wait timeout
	IncrementalConsume bool          // tri-state refcount protocol for partial buffer fills
	CPUAffinity        int           // OS thread pin, -1 disables
}

// DefaultReactorConfig returns nominal reactor settings.
func DefaultReactorConfig() ReactorConfig {
	return ReactorConfig{
		Ring:               DefaultRingConfig(),
		ReceiveBufferSize:  constants.DefaultReceiveBufferSize,
		BufferRingEntries:  constants.DefaultBufferRingEntries,
		CompletionBatch:    constants.DefaultCompletionBatch,
		MaxConnections:     constants.DefaultMaxConnections,
		WaitTimeout:        constants.ReactorWaitTimeout,
		IncrementalConsume: false,
		CPUAffinity:        -1,
	}
}

func (c ReactorConfig) toInternal(logger Logger, observer Observer) reactor.Config {
	return reactor.Config{
		RingFlags:          c.Ring.toInternal(),
		ReceiveBufferSize:  c.ReceiveBufferSize,
		BufferRingEntries:  c.BufferRingEntries,
		CompletionBatch:    c.CompletionBatch,
		MaxConnections:     c.MaxConnections,
		WaitTimeout:        c.WaitTimeout,
		IncrementalConsume: c.IncrementalConsume,
		CPUAffinity:        c.CPUAffinity,
		Logger:             logger,
		Observer:           observer,
	}
}

// AcceptorConfig configures the acceptor thread.
type AcceptorConfig struct {
	Ring        RingConfig
	Backlog     int
	IPv6Only    bool
	AcceptBatch int
	WaitTimeout time.Duration
}

// DefaultAcceptorConfig returns nominal acceptor settings.
func DefaultAcceptorConfig() AcceptorConfig {
	return AcceptorConfig{
		Ring:        DefaultRingConfig(),
		Backlog:     constants.DefaultAcceptBacklog,
		AcceptBatch: constants.DefaultAcceptBatch,
		WaitTimeout: constants.AcceptorWaitTimeout,
	}
}

func (c AcceptorConfig) toInternal(bindAddress string, port uint16, logger Logger, observer Observer) acceptor.Config {
	return acceptor.Config{
		BindAddress: bindAddress,
		Port:        port,
		Backlog:     c.Backlog,
		IPv6Only:    c.IPv6Only,
		RingFlags:   c.Ring.toInternal(),
		WaitTimeout: c.WaitTimeout,
		AcceptBatch: c.AcceptBatch,
		Logger:      logger,
		Observer:    observer,
	}
}

// EngineConfig is the top-level construction parameter for Engine.
type EngineConfig struct {
	BindAddress string // empty binds IPv4 INADDR_ANY
	Port        uint16

	// ReactorCount is the size of the reactor pool. Zero auto-detects
	// runtime.NumCPU().
	ReactorCount int

	Acceptor AcceptorConfig

	// ReactorConfigs holds one config per reactor. If shorter than
	// ReactorCount, missing entries are filled with DefaultReactorConfig.
	ReactorConfigs []ReactorConfig
}

// DefaultEngineConfig returns an EngineConfig bound to bindAddress:port
// with an auto-sized reactor pool and nominal acceptor/reactor settings.
func DefaultEngineConfig(bindAddress string, port uint16) EngineConfig {
	return EngineConfig{
		BindAddress:  bindAddress,
		Port:         port,
		ReactorCount: constants.AutoDetectReactors,
		Acceptor:     DefaultAcceptorConfig(),
	}
}

func (c EngineConfig) reactorCount() int {
	if c.ReactorCount > 0 {
		return c.ReactorCount
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

func (c EngineConfig) reactorConfig(i int) ReactorConfig {
	if i < len(c.ReactorConfigs) {
		return c.ReactorConfigs[i]
	}
	return DefaultReactorConfig()
}
