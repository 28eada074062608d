package constants

import "time"

// Default ring and buffer sizing.
const (
	// DefaultRingEntries is the default submission/completion queue depth
	// for both the acceptor's and each reactor's kernel ring.
	DefaultRingEntries = 4096

	// DefaultBufferRingEntries is the default number of entries in a
	// reactor's provided-buffer ring. Must be a power of two.
	DefaultBufferRingEntries = 4096

	// DefaultReceiveBufferSize is the default per-entry size of a
	// reactor's buffer-ring slab, in bytes.
	DefaultReceiveBufferSize = 4096

	// DefaultWriteSlabSize is the default per-connection outbound slab
	// size, in bytes.
	DefaultWriteSlabSize = 16 << 10

	// DefaultInboundRingCapacity is the default per-connection SPSC
	// inbound ring capacity, in RingItem slots.
	DefaultInboundRingCapacity = 1024

	// DefaultCompletionBatch is the default number of completions peeked
	// per reactor loop iteration.
	DefaultCompletionBatch = 4096

	// DefaultMaxConnections is the default per-reactor connection table
	// and pool sizing hint.
	DefaultMaxConnections = 65536

	// DefaultAcceptBacklog is the default listen(2) backlog.
	DefaultAcceptBacklog = 1024

	// DefaultAcceptBatch is the default number of accept completions
	// peeked per acceptor loop iteration.
	DefaultAcceptBatch = 256

	// AutoDetectReactors indicates the engine should size its reactor
	// pool to runtime.NumCPU().
	AutoDetectReactors = 0
)

// Timing constants for the acceptor and reactor wait loops.
const (
	// AcceptorWaitTimeout is the acceptor's submit-and-wait timeout.
	// Accept bursts are comparatively infrequent, so a coarser timeout
	// than the reactor's keeps the idle acceptor off the CPU.
	AcceptorWaitTimeout = 100 * time.Millisecond

	// ReactorWaitTimeout is a reactor's submit-and-wait timeout. Shorter
	// than the acceptor's: a reactor's queue-drain steps (new
	// descriptors, buffer returns, flush requests) need to run often
	// even when no completions are pending.
	ReactorWaitTimeout = 10 * time.Millisecond

	// ShutdownDrainGrace is how long a stopping reactor keeps servicing
	// completions for connections with a send in flight before its Run
	// returns and Stop tears down the reactor's ring.
	ShutdownDrainGrace = 50 * time.Millisecond
)
