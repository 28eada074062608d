package ringtcp

import "github.com/ringtcp/ringtcp/internal/constants"

// Re-export constants for public API
const (
	DefaultRingEntries         = constants.DefaultRingEntries
	DefaultBufferRingEntries   = constants.DefaultBufferRingEntries
	DefaultReceiveBufferSize   = constants.DefaultReceiveBufferSize
	DefaultWriteSlabSize       = constants.DefaultWriteSlabSize
	DefaultInboundRingCapacity = constants.DefaultInboundRingCapacity
	DefaultCompletionBatch     = constants.DefaultCompletionBatch
	DefaultMaxConnections      = constants.DefaultMaxConnections
	DefaultAcceptBacklog       = constants.DefaultAcceptBacklog
	DefaultAcceptBatch         = constants.DefaultAcceptBatch
)
