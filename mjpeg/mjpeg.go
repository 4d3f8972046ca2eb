package mjpeg

import (
	"context"
	"time"

	"github.com/haltyt/visionpal/mjpeg/internal/client"
)

// Frame is re-exported from the internal package to avoid import
// cycles. See internal/client/types.go for the immutability contract.
type Frame = client.Frame

// Config is re-exported from the internal package. Zero-valued fields
// take documented defaults; only URL is required.
type Config = client.Config

// Sink is re-exported from the internal package. See ChanSink and
// SinkFuncs for adapters.
type Sink = client.Sink

// ConnState is the connection state of a client session.
type ConnState = client.ConnState

// Connection states. Idle is both the initial state and the terminal
// state of a cleanly stopped session.
const (
	StateIdle       = client.StateIdle
	StateConnecting = client.StateConnecting
	StateStreaming  = client.StateStreaming
	StateBackoff    = client.StateBackoff
	StateStopping   = client.StateStopping
)

// Stats is a point-in-time snapshot of client counters.
type Stats = client.Stats

// Sentinel errors re-exported for callers that branch on them.
var (
	ErrAlreadyStarted  = client.ErrAlreadyStarted
	ErrInvalidEndpoint = client.ErrInvalidEndpoint
)

// Client is the public interface of one stream session.
//
// Lifecycle: New() → Start() → (frames flow to the sink) → Stop().
// All methods are safe for concurrent use.
type Client interface {
	// Start begins connecting and streaming. Fails fast with
	// ErrAlreadyStarted on a running session. Cancelling ctx stops
	// the session as if Stop were called, minus the synchronous
	// suppression guarantee.
	Start(ctx context.Context) error

	// Stop shuts the session down. When Stop returns, no further
	// OnFrame or OnConnectivity call will be made. Idempotent.
	Stop() error

	// Switch retargets the session to a new endpoint, fully
	// quiescing the old connection first so the two endpoints'
	// bytes can never interleave. No-op for the current endpoint.
	Switch(url string) error

	// State returns the current connection state.
	State() ConnState

	// Stats returns a snapshot of session counters.
	Stats() Stats

	// LastError returns the most recent recoverable failure, or nil.
	// Diagnostics only: recoverable failures are retried, not
	// surfaced.
	LastError() error
}

// New creates a client for the configured endpoint, delivering frames
// and connectivity transitions to sink. Validates the endpoint
// synchronously.
func New(cfg Config, sink Sink) (Client, error) {
	dialer := client.NewHTTPConnector(coalesceChunk(cfg.ChunkSize), coalesceTimeout(cfg))
	return client.NewSession(cfg, sink, dialer)
}

func coalesceChunk(n int) int {
	if n <= 0 {
		return client.DefaultChunkSize
	}
	return n
}

func coalesceTimeout(cfg Config) time.Duration {
	if cfg.ReadTimeout > 0 {
		return cfg.ReadTimeout
	}
	return client.DefaultReadTimeout
}
