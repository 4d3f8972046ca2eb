// Package client implements the MJPEG ingestion client.
//
// This package is INTERNAL - consumers MUST use the public API in the
// parent mjpeg package. Reason: allows internal refactoring without
// breaking changes.
package client

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Default configuration values applied by normalize().
const (
	DefaultMaxBufferBytes = 2 << 20 // 2 MiB
	DefaultReconnectDelay = 3 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultChunkSize      = 4096
)

var (
	// ErrAlreadyStarted is returned by Start when the session is running.
	ErrAlreadyStarted = errors.New("mjpeg: session already started")

	// ErrInvalidEndpoint is returned when the endpoint URL is missing,
	// unparseable, or not an http(s) address.
	ErrInvalidEndpoint = errors.New("mjpeg: invalid endpoint")

	// ErrStreamClosed is returned by a chunk stream after Close.
	// It is classified as a cancellation, never as a transport failure.
	ErrStreamClosed = errors.New("mjpeg: stream closed")
)

// Frame is a single complete JPEG image extracted from the stream,
// inclusive of its SOI and EOI markers.
//
// IMMUTABILITY CONTRACT:
//   - The client never modifies Data after delivery
//   - Sinks MUST NOT modify Data (read-only access, shared by reference)
type Frame struct {
	// Data contains the raw JPEG bytes (SOI through EOI inclusive)
	Data []byte

	// Seq is a per-session monotonic sequence number, starting at 1
	Seq uint64

	// Timestamp is when the frame was extracted from the byte stream
	Timestamp time.Time
}

// Sink receives frames and connectivity transitions from a session.
//
// OnFrame is invoked from a dedicated delivery goroutine and may block
// without stalling the network receive path; a slow sink only causes
// superseded frames to be dropped. OnConnectivity is invoked from the
// receive path and should return promptly.
type Sink interface {
	// OnFrame delivers the newest complete frame.
	OnFrame(frame Frame)

	// OnConnectivity reports transitions between connected (bytes are
	// flowing) and disconnected (waiting to reconnect).
	OnConnectivity(connected bool)
}

// Config contains the tunable parameters of a stream session.
type Config struct {
	// URL is the MJPEG stream endpoint (required, http or https).
	// The body is expected to be an unbounded sequence of back-to-back
	// JPEG images with no multipart boundaries.
	URL string

	// MaxBufferBytes bounds the scan buffer. When exceeded without a
	// complete frame, the buffer is truncated to its last start marker
	// (default: 2 MiB).
	MaxBufferBytes int

	// ReconnectDelay is the fixed wait between reconnection attempts.
	// Deliberately non-exponential: the client is built for always-on
	// installations where the source may be gone for hours (default: 3s).
	ReconnectDelay time.Duration

	// ReadTimeout is the maximum silence between byte chunks before the
	// connection is treated as dead and recycled (default: 30s).
	ReadTimeout time.Duration

	// MaxReconnects caps consecutive failed reconnection attempts.
	// 0 means retry forever (default).
	MaxReconnects int

	// ChunkSize is the network read granularity (default: 4096).
	ChunkSize int

	// SkipValidation disables JPEG header validation of extracted
	// frames. Candidate ranges that fail validation are silently
	// discarded; disable only for trusted sources.
	SkipValidation bool
}

// normalize fills zero-valued fields with defaults. Called once at
// session construction, after Validate.
func (c *Config) normalize() {
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = DefaultMaxBufferBytes
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
}

// ValidateEndpoint checks that raw is a well-formed http(s) URL.
// Fail-fast: configuration errors are reported synchronously and never
// enter the retry loop.
func ValidateEndpoint(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: endpoint URL is required", ErrInvalidEndpoint)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return nil
}

// ConnState is the connection state of a session.
type ConnState int32

const (
	// StateIdle is the initial state and the terminal state of a
	// cleanly stopped session
	StateIdle ConnState = iota
	// StateConnecting means a connection attempt is in flight
	StateConnecting
	// StateStreaming means byte chunks are arriving
	StateStreaming
	// StateBackoff means the session is waiting out the fixed delay
	// before reconnecting
	StateBackoff
	// StateStopping is a transient state during a deliberate stop
	StateStopping
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of session counters.
type Stats struct {
	// State is the connection state at snapshot time
	State ConnState
	// Connected is true while byte chunks are flowing
	Connected bool
	// HasDelivered is true once at least one frame reached the sink.
	// Distinguishes "connected but no complete frame yet" from
	// "streaming" for status reporting.
	HasDelivered bool
	// FramesEmitted is the number of complete frames extracted
	FramesEmitted uint64
	// FramesDropped is the number of frames superseded before delivery
	FramesDropped uint64
	// FramesInvalid is the number of candidate ranges that failed JPEG
	// validation and were discarded
	FramesInvalid uint64
	// BytesRead is the total bytes received over all connections
	BytesRead uint64
	// Reconnects is the number of reconnection attempts
	Reconnects uint32
	// Truncations is the number of overflow recoveries in the scanner
	Truncations uint64
	// ErrorsNetwork counts transport failures (reset, refused, EOF)
	ErrorsNetwork uint64
	// ErrorsTimeout counts read-timeout recycles
	ErrorsTimeout uint64
	// ErrorsProtocol counts non-200 responses and similar
	ErrorsProtocol uint64
	// ErrorsUnknown counts unclassified failures
	ErrorsUnknown uint64
	// LastFrameAt is the extraction time of the newest frame
	LastFrameAt time.Time
	// LastError describes the most recent recoverable failure
	LastError string
	// TraceID identifies this session across logs and telemetry
	TraceID string
	// URL is the current endpoint
	URL string
}
