package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// ChunkStream delivers raw body chunks from one open connection.
//
// Next blocks until data arrives, then returns a chunk valid only
// until the following Next call. Close is idempotent and guarantees
// no further chunks are observed after it returns: data already in
// flight at the transport layer is dropped, not buffered.
type ChunkStream interface {
	Next() ([]byte, error)
	Close() error
}

// Dialer opens a chunk stream to an endpoint. Sessions depend on this
// interface rather than on HTTP directly so tests can inject scripted
// sources.
type Dialer interface {
	Open(ctx context.Context, endpoint string) (ChunkStream, error)
}

// HTTPConnector dials MJPEG endpoints over plain HTTP(S) GET. The
// response body is an unbounded chunked stream; no content length is
// assumed and chunk boundaries carry no meaning.
type HTTPConnector struct {
	client    *http.Client
	chunkSize int
}

// NewHTTPConnector creates a connector reading in chunkSize steps.
// connectTimeout bounds dialing and response headers only; the body
// read is unbounded by design and watched by the session instead.
func NewHTTPConnector(chunkSize int, connectTimeout time.Duration) *HTTPConnector {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = connectTimeout
	return &HTTPConnector{
		// No Client.Timeout: it would cut the indefinite body short.
		client:    &http.Client{Transport: transport},
		chunkSize: chunkSize,
	}
}

// Open issues the GET request and verifies the response is streamable.
// Cancelling ctx aborts both the dial and all subsequent body reads,
// releasing the underlying socket promptly.
func (c *HTTPConnector) Open(ctx context.Context, endpoint string) (ChunkStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("mjpeg: build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mjpeg: connect %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("mjpeg: unexpected status %s from %s: %w",
			resp.Status, endpoint, errProtocol)
	}

	return &httpStream{
		body: resp.Body,
		buf:  make([]byte, c.chunkSize),
	}, nil
}

// httpStream adapts an HTTP response body to the ChunkStream contract.
type httpStream struct {
	body    io.ReadCloser
	buf     []byte
	pending error // read error held back behind a non-empty chunk
	closed  atomic.Bool
}

// Next reads one chunk from the body. When a read returns both data
// and an error, the data is delivered first and the error on the
// following call, so no trailing bytes are lost.
func (s *httpStream) Next() ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStreamClosed
	}
	if s.pending != nil {
		return nil, s.pending
	}

	n, err := s.body.Read(s.buf)

	// Re-check after the blocking read: a concurrent Close must win
	// over data already in flight.
	if s.closed.Load() {
		return nil, ErrStreamClosed
	}
	if n > 0 {
		if err != nil {
			s.pending = err
		}
		return s.buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// Close tears the connection down. Idempotent.
func (s *httpStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.body.Close()
}
