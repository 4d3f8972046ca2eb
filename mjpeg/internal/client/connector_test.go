package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestHTTPConnectorStreamsBody serves a raw concatenated body and
// validates the connector delivers every byte through Next.
func TestHTTPConnectorStreamsBody(t *testing.T) {
	payload := append(rawFrame(0x01), rawFrame(0x02)...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
	defer srv.Close()

	c := NewHTTPConnector(DefaultChunkSize, 5*time.Second)
	stream, err := c.Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	var got []byte
	for {
		chunk, err := stream.Next()
		if err != nil {
			break
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("received %x, want %x", got, payload)
	}
}

// TestHTTPConnectorFlushedChunksArriveIncrementally validates the
// connector does not wait for the body to end: a flushed write is
// readable while the handler is still holding the connection open.
func TestHTTPConnectorFlushedChunksArriveIncrementally(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(rawFrame(0x01))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewHTTPConnector(DefaultChunkSize, 5*time.Second)
	stream, err := c.Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	done := make(chan []byte, 1)
	go func() {
		chunk, err := stream.Next()
		if err != nil {
			done <- nil
			return
		}
		done <- chunk
	}()

	select {
	case chunk := <-done:
		if !bytes.Equal(chunk, rawFrame(0x01)) {
			t.Errorf("chunk = %x, want %x", chunk, rawFrame(0x01))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("flushed chunk not delivered while stream stayed open")
	}
}

// TestHTTPConnectorRejectsNon200 validates a non-OK status is a
// protocol error surfaced from Open, with the body closed.
func TestHTTPConnectorRejectsNon200(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusUnauthorized} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		c := NewHTTPConnector(DefaultChunkSize, 5*time.Second)
		_, err := c.Open(context.Background(), srv.URL)
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: Open succeeded, want error", code)
		}
		if !errors.Is(err, errProtocol) {
			t.Errorf("status %d: error %v not classified as protocol", code, err)
		}
		if got := ClassifyStreamError(err); got != ErrCategoryProtocol {
			t.Errorf("status %d: category = %v, want %v", code, got, ErrCategoryProtocol)
		}
	}
}

// TestHTTPConnectorOpenRespectsContext validates cancellation aborts
// the dial.
func TestHTTPConnectorOpenRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewHTTPConnector(DefaultChunkSize, 5*time.Second)
	if _, err := c.Open(ctx, srv.URL); err == nil {
		t.Fatal("Open succeeded with a cancelled context")
	}
}

// TestHTTPStreamCloseSuppressesNext validates that after Close, Next
// reports the closed sentinel even if the server keeps sending.
func TestHTTPStreamCloseSuppressesNext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(rawFrame(0x01))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewHTTPConnector(DefaultChunkSize, 5*time.Second)
	stream, err := c.Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := stream.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := stream.Next(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Next after Close = %v, want ErrStreamClosed", err)
	}
}

// TestHTTPConnectorConnectionRefused classifies a dial to a dead port.
func TestHTTPConnectorConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // port now refuses connections

	c := NewHTTPConnector(DefaultChunkSize, 2*time.Second)
	_, err := c.Open(context.Background(), url)
	if err == nil {
		t.Fatal("Open succeeded against a closed server")
	}
	if got := ClassifyStreamError(err); got != ErrCategoryNetwork {
		t.Errorf("category = %v, want %v", got, ErrCategoryNetwork)
	}
}
