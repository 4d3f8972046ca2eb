// Package httpapi exposes the daemon's diagnostics surface: liveness,
// stream status, and the most recent frame as a still image.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/haltyt/visionpal/mjpeg"
)

// StatsProvider supplies point-in-time client statistics.
type StatsProvider interface {
	Stats() mjpeg.Stats
}

// StatusResponse is the JSON document served by /status.
type StatusResponse struct {
	Status        string `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64  `json:"uptime_seconds"`
	Stream        struct {
		State         string `json:"state"`
		Connected     bool   `json:"connected"`
		URL           string `json:"url"`
		FramesEmitted uint64 `json:"frames_emitted"`
		FramesDropped uint64 `json:"frames_dropped"`
		FramesInvalid uint64 `json:"frames_invalid"`
		BytesRead     uint64 `json:"bytes_read"`
		Reconnects    uint32 `json:"reconnects"`
		LastFrameAt   string `json:"last_frame_at,omitempty"`
		LastError     string `json:"last_error,omitempty"`
		TraceID       string `json:"trace_id"`
	} `json:"stream"`
}

// Server is the diagnostics HTTP server. It doubles as a frame sink so
// /snap can serve the newest image without touching the primary
// delivery path.
type Server struct {
	started     time.Time
	srv         *http.Server
	snapshotURL string // optional fallback for /snap before any frame arrives

	mu        sync.RWMutex
	stats     StatsProvider
	latest    []byte
	latestAt  time.Time
	latestSeq uint64
}

// NewServer creates the diagnostics server bound to addr. Attach the
// client with SetStats before Start; construction is split because the
// client in turn consumes this server's Sink.
func NewServer(addr string) *Server {
	s := &Server{
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.livenessHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/snap", s.snapHandler)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// SetSnapshotURL configures the optional still-capture endpoint /snap
// falls back to before the stream delivers its first frame.
func (s *Server) SetSnapshotURL(url string) {
	s.snapshotURL = url
}

// SetStats attaches the statistics source backing /status.
func (s *Server) SetStats(p StatsProvider) {
	s.mu.Lock()
	s.stats = p
	s.mu.Unlock()
}

// Sink returns the frame sink feeding /snap. Wire it into the client
// with MultiSink alongside the primary consumer.
func (s *Server) Sink() mjpeg.Sink {
	return mjpeg.SinkFuncs{
		Frame: func(f mjpeg.Frame) {
			s.mu.Lock()
			s.latest = f.Data
			s.latestAt = f.Timestamp
			s.latestSeq = f.Seq
			s.mu.Unlock()
		},
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	slog.Info("starting diagnostics server",
		"addr", s.srv.Addr,
		"endpoints", []string{"/health", "/status", "/snap"},
	)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("diagnostics server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// livenessHandler handles /health (simple liveness check)
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

// statusHandler handles /status: the full client snapshot plus an
// overall health verdict.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	provider := s.stats
	s.mu.RUnlock()

	if provider == nil {
		http.Error(w, "status source not attached", http.StatusServiceUnavailable)
		return
	}
	st := provider.Stats()

	var resp StatusResponse
	resp.UptimeSeconds = int64(time.Since(s.started).Seconds())
	resp.Stream.State = st.State.String()
	resp.Stream.Connected = st.Connected
	resp.Stream.URL = st.URL
	resp.Stream.FramesEmitted = st.FramesEmitted
	resp.Stream.FramesDropped = st.FramesDropped
	resp.Stream.FramesInvalid = st.FramesInvalid
	resp.Stream.BytesRead = st.BytesRead
	resp.Stream.Reconnects = st.Reconnects
	resp.Stream.LastError = st.LastError
	resp.Stream.TraceID = st.TraceID
	if !st.LastFrameAt.IsZero() {
		resp.Stream.LastFrameAt = st.LastFrameAt.Format(time.RFC3339Nano)
	}

	switch {
	case st.Connected && st.HasDelivered:
		resp.Status = "healthy"
	case st.State == mjpeg.StateIdle:
		resp.Status = "unhealthy"
	default:
		// Connecting, backing off, or connected without a complete
		// frame yet.
		resp.Status = "degraded"
	}

	statusCode := http.StatusOK
	if resp.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// snapHandler handles /snap: the newest complete frame as a plain JPEG.
func (s *Server) snapHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	frame := s.latest
	at := s.latestAt
	seq := s.latestSeq
	s.mu.RUnlock()

	if frame == nil {
		if s.snapshotURL == "" {
			http.Error(w, "no frame received yet", http.StatusServiceUnavailable)
			return
		}
		// Nothing from the stream yet: ask the camera directly.
		data, err := mjpeg.Snapshot(r.Context(), s.snapshotURL, 4*time.Second)
		if err != nil {
			slog.Warn("snapshot fallback failed", "url", s.snapshotURL, "error", err)
			http.Error(w, "no frame received yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	w.Header().Set("X-Frame-Time", at.Format(time.RFC3339Nano))
	w.WriteHeader(http.StatusOK)
	w.Write(frame)
}
