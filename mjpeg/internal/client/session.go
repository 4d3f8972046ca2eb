package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session owns one logical stream: its connection, scan buffer, and
// current-frame slot. There is never more than one live connection per
// session, and no component outlives the session that created it.
//
// Goroutine topology:
//   - 1 receive goroutine (run): dials, reads chunks, feeds the
//     scanner; single writer for the scan buffer, so the buffer needs
//     no lock
//   - 1 delivery goroutine (owned by the Dispatcher): invokes the sink
//
// Event suppression: every delivery-facing path checks the live flag,
// and Stop flips it before waiting the goroutines out, so no event
// fires for this session after Stop returns even if bytes were in
// flight when it was called.
type Session struct {
	cfg    Config
	sink   Sink
	dialer Dialer

	// lifecycleMu serializes Start/Stop/Switch. Never taken by the
	// receive or delivery goroutines.
	lifecycleMu sync.Mutex
	started     bool
	baseCtx     context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	// mu guards the fields below against Stats readers.
	mu          sync.RWMutex
	url         string
	scanner     *Scanner
	dispatcher  *Dispatcher
	lastErr     error
	lastFrameAt time.Time

	state     atomic.Int32
	live      atomic.Bool
	connected atomic.Bool

	seq           atomic.Uint64
	bytesRead     atomic.Uint64
	framesEmitted atomic.Uint64
	reconnects    atomic.Uint32
	errNetwork    atomic.Uint64
	errTimeout    atomic.Uint64
	errProtocol   atomic.Uint64
	errUnknown    atomic.Uint64

	traceID string
}

// NewSession creates a session with fail-fast validation.
//
// The endpoint is validated at construction time; an invalid URL is
// reported synchronously and never enters the retry loop.
func NewSession(cfg Config, sink Sink, dialer Dialer) (*Session, error) {
	if sink == nil {
		return nil, fmt.Errorf("mjpeg: sink is required")
	}
	if dialer == nil {
		return nil, fmt.Errorf("mjpeg: dialer is required")
	}
	if err := ValidateEndpoint(cfg.URL); err != nil {
		return nil, err
	}
	cfg.normalize()

	s := &Session{
		cfg:     cfg,
		sink:    sink,
		dialer:  dialer,
		url:     cfg.URL,
		traceID: uuid.NewString(),
	}
	s.state.Store(int32(StateIdle))

	slog.Info("mjpeg: session created",
		"url", cfg.URL,
		"max_buffer_bytes", cfg.MaxBufferBytes,
		"reconnect_delay", cfg.ReconnectDelay,
		"read_timeout", cfg.ReadTimeout,
		"trace_id", s.traceID,
	)
	return s, nil
}

// Start launches the receive loop. Returns ErrAlreadyStarted if the
// session is running. The session stops when ctx is cancelled or
// Stop is called.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if s.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.baseCtx = ctx
	s.cancel = cancel
	s.started = true
	s.live.Store(true)

	scanner := NewScanner(s.cfg.MaxBufferBytes, !s.cfg.SkipValidation)
	dispatcher := NewDispatcher(s.sink)

	s.mu.Lock()
	s.scanner = scanner
	s.dispatcher = dispatcher
	url := s.url
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, url, scanner, dispatcher)

	return nil
}

// Stop shuts the session down. Synchronous for the purpose of event
// suppression: when Stop returns, the receive and delivery goroutines
// have exited and no frame or connectivity event will fire, even
// though socket teardown may still complete in the background.
// Idempotent.
func (s *Session) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	s.stopLocked()
	return nil
}

func (s *Session) stopLocked() {
	if !s.started {
		return
	}

	s.setState(StateStopping)
	s.live.Store(false)
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	dispatcher := s.dispatcher
	s.mu.Unlock()
	dispatcher.Stop()

	s.started = false
	s.cancel = nil
	s.connected.Store(false)
	s.setState(StateIdle)

	slog.Info("mjpeg: session stopped",
		"frames_emitted", s.framesEmitted.Load(),
		"bytes_read", s.bytesRead.Load(),
		"reconnects", s.reconnects.Load(),
		"trace_id", s.traceID,
	)
}

// Switch retargets the session to a new endpoint. The old connection
// is stopped and fully quiesced before the new one opens, so no byte
// chunk or frame from the old endpoint can reach the sink afterwards.
// A no-op when newURL equals the current endpoint.
func (s *Session) Switch(newURL string) error {
	if err := ValidateEndpoint(newURL); err != nil {
		return err
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.RLock()
	current := s.url
	s.mu.RUnlock()
	if newURL == current {
		return nil
	}

	if !s.started {
		s.mu.Lock()
		s.url = newURL
		s.mu.Unlock()
		return nil
	}

	slog.Info("mjpeg: switching endpoint",
		"from", current,
		"to", newURL,
		"trace_id", s.traceID,
	)

	baseCtx := s.baseCtx
	s.stopLocked()

	s.mu.Lock()
	s.url = newURL
	s.mu.Unlock()

	return s.startLocked(baseCtx)
}

// run is the receive loop: connect, stream, and on recoverable failure
// wait out the fixed delay and reconnect to the same endpoint. Exits
// on cancellation or when the optional retry cap is exhausted.
func (s *Session) run(ctx context.Context, url string, scanner *Scanner, dispatcher *Dispatcher) {
	defer s.wg.Done()

	failures := 0
	for {
		s.setState(StateConnecting)
		scanner.Reset()

		gotData, err := s.streamOnce(ctx, url, scanner, dispatcher)
		if gotData {
			// A connection that produced data resets the failure
			// streak, keeping the retry cap a cap on consecutive
			// dead attempts.
			failures = 0
		}

		category := ClassifyStreamError(err)
		if category == ErrCategoryCanceled || ctx.Err() != nil {
			// Deliberate stop or switch: not an error, no retry.
			return
		}

		s.recordError(err, category, url)
		s.setConnected(false)

		failures++
		if s.cfg.MaxReconnects > 0 && failures > s.cfg.MaxReconnects {
			slog.Error("mjpeg: giving up after consecutive failed attempts",
				"attempts", failures-1,
				"url", url,
				"trace_id", s.traceID,
			)
			s.setState(StateIdle)
			return
		}

		s.setState(StateBackoff)
		select {
		case <-time.After(s.cfg.ReconnectDelay):
		case <-ctx.Done():
			return
		}
		s.reconnects.Add(1)
		slog.Info("mjpeg: reconnecting",
			"url", url,
			"attempt", failures,
			"delay", s.cfg.ReconnectDelay,
			"trace_id", s.traceID,
		)
	}
}

// streamOnce opens one connection and pumps it until failure or
// cancellation. Reports whether any byte chunk arrived.
func (s *Session) streamOnce(ctx context.Context, url string, scanner *Scanner, dispatcher *Dispatcher) (bool, error) {
	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	stream, err := s.dialer.Open(connCtx, url)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	// Inter-chunk watchdog: a stream that goes silent for ReadTimeout
	// is recycled through the same backoff path as a hard failure.
	var timedOut atomic.Bool
	watchdog := time.AfterFunc(s.cfg.ReadTimeout, func() {
		timedOut.Store(true)
		cancelConn()
	})
	defer watchdog.Stop()

	gotData := false
	for {
		chunk, err := stream.Next()
		if err != nil {
			if timedOut.Load() {
				return gotData, fmt.Errorf("mjpeg: no data for %v: %w",
					s.cfg.ReadTimeout, errReadTimeout)
			}
			return gotData, err
		}
		if !s.live.Load() {
			return gotData, context.Canceled
		}
		if len(chunk) == 0 {
			continue
		}
		watchdog.Reset(s.cfg.ReadTimeout)

		if !gotData {
			gotData = true
			s.setState(StateStreaming)
			s.setConnected(true)
			slog.Info("mjpeg: streaming",
				"url", url,
				"trace_id", s.traceID,
			)
		}
		s.bytesRead.Add(uint64(len(chunk)))

		for _, data := range scanner.Feed(chunk) {
			if !s.live.Load() {
				return true, context.Canceled
			}
			now := time.Now()
			frame := Frame{
				Data:      data,
				Seq:       s.seq.Add(1),
				Timestamp: now,
			}
			s.framesEmitted.Add(1)
			s.mu.Lock()
			s.lastFrameAt = now
			s.mu.Unlock()

			dispatcher.Submit(frame)
		}
	}
}

// setConnected records the connectivity flag and notifies the sink on
// transitions, gated on liveness so a stopped session stays silent.
func (s *Session) setConnected(connected bool) {
	if s.connected.Swap(connected) == connected {
		return
	}
	if s.live.Load() {
		s.sink.OnConnectivity(connected)
	}
}

// recordError updates the per-category counters and the last-error
// diagnostic. Internal recoveries stay invisible to the caller except
// through these counters.
func (s *Session) recordError(err error, category ErrorCategory, url string) {
	switch category {
	case ErrCategoryNetwork:
		s.errNetwork.Add(1)
	case ErrCategoryTimeout:
		s.errTimeout.Add(1)
	case ErrCategoryProtocol:
		s.errProtocol.Add(1)
	default:
		s.errUnknown.Add(1)
	}

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	slog.Warn("mjpeg: stream error",
		"error", err,
		"category", category.String(),
		"url", url,
		"frames_emitted", s.framesEmitted.Load(),
		"trace_id", s.traceID,
	)
}

func (s *Session) setState(state ConnState) {
	old := ConnState(s.state.Swap(int32(state)))
	if old != state {
		slog.Debug("mjpeg: session state changed",
			"from", old.String(),
			"to", state.String(),
			"trace_id", s.traceID,
		)
	}
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	return ConnState(s.state.Load())
}

// LastError returns the most recent recoverable failure, or nil.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Stats returns a point-in-time snapshot of session counters.
// Safe for concurrent use; counters may advance after it returns.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		State:          s.State(),
		Connected:      s.connected.Load(),
		FramesEmitted:  s.framesEmitted.Load(),
		BytesRead:      s.bytesRead.Load(),
		Reconnects:     s.reconnects.Load(),
		ErrorsNetwork:  s.errNetwork.Load(),
		ErrorsTimeout:  s.errTimeout.Load(),
		ErrorsProtocol: s.errProtocol.Load(),
		ErrorsUnknown:  s.errUnknown.Load(),
		LastFrameAt:    s.lastFrameAt,
		TraceID:        s.traceID,
		URL:            s.url,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.dispatcher != nil {
		st.FramesDropped = s.dispatcher.Dropped()
		st.HasDelivered = s.dispatcher.HasDelivered()
	}
	if s.scanner != nil {
		st.FramesInvalid = s.scanner.Invalid()
		st.Truncations = s.scanner.Truncations()
	}
	return st
}
