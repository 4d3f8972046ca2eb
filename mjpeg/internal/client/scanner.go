package client

import (
	"bytes"
	"image/jpeg"
	"log/slog"
	"sync/atomic"
)

// JPEG frame boundary markers. These byte pairs are the sole framing
// signal in the raw concatenated stream.
var (
	soiMarker = []byte{0xFF, 0xD8} // start of image
	eoiMarker = []byte{0xFF, 0xD9} // end of image
)

// Scanner extracts complete JPEG frames from an unframed byte stream.
//
// Algorithm:
//  1. Append incoming bytes to the scan buffer
//  2. Search from the buffer head for the SOI marker
//  3. Search forward from just past it for the EOI marker
//  4. If both found, the enclosed range (markers inclusive) is a
//     candidate frame; bytes up to and including the EOI are consumed,
//     which also discards any garbage preceding the SOI
//  5. Repeat until no further complete frame is found
//
// A partial frame (SOI without EOI) is retained across Feed calls, so
// marker pairs split across arbitrary chunk boundaries reassemble
// correctly. Multiple SOI markers before the first EOI are resolved in
// favor of the earliest one: the buffer is always re-scanned from its
// head.
//
// Overflow policy: if the buffer still exceeds maxBytes after a scan
// pass, it is truncated to its last SOI marker, or cleared when none
// exists (or when even the tail from the last SOI exceeds the bound).
// This keeps memory bounded under a stream that never produces valid
// markers.
//
// Not safe for concurrent use: a Scanner is exclusively owned by the
// receive goroutine of one session.
type Scanner struct {
	buf      []byte
	maxBytes int
	validate bool

	// recovery counters; atomic because Stats snapshots read them
	// from outside the receive goroutine
	truncations atomic.Uint64
	invalid     atomic.Uint64
}

// NewScanner creates a scanner with the given buffer bound.
// When validate is true, candidate ranges that fail JPEG header
// parsing are discarded instead of emitted.
func NewScanner(maxBytes int, validate bool) *Scanner {
	return &Scanner{
		buf:      make([]byte, 0, DefaultChunkSize),
		maxBytes: maxBytes,
		validate: validate,
	}
}

// Feed appends chunk to the scan buffer and returns zero or more
// complete frames, each an independent copy inclusive of both markers,
// in stream order.
func (s *Scanner) Feed(chunk []byte) [][]byte {
	s.buf = append(s.buf, chunk...)

	var frames [][]byte
	for {
		frame, consumed := s.extract()
		if !consumed {
			break
		}
		if frame != nil {
			frames = append(frames, frame)
		}
		// frame == nil with consumed == true means an invalid
		// candidate was dropped; keep scanning the remainder.
	}

	s.enforceBound()
	return frames
}

// extract attempts to cut one complete frame from the buffer head.
// Returns (frame, true) on success, (nil, true) when a candidate was
// consumed but failed validation, and (nil, false) when the buffer
// holds no complete marker pair.
func (s *Scanner) extract() ([]byte, bool) {
	start := bytes.Index(s.buf, soiMarker)
	if start < 0 {
		return nil, false
	}

	rel := bytes.Index(s.buf[start+2:], eoiMarker)
	if rel < 0 {
		// Start marker but no end marker yet: retain and await data.
		return nil, false
	}
	end := start + 2 + rel + 2 // exclusive, past the EOI

	frame := make([]byte, end-start)
	copy(frame, s.buf[start:end])

	// Consume everything through the EOI, including any garbage that
	// preceded the start marker.
	rest := copy(s.buf, s.buf[end:])
	s.buf = s.buf[:rest]

	if s.validate {
		if _, err := jpeg.DecodeConfig(bytes.NewReader(frame)); err != nil {
			s.invalid.Add(1)
			slog.Debug("mjpeg: discarding invalid frame candidate",
				"size", len(frame),
				"error", err,
			)
			return nil, true
		}
	}
	return frame, true
}

// enforceBound applies the overflow policy after a scan pass.
func (s *Scanner) enforceBound() {
	if s.maxBytes <= 0 || len(s.buf) <= s.maxBytes {
		return
	}
	s.truncations.Add(1)

	last := bytes.LastIndex(s.buf, soiMarker)
	if last < 0 || len(s.buf)-last > s.maxBytes {
		// No start marker, or a single partial frame that already
		// exceeds the bound on its own: nothing recoverable.
		slog.Warn("mjpeg: scan buffer overflow, clearing",
			"buffered", len(s.buf),
			"max", s.maxBytes,
		)
		s.buf = s.buf[:0]
		return
	}

	rest := copy(s.buf, s.buf[last:])
	s.buf = s.buf[:rest]
	slog.Warn("mjpeg: scan buffer overflow, truncated to last start marker",
		"retained", rest,
		"max", s.maxBytes,
	)
}

// Reset clears all buffered bytes. Called on every (re)connect so no
// data from a previous connection can leak into the next one.
func (s *Scanner) Reset() {
	s.buf = s.buf[:0]
}

// Buffered returns the number of not-yet-consumed bytes.
func (s *Scanner) Buffered() int { return len(s.buf) }

// Truncations returns the number of overflow recoveries.
func (s *Scanner) Truncations() uint64 { return s.truncations.Load() }

// Invalid returns the number of discarded invalid candidates.
func (s *Scanner) Invalid() uint64 { return s.invalid.Load() }
