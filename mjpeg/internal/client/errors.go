package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// errProtocol marks failures of the HTTP exchange itself (bad status,
// malformed response) as opposed to transport-level breakage. Both are
// recoverable; the distinction exists for telemetry.
var errProtocol = errors.New("protocol error")

// errReadTimeout marks a connection recycled by the inter-chunk
// watchdog. Routed through the same backoff path as any transport
// error.
var errReadTimeout = errors.New("read timeout")

// ErrorCategory classifies stream failures for telemetry.
//
// Distinguishing categories in production matters: network failures
// are expected and reconnection helps, protocol failures usually mean
// a misconfigured endpoint, and cancellations are not failures at all.
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates transport failures (reset, refused,
	// DNS, unexpected EOF)
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryTimeout indicates the inter-chunk watchdog fired
	ErrCategoryTimeout
	// ErrCategoryProtocol indicates HTTP-level failures (non-200 status)
	ErrCategoryProtocol
	// ErrCategoryCanceled indicates a deliberate stop or switch; never
	// reported as an error and never retried
	ErrCategoryCanceled
	// ErrCategoryUnknown indicates unclassified failures
	ErrCategoryUnknown
)

// String returns a human-readable category name.
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryProtocol:
		return "protocol"
	case ErrCategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ClassifyStreamError categorizes a failure from the connect/read path.
//
// Typed errors are preferred; string heuristics are the fallback for
// transport errors that surface without a distinguishable type.
func ClassifyStreamError(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryUnknown
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrStreamClosed):
		return ErrCategoryCanceled
	case errors.Is(err, errReadTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrCategoryTimeout
	case errors.Is(err, errProtocol):
		return ErrCategoryProtocol
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// The server closed an indefinite stream: transport failure.
		return ErrCategoryNetwork
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return ErrCategoryNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrCategoryTimeout
		}
		return ErrCategoryNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrCategoryNetwork
	}

	return classifyByMessage(err.Error())
}

// classifyByMessage applies keyword heuristics to the error text.
func classifyByMessage(msg string) ErrorCategory {
	msg = strings.ToLower(msg)

	timeoutKeywords := []string{"timeout", "deadline"}
	for _, kw := range timeoutKeywords {
		if strings.Contains(msg, kw) {
			return ErrCategoryTimeout
		}
	}

	networkKeywords := []string{
		"connection",
		"unreachable",
		"network",
		"dns",
		"resolve",
		"socket",
		"tcp",
		"broken pipe",
		"could not connect",
		"failed to connect",
	}
	for _, kw := range networkKeywords {
		if strings.Contains(msg, kw) {
			return ErrCategoryNetwork
		}
	}

	return ErrCategoryUnknown
}
