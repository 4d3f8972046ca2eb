package mjpeg

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/haltyt/visionpal/mjpeg/internal/client"
)

// snapshotLimit bounds how much of a response Snapshot will read,
// guarding against a stream endpoint being passed by mistake.
const snapshotLimit = 8 << 20 // 8 MiB

// Snapshot fetches a single JPEG image from a still-capture endpoint
// (the one-shot twin of the stream client, e.g. a camera's /snap
// route). The returned bytes are a validated, complete JPEG.
//
// Unlike the stream client there is no retry: a snapshot either
// succeeds within timeout or fails.
func Snapshot(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if err := client.ValidateEndpoint(url); err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("mjpeg: build snapshot request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mjpeg: snapshot %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mjpeg: snapshot %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, snapshotLimit+1))
	if err != nil {
		return nil, fmt.Errorf("mjpeg: read snapshot body: %w", err)
	}
	if len(data) > snapshotLimit {
		return nil, fmt.Errorf("mjpeg: snapshot exceeds %d bytes", snapshotLimit)
	}

	if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("mjpeg: snapshot is not a valid JPEG: %w", err)
	}
	return data, nil
}
