package emitter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/haltyt/visionpal/mjpeg"
)

func TestBuildStatus(t *testing.T) {
	stats := mjpeg.Stats{
		State:         mjpeg.StateStreaming,
		Connected:     true,
		URL:           "http://camera.local/stream",
		FramesEmitted: 120,
		FramesDropped: 3,
		BytesRead:     1 << 20,
		Reconnects:    2,
		LastError:     "read tcp: connection reset",
		TraceID:       "abc-123",
	}

	before := time.Now().UnixMilli()
	p := BuildStatus("cam-01", stats)
	after := time.Now().UnixMilli()

	if p.InstanceID != "cam-01" {
		t.Errorf("instance_id = %q", p.InstanceID)
	}
	if p.State != "streaming" {
		t.Errorf("state = %q, want streaming", p.State)
	}
	if !p.Connected {
		t.Error("connected = false")
	}
	if p.FramesEmitted != 120 || p.FramesDropped != 3 || p.Reconnects != 2 {
		t.Errorf("counters not carried over: %+v", p)
	}
	if p.TS < before || p.TS > after {
		t.Errorf("ts = %d outside [%d, %d]", p.TS, before, after)
	}
}

func TestStatusPayloadJSONShape(t *testing.T) {
	p := BuildStatus("cam-01", mjpeg.Stats{State: mjpeg.StateBackoff, URL: "http://c/s"})

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"instance_id", "state", "connected", "url", "frames_emitted", "ts", "trace_id"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("payload missing %q: %s", key, data)
		}
	}
	if decoded["state"] != "backoff" {
		t.Errorf("state = %v", decoded["state"])
	}
	// Empty last_error is omitted from the wire document.
	if _, ok := decoded["last_error"]; ok {
		t.Error("empty last_error should be omitted")
	}
}
