package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCompleteConfig(t *testing.T) {
	path := writeConfig(t, `
instance_id: cam-lobby-01
shutdown_timeout_s: 10
stream:
  url: http://10.0.0.12:8080/stream
  snapshot_url: http://10.0.0.12:8080/snap
  max_buffer_bytes: 4194304
  reconnect_delay_s: 5
  read_timeout_s: 20
  max_reconnects: 10
  chunk_size: 8192
mqtt:
  broker: localhost:1883
  topics:
    status: vision_pal/status/custom
  qos:
    status: 1
http:
  listen: ":9000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.InstanceID != "cam-lobby-01" {
		t.Errorf("instance_id = %q", cfg.InstanceID)
	}
	if cfg.Stream.URL != "http://10.0.0.12:8080/stream" {
		t.Errorf("stream.url = %q", cfg.Stream.URL)
	}
	if cfg.Stream.MaxBufferBytes != 4194304 {
		t.Errorf("max_buffer_bytes = %d", cfg.Stream.MaxBufferBytes)
	}
	if cfg.MQTT.Topics.Status != "vision_pal/status/custom" {
		t.Errorf("status topic = %q", cfg.MQTT.Topics.Status)
	}
	if cfg.MQTT.QoS["status"] != 1 {
		t.Errorf("status qos = %d", cfg.MQTT.QoS["status"])
	}
	if cfg.HTTP.Listen != ":9000" {
		t.Errorf("http.listen = %q", cfg.HTTP.Listen)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
instance_id: cam-01
stream:
  url: http://camera.local/stream
mqtt:
  broker: localhost:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ShutdownTimeoutS != 5 {
		t.Errorf("shutdown_timeout_s default = %d, want 5", cfg.ShutdownTimeoutS)
	}
	if cfg.MQTT.Topics.Status != "vision_pal/status/cam-01" {
		t.Errorf("status topic default = %q", cfg.MQTT.Topics.Status)
	}
	if cfg.MQTT.QoS["status"] != 0 {
		t.Errorf("status qos default = %d, want 0", cfg.MQTT.QoS["status"])
	}
	if cfg.HTTP.Listen != ":8080" {
		t.Errorf("http.listen default = %q, want :8080", cfg.HTTP.Listen)
	}
}

func TestLoadWithoutMQTT(t *testing.T) {
	path := writeConfig(t, `
instance_id: cam-01
stream:
  url: http://camera.local/stream
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("broker = %q, want empty (telemetry disabled)", cfg.MQTT.Broker)
	}
	// No broker means no topic defaulting either.
	if cfg.MQTT.Topics.Status != "" {
		t.Errorf("status topic = %q, want empty", cfg.MQTT.Topics.Status)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing instance_id", `
stream:
  url: http://camera.local/stream
`},
		{"bad instance_id", `
instance_id: Cam_01
stream:
  url: http://camera.local/stream
`},
		{"missing stream url", `
instance_id: cam-01
`},
		{"non-http stream url", `
instance_id: cam-01
stream:
  url: rtsp://camera.local/stream
`},
		{"negative reconnect delay", `
instance_id: cam-01
stream:
  url: http://camera.local/stream
  reconnect_delay_s: -1
`},
		{"unparseable yaml", `{{{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
