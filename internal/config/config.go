package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration
type Config struct {
	InstanceID       string       `yaml:"instance_id"`
	ShutdownTimeoutS int          `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Stream           StreamConfig `yaml:"stream"`
	MQTT             MQTTConfig   `yaml:"mqtt"`
	HTTP             HTTPConfig   `yaml:"http"`
}

// StreamConfig contains the MJPEG source settings
type StreamConfig struct {
	URL             string `yaml:"url"`                    // raw MJPEG endpoint (http/https)
	SnapshotURL     string `yaml:"snapshot_url,omitempty"` // optional one-shot still endpoint
	MaxBufferBytes  int    `yaml:"max_buffer_bytes"`       // scan buffer bound (default: 2 MiB)
	ReconnectDelayS int    `yaml:"reconnect_delay_s"`      // fixed delay between reconnects (default: 3)
	ReadTimeoutS    int    `yaml:"read_timeout_s"`         // inter-chunk silence limit (default: 30)
	MaxReconnects   int    `yaml:"max_reconnects"`         // 0 = retry forever
	ChunkSize       int    `yaml:"chunk_size"`             // network read granularity (default: 4096)
	SkipValidation  bool   `yaml:"skip_validation"`        // disable JPEG header checks
}

// MQTTConfig contains MQTT broker settings. An empty broker disables
// status telemetry entirely.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Status string `yaml:"status"`
}

// HTTPConfig contains the diagnostics HTTP server settings
type HTTPConfig struct {
	Listen string `yaml:"listen"` // address for /health, /status, /snap (default: :8080)
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
