package config

import (
	"fmt"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5 // default
	}

	// Validate stream config
	if cfg.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	if !strings.HasPrefix(cfg.Stream.URL, "http://") && !strings.HasPrefix(cfg.Stream.URL, "https://") {
		return fmt.Errorf("stream.url must be an http(s) address")
	}
	if cfg.Stream.ReconnectDelayS < 0 {
		return fmt.Errorf("stream.reconnect_delay_s must be >= 0")
	}
	if cfg.Stream.MaxReconnects < 0 {
		return fmt.Errorf("stream.max_reconnects must be >= 0")
	}

	// MQTT is optional: no broker, no telemetry. When enabled, fill
	// topic and QoS defaults.
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Status == "" {
			cfg.MQTT.Topics.Status = fmt.Sprintf("vision_pal/status/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"status": 0,
			}
		}
	}

	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}

	return nil
}
