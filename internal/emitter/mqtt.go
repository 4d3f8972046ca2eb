package emitter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/haltyt/visionpal/internal/config"
	"github.com/haltyt/visionpal/mjpeg"
)

// StatusPayload is the JSON document published to the status topic.
type StatusPayload struct {
	InstanceID    string `json:"instance_id"`
	State         string `json:"state"`
	Connected     bool   `json:"connected"`
	URL           string `json:"url"`
	FramesEmitted uint64 `json:"frames_emitted"`
	FramesDropped uint64 `json:"frames_dropped"`
	BytesRead     uint64 `json:"bytes_read"`
	Reconnects    uint32 `json:"reconnects"`
	LastError     string `json:"last_error,omitempty"`
	TraceID       string `json:"trace_id"`
	TS            int64  `json:"ts"` // unix milliseconds
}

// MQTTEmitter publishes stream status to an MQTT broker
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for diagnostics

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg}
}

// Connect establishes connection to the MQTT broker
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.MQTT.Broker))
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	// Connection handlers
	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID,
			"auto_reconnect", "enabled")
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker,
			"max_retry_interval", "30s")
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// PublishStatus publishes a status snapshot to the status topic
func (e *MQTTEmitter) PublishStatus(stats mjpeg.Stats) error {
	if !e.isConnected() {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(BuildStatus(e.cfg.InstanceID, stats))
	if err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	topic := e.cfg.MQTT.Topics.Status
	qos := e.cfg.MQTT.QoS["status"]

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("status published",
		"topic", topic,
		"qos", qos,
		"size", len(payload),
	)

	return nil
}

// BuildStatus converts a client snapshot to the wire payload.
func BuildStatus(instanceID string, stats mjpeg.Stats) StatusPayload {
	return StatusPayload{
		InstanceID:    instanceID,
		State:         stats.State.String(),
		Connected:     stats.Connected,
		URL:           stats.URL,
		FramesEmitted: stats.FramesEmitted,
		FramesDropped: stats.FramesDropped,
		BytesRead:     stats.BytesRead,
		Reconnects:    stats.Reconnects,
		LastError:     stats.LastError,
		TraceID:       stats.TraceID,
		TS:            time.Now().UnixMilli(),
	}
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		Connected: e.connected,
		Published: e.published,
		Errors:    e.errors,
	}
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// isConnected returns connection status
func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}
