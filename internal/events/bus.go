// Package events provides pub/sub messaging between pipeline stages
// and the API layer using an embedded NATS server.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Bus wraps an embedded NATS server and a client connection to it.
type Bus struct {
	server *server.Server
	conn   *nats.Conn
	logger *slog.Logger

	// Subscription tracking
	subs   map[string][]*nats.Subscription
	subsMu sync.Mutex
}

// Config configures the event bus.
type Config struct {
	// Host for the NATS server (default: 127.0.0.1)
	Host string
	// Port for the NATS server; -1 picks a random free port
	Port int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Host: "127.0.0.1",
		Port: server.RANDOM_PORT,
	}
}

// NewBus starts an embedded NATS server and connects to it.
func NewBus(cfg Config, logger *slog.Logger) (*Bus, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = server.RANDOM_PORT
	}

	opts := &server.Options{
		Host:   cfg.Host,
		Port:   cfg.Port,
		NoSigs: true,
		NoLog:  true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(2 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready after 2 seconds")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	b := &Bus{
		server: ns,
		conn:   nc,
		logger: logger.With("component", "eventbus"),
		subs:   make(map[string][]*nats.Subscription),
	}

	b.logger.Info("Event bus started", "url", ns.ClientURL())

	return b, nil
}

// ClientURL returns the NATS client URL
func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Publish publishes a JSON-encoded message to a subject
func (b *Bus) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return b.conn.Publish(subject, payload)
}

// Subscribe subscribes to a subject
func (b *Bus) Subscribe(subject string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}

	b.subsMu.Lock()
	b.subs[subject] = append(b.subs[subject], sub)
	b.subsMu.Unlock()

	return sub, nil
}

// Unsubscribe removes all subscriptions for a subject
func (b *Bus) Unsubscribe(subject string) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	for _, sub := range b.subs[subject] {
		_ = sub.Unsubscribe()
	}
	delete(b.subs, subject)
}

// HealthCheck verifies client connectivity.
func (b *Bus) HealthCheck(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS connection not active")
	}
	return nil
}

// Stop drains the connection and shuts down the server.
func (b *Bus) Stop() {
	_ = b.conn.Drain()
	b.server.Shutdown()
	b.logger.Info("Event bus stopped")
}

// Subjects published by the capture pipeline.
const (
	SubjectSnapshotCreated = "snapshot.created"
	SubjectSnapshotFailed  = "snapshot.failed"
	SubjectWebcamUpdated   = "webcam.updated"
)

// SnapshotEvent is published after each probe attempt.
type SnapshotEvent struct {
	WebcamSlug     string    `json:"webcam_slug"`
	SnapshotID     string    `json:"snapshot_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	PredictedCount *int      `json:"predicted_count,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// PublishSnapshotCreated announces a successful capture and estimate.
func (b *Bus) PublishSnapshotCreated(ev SnapshotEvent) error {
	return b.Publish(SubjectSnapshotCreated, ev)
}

// PublishSnapshotFailed announces a failed probe attempt.
func (b *Bus) PublishSnapshotFailed(ev SnapshotEvent) error {
	return b.Publish(SubjectSnapshotFailed, ev)
}

// WebcamEvent is published when a webcam's configuration changes.
type WebcamEvent struct {
	WebcamSlug string    `json:"webcam_slug"`
	Enabled    bool      `json:"enabled"`
	Timestamp  time.Time `json:"timestamp"`
}

// PublishWebcamUpdated announces a configuration change for one webcam.
func (b *Bus) PublishWebcamUpdated(ev WebcamEvent) error {
	return b.Publish(SubjectWebcamUpdated, ev)
}
