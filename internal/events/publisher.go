package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tabdulradi/pan-tut/internal/config"
)

// EventType enumerates build lifecycle events.
type EventType string

const (
	EventBuildStarted   EventType = "build.started"
	EventStageCompleted EventType = "stage.completed"
	EventBuildSucceeded EventType = "build.succeeded"
	EventBuildFailed    EventType = "build.failed"
)

// Event is the JSON payload published for each lifecycle transition.
type Event struct {
	Type      EventType `json:"type"`
	BuildID   string    `json:"build_id"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits build lifecycle events. Implementations must tolerate being
// called from the build loop; publish failures are logged, never returned.
type Publisher interface {
	Publish(event Event)
	Close()
}

// NoopPublisher drops all events (default when events are disabled).
type NoopPublisher struct{}

func (NoopPublisher) Publish(Event) {}
func (NoopPublisher) Close()        {}

// NATSPublisher publishes events to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to NATS using the events configuration.
func NewNATSPublisher(cfg config.EventsConfig) (*NATSPublisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("event publishing is disabled")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("pantut"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("NATS event publisher initialized", "url", cfg.URL, "subject", cfg.Subject)
	return &NATSPublisher{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends the event; failures are logged and swallowed so that event
// delivery can never fail a build.
func (p *NATSPublisher) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal build event", "type", event.Type, "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		slog.Warn("Failed to publish build event", "type", event.Type, "subject", p.subject, "error", err)
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		slog.Warn("Failed to drain NATS connection", "error", err)
	}
}
