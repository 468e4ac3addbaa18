// Package notify delivers passenger alerts over pluggable transports.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Alert is one message on one channel.
type Alert struct {
	ID         string    `json:"alert_id"`
	Channel    string    `json:"channel"`
	Priority   string    `json:"priority"`
	Recipients []string  `json:"recipients,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notifier sends alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier records alerts in memory and logs them. It is the default
// when no transport is configured.
type LogNotifier struct {
	mu     sync.Mutex
	sent   []Alert
	quiet  bool
	failOn map[string]bool
}

// NewLogNotifier creates a LogNotifier. Quiet suppresses log output.
func NewLogNotifier(quiet bool) *LogNotifier {
	return &LogNotifier{quiet: quiet, failOn: make(map[string]bool)}
}

// FailChannel makes deliveries on channel fail, for exercising partial delivery.
func (n *LogNotifier) FailChannel(channel string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failOn[channel] = true
}

// Notify records the alert.
func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOn[a.Channel] {
		return fmt.Errorf("channel %s unavailable", a.Channel)
	}
	n.sent = append(n.sent, a)
	if !n.quiet {
		log.Printf("[notify] %s alert %s to %d recipient(s): %s", a.Channel, a.ID, len(a.Recipients), a.Body)
	}
	return nil
}

// Sent returns a copy of the alerts delivered so far.
func (n *LogNotifier) Sent() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.sent...)
}

// Publisher is the subset of *nats.Conn used for delivery.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes alerts as JSON to "<subject>.<channel>".
type NATSNotifier struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
}

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "railmind.alerts"

// ConnectNATS dials url and returns a notifier that owns the connection.
func ConnectNATS(url, subject string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("railmind"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	n := NewNATSNotifier(conn, subject)
	n.conn = conn
	return n, nil
}

// NewNATSNotifier wraps an existing publisher.
func NewNATSNotifier(pub Publisher, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{pub: pub, subject: subject}
}

// Notify publishes the alert. NATS publish does not take a context, so the
// context is checked before publishing.
func (n *NATSNotifier) Notify(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	if a.Channel == "" {
		return errors.New("alert has no channel")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := n.pub.Publish(n.subject+"."+a.Channel, data); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close drains the connection if the notifier opened it.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
