// Package events publishes instance lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Event types. The published subject is "<prefix>.<type>".
const (
	InstanceCreated  = "instance.created"
	InstanceStarted  = "instance.started"
	InstanceStopped  = "instance.stopped"
	InstanceDeleted  = "instance.deleted"
	InstanceCloned   = "instance.cloned"
	ServiceInstalled = "service.installed"
	UserCreated      = "user.created"
)

// Event is the JSON payload of every published message.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	InstanceID uint              `json:"instance_id"`
	Name       string            `json:"name"`
	Time       time.Time         `json:"time"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// New returns an Event with a fresh id and the current time.
func New(eventType string, instanceID uint, name string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		InstanceID: instanceID,
		Name:       name,
		Time:       time.Now().UTC(),
	}
}

// With returns a copy of e carrying the extra attribute.
func (e Event) With(key, value string) Event {
	attrs := make(map[string]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}

// Sink accepts events. *Publisher and Nop satisfy it.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Publisher sends events to NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials url and returns a Publisher that prefixes subjects with prefix.
func Connect(url, prefix string, log logrus.FieldLogger) (*Publisher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts := []nats.Option{
		nats.Name("anvil"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	return &Publisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject an event of eventType is published on.
func (p *Publisher) Subject(eventType string) string {
	return Subject(p.prefix, eventType)
}

// Publish marshals e and publishes it on its subject.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", e.Type, err)
	}

	if err := p.nc.Publish(p.Subject(e.Type), payload); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", e.Type, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Nop discards every event. It is used when no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Subject joins prefix and eventType with a dot. An empty prefix yields the
// bare event type.
func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}
