// Package events publishes subscription state changes on NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/dukerupert/mesa/internal/domain"
)

// DefaultSubjectPrefix is prepended to the event family to form the subject,
// e.g. "mesa.subscriptions.subscription_deleted".
const DefaultSubjectPrefix = "mesa.subscriptions"

// msgPublisher is the part of *nats.Conn the publisher uses.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher sends domain.SubscriptionChanged messages as JSON.
type NATSPublisher struct {
	conn   msgPublisher
	prefix string
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return newPublisher(conn, prefix)
}

func newPublisher(conn msgPublisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Connect dials url with reconnect handling suited to a long-lived server.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject a change is published on.
func (p *NATSPublisher) Subject(change domain.SubscriptionChanged) string {
	return p.prefix + "." + change.Family
}

// PublishSubscriptionChanged publishes change. The provider event id is set
// as Nats-Msg-Id so JetStream consumers drop redeliveries.
func (p *NATSPublisher) PublishSubscriptionChanged(ctx context.Context, change domain.SubscriptionChanged) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if change.Family == "" {
		return errors.New("events: change has no family")
	}

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("events: marshal change: %w", err)
	}

	msg := nats.NewMsg(p.Subject(change))
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	if change.EventID != "" {
		msg.Header.Set(nats.MsgIdHdr, change.EventID)
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", msg.Subject, err)
	}
	return nil
}
