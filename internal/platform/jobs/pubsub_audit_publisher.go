// Package jobs contains outbound message publishers for asynchronous consumers.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/bazaarhq/marketplace-api/internal/domain"
)

// PubSubAuditPublisher publishes fee-override audit events to a Pub/Sub topic.
// Delivery is fire-and-forget from the caller's perspective; the order write
// that triggered the event never waits on, or fails because of, this sink.
type PubSubAuditPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubAuditPublisher constructs a Pub/Sub backed audit event publisher.
func NewPubSubAuditPublisher(topic *pubsub.Topic) (*PubSubAuditPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub audit publisher: topic is required")
	}
	return &PubSubAuditPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishAuditEvent enqueues the audit record on the configured topic.
func (p *PubSubAuditPublisher) PublishAuditEvent(ctx context.Context, record domain.AuditRecord) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub audit publisher: not initialised")
	}

	data, err := p.marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: auditAttributes(record),
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish audit record: %w", err)
	}
	return nil
}

func auditAttributes(record domain.AuditRecord) map[string]string {
	attrs := make(map[string]string)
	setAttr(attrs, "orderId", record.OrderID)
	setAttr(attrs, "actorId", record.ActorID)
	setAttr(attrs, "operation", string(record.Operation))
	if len(record.Fields) > 0 {
		attrs["fields"] = strings.Join(record.Fields, ",")
	}
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
