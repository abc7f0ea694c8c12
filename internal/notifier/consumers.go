package notifier

import (
	"context"
	"fmt"
	"strconv"

	"docproof/internal/platform/kafka/producer"
	"docproof/internal/registry/models"
	"docproof/pkg/platform/audit"
)

// AuditEmitter is the fire-and-forget audit publisher.
type AuditEmitter interface {
	Emit(ctx context.Context, entry audit.Entry)
}

// MessagePublisher publishes synchronously to Kafka.
type MessagePublisher interface {
	Publish(ctx context.Context, msgs ...producer.Message) error
}

var auditActions = map[models.EventType]audit.Action{
	models.EventCreated:     audit.ActionRecordCreated,
	models.EventRevoked:     audit.ActionRecordRevoked,
	models.EventTransferred: audit.ActionRecordTransferred,
}

// AuditSink records every committed event as a success entry. The event ID
// travels along so audit stores can drop redeliveries.
func AuditSink(emitter AuditEmitter) Consumer {
	return ConsumerFunc("audit", func(ctx context.Context, evt models.Event) error {
		action, ok := auditActions[evt.Type]
		if !ok {
			return fmt.Errorf("unknown event type %q", evt.Type)
		}
		emitter.Emit(ctx, audit.Entry{
			Timestamp:     evt.Timestamp,
			Action:        action,
			Outcome:       audit.OutcomeSuccess,
			Actor:         evt.Actor,
			Fingerprint:   evt.Fingerprint,
			Owner:         evt.Owner,
			PreviousOwner: evt.PreviousOwner,
			Issuer:        evt.Issuer,
			Version:       evt.Version,
			EventID:       evt.ID,
		})
		return nil
	})
}

// KafkaBridge publishes every event to topic keyed by fingerprint, so one
// fingerprint's events stay on one partition in log order.
func KafkaBridge(pub MessagePublisher, topic string) Consumer {
	return ConsumerFunc("kafka", func(ctx context.Context, evt models.Event) error {
		value, err := models.MarshalEvent(evt)
		if err != nil {
			return err
		}
		return pub.Publish(ctx, producer.Message{
			Topic: topic,
			Key:   []byte(evt.Fingerprint),
			Value: value,
			Headers: map[string]string{
				"event_id":   evt.ID.String(),
				"event_type": string(evt.Type),
				"sequence":   strconv.FormatInt(evt.Sequence, 10),
			},
		})
	})
}
