package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	domainMol "github.com/turtacn/MolPrep-Engine/internal/domain/molecule"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
	"github.com/turtacn/MolPrep-Engine/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Topics
// ─────────────────────────────────────────────────────────────────────────────

// Topic names before the deployment prefix is applied.  With the default
// "molprep" prefix the wire topic is e.g. "molprep.molecule.created".
const (
	TopicMoleculeCreated    = "molecule.created"
	TopicMoleculeDesalted   = "molecule.desalted"
	TopicMoleculeRepaired   = "molecule.repaired"
	TopicConformersAdded    = "molecule.conformers_added"
	TopicMoleculeDeadLetter = "molecule.dlq"
)

// SchemaVersion is the envelope schema revision.
const SchemaVersion = "1.0"

// TopicForEvent maps a domain event type to its topic, applying the
// deployment prefix when configured.  Unknown event types route to the
// dead-letter topic rather than being dropped.
func TopicForEvent(eventType, prefix string) string {
	var topic string
	switch eventType {
	case TopicMoleculeCreated, TopicMoleculeDesalted, TopicMoleculeRepaired, TopicConformersAdded:
		topic = eventType
	default:
		topic = TopicMoleculeDeadLetter
	}
	if prefix != "" {
		return prefix + "." + topic
	}
	return topic
}

// ─────────────────────────────────────────────────────────────────────────────
// Event Envelope
// ─────────────────────────────────────────────────────────────────────────────

// EventEnvelope is the wire format shared by all molprep topics.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	MoleculeID    string          `json:"molecule_id"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a domain event payload for publication.
func NewEnvelope(moleculeID common.ID, event domainMol.DomainEvent) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     event.EventType(),
		Source:        "molprep-engine",
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		MoleculeID:    string(moleculeID),
		Payload:       payload,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Event Publisher
// ─────────────────────────────────────────────────────────────────────────────

// EventPublisher routes drained domain events onto their topics.  It
// satisfies the application layer's publisher port.
type EventPublisher struct {
	producer    *Producer
	topicPrefix string
	metrics     *prometheus.PrepMetrics
	logger      logging.Logger
}

// NewEventPublisher creates an EventPublisher over the given producer.
// metrics may be nil.
func NewEventPublisher(producer *Producer, topicPrefix string, metrics *prometheus.PrepMetrics, logger logging.Logger) *EventPublisher {
	return &EventPublisher{
		producer:    producer,
		topicPrefix: topicPrefix,
		metrics:     metrics,
		logger:      logger,
	}
}

// PublishEvents envelopes and publishes every event in one batch, keyed by
// molecule ID so a molecule's events stay ordered on a partition.
func (p *EventPublisher) PublishEvents(ctx context.Context, moleculeID common.ID, events []domainMol.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*Message, 0, len(events))
	topics := make([]string, 0, len(events))
	for _, event := range events {
		env, err := NewEnvelope(moleculeID, event)
		if err != nil {
			return err
		}
		value, err := json.Marshal(env)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode event envelope")
		}
		topic := TopicForEvent(env.EventType, p.topicPrefix)
		msgs = append(msgs, &Message{
			Topic: topic,
			Key:   []byte(moleculeID),
			Value: value,
			Headers: map[string]string{
				"event_type":     env.EventType,
				"schema_version": env.SchemaVersion,
			},
		})
		topics = append(topics, topic)
	}

	if err := p.producer.PublishBatch(ctx, msgs); err != nil {
		p.recordPublish(topics, "failure")
		return err
	}

	p.recordPublish(topics, "success")
	p.logger.Debug("domain events published",
		logging.String("molecule_id", string(moleculeID)),
		logging.Int("count", len(msgs)))
	return nil
}

func (p *EventPublisher) recordPublish(topics []string, status string) {
	if p.metrics == nil {
		return
	}
	for _, topic := range topics {
		p.metrics.EventsPublishTotal.WithLabelValues(topic, status).Inc()
	}
}
