package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainMol "github.com/turtacn/MolPrep-Engine/internal/domain/molecule"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/pkg/types/common"
)

func TestTopicForEvent(t *testing.T) {
	tests := []struct {
		eventType string
		prefix    string
		want      string
	}{
		{"molecule.created", "", TopicMoleculeCreated},
		{"molecule.desalted", "", TopicMoleculeDesalted},
		{"molecule.repaired", "", TopicMoleculeRepaired},
		{"molecule.conformers_added", "", TopicConformersAdded},
		{"molecule.unknown", "", TopicMoleculeDeadLetter},
		{"molecule.created", "staging", "staging." + TopicMoleculeCreated},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TopicForEvent(tt.eventType, tt.prefix), tt.eventType)
	}
}

func TestNewEnvelope(t *testing.T) {
	id := common.NewID()
	event := domainMol.MoleculeDesaltedEvent{
		MoleculeID:       id,
		OriginalNotation: "CCO.[Na+]",
		DesaltedNotation: "CCO",
		FragmentCount:    2,
	}

	env, err := NewEnvelope(id, event)
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "molecule.desalted", env.EventType)
	assert.Equal(t, "molprep-engine", env.Source)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.Equal(t, string(id), env.MoleculeID)
	assert.False(t, env.Timestamp.IsZero())

	var payload domainMol.MoleculeDesaltedEvent
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "CCO", payload.DesaltedNotation)
	assert.Equal(t, 2, payload.FragmentCount)
}

func newTestPublisher(prefix string) (*EventPublisher, *fakeWriter) {
	producer, writer := newTestProducer()
	return NewEventPublisher(producer, prefix, nil, logging.NewNopLogger()), writer
}

func TestPublishEvents_RoutesToTopics(t *testing.T) {
	pub, writer := newTestPublisher("")
	id := common.NewID()

	events := []domainMol.DomainEvent{
		domainMol.MoleculeCreatedEvent{MoleculeID: id, Notation: "CCO"},
		domainMol.ConformersAddedEvent{MoleculeID: id, Added: 3, Retained: 2, Eliminated: 1},
	}
	require.NoError(t, pub.PublishEvents(context.Background(), id, events))
	require.Len(t, writer.written, 2)

	assert.Equal(t, TopicMoleculeCreated, writer.written[0].Topic)
	assert.Equal(t, TopicConformersAdded, writer.written[1].Topic)
	for _, msg := range writer.written {
		assert.Equal(t, []byte(id), msg.Key)
	}

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(writer.written[1].Value, &env))
	assert.Equal(t, "molecule.conformers_added", env.EventType)

	var payload domainMol.ConformersAddedEvent
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, 2, payload.Retained)
}

func TestPublishEvents_AppliesTopicPrefix(t *testing.T) {
	pub, writer := newTestPublisher("staging")
	id := common.NewID()

	err := pub.PublishEvents(context.Background(), id, []domainMol.DomainEvent{
		domainMol.MoleculeCreatedEvent{MoleculeID: id, Notation: "CCO"},
	})
	require.NoError(t, err)
	require.Len(t, writer.written, 1)
	assert.Equal(t, "staging."+TopicMoleculeCreated, writer.written[0].Topic)
}

func TestPublishEvents_CarriesEnvelopeHeaders(t *testing.T) {
	pub, writer := newTestPublisher("")
	id := common.NewID()

	err := pub.PublishEvents(context.Background(), id, []domainMol.DomainEvent{
		domainMol.MoleculeRepairedEvent{MoleculeID: id, Before: "C[N+](C)C", After: "CN(C)C"},
	})
	require.NoError(t, err)
	require.Len(t, writer.written, 1)

	headers := map[string]string{}
	for _, h := range writer.written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "molecule.repaired", headers["event_type"])
	assert.Equal(t, SchemaVersion, headers["schema_version"])
}

func TestPublishEvents_EmptyIsNoop(t *testing.T) {
	pub, writer := newTestPublisher("")
	require.NoError(t, pub.PublishEvents(context.Background(), common.NewID(), nil))
	assert.Empty(t, writer.written)
}

func TestPublishEvents_WriteErrorPropagates(t *testing.T) {
	pub, writer := newTestPublisher("")
	writer.writeErr = assert.AnError

	err := pub.PublishEvents(context.Background(), common.NewID(), []domainMol.DomainEvent{
		domainMol.MoleculeCreatedEvent{Notation: "CCO"},
	})
	assert.Error(t, err)
}
