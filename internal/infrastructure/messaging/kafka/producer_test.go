package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolPrep-Engine/internal/config"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
)

// fakeWriter records written messages in place of a real broker connection.
type fakeWriter struct {
	written  []kafka.Message
	writeErr error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer() (*Producer, *fakeWriter) {
	writer := &fakeWriter{}
	return NewProducerWithWriter(writer, logging.NewNopLogger()), writer
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewProducer_Defaults(t *testing.T) {
	p, err := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, logging.NewNopLogger())
	require.NoError(t, err)
	defer p.Close()

	writer, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, 4, writer.MaxAttempts)
	assert.Equal(t, 100, writer.BatchSize)
}

func TestPublish_Success(t *testing.T) {
	p, writer := newTestProducer()

	err := p.Publish(context.Background(), &Message{
		Topic:   TopicMoleculeCreated,
		Key:     []byte("mol-1"),
		Value:   []byte(`{"notation":"CCO"}`),
		Headers: map[string]string{"event_type": "molecule.created"},
	})
	require.NoError(t, err)
	require.Len(t, writer.written, 1)

	msg := writer.written[0]
	assert.Equal(t, TopicMoleculeCreated, msg.Topic)
	assert.Equal(t, []byte("mol-1"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.False(t, msg.Time.IsZero())

	sent, failed, bytes := p.Metrics()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)
	assert.Equal(t, int64(len(msg.Value)), bytes)
}

func TestPublish_ValidatesMessage(t *testing.T) {
	p, _ := newTestProducer()

	err := p.Publish(context.Background(), &Message{Value: []byte("x")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	err = p.Publish(context.Background(), &Message{Topic: TopicMoleculeCreated})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestPublish_WriteErrorCountsFailure(t *testing.T) {
	p, writer := newTestProducer()
	writer.writeErr = assert.AnError

	err := p.Publish(context.Background(), &Message{Topic: TopicMoleculeCreated, Value: []byte("x")})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))

	_, failed, _ := p.Metrics()
	assert.Equal(t, int64(1), failed)
}

func TestPublish_AfterCloseFails(t *testing.T) {
	p, writer := newTestProducer()
	require.NoError(t, p.Close())
	assert.True(t, writer.closed)

	err := p.Publish(context.Background(), &Message{Topic: TopicMoleculeCreated, Value: []byte("x")})
	assert.ErrorIs(t, err, ErrProducerClosed)
}

func TestPublishBatch_Success(t *testing.T) {
	p, writer := newTestProducer()

	msgs := []*Message{
		{Topic: TopicMoleculeCreated, Key: []byte("a"), Value: []byte("1")},
		{Topic: TopicConformersAdded, Key: []byte("a"), Value: []byte("22")},
	}
	require.NoError(t, p.PublishBatch(context.Background(), msgs))
	assert.Len(t, writer.written, 2)

	sent, _, bytes := p.Metrics()
	assert.Equal(t, int64(2), sent)
	assert.Equal(t, int64(3), bytes)
}

func TestPublishBatch_EmptyIsNoop(t *testing.T) {
	p, writer := newTestProducer()
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.Empty(t, writer.written)
}

func TestPublishBatch_WriteErrorCountsAllFailures(t *testing.T) {
	p, writer := newTestProducer()
	writer.writeErr = assert.AnError

	msgs := []*Message{
		{Topic: TopicMoleculeCreated, Value: []byte("1")},
		{Topic: TopicMoleculeRepaired, Value: []byte("2")},
	}
	require.Error(t, p.PublishBatch(context.Background(), msgs))

	_, failed, _ := p.Metrics()
	assert.Equal(t, int64(2), failed)
}

func TestClose_Idempotent(t *testing.T) {
	p, _ := newTestProducer()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestToKafkaMessage_PreservesTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := toKafkaMessage(&Message{Topic: "t", Value: []byte("v"), Timestamp: ts})
	assert.Equal(t, ts, msg.Time)
}
