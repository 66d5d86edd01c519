package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope() Envelope {
	return Envelope{
		ID:             "evt-1",
		Type:           "OrderBooked",
		Source:         "activity.book_order",
		Version:        "1.0.0",
		Timestamp:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		IdempotencyKey: "idem-1",
		Key:            "O1",
		WorkflowID:     "rfq-O1",
		RunID:          "run-1",
		Payload:        json.RawMessage(`{"ok":true}`),
	}
}

func TestKafkaEventSink_Append(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "rfq-events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "O1" {
			return errors.New("unexpected key " + string(key))
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got Envelope
		if err := json.Unmarshal(raw, &got); err != nil {
			return err
		}
		if got.IdempotencyKey != "idem-1" {
			return errors.New("idempotency key not carried")
		}
		return nil
	})

	sink := NewKafkaEventSinkFromProducer(producer, "rfq-events", nil)
	require.NoError(t, sink.Append(context.Background(), testEnvelope()))
	require.NoError(t, sink.Close())
}

func TestKafkaEventSink_AppendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink := NewKafkaEventSinkFromProducer(producer, "rfq-events", nil)
	err := sink.Append(context.Background(), testEnvelope())
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sink.Close())
}

func TestKafkaEventSink_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	sink := NewKafkaEventSinkFromProducer(producer, "rfq-events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, sink.Append(ctx, testEnvelope()), context.Canceled)
	require.NoError(t, sink.Close())
}

func TestNoOpAndLogSinks(t *testing.T) {
	require.NoError(t, NewNoOpEventSink().Append(context.Background(), testEnvelope()))
	require.NoError(t, NewLogEventSink(nil).Append(context.Background(), testEnvelope()))
}
