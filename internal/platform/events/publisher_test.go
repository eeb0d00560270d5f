package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeIsDeterministic(t *testing.T) {
	at := time.Date(2025, 4, 2, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	a := NewEnvelope("order.status_changed", "SO-1", at, map[string]int{"x": 1})
	b := NewEnvelope("order.status_changed", "SO-1", at, nil)
	c := NewEnvelope("order.status_changed", "SO-2", at, nil)

	require.Equal(t, a.ID, b.ID)
	require.NotEqual(t, a.ID, c.ID)
	require.Equal(t, time.UTC, a.OccurredAt.Location())
}

func TestKafkaPublisherSendsEnvelope(t *testing.T) {
	config := mocks.NewTestConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewAsyncProducer(t, config)
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "trade.orders.status" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "SO-9" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})
	producer.ExpectInputWithCheckerFunctionAndSucceed(func(value []byte) error {
		var env Envelope
		if err := json.Unmarshal(value, &env); err != nil {
			return err
		}
		if env.Type != "order.status_changed" {
			return errors.New("unexpected type " + env.Type)
		}
		return nil
	})

	pub := newKafkaPublisher(producer, "trade.", nil)
	at := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Publish(context.Background(), TopicOrderStatus, NewEnvelope("order.status_changed", "SO-9", at, nil)))
	require.NoError(t, pub.Publish(context.Background(), TopicOrderStatus, NewEnvelope("order.status_changed", "SO-9", at, nil)))

	<-producer.Successes()
	<-producer.Successes()
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherDrainsErrors(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	pub := newKafkaPublisher(producer, "", nil)
	require.NoError(t, pub.Publish(context.Background(), TopicStockMovements, NewEnvelope("stock.movements_posted", "1", time.Now(), nil)))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherRejectsUnencodablePayload(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	pub := newKafkaPublisher(producer, "", nil)
	defer func() { _ = pub.Close() }()

	err := pub.Publish(context.Background(), TopicReceipts, NewEnvelope("x", "y", time.Now(), make(chan int)))
	require.Error(t, err)
}
