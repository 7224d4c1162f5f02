package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
)

// KafkaLedger publishes entries to a Kafka topic, keyed by interaction id so
// all events of one interaction land on the same partition.
type KafkaLedger struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaLedger connects a synchronous producer to brokers.
func NewKafkaLedger(brokers []string, topic string) (*KafkaLedger, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka ledger: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka ledger: topic is required")
	}
	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka ledger: create producer: %w", err)
	}
	return NewKafkaLedgerWithProducer(producer, topic), nil
}

// NewKafkaLedgerWithProducer wraps an existing producer.
func NewKafkaLedgerWithProducer(producer sarama.SyncProducer, topic string) *KafkaLedger {
	return &KafkaLedger{producer: producer, topic: topic}
}

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "bundle-gateway-ledger"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 6
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

func (l *KafkaLedger) Record(ctx context.Context, e ports.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka ledger: encode entry: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: l.topic,
		Key:   sarama.StringEncoder(e.InteractionID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/json")},
			{Key: []byte("ledger-action"), Value: []byte(e.Action)},
		},
	}
	if _, _, err := l.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka ledger: send: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (l *KafkaLedger) Close() error {
	return l.producer.Close()
}
