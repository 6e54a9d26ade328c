package eventsink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/charging-platform/station-fleet-simulator/internal/logger"
)

// KafkaEventSink publishes Records to a Kafka topic via a synchronous
// producer, keyed by stationId so a single station's records land in one
// partition, mirroring the teacher's KafkaProducer. Publish blocks the caller
// until the broker acknowledges the record or the producer gives up; records
// are neither buffered nor dropped.
type KafkaEventSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logger.Logger
}

// NewKafkaEventSink connects a sync producer to brokers.
func NewKafkaEventSink(brokers []string, topic string, log *logger.Logger) (*KafkaEventSink, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}

	return &KafkaEventSink{producer: producer, topic: topic, logger: log}, nil
}

func (s *KafkaEventSink) Publish(r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(r.StationID),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish event record: %w", err)
	}

	s.logger.Debugf("published %s event for %s to partition %d offset %d", r.Kind, r.StationID, partition, offset)
	return nil
}

func (s *KafkaEventSink) Close() error {
	return s.producer.Close()
}
