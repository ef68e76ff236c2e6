package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// KafkaPublisher publishes status events to a Kafka topic for the realtime
// channels the UI layers subscribe to.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher connects a synchronous producer to the given brokers
// (comma-separated list).
func NewKafkaPublisher(brokerList, topic string) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true // required for SyncProducer
	saramaConfig.Net.DialTimeout = 30 * time.Second
	saramaConfig.Net.ReadTimeout = 30 * time.Second
	saramaConfig.Net.WriteTimeout = 30 * time.Second

	producer, err := sarama.NewSyncProducer(strings.Split(brokerList, ","), saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// NotifyStatusChange publishes the event keyed by order ID so per-order
// ordering is preserved within a partition. Errors are logged and swallowed.
func (k *KafkaPublisher) NotifyStatusChange(_ context.Context, _ string, event StatusEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal status event for order %s: %v", event.OrderID, err)
		return
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		log.Printf("Failed to publish status event for order %s: %v", event.OrderID, err)
	}
}

// Close shuts down the underlying producer.
func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
