package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"live-quiz-service/internal/domain"
)

// NewAsyncProducer builds the producer used by EventExporter.
func NewAsyncProducer(brokers []string) (sarama.AsyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return producer, nil
}

// EventExporter forwards every broadcast event to a Kafka topic, keyed by event type.
// Delivery is best effort: a full producer buffer drops the event.
type EventExporter struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewEventExporter(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *EventExporter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &EventExporter{
		producer: producer,
		topic:    topic,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go e.drainErrors()
	return e
}

func (e *EventExporter) Publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("encoding event for kafka", "type", event.Type, "error", err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: e.topic,
		Key:   sarama.StringEncoder(event.Type),
		Value: sarama.ByteEncoder(data),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.producer.Input() <- msg:
	default:
		e.logger.Warn("kafka producer busy, dropping event", "type", event.Type)
	}
}

// Close flushes buffered messages and stops the producer.
func (e *EventExporter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := e.producer.Close()
	<-e.done
	return err
}

func (e *EventExporter) drainErrors() {
	defer close(e.done)
	for perr := range e.producer.Errors() {
		e.logger.Error("kafka delivery failed", "topic", e.topic, "error", perr.Err)
	}
}
