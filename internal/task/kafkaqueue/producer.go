// Package kafkaqueue provides a Kafka-backed task queue for deployments
// where the API and the workers run as separate processes. Messages carry
// only the task ID; the worker loads the task row when it picks the message
// up, and commits the offset only after processing, giving at-least-once
// delivery end to end.
package kafkaqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kgo "github.com/segmentio/kafka-go"
)

// signalMessage is the wire form of one process-task signal.
type signalMessage struct {
	TaskID string `json:"task_id"`
}

// Producer publishes process-task signals to a Kafka topic. It satisfies
// task.QueueWriter.
type Producer struct {
	writer  *kgo.Writer
	timeout time.Duration
}

// NewProducer creates a Producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}

	return &Producer{
		writer:  w,
		timeout: 3 * time.Second,
	}
}

// Enqueue publishes one task signal. Keyed by task ID so signals for the
// same task stay ordered.
func (p *Producer) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	b, err := json.Marshal(signalMessage{TaskID: taskID.String()})
	if err != nil {
		return err
	}

	// Bounded wait so the API doesn't hang when Kafka is down.
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(taskID.String()),
		Value: b,
		Time:  time.Now(),
	})
}

// Close closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
