package kafkaqueue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kgo "github.com/segmentio/kafka-go"
)

// Handler processes one delivered task signal.
type Handler func(ctx context.Context, taskID uuid.UUID)

// Consumer reads process-task signals from a Kafka topic and hands them to
// a Handler, committing each offset only after the handler returns.
type Consumer struct {
	reader *kgo.Reader
	logger *slog.Logger
}

// NewConsumer creates a Consumer for the given brokers, topic, and consumer
// group.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *Consumer {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})

	return &Consumer{reader: r, logger: logger}
}

// Run fetches signals until ctx is cancelled. Malformed messages are
// committed and dropped so the consumer never wedges on one bad record.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		var msg signalMessage
		if uerr := json.Unmarshal(m.Value, &msg); uerr != nil {
			c.logger.Warn("dropping malformed task signal", "error", uerr)
			c.commit(ctx, m)
			continue
		}
		taskID, perr := uuid.Parse(msg.TaskID)
		if perr != nil {
			c.logger.Warn("dropping task signal with bad ID",
				"task_id", msg.TaskID, "error", perr)
			c.commit(ctx, m)
			continue
		}

		handle(ctx, taskID)
		c.commit(ctx, m)
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) commit(ctx context.Context, m kgo.Message) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.reader.CommitMessages(cctx, m); err != nil {
		c.logger.Error("failed to commit offset", "error", err)
	}
}
