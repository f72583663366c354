// Package queue carries enrichment tasks over Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"photoingest/internal/enrich"
	"photoingest/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the scheduler uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaScheduler publishes enrichment tasks to a topic.
type KafkaScheduler struct {
	writer MessageWriter
}

func NewKafkaScheduler(cfg models.KafkaConfig) *KafkaScheduler {
	return NewKafkaSchedulerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Broker),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaSchedulerWithWriter(w MessageWriter) *KafkaScheduler {
	return &KafkaScheduler{writer: w}
}

func (s *KafkaScheduler) Schedule(ctx context.Context, task enrich.Task) error {
	const op = "queue.Schedule"

	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(task.ImageID, 10)),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *KafkaScheduler) Close() error {
	return s.writer.Close()
}

// Consumer reads tasks from the topic and hands them to a local scheduler.
type Consumer struct {
	reader MessageReader
	next   enrich.Scheduler
	log    *slog.Logger
}

func NewConsumer(cfg models.KafkaConfig, next enrich.Scheduler, log *slog.Logger) *Consumer {
	return NewConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{cfg.Broker},
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	}), next, log)
}

func NewConsumerWithReader(r MessageReader, next enrich.Scheduler, log *slog.Logger) *Consumer {
	return &Consumer{reader: r, next: next, log: log}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			c.log.Error("error reading message", "error", err)
			continue
		}

		var task enrich.Task
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			c.log.Error("dropping malformed enrichment task", "offset", msg.Offset, "error", err)
			continue
		}
		if err := c.next.Schedule(ctx, task); err != nil {
			if errors.Is(err, enrich.ErrClosed) {
				return nil
			}
			c.log.Error("error scheduling enrichment task", "image_id", task.ImageID, "error", err)
		}
	}
}
