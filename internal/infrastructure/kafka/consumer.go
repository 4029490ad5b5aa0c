package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"walletbot/internal/infrastructure/telemetry"
	"walletbot/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler receives one decoded event with the producer's trace restored.
type Handler func(ctx context.Context, msg streaming.Message) error

type ConsumerConfig struct {
	Brokers     []string
	TopicPrefix string
	ChainID     uint64
	// GroupID enables committed offsets; without it the consumer reads the
	// topic from the latest offset and never commits.
	GroupID string
}

// Consumer reads the notification topic of one chain.
type Consumer struct {
	reader  messageReader
	topic   string
	chainID uint64
	commit  bool
	tracer  trace.Tracer
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.ChainID == 0 {
		return nil, errors.New("chain id is required")
	}
	topic := topicName(cfg.TopicPrefix, cfg.ChainID)
	readerCfg := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if cfg.GroupID == "" {
		readerCfg.StartOffset = kafka.LastOffset
	}
	return newConsumer(kafka.NewReader(readerCfg), topic, cfg.ChainID, cfg.GroupID != ""), nil
}

func newConsumer(reader messageReader, topic string, chainID uint64, commit bool) *Consumer {
	return &Consumer{
		reader:  reader,
		topic:   topic,
		chainID: chainID,
		commit:  commit,
		tracer:  otel.Tracer("walletbot/kafka"),
	}
}

func (c *Consumer) Topic() string {
	return c.topic
}

// Run feeds messages to handle until ctx is done. Undecodable messages are
// skipped; handler errors are logged and the stream moves on.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	var count uint64
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			slog.Error("kafka fetch error", "topic", c.topic, "err", err)
			continue
		}

		decoded, err := streaming.Decode(message.Value)
		if err != nil {
			slog.Warn("message decode error", "topic", c.topic, "offset", message.Offset, "err", err)
			c.ack(ctx, message)
			continue
		}
		if decoded.ChainID != c.chainID {
			slog.Warn("unexpected chain_id on topic", "topic", c.topic, "chain_id", decoded.ChainID)
		}

		msgCtx := telemetry.ExtractKafkaHeaders(ctx, message.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, "walletbot.consume_event", trace.WithSpanKind(trace.SpanKindConsumer))
		span.SetAttributes(
			attribute.String("message.type", string(decoded.Type)),
			attribute.Int64("chain.id", int64(decoded.ChainID)),
		)
		if err := handle(msgCtx, decoded); err != nil {
			slog.Error("event handler error", "type", decoded.Type, "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		c.ack(ctx, message)
		count++
		if count%100 == 0 {
			slog.Info("event stream stats", "topic", c.topic, "messages", count)
		}
	}
}

func (c *Consumer) ack(ctx context.Context, message kafka.Message) {
	if !c.commit {
		return
	}
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		slog.Warn("kafka commit error", "topic", c.topic, "err", err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func topicName(prefix string, chainID uint64) string {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultTopicPrefix
	}
	return fmt.Sprintf("%s-%d", prefix, chainID)
}
