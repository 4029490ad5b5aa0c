package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"walletbot/internal/domain"
	"walletbot/internal/infrastructure/telemetry"
	"walletbot/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTopicPrefix = "walletbot-events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ChainResolver maps exchange withdrawal chain names to registry chains.
type ChainResolver interface {
	Chain(name string) (domain.Chain, error)
}

// Producer publishes transaction, balance and withdrawal events to
// <prefix>-<chainID> topics. It implements application.TxObserver,
// application.BalancePublisher and application.WithdrawalPublisher.
type Producer struct {
	writer messageWriter
	prefix string
	chains ChainResolver
	tracer trace.Tracer
}

type ProducerConfig struct {
	Brokers     []string
	TopicPrefix string
	Chains      ChainResolver
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           500 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, cfg), nil
}

func newProducer(writer messageWriter, cfg ProducerConfig) *Producer {
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}
	return &Producer{
		writer: writer,
		prefix: cfg.TopicPrefix,
		chains: cfg.Chains,
		tracer: otel.Tracer("walletbot/kafka"),
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// OnTransaction publishes a submitted transaction keyed by account so one
// account's events stay ordered within a partition.
func (p *Producer) OnTransaction(ctx context.Context, record domain.TxRecord) error {
	return p.publish(ctx, "walletbot.publish_transaction", []streaming.Message{streaming.FromTransaction(record)},
		attribute.String("tx.hash", record.TxHash),
		attribute.String("tx.status", string(record.Status)),
	)
}

func (p *Producer) PublishBalances(ctx context.Context, snapshots []domain.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	messages := make([]streaming.Message, len(snapshots))
	for i, snap := range snapshots {
		messages[i] = streaming.FromBalance(snap)
	}
	return p.publish(ctx, "walletbot.publish_balances", messages, attribute.Int("balance.count", len(snapshots)))
}

func (p *Producer) PublishWithdrawal(ctx context.Context, withdrawal domain.Withdrawal) error {
	if p.chains == nil {
		return errors.New("withdrawal publishing needs a chain resolver")
	}
	chain, err := p.chains.Chain(withdrawal.Chain)
	if err != nil {
		return err
	}
	return p.publish(ctx, "walletbot.publish_withdrawal", []streaming.Message{streaming.FromWithdrawal(chain.ChainID, withdrawal)},
		attribute.String("withdrawal.id", withdrawal.ID),
	)
}

func (p *Producer) publish(ctx context.Context, spanName string, messages []streaming.Message, attrs ...attribute.KeyValue) (err error) {
	ctx, span := p.tracer.Start(telemetry.EnsureTrace(ctx), spanName, trace.WithSpanKind(trace.SpanKindProducer), trace.WithAttributes(attrs...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	traceID := telemetry.TraceID(ctx)
	out := make([]kafka.Message, 0, len(messages))
	for _, msg := range messages {
		msg.TraceID = traceID
		payload, err := streaming.Encode(msg)
		if err != nil {
			return err
		}
		headers := make([]kafka.Header, 0, 2)
		telemetry.InjectKafkaHeaders(ctx, &headers)
		out = append(out, kafka.Message{
			Topic:   p.topicForChain(msg.ChainID),
			Key:     []byte(strings.ToLower(msg.Account)),
			Value:   payload,
			Headers: headers,
		})
	}
	return p.writer.WriteMessages(ctx, out...)
}

func (p *Producer) topicForChain(chainID uint64) string {
	return topicName(p.prefix, chainID)
}
