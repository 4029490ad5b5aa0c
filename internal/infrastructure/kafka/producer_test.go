package kafka

import (
	"context"
	"errors"
	"testing"

	"walletbot/internal/domain"
	"walletbot/internal/registry"
	"walletbot/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type memoryWriter struct {
	messages []kafka.Message
	err      error
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *memoryWriter) Close() error { return nil }

func TestTransactionTopicAndHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	writer := &memoryWriter{}
	producer := newProducer(writer, ProducerConfig{})

	err := producer.OnTransaction(context.Background(), domain.TxRecord{
		ChainID: 59144, Account: "0xABC", TxHash: "0x01", Status: domain.TxStatusSuccess,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("messages = %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if msg.Topic != "walletbot-events-59144" || string(msg.Key) != "0xabc" {
		t.Fatalf("topic=%s key=%s", msg.Topic, msg.Key)
	}
	if len(msg.Headers) == 0 || msg.Headers[0].Key != "traceparent" {
		t.Fatalf("headers = %v", msg.Headers)
	}
	decoded, err := streaming.Decode(msg.Value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != streaming.MessageTypeTransaction || len(decoded.TraceID) != 32 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestBalancesFanOutByChain(t *testing.T) {
	writer := &memoryWriter{}
	producer := newProducer(writer, ProducerConfig{TopicPrefix: "wb"})
	err := producer.PublishBalances(context.Background(), []domain.BalanceSnapshot{
		{ChainID: 1, Account: "0xa", Token: "ETH"},
		{ChainID: 8453, Account: "0xa", Token: "USDC"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if writer.messages[0].Topic != "wb-1" || writer.messages[1].Topic != "wb-8453" {
		t.Fatalf("topics = %s, %s", writer.messages[0].Topic, writer.messages[1].Topic)
	}
	if err := producer.PublishBalances(context.Background(), nil); err != nil || len(writer.messages) != 2 {
		t.Fatalf("empty publish wrote messages: %v", err)
	}
}

func TestWithdrawalResolvesChain(t *testing.T) {
	writer := &memoryWriter{}
	producer := newProducer(writer, ProducerConfig{Chains: registry.DefaultChains()})
	if err := producer.PublishWithdrawal(context.Background(), domain.Withdrawal{ID: "9", Chain: "arbitrum_one"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if writer.messages[0].Topic != "walletbot-events-42161" {
		t.Fatalf("topic = %s", writer.messages[0].Topic)
	}
	if err := producer.PublishWithdrawal(context.Background(), domain.Withdrawal{Chain: "nowhere"}); !errors.Is(err, domain.ErrChainNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestWriterErrorPropagates(t *testing.T) {
	writer := &memoryWriter{err: errors.New("leader not available")}
	producer := newProducer(writer, ProducerConfig{})
	if err := producer.OnTransaction(context.Background(), domain.TxRecord{ChainID: 1}); err == nil {
		t.Fatal("expected error")
	}
}

func TestBrokersRequired(t *testing.T) {
	if _, err := NewProducer(ProducerConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
