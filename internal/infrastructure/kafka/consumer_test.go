package kafka

import (
	"context"
	"errors"
	"testing"

	"walletbot/internal/domain"
	"walletbot/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// queueReader serves queued messages, then blocks until ctx is done.
type queueReader struct {
	queue     []kafka.Message
	committed []int64
	fetchErr  error
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.fetchErr != nil {
		err := r.fetchErr
		r.fetchErr = nil
		return kafka.Message{}, err
	}
	if len(r.queue) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *queueReader) Close() error { return nil }

func TestConsumerRestoresTraceAndCommits(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	writer := &memoryWriter{}
	producer := newProducer(writer, ProducerConfig{})
	err := producer.OnTransaction(context.Background(), domain.TxRecord{
		ChainID: 59144, Account: "0xabc", TxHash: "0x02", Status: domain.TxStatusSuccess,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	produced := writer.messages[0]
	produced.Offset = 7

	reader := &queueReader{
		fetchErr: errors.New("broker hiccup"),
		queue: []kafka.Message{
			{Offset: 6, Value: []byte("{not json")},
			produced,
		},
	}
	consumer := newConsumer(reader, "walletbot-events-59144", 59144, true)

	ctx, cancel := context.WithCancel(context.Background())
	var got []streaming.Message
	var traceID string
	err = consumer.Run(ctx, func(msgCtx context.Context, msg streaming.Message) error {
		got = append(got, msg)
		traceID = trace.SpanContextFromContext(msgCtx).TraceID().String()
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(got) != 1 || got[0].TxHash != "0x02" {
		t.Fatalf("got = %+v", got)
	}
	if traceID != got[0].TraceID {
		t.Fatalf("trace %s, message trace %s", traceID, got[0].TraceID)
	}
	if len(reader.committed) != 2 || reader.committed[0] != 6 || reader.committed[1] != 7 {
		t.Fatalf("committed = %v", reader.committed)
	}
}

func TestConsumerWithoutGroupNeverCommits(t *testing.T) {
	payload, err := streaming.Encode(streaming.FromBalance(domain.BalanceSnapshot{ChainID: 8453, Account: "0xabc", Token: "USDC"}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	reader := &queueReader{queue: []kafka.Message{{Value: payload}}}
	consumer := newConsumer(reader, "walletbot-events-8453", 8453, false)

	ctx, cancel := context.WithCancel(context.Background())
	handlerErr := errors.New("sink down")
	calls := 0
	err = consumer.Run(ctx, func(context.Context, streaming.Message) error {
		calls++
		cancel()
		return handlerErr
	})
	if err != nil || calls != 1 || len(reader.committed) != 0 {
		t.Fatalf("err = %v calls = %d committed = %v", err, calls, reader.committed)
	}
}

func TestNewConsumerValidates(t *testing.T) {
	if _, err := NewConsumer(ConsumerConfig{ChainID: 1}); err == nil {
		t.Fatal("expected brokers error")
	}
	if _, err := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatal("expected chain id error")
	}
	if got := topicName("", 10); got != "walletbot-events-10" {
		t.Fatalf("topic = %s", got)
	}
}
