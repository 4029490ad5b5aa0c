package telemetry

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// headerCarrier adapts kafka headers to the propagation.TextMapCarrier
// interface. Keys match case-insensitively.
type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, header := range c.headers {
		if strings.EqualFold(header.Key, key) {
			return string(header.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if strings.EqualFold(c.headers[i].Key, key) {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(c.headers))
	for i, header := range c.headers {
		keys[i] = header.Key
	}
	return keys
}

// InjectKafkaHeaders writes the trace context of ctx into headers.
func InjectKafkaHeaders(ctx context.Context, headers *[]kafka.Header) {
	carrier := &headerCarrier{headers: *headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	*headers = carrier.headers
}

// ExtractKafkaHeaders is the consumer side of InjectKafkaHeaders.
func ExtractKafkaHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &headerCarrier{headers: headers})
}
