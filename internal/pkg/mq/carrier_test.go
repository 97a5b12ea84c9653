package mq_test

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"lensmart/internal/pkg/mq"
)

func TestKafkaHeaderCarrierSetOverwrites(t *testing.T) {
	c := mq.KafkaHeaderCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	if len(c) != 1 || c.Get("traceparent") != "b" {
		t.Fatalf("carrier = %+v", c)
	}
	if got := c.Keys(); len(got) != 1 || got[0] != "traceparent" {
		t.Errorf("keys = %v", got)
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	msg := kafka.Message{Value: []byte("{}")}
	mq.InjectTraceContext(ctx, &msg)

	got := trace.SpanContextFromContext(mq.ExtractTraceContext(context.Background(), msg))
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Errorf("trace id = %s, want %s", got.TraceID(), span.SpanContext().TraceID())
	}
}

func TestBrokerList(t *testing.T) {
	cfg := mq.KafkaConfig{Brokers: "a:9092, b:9092,"}
	if got := cfg.BrokerList(); len(got) != 2 || got[1] != "b:9092" {
		t.Errorf("brokers = %v", got)
	}
	if (mq.KafkaConfig{}).Enabled() {
		t.Error("empty config should be disabled")
	}
}
