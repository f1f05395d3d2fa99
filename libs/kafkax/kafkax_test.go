package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "booking.appointment.created.v1", Key: []byte("apt-1")})
	if meta.EventID != "apt-1" || meta.EventType != "booking.appointment.created.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	meta = ExtractEventMeta(kafka.Message{
		Topic:   "t",
		Headers: []kafka.Header{{Key: "event_id", Value: []byte("evt-9")}, {Key: "event_type", Value: []byte("x")}},
	})
	if meta.EventID != "evt-9" || meta.EventType != "x" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestEventMetaHeadersRoundTrip(t *testing.T) {
	in := EventMeta{EventID: "evt-1", EventType: "booking.appointment.cancelled.v1", AggregateType: "appointment"}
	out := ExtractEventMeta(kafka.Message{Topic: "other", Key: []byte("k"), Headers: in.Headers()})
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}
	if got := (EventMeta{EventID: "evt-2"}).Headers(); len(got) != 1 || got[0].Key != HeaderEventID {
		t.Fatalf("empty fields must be omitted, got %+v", got)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "event_id", Value: []byte("1")}})
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header")
	}

	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	if got := trace.SpanContextFromContext(out).TraceID(); got != traceID {
		t.Fatalf("expected trace id %s, got %s", traceID, got)
	}
}
