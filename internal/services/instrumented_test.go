package services

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"gemini-playground/internal/cache"
)

func newInstrumented(t *testing.T, inner Model) (*InstrumentedModel, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewInstrumentedModel(inner, tp.Tracer("test"), mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m, spans, reader
}

func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	counts := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gemini.requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value("operation")
				outcome, _ := dp.Attributes.Value("outcome")
				counts[op.AsString()+"/"+outcome.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func TestInstrumentedModel_RecordsSpansAndCounts(t *testing.T) {
	m, spans, reader := newInstrumented(t, &countingModel{})
	ctx := context.Background()

	m.AskQuestion(ctx, "why?")
	m.EmbedText(ctx, "hello")
	m.SendMessageStream(ctx, nil, "hi", func(string) error { return nil })

	ended := spans.Ended()
	if len(ended) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(ended))
	}
	want := []string{"gemini.ask", "gemini.embed", "gemini.chat_stream"}
	for i, s := range ended {
		if s.Name() != want[i] {
			t.Errorf("span %d: expected %q, got %q", i, want[i], s.Name())
		}
	}

	counts := requestCounts(t, reader)
	for _, key := range []string{"ask/ok", "embed/ok", "chat_stream/ok"} {
		if counts[key] != 1 {
			t.Errorf("expected one %s call, got %d", key, counts[key])
		}
	}
}

func TestInstrumentedModel_MarksFailures(t *testing.T) {
	remoteErr := errors.New("quota exceeded")
	m, spans, reader := newInstrumented(t, &countingModel{err: remoteErr})

	if _, err := m.AskQuestion(context.Background(), "why?"); !errors.Is(err, remoteErr) {
		t.Fatalf("expected remote error to pass through, got %v", err)
	}

	ended := spans.Ended()
	if len(ended) != 1 || ended[0].Status().Code != codes.Error {
		t.Fatalf("expected one errored span, got %+v", ended)
	}
	if counts := requestCounts(t, reader); counts["ask/error"] != 1 {
		t.Fatalf("expected an error count, got %v", counts)
	}
}

func TestInstrumentedModel_CacheHitsSkipRemoteSpans(t *testing.T) {
	inner, spans, _ := newInstrumented(t, &countingModel{})
	m := NewCachedModel(inner, cache.New(cache.NewMemoryBackend()))

	for i := 0; i < 3; i++ {
		m.AskQuestion(context.Background(), "same")
	}

	if n := len(spans.Ended()); n != 1 {
		t.Fatalf("expected one remote span, got %d", n)
	}
}
