package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"gemini-playground/internal/models"
)

// InstrumentedModel records a span, a call counter and a latency histogram
// for every call that reaches the wrapped Model.
type InstrumentedModel struct {
	next     Model
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

var _ Model = (*InstrumentedModel)(nil)

func NewInstrumentedModel(next Model, tracer trace.Tracer, meter metric.Meter) (*InstrumentedModel, error) {
	calls, err := meter.Int64Counter(
		"gemini.requests",
		metric.WithDescription("Gemini API calls by operation and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"gemini.request.duration",
		metric.WithDescription("Gemini API call duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &InstrumentedModel{next: next, tracer: tracer, calls: calls, duration: duration}, nil
}

func (m *InstrumentedModel) observe(ctx context.Context, op string, fn func(ctx context.Context, span trace.Span) error) error {
	ctx, span := m.tracer.Start(ctx, "gemini."+op)
	defer span.End()

	start := time.Now()
	err := fn(ctx, span)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	m.calls.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	return err
}

func (m *InstrumentedModel) SendMessage(ctx context.Context, history []models.ChatTurn, message string) (reply string, err error) {
	err = m.observe(ctx, "chat", func(ctx context.Context, span trace.Span) error {
		span.SetAttributes(attribute.Int("chat.history_turns", len(history)))
		reply, err = m.next.SendMessage(ctx, history, message)
		return err
	})
	return reply, err
}

func (m *InstrumentedModel) SendMessageStream(ctx context.Context, history []models.ChatTurn, message string, onChunk func(string) error) (reply string, err error) {
	err = m.observe(ctx, "chat_stream", func(ctx context.Context, span trace.Span) error {
		chunks := 0
		reply, err = m.next.SendMessageStream(ctx, history, message, func(chunk string) error {
			chunks++
			return onChunk(chunk)
		})
		span.SetAttributes(
			attribute.Int("chat.history_turns", len(history)),
			attribute.Int("chat.chunks", chunks),
		)
		return err
	})
	return reply, err
}

func (m *InstrumentedModel) CaptionImage(ctx context.Context, prompt string, image []byte, mimeType string) (caption string, err error) {
	err = m.observe(ctx, "caption", func(ctx context.Context, span trace.Span) error {
		span.SetAttributes(
			attribute.String("image.mime_type", mimeType),
			attribute.Int("image.bytes", len(image)),
		)
		caption, err = m.next.CaptionImage(ctx, prompt, image, mimeType)
		return err
	})
	return caption, err
}

func (m *InstrumentedModel) EmbedText(ctx context.Context, text string) (values []float32, err error) {
	err = m.observe(ctx, "embed", func(ctx context.Context, span trace.Span) error {
		values, err = m.next.EmbedText(ctx, text)
		span.SetAttributes(attribute.Int("embedding.dimensions", len(values)))
		return err
	})
	return values, err
}

func (m *InstrumentedModel) AskQuestion(ctx context.Context, question string) (answer string, err error) {
	err = m.observe(ctx, "ask", func(ctx context.Context, span trace.Span) error {
		answer, err = m.next.AskQuestion(ctx, question)
		return err
	})
	return answer, err
}
