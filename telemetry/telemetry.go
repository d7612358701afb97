// Package telemetry creates OpenTelemetry spans around model calls. Exporter
// setup belongs to the host application: without a configured tracer
// provider the global no-op provider is used.
package telemetry

import (
	"context"

	"github.com/funcn-ai/funcn-sub000/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of every span created here.
const ScopeName = "github.com/funcn-ai/funcn-sub000"

// Attribute keys.
const (
	AttrProvider     = attribute.Key("llm.provider")
	AttrModel        = attribute.Key("llm.model")
	AttrStream       = attribute.Key("llm.stream")
	AttrAttempt      = attribute.Key("llm.attempt")
	AttrInputTokens  = attribute.Key("llm.usage.input_tokens")
	AttrOutputTokens = attribute.Key("llm.usage.output_tokens")
	AttrFinishReason = attribute.Key("llm.finish_reason")
	AttrToolCalls    = attribute.Key("llm.tool_calls")
	AttrErrorKind    = attribute.Key("error.kind")
)

// Tracer returns the tracer of tp, or of the global provider when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(ScopeName)
}

type attemptKey struct{}

// WithAttempt records the 1-based retry attempt in ctx. Spans started from
// the returned context carry it as llm.attempt.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// StartSpan starts a client span. A nil tracer uses the global provider.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = Tracer(nil)
	}
	base := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindClient)}
	if attempt, ok := ctx.Value(attemptKey{}).(int); ok {
		base = append(base, trace.WithAttributes(AttrAttempt.Int(attempt)))
	}
	return tracer.Start(ctx, name, append(base, opts...)...)
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind := core.KindOf(err); kind != core.KindUnknown {
			span.SetAttributes(AttrErrorKind.String(string(kind)))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// CallAttributes describe the request side of a model call.
func CallAttributes(provider, model string, stream bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProvider.String(provider),
		AttrModel.String(model),
		AttrStream.Bool(stream),
	}
}

// RecordUsage annotates span with the known token counts.
func RecordUsage(span trace.Span, u core.Usage) {
	if u.InputTokens != nil {
		span.SetAttributes(AttrInputTokens.Int64(*u.InputTokens))
	}
	if u.OutputTokens != nil {
		span.SetAttributes(AttrOutputTokens.Int64(*u.OutputTokens))
	}
}

// RecordResult annotates span with the outcome of a completed call.
func RecordResult(span trace.Span, finish core.FinishReason, toolCalls int, u core.Usage) {
	span.SetAttributes(
		AttrFinishReason.String(string(finish)),
		AttrToolCalls.Int(toolCalls),
	)
	RecordUsage(span, u)
}
