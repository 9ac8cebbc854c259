package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for every span of the sync engine.
const TracerName = "github.com/teemow/inboxledger"

// Span attribute keys.
const (
	SpanAttrWorkflow  = "sync.workflow"
	SpanAttrRunID     = "sync.run_id"
	SpanAttrItemKind  = "sync.item_kind"
	SpanAttrItemID    = "sync.item_id"
	SpanAttrService   = "google.service"
	SpanAttrOperation = "google.operation"
	SpanAttrAccount   = "google.account"
	SpanAttrTab       = "sheets.tab"
	SpanAttrRows      = "sheets.rows"
)

// SpanAttributeBuilder helps construct span attributes with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

func (b *SpanAttributeBuilder) WithWorkflow(workflow string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrWorkflow, workflow))
	return b
}

func (b *SpanAttributeBuilder) WithRun(runID string) *SpanAttributeBuilder {
	if runID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrRunID, runID))
	}
	return b
}

func (b *SpanAttributeBuilder) WithService(service, operation string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	return b
}

// WithAccount adds the account name. The default account is omitted.
func (b *SpanAttributeBuilder) WithAccount(account string) *SpanAttributeBuilder {
	if account != "" && account != "default" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrAccount, account))
	}
	return b
}

func (b *SpanAttributeBuilder) WithItem(kind, id string) *SpanAttributeBuilder {
	if kind != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrItemKind, kind))
	}
	if id != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrItemID, id))
	}
	return b
}

func (b *SpanAttributeBuilder) WithSheet(tab string, rows int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrTab, tab),
		attribute.Int(SpanAttrRows, rows),
	)
	return b
}

func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a span on the global tracer provider. The caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRunSpan starts the root span of one workflow run.
func StartRunSpan(ctx context.Context, workflow, runID string) (context.Context, trace.Span) {
	attrs := NewSpanAttributeBuilder().WithWorkflow(workflow).WithRun(runID).Build()
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "run."+workflow,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartItemSpan starts a span for one email or document.
func StartItemSpan(ctx context.Context, kind, id string) (context.Context, trace.Span) {
	attrs := NewSpanAttributeBuilder().WithItem(kind, id).Build()
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "item."+kind, trace.WithAttributes(attrs...))
}

// StartGoogleAPISpan starts a client span for a backend call.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// EndSpan sets the status from err and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		SetSpanError(span, err)
	} else {
		SetSpanSuccess(span)
	}
	span.End()
}

// GetTraceID returns the trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
