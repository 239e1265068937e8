package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTestTracerWithPropagator(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})
	return exporter
}

func TestStartPipelineSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
	}()

	ctx, span := StartPipelineSpan(context.Background(), "transform")
	defer span.End()

	if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
		t.Error("expected valid span in context")
	}

	span.End()
	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}
	if spans[0].Name != "pipeline.transform" {
		t.Errorf("expected span name 'pipeline.transform', got %q", spans[0].Name)
	}
}

func TestStartTransformerSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
	}()

	_, span := StartTransformerSpan(context.Background(), "js-babel", "transform")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}
	if spans[0].Name != "transformer.js-babel.transform" {
		t.Errorf("expected span name 'transformer.js-babel.transform', got %q", spans[0].Name)
	}

	found := map[string]bool{}
	for _, attr := range spans[0].Attributes {
		found[string(attr.Key)] = true
	}
	if !found["transformer.name"] {
		t.Error("expected transformer.name attribute")
	}
	if !found["transformer.hook"] {
		t.Error("expected transformer.hook attribute")
	}
}

func TestStartFarmDispatchSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
	}()

	_, span := StartFarmDispatchSpan(context.Background(), "js")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}
	if spans[0].Name != "farm.dispatch" {
		t.Errorf("expected span name 'farm.dispatch', got %q", spans[0].Name)
	}
	if spans[0].SpanKind != trace.SpanKindClient {
		t.Errorf("expected SpanKindClient, got %v", spans[0].SpanKind)
	}
}

func TestInjectHeaders(t *testing.T) {
	setupTestTracerWithPropagator(t)

	ctx, span := Tracer().Start(context.Background(), "test")
	defer span.End()

	req := httptest.NewRequest("POST", "/farm/dispatch", nil)
	InjectHeaders(ctx, req)

	tp2 := req.Header.Get("traceparent")
	if tp2 == "" {
		t.Error("expected traceparent header to be injected")
	}
}

func TestSetAssetRequestAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
	}()

	ctx, span := Tracer().Start(context.Background(), "test")
	SetAssetRequestAttributes(ctx, "req-123", "src/index.js", "js")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}

	attrs := map[string]interface{}{}
	for _, attr := range spans[0].Attributes {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}

	if attrs["request.id"] != "req-123" {
		t.Errorf("expected request.id 'req-123', got %v", attrs["request.id"])
	}
	if attrs["request.file_path"] != "src/index.js" {
		t.Errorf("expected request.file_path, got %v", attrs["request.file_path"])
	}
}

func TestSetTransformResultAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
	}()

	ctx, span := Tracer().Start(context.Background(), "test")
	SetTransformResultAttributes(ctx, false, 1, 3)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}

	attrs := map[string]interface{}{}
	for _, attr := range spans[0].Attributes {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}

	if attrs["result.assets_emitted"] != int64(1) {
		t.Errorf("expected result.assets_emitted 1, got %v", attrs["result.assets_emitted"])
	}
	if attrs["result.dependencies_emitted"] != int64(3) {
		t.Errorf("expected result.dependencies_emitted 3, got %v", attrs["result.dependencies_emitted"])
	}
}

func TestRecordError_NilDoesNotPanic(t *testing.T) {
	RecordError(context.Background(), nil)
}

func TestRecordError_RecordsOnSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
	}()

	ctx, span := Tracer().Start(context.Background(), "test")
	RecordError(ctx, errors.New("test error"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}

	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
}

func TestInjectHeaders_WithHTTPRequest(t *testing.T) {
	setupTestTracerWithPropagator(t)

	ctx, span := Tracer().Start(context.Background(), "parent")
	defer span.End()

	req, _ := http.NewRequest("POST", "https://farm.internal/dispatch", nil)
	InjectHeaders(ctx, req)

	traceparent := req.Header.Get("traceparent")
	if traceparent == "" {
		t.Fatal("expected traceparent header")
	}

	parentTraceID := span.SpanContext().TraceID().String()
	if len(traceparent) < 55 {
		t.Fatalf("traceparent too short: %s", traceparent)
	}
	extractedTraceID := traceparent[3:35]
	if extractedTraceID != parentTraceID {
		t.Errorf("expected trace ID %s in traceparent, got %s", parentTraceID, extractedTraceID)
	}
}
