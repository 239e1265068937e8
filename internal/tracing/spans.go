package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartPipelineSpan creates a child span for a phase of the transform
// pipeline runner (parse, transform, generate, postProcess).
func StartPipelineSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pipeline."+phase,
		trace.WithAttributes(attribute.String("pipeline.phase", phase)),
	)
}

// StartTransformerSpan creates a child span for a single transformer hook
// invocation within a pipeline run.
func StartTransformerSpan(ctx context.Context, transformerName, hook string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "transformer."+transformerName+"."+hook,
		trace.WithAttributes(
			attribute.String("transformer.name", transformerName),
			attribute.String("transformer.hook", hook),
		),
	)
}

// StartFarmDispatchSpan creates a child span for a worker-farm dispatch of
// a transform chain.
func StartFarmDispatchSpan(ctx context.Context, chainKey string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "farm.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("farm.chain", chainKey),
		),
	)
}

// InjectHeaders injects the current trace context (traceparent, tracestate)
// into the given HTTP request headers so an out-of-process farm worker can
// continue the trace.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// SetAssetRequestAttributes adds request-node attributes to the current
// span: the content-derived request id, the file path or inline-code
// marker, and the resolved pipeline extension.
func SetAssetRequestAttributes(ctx context.Context, requestID, filePath, pipelineExt string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.file_path", filePath),
		attribute.String("request.pipeline_ext", pipelineExt),
	)
}

// SetTransformResultAttributes adds result attributes to the current span:
// whether the request was served from cache, and how many assets and
// dependency requests were emitted.
func SetTransformResultAttributes(ctx context.Context, cacheHit bool, assetsEmitted, dependenciesEmitted int) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Bool("result.cache_hit", cacheHit),
		attribute.Int("result.assets_emitted", assetsEmitted),
		attribute.Int("result.dependencies_emitted", dependenciesEmitted),
	)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
