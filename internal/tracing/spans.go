package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	AttrScope         = "scope.id"
	AttrScopeKind     = "scope.kind"
	AttrNamespaceID   = "namespace.id"
	AttrGeneration    = "namespace.generation"
	AttrArtifactCount = "artifact.count"
	AttrRefreshMode   = "refresh.mode"
	AttrTxID          = "tx.id"
	AttrResolveName   = "resolve.name"
	AttrResolveOwner  = "resolve.owner"
	AttrDiscarded     = "build.discarded"
	AttrDeployChanged = "deploy.changed"
	AttrErrorMessage  = "error.message"
)

// Span names.
const (
	SpanBuild    = "registry.build"
	SpanRefresh  = "registry.refresh"
	SpanRestore  = "registry.restore"
	SpanDeploy   = "deploy.apply"
	SpanUndeploy = "deploy.remove"

	SpanResolveModule   = "resolve.module"
	SpanResolveResource = "resolve.resource"
)

// Event names recorded on spans.
const (
	EventSourceFetched = "source.fetched"
	EventPublished     = "namespace.published"
	EventRetired       = "namespace.retired"
)

// Start opens a span on tracer. A nil tracer yields a non-recording span
// so callers never need to branch.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// Finish records err (if any) as the span outcome and ends the span.
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
