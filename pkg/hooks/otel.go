package hooks

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/urlsentry/urlsentry/pkg/duration"
)

// Compile-time interface check.
var _ Hook = (*OTelHook)(nil)

// OTelHook exports pipeline telemetry to an OpenTelemetry collector.
// It keeps one root span for the pipeline's lifetime and records scans,
// verdicts, and policy actions as span events. Scan failures mark the root
// span with an error status code without ending it.
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu       sync.Mutex
	rootSpan trace.Span
	closed   bool
}

// OTelOptions configures the OpenTelemetry hook.
type OTelOptions struct {
	// Endpoint is the OTLP/gRPC endpoint (default "localhost:4317").
	Endpoint string

	// ServiceName for traces (default "urlsentry").
	ServiceName string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// Headers adds headers to the OTLP exporter.
	Headers map[string]string
}

// NewOTelHook creates the hook and starts its root pipeline span.
// Exporter connection failures are surfaced here; once constructed, export
// problems are handled by the batch processor and never block the pipeline.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "urlsentry"
	}

	var grpcOpts []grpc.DialOption
	if opts.Insecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithDialOption(grpcOpts...),
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration.HookTimeout)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		attribute.String("service.component", "scan-pipeline"),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)

	h := &OTelHook{
		opts:           opts,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer("urlsentry/pipeline"),
	}

	_, h.rootSpan = h.tracer.Start(context.Background(), "urlsentry.pipeline",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("service", opts.ServiceName)),
	)

	return h, nil
}

// EventTypes returns the event types this hook exports.
func (h *OTelHook) EventTypes() []EventType {
	return []EventType{EventTypeScan, EventTypeVerdict, EventTypePolicy, EventTypeBaseline}
}

// OnEvent records the event on the root span.
func (h *OTelHook) OnEvent(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.rootSpan == nil {
		return nil
	}

	switch e := event.(type) {
	case ScanEvent:
		h.rootSpan.AddEvent("scan", trace.WithAttributes(
			attribute.String("scan_id", e.ScanID),
			attribute.String("url", e.URL),
			attribute.String("outcome", string(e.Outcome)),
			attribute.Int("severity", e.Severity),
			attribute.Int64("latency_ms", e.Latency.Milliseconds()),
		))
		if e.Outcome == OutcomeFailed {
			h.rootSpan.SetStatus(codes.Error, "classification call failed")
		}
	case VerdictEvent:
		h.rootSpan.AddEvent("verdict", trace.WithAttributes(
			attribute.String("url", e.Verdict.URL),
			attribute.String("classification", string(e.Verdict.Classification)),
			attribute.Int("risk_score", e.Verdict.RiskScore),
			attribute.String("channel", e.Verdict.Channel),
			attribute.Bool("superseded", e.Superseded),
		))
	case PolicyEvent:
		h.rootSpan.AddEvent("policy_action", trace.WithAttributes(
			attribute.String("action", string(e.Action)),
			attribute.String("url", e.URL),
			attribute.Int("severity", e.Severity),
		))
	case BaselineEvent:
		h.rootSpan.AddEvent("baseline_reconciled", trace.WithAttributes(
			attribute.Int("total", e.Stats.Total),
		))
	}
	return nil
}

// Close ends the root span and flushes the exporter.
func (h *OTelHook) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	if h.rootSpan != nil {
		h.rootSpan.End()
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), duration.HookShutdown)
	defer cancel()
	if err := h.tracerProvider.ForceFlush(ctx); err != nil {
		return err
	}
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), duration.HookShutdown)
	defer cancel2()
	return h.tracerProvider.Shutdown(shutdownCtx)
}
