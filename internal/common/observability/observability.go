package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"clinic-workers/internal/common/logger"
)

// Observability bundles the otel meter and tracer. A nil *Observability is valid
// and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer

	jobCounter       otelmetric.Int64Counter
	jobDuration      otelmetric.Float64Histogram
	notifications    otelmetric.Int64Counter
	dispatchDuration otelmetric.Float64Histogram
	allocations      otelmetric.Int64Counter
}

// New wires a prometheus-backed meter provider and, when jaegerEndpoint is set,
// a batching jaeger trace exporter.
func New(serviceName, jaegerEndpoint string, log logger.Logger) *Observability {
	o := &Observability{tracer: otel.Tracer(serviceName)}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err})
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(o.meterProvider)
		o.meter = o.meterProvider.Meter(serviceName)
		o.registerInstruments()
	}

	if jaegerEndpoint != "" {
		traceExporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
		if err != nil {
			log.Warn("failed to create jaeger exporter", map[string]interface{}{"error": err, "endpoint": jaegerEndpoint})
		} else {
			o.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(traceExporter),
				sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
			)
			otel.SetTracerProvider(o.tracerProvider)
			o.tracer = o.tracerProvider.Tracer(serviceName)
		}
	}

	return o
}

func (o *Observability) registerInstruments() {
	o.jobCounter, _ = o.meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = o.meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	o.notifications, _ = o.meter.Int64Counter(
		"notifications.finished",
		otelmetric.WithDescription("Notification records that reached a terminal status"),
	)
	o.dispatchDuration, _ = o.meter.Float64Histogram(
		"notifications.dispatch.duration",
		otelmetric.WithDescription("Provider call duration"),
		otelmetric.WithUnit("ms"),
	)
	o.allocations, _ = o.meter.Int64Counter(
		"sequence.allocations",
		otelmetric.WithDescription("Sequence numbers issued"),
	)
}

// StartSpan starts a span on the configured tracer. Without a jaeger endpoint
// the global no-op tracer is used.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("clinic-workers")
	if o != nil && o.tracer != nil {
		tracer = o.tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("taskType", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("taskType", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordNotification(ctx context.Context, templateKey, channel, status string) {
	if o == nil || o.notifications == nil {
		return
	}
	o.notifications.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("template", templateKey),
		attribute.String("channel", channel),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordDispatchDuration(ctx context.Context, channel string, duration time.Duration) {
	if o == nil || o.dispatchDuration == nil {
		return
	}
	o.dispatchDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("channel", channel),
	))
}

func (o *Observability) RecordAllocation(ctx context.Context, kind string) {
	if o == nil || o.allocations == nil {
		return
	}
	o.allocations.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("kind", kind)))
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
