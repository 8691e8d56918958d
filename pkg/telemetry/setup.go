package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// A simple helper that configures OpenTelemetry for the call engine.
func SetupTelemetry(config Config) (*tracesdk.TracerProvider, error) {
	res, err := newResource(config)
	if err != nil {
		return nil, err
	}

	exp, err := newOTLPExporter(config.OTLP)
	if err != nil {
		return nil, err
	}

	tp := newTracerProvider(exp, res)

	// Set the trace provider as the global trace provider.
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(PACKAGE)

	// Context propagation for the OpenTelemetry SDK.
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// Creates a trace provider - an entity that puts the OTel things together,
// i.e. it essentially allows to set a "global tracer" for the whole application.
// Under the hood it creates span processors, i.e. hooks that receive all the
// events and hand them to the exporter while associating each of them with
// our service.
func newTracerProvider(exp *otlptrace.Exporter, res *resource.Resource) *tracesdk.TracerProvider {
	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
	)
}

// Creates an OTLP/HTTP trace exporter.
func newOTLPExporter(config OTLP) (*otlptrace.Exporter, error) {
	options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Host)}
	if !config.Secure {
		options = append(options, otlptracehttp.WithInsecure())
	}

	return otlptracehttp.New(context.Background(), options...)
}

// Creates a new resource to identify the service instance.
func newResource(config Config) (*resource.Resource, error) {
	id := config.ID
	if id == "" {
		id = uuid.NewString()
	}

	name := config.Package
	if name == "" {
		name = PACKAGE
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		attribute.String("ID", id),
	), nil
}
