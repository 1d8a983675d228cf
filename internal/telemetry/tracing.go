/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/timedimension/internal/config"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentationName = "github.com/friendsincode/timedimension"

// Span names. A resolve span holds one expansion span per layer that missed
// the cache.
const (
	SpanResolveTimeline = "timeline.resolve"
	SpanResolveLayer    = "layer.resolve"
	SpanExpand          = "definition.expand"
	SpanExport          = "export.create"
)

// Attribute keys recorded on resolution and export spans.
const (
	AttrLayerID    = attribute.Key("timedim.layer.id")
	AttrTimelineID = attribute.Key("timedim.timeline.id")
	AttrMode       = attribute.Key("timedim.timeline.mode")
	AttrKind       = attribute.Key("timedim.definition.kind")
	AttrPeriod     = attribute.Key("timedim.definition.period")
	AttrWindow     = attribute.Key("timedim.definition.window")
	AttrPoints     = attribute.Key("timedim.points")
	AttrRejected   = attribute.Key("timedim.rejected")
	AttrCached     = attribute.Key("timedim.cached")
	AttrFormat     = attribute.Key("timedim.export.format")
)

// TracerConfig contains configuration for OpenTelemetry tracing.
type TracerConfig struct {
	ServiceVersion string
	Environment    string
	InstanceID     string
	OTLPEndpoint   string // host:port of the collector's gRPC receiver
	Enabled        bool
	SampleRate     float64 // 0.0 to 1.0
}

// TracerConfigFrom builds the tracer settings from process configuration.
func TracerConfigFrom(cfg *config.Config, serviceVersion string) TracerConfig {
	return TracerConfig{
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		InstanceID:     cfg.InstanceID,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}
}

// TracerProvider owns the SDK provider so serve can flush it on shutdown.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	logger   zerolog.Logger
}

// InitTracer installs the global tracer provider. With tracing disabled the
// global provider is a no-op and spans cost nothing.
func InitTracer(ctx context.Context, cfg TracerConfig, logger zerolog.Logger) (*TracerProvider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		logger.Debug().Msg("tracing disabled")
		return &TracerProvider{logger: logger}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		otlptracegrpc.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(serviceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info().
		Str("otlp_endpoint", cfg.OTLPEndpoint).
		Float64("sample_rate", cfg.SampleRate).
		Msg("tracing initialized")
	return &TracerProvider{provider: tp, logger: logger}, nil
}

func serviceAttributes(cfg TracerConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName("timedimension"),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	if cfg.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.InstanceID))
	}
	return attrs
}

// samplerFor maps a 0..1 rate to a parent-respecting sampler.
func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0.0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes buffered spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := tp.provider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	tp.logger.Debug().Msg("tracer provider flushed")
	return nil
}

// StartSpan opens one of the span names above under the service's tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// ExpandAttributes describes a layer definition being expanded.
func ExpandAttributes(kind, period, window string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{AttrKind.String(kind)}
	if period != "" {
		attrs = append(attrs, AttrPeriod.String(period))
	}
	if window != "" {
		attrs = append(attrs, AttrWindow.String(window))
	}
	return attrs
}

// RecordResolution annotates a resolution span with its outcome.
func RecordResolution(span trace.Span, points, rejected int, cached bool) {
	span.SetAttributes(
		AttrPoints.Int(points),
		AttrRejected.Int(rejected),
		AttrCached.Bool(cached),
	)
}

// Fail marks the span as failed and returns err for the caller to pass on.
func Fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
