package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/api/v1/layers/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/layers/abc", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}

	body := scrape(t)
	want := `timedim_api_requests_total{endpoint="/api/v1/layers/{id}",method="GET",status="418"}`
	if !strings.Contains(body, want) {
		t.Fatalf("metrics output missing %s", want)
	}
}

func TestHandlerExposesDomainMetrics(t *testing.T) {
	GridPointsGenerated.Add(4)
	GridBuildsTotal.WithLabelValues("ok").Inc()

	body := scrape(t)
	for _, name := range []string{"timedim_grid_points_generated_total", "timedim_grid_builds_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	data, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(data)
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_, span := StartSpan(context.Background(), SpanResolveLayer)
	defer span.End()
	if span.SpanContext().IsSampled() {
		t.Fatal("disabled tracing produced a sampled span")
	}
	if err := Fail(span, nil); err != nil {
		t.Fatalf("Fail(nil) = %v", err)
	}
}

func TestResolutionSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, parent := StartSpan(context.Background(), SpanResolveTimeline, AttrTimelineID.String("tl-1"))
	_, child := StartSpan(ctx, SpanExpand, ExpandAttributes("interval", "PT1H", "")...)
	RecordResolution(child, 9, 0, false)
	child.End()
	wantErr := errors.New("grid too large")
	if err := Fail(parent, wantErr); err != wantErr {
		t.Fatalf("Fail returned %v", err)
	}
	parent.End()

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(ended))
	}
	expand, resolve := ended[0], ended[1]
	if expand.Name() != SpanExpand || expand.Parent().SpanID() != resolve.SpanContext().SpanID() {
		t.Fatalf("expand span %q not nested under %q", expand.Name(), resolve.Name())
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range expand.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrKind].AsString() != "interval" || attrs[AttrPeriod].AsString() != "PT1H" || attrs[AttrPoints].AsInt64() != 9 {
		t.Fatalf("expand attributes = %v", expand.Attributes())
	}
	if _, ok := attrs[AttrWindow]; ok {
		t.Fatal("empty window recorded as an attribute")
	}
	if resolve.Status().Code != codes.Error || resolve.Status().Description != "grid too large" {
		t.Fatalf("resolve status = %+v", resolve.Status())
	}
}

func TestServiceAttributes(t *testing.T) {
	attrs := serviceAttributes(TracerConfig{ServiceVersion: "1.2.3", Environment: "production", InstanceID: "node-a"})
	if len(attrs) != 4 {
		t.Fatalf("attributes = %v", attrs)
	}
	if attrs := serviceAttributes(TracerConfig{ServiceVersion: "dev"}); len(attrs) != 2 {
		t.Fatalf("optional attributes set without config: %v", attrs)
	}
}

func TestSamplerFor(t *testing.T) {
	for rate, want := range map[float64]string{1: "AlwaysOnSampler", 0: "AlwaysOffSampler", 0.5: "TraceIDRatioBased"} {
		if desc := samplerFor(rate).Description(); !strings.Contains(desc, want) {
			t.Errorf("samplerFor(%v) = %s, want it to contain %s", rate, desc, want)
		}
	}
}

func TestTracingMiddlewarePassesThrough(t *testing.T) {
	h := TracingMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Body.String() != "ok" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
