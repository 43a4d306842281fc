package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/response"
)

var (
	tracerName  = "github.com/unkn0wn-root/reqstage/internal/telemetry"
	httpHostKey = attribute.Key("http.host")
)

// Instrumenter opens one span per execution run. The zero-config form
// is Noop(), so callers never branch on whether telemetry is on.
type Instrumenter interface {
	Start(ctx context.Context, info RunStart) (context.Context, RunSpan)
	Shutdown(ctx context.Context) error
}

type RunStart struct {
	Request     *reqmodel.Request
	Environment string
}

type RunResult struct {
	Err        error
	StatusCode int
	Via        string
	Timing     response.Timing
}

// RunSpan records execution progress: Phase marks each machine phase
// entered, End closes the span with the terminal outcome.
type RunSpan interface {
	Phase(name string, at time.Time)
	End(result RunResult)
}

type providerOptions struct {
	exporter       sdktrace.SpanExporter
	spanProcessors []sdktrace.SpanProcessor
}

type Option func(*providerOptions)

func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(opts *providerOptions) {
		if proc != nil {
			opts.spanProcessors = append(opts.spanProcessors, proc)
		}
	}
}

func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(opts *providerOptions) {
		if exp != nil {
			opts.exporter = exp
		}
	}
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

func New(cfg Config, opts ...Option) (Instrumenter, error) {
	builder := providerOptions{}
	for _, opt := range opts {
		opt(&builder)
	}

	if !cfg.Enabled() && builder.exporter == nil && len(builder.spanProcessors) == 0 {
		return Noop(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(buildResourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	exporter := builder.exporter
	if exporter == nil && cfg.Enabled() {
		exporter, err = newExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	var tpOpts []sdktrace.TracerProviderOption
	tpOpts = append(tpOpts, sdktrace.WithResource(res))
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, proc := range builder.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func (m *manager) Start(ctx context.Context, info RunStart) (context.Context, RunSpan) {
	if info.Request == nil {
		return ctx, noopSpan{}
	}

	attrs := buildSpanAttributes(info)
	ctx, span := m.tracer.Start(
		ctx,
		spanNameFor(info),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, &runSpan{span: span}
}

func (m *manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	var shutdownErr error
	m.shutdown.Do(func() {
		shutdownErr = m.provider.Shutdown(ctx)
	})
	return shutdownErr
}

type runSpan struct {
	span trace.Span
}

func (rs *runSpan) Phase(name string, at time.Time) {
	if rs == nil || rs.span == nil || name == "" {
		return
	}
	options := []trace.EventOption{
		trace.WithAttributes(attribute.String("reqstage.phase", name)),
	}
	if !at.IsZero() {
		options = append(options, trace.WithTimestamp(at))
	}
	rs.span.AddEvent("reqstage.phase", options...)
}

func (rs *runSpan) End(result RunResult) {
	if rs == nil || rs.span == nil {
		return
	}

	if result.StatusCode > 0 {
		rs.span.SetAttributes(semconv.HTTPStatusCodeKey.Int(result.StatusCode))
	}
	if result.Via != "" {
		rs.span.SetAttributes(attribute.String("reqstage.via", result.Via))
	}
	recordTiming(rs.span, result.Timing)

	statusCode := codes.Unset
	statusMsg := ""

	if result.Err != nil {
		rs.span.RecordError(result.Err)
		statusCode = codes.Error
		statusMsg = result.Err.Error()
	}
	if result.Err == nil && result.StatusCode >= 400 {
		statusCode = codes.Error
		statusMsg = fmt.Sprintf("HTTP %d", result.StatusCode)
	}
	if statusCode == codes.Unset {
		statusCode = codes.Ok
		statusMsg = "OK"
	}

	rs.span.SetStatus(statusCode, statusMsg)
	rs.span.End()
}

func recordTiming(span trace.Span, timing response.Timing) {
	set := func(key string, d time.Duration) {
		if d > 0 {
			span.SetAttributes(attribute.Int64(key, d.Milliseconds()))
		}
	}
	set("reqstage.timing.dns_ms", timing.DNS)
	set("reqstage.timing.tcp_ms", timing.TCP)
	set("reqstage.timing.tls_ms", timing.TLS)
	set("reqstage.timing.ttfb_ms", timing.TTFB)
	set("reqstage.timing.download_ms", timing.Download)
	set("reqstage.timing.total_ms", timing.Total)
}

func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

func (noopInstrumenter) Start(ctx context.Context, _ RunStart) (context.Context, RunSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) Phase(string, time.Time) {}

func (noopSpan) End(RunResult) {}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("telemetry endpoint is required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	client := otlptracegrpc.NewClient(clientOpts...)
	return otlptrace.New(ctx, client)
}

func buildResourceAttributes(cfg Config) []attribute.KeyValue {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "reqstage"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
	}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}

func buildSpanAttributes(info RunStart) []attribute.KeyValue {
	req := info.Request
	attrs := []attribute.KeyValue{}

	if req.Method != "" {
		attrs = append(attrs, semconv.HTTPMethodKey.String(strings.ToUpper(req.Method)))
	}
	if req.URL != "" {
		attrs = append(attrs, semconv.HTTPURLKey.String(req.URL))
		if u, err := url.Parse(req.URL); err == nil {
			if u.Scheme != "" {
				attrs = append(attrs, semconv.HTTPSchemeKey.String(u.Scheme))
			}
			if u.Host != "" {
				attrs = append(attrs, httpHostKey.String(u.Host))
			}
		}
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		attrs = append(attrs, attribute.String("reqstage.request.name", name))
	}
	if env := strings.TrimSpace(info.Environment); env != "" {
		attrs = append(attrs, attribute.String("reqstage.environment", env))
	}
	return attrs
}

func spanNameFor(info RunStart) string {
	req := info.Request
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	if req.Method != "" {
		if u, err := url.Parse(req.URL); err == nil && u.Host != "" {
			return fmt.Sprintf("%s %s", strings.ToUpper(req.Method), u.Host)
		}
		return strings.ToUpper(req.Method)
	}
	return "reqstage.run"
}
