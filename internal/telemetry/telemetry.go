// Package telemetry wires OpenTelemetry traces, metrics and logs and hands
// back a zap logger bridged into the log pipeline.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config for the OTEL setup.
type Config struct {
	ServiceName string            // e.g., "ops-harvester"
	Exporter    string            // "stdout", "otlp" or "none"
	Endpoint    string            // OTLP endpoint, e.g., "localhost:4317" (required for "otlp")
	Protocol    string            // "grpc" or "http" (default "grpc" for "otlp")
	Insecure    bool              // Disable TLS for OTLP (development only)
	Headers     map[string]string // Custom headers for OTLP, e.g., for auth
	LogFile     string            // Path for JSON logs
	LogLevel    string            // "debug", "info", "warn", "error" (default "info")
}

// Init sets up providers and returns the scoped tracer, meter, bridged
// logger and a shutdown func flushing all three pipelines.
func Init(
	cfg Config,
) (trace.Tracer, metric.Meter, *zap.SugaredLogger, func(context.Context) error, error) {
	ctx := context.Background()

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	if cfg.Exporter == "otlp" && cfg.Protocol == "" {
		cfg.Protocol = "grpc"
	}

	var tpOpts []sdktrace.TracerProviderOption
	var mpOpts []sdkmetric.Option
	var lpOpts []sdklog.LoggerProviderOption

	switch cfg.Exporter {
	case "none":
		// Providers without exporters; spans, metrics and log records are
		// dropped at the SDK boundary.
	case "stdout", "otlp":
		traceExp, err := newTraceExporter(ctx, cfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		metricExp, err := newMetricExporter(ctx, cfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		logExp, err := newLogExporter(ctx, cfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(traceExp))
		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
		lpOpts = append(lpOpts, sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)))
	default:
		return nil, nil, nil, nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(append(tpOpts, sdktrace.WithResource(res))...)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(append(mpOpts, sdkmetric.WithResource(res))...)
	otel.SetMeterProvider(mp)

	lp := sdklog.NewLoggerProvider(append(lpOpts, sdklog.WithResource(res))...)
	global.SetLoggerProvider(lp)

	tracer := otel.Tracer(cfg.ServiceName)
	meter := otel.Meter(cfg.ServiceName)
	logger := buildLogger(cfg)

	shutdown := func(ctx context.Context) error {
		var shutdownErr error
		if err := tp.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		if err := lp.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		if err := mp.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		_ = logger.Sync()
		return shutdownErr
	}

	return tracer, meter, logger, shutdown, nil
}

func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Exporter == "stdout" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint required")
	}
	var client otlptrace.Client
	switch cfg.Protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		client = otlptracegrpc.NewClient(opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		client = otlptracehttp.NewClient(opts...)
	default:
		return nil, fmt.Errorf("invalid protocol: %s", cfg.Protocol)
	}
	return otlptrace.New(ctx, client)
}

func newMetricExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	if cfg.Exporter == "stdout" {
		return stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	}
	switch cfg.Protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("invalid protocol: %s", cfg.Protocol)
	}
}

func newLogExporter(ctx context.Context, cfg Config) (sdklog.Exporter, error) {
	if cfg.Exporter == "stdout" {
		return stdoutlog.New()
	}
	switch cfg.Protocol {
	case "grpc":
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
		}
		return otlploggrpc.New(ctx, opts...)
	case "http":
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
		}
		return otlploghttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("invalid protocol: %s", cfg.Protocol)
	}
}

// buildLogger tees a rotating JSON file core with the OTEL bridge core.
func buildLogger(cfg Config) *zap.SugaredLogger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err != nil {
			level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	}

	var cores []zapcore.Core
	if cfg.LogFile != "" {
		jsonConfig := zap.NewProductionEncoderConfig()
		jsonConfig.TimeKey = "timestamp"
		jsonConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		jsonWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonConfig), jsonWriter, level))
	}

	if cfg.Exporter != "none" {
		cores = append(cores, otelzap.NewCore(
			cfg.ServiceName,
			otelzap.WithLoggerProvider(global.GetLoggerProvider()),
		))
	}

	if len(cores) == 0 {
		return zap.NewNop().Sugar()
	}
	return zap.New(zapcore.NewTee(cores...)).Sugar()
}
