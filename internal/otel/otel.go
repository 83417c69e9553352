// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otel initializes the global OTel trace, metric and log providers.
package otel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/z5labs/warren/concurrent"
	"github.com/z5labs/warren/config"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type connCache = concurrent.Cache[string, *grpc.ClientConn]

// Initialize sets the global OTel providers based on the given config.
func Initialize(ctx context.Context, cfg config.OTel) error {
	r, err := newResource(ctx, cfg.Resource)
	if err != nil {
		return err
	}

	conns := concurrent.NewCache[string, *grpc.ClientConn]()

	tp, err := newTracerProvider(ctx, cfg.Trace, r, conns)
	if err != nil {
		return err
	}

	mp, err := newMeterProvider(ctx, cfg.Metric, r, conns)
	if err != nil {
		return err
	}

	lp, err := newLoggerProvider(ctx, cfg.Log, r, conns)
	if err != nil {
		return err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	return runtime.Start(
		runtime.WithMinimumReadMemStatsInterval(time.Second),
	)
}

func newResource(ctx context.Context, cfg config.Resource) (*resource.Resource, error) {
	name := cfg.ServiceName
	if len(name) == 0 {
		name = "unknown_service:go"
		if exe, err := os.Executable(); err == nil {
			name = "unknown_service:" + filepath.Base(exe)
		}
	}

	return resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

func grpcConn(cfg config.OTLP, conns *connCache) (*grpc.ClientConn, error) {
	return conns.GetOr(cfg.Target, func() (*grpc.ClientConn, error) {
		return grpc.NewClient(
			cfg.Target,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	})
}

// UnknownOTLPConnTypeError
type UnknownOTLPConnTypeError struct {
	Type config.OTLPConnType
}

func (e UnknownOTLPConnTypeError) Error() string {
	return fmt.Sprintf("unknown otlp conn type: %q", e.Type)
}

// UnknownSpanProcessorTypeError
type UnknownSpanProcessorTypeError struct {
	Type config.SpanProcessorType
}

func (e UnknownSpanProcessorTypeError) Error() string {
	return fmt.Sprintf("unknown span processor type: %q", e.Type)
}

// UnknownMetricReaderTypeError
type UnknownMetricReaderTypeError struct {
	Type config.MetricReaderType
}

func (e UnknownMetricReaderTypeError) Error() string {
	return fmt.Sprintf("unknown metric reader type: %q", e.Type)
}

// UnknownLogProcessorTypeError
type UnknownLogProcessorTypeError struct {
	Type config.LogProcessorType
}

func (e UnknownLogProcessorTypeError) Error() string {
	return fmt.Sprintf("unknown log processor type: %q", e.Type)
}

func newTracerProvider(ctx context.Context, cfg config.Trace, r *resource.Resource, conns *connCache) (*trace.TracerProvider, error) {
	exp, err := newSpanExporter(ctx, cfg.Exporter, conns)
	if err != nil {
		return nil, err
	}

	if cfg.Processor.Type != config.BatchSpanProcessorType {
		return nil, UnknownSpanProcessorTypeError{Type: cfg.Processor.Type}
	}
	sp := trace.NewBatchSpanProcessor(
		exp,
		trace.WithBatchTimeout(cfg.Processor.Batch.ExportInterval),
		trace.WithMaxExportBatchSize(cfg.Processor.Batch.MaxSize),
	)

	tp := trace.NewTracerProvider(
		trace.WithSpanProcessor(sp),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.Sampling.Ratio))),
		trace.WithResource(r),
	)
	return tp, nil
}

func newSpanExporter(ctx context.Context, cfg config.Exporter, conns *connCache) (trace.SpanExporter, error) {
	if cfg.Type != config.OTLPExporterType {
		return noopSpanExporter{}, nil
	}

	switch cfg.OTLP.Type {
	case config.OTLPGRPC:
		cc, err := grpcConn(cfg.OTLP, conns)
		if err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(cc))
	case config.OTLPHTTP:
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLP.Target))
	default:
		return nil, UnknownOTLPConnTypeError{Type: cfg.OTLP.Type}
	}
}

func newMeterProvider(ctx context.Context, cfg config.Metric, r *resource.Resource, conns *connCache) (*metric.MeterProvider, error) {
	exp, err := newMetricExporter(ctx, cfg.Exporter, conns)
	if err != nil {
		return nil, err
	}

	if cfg.Reader.Type != config.PeriodicReaderType {
		return nil, UnknownMetricReaderTypeError{Type: cfg.Reader.Type}
	}
	reader := metric.NewPeriodicReader(
		exp,
		metric.WithInterval(cfg.Reader.Periodic.ExportInterval),
		metric.WithProducer(runtime.NewProducer()),
	)

	mp := metric.NewMeterProvider(
		metric.WithReader(reader),
		metric.WithResource(r),
	)
	return mp, nil
}

func newMetricExporter(ctx context.Context, cfg config.Exporter, conns *connCache) (metric.Exporter, error) {
	if cfg.Type != config.OTLPExporterType {
		return noopMetricExporter{}, nil
	}

	switch cfg.OTLP.Type {
	case config.OTLPGRPC:
		cc, err := grpcConn(cfg.OTLP, conns)
		if err != nil {
			return nil, err
		}
		return otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(cc))
	case config.OTLPHTTP:
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.OTLP.Target))
	default:
		return nil, UnknownOTLPConnTypeError{Type: cfg.OTLP.Type}
	}
}

func newLoggerProvider(ctx context.Context, cfg config.Log, r *resource.Resource, conns *connCache) (*log.LoggerProvider, error) {
	exp, err := newLogExporter(ctx, cfg.Exporter, conns)
	if err != nil {
		return nil, err
	}

	var p log.Processor
	switch cfg.Processor.Type {
	case config.SimpleLogProcessorType:
		p = log.NewSimpleProcessor(exp)
	case config.BatchLogProcessorType:
		p = log.NewBatchProcessor(
			exp,
			log.WithExportInterval(cfg.Processor.Batch.ExportInterval),
			log.WithExportMaxBatchSize(cfg.Processor.Batch.MaxSize),
		)
	default:
		return nil, UnknownLogProcessorTypeError{Type: cfg.Processor.Type}
	}

	lp := log.NewLoggerProvider(
		log.WithProcessor(newLevelFilter(p, cfg.Levels)),
		log.WithResource(r),
	)
	return lp, nil
}

func newLogExporter(ctx context.Context, cfg config.Exporter, conns *connCache) (log.Exporter, error) {
	if cfg.Type != config.OTLPExporterType {
		exp := &slogExporter{
			handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		}
		return exp, nil
	}

	switch cfg.OTLP.Type {
	case config.OTLPGRPC:
		cc, err := grpcConn(cfg.OTLP, conns)
		if err != nil {
			return nil, err
		}
		return otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(cc))
	case config.OTLPHTTP:
		return otlploghttp.New(ctx, otlploghttp.WithEndpoint(cfg.OTLP.Target))
	default:
		return nil, UnknownOTLPConnTypeError{Type: cfg.OTLP.Type}
	}
}
