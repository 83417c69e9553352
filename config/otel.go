// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config defines the YAML backed configuration types shared by warren applications.
package config

import "time"

// Resource describes the service emitting telemetry.
type Resource struct {
	ServiceName    string `config:"service_name"`
	ServiceVersion string `config:"service_version"`
}

// Batch
type Batch struct {
	ExportInterval time.Duration `config:"export_interval"`
	MaxSize        int           `config:"max_size"`
}

// OTLPConnType
type OTLPConnType string

const (
	OTLPHTTP OTLPConnType = "http"
	OTLPGRPC OTLPConnType = "grpc"
)

// OTLP
type OTLP struct {
	Type   OTLPConnType `config:"type"`
	Target string       `config:"target"`
}

// SpanProcessorType
type SpanProcessorType string

const (
	BatchSpanProcessorType SpanProcessorType = "batch"
)

// SpanProcessor
type SpanProcessor struct {
	Type  SpanProcessorType `config:"type"`
	Batch Batch             `config:"batch"`
}

// SpanSampling
type SpanSampling struct {
	Ratio float64 `config:"ratio"`
}

// ExporterType selects where a signal is exported to.
// Any value other than the ones below disables exporting for the signal,
// except for logs which fall back to JSON on stdout.
type ExporterType string

const (
	OTLPExporterType   ExporterType = "otlp"
	StdoutExporterType ExporterType = "stdout"
	NoneExporterType   ExporterType = "none"
)

// Exporter
type Exporter struct {
	Type ExporterType `config:"type"`
	OTLP OTLP         `config:"otlp"`
}

// Trace
type Trace struct {
	Processor SpanProcessor `config:"processor"`
	Sampling  SpanSampling  `config:"sampling"`
	Exporter  Exporter      `config:"exporter"`
}

// MetricReaderType
type MetricReaderType string

const (
	PeriodicReaderType MetricReaderType = "periodic"
)

type PeriodicReader struct {
	ExportInterval time.Duration `config:"export_interval"`
}

// MetricReader
type MetricReader struct {
	Type     MetricReaderType `config:"type"`
	Periodic PeriodicReader   `config:"periodic"`
}

// Metric
type Metric struct {
	Reader   MetricReader `config:"reader"`
	Exporter Exporter     `config:"exporter"`
}

// LogProcessorType
type LogProcessorType string

const (
	SimpleLogProcessorType LogProcessorType = "simple"
	BatchLogProcessorType  LogProcessorType = "batch"
)

// LogProcessor
type LogProcessor struct {
	Type  LogProcessorType `config:"type"`
	Batch Batch            `config:"batch"`
}

// Log configures the OTel log pipeline.
//
// Levels maps a logger name, or a prefix of one, to the minimum
// level ("debug", "info", "warn" or "error") which will be exported.
type Log struct {
	Processor LogProcessor      `config:"processor"`
	Exporter  Exporter          `config:"exporter"`
	Levels    map[string]string `config:"levels"`
}

// OTel
type OTel struct {
	Resource Resource `config:"resource"`
	Trace    Trace    `config:"trace"`
	Metric   Metric   `config:"metric"`
	Log      Log      `config:"log"`
}
