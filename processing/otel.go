// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package processing

import (
	"context"
	"log/slog"

	"github.com/z5labs/warren"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/z5labs/warren/processing"

func logger() *slog.Logger {
	return warren.Logger(instrumentationName)
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// SubjectAttr returns a slog attribute for the message subject.
func SubjectAttr(subject string) slog.Attr {
	return slog.String("messaging.message.subject", subject)
}

// EncoderTypeAttr
func EncoderTypeAttr(encoderType string) slog.Attr {
	return slog.String("messaging.message.encoder_type", encoderType)
}

type outcome string

const (
	outcomeAcked     outcome = "ack"
	outcomeRejected  outcome = "reject"
	outcomeTransient outcome = "transient"
)

type dispatchMetrics struct {
	processed metric.Int64Counter
}

func initDispatchMetrics(log *slog.Logger) dispatchMetrics {
	processed, err := otel.Meter(instrumentationName).Int64Counter(
		"messaging.client.messages.processed",
		metric.WithDescription("Total number of messages dispatched to a processor"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		log.Warn("failed to create messages processed metric", slog.Any("error", err))
	}
	return dispatchMetrics{processed: processed}
}

func (m dispatchMetrics) record(ctx context.Context, subject string, o outcome) {
	if m.processed == nil {
		return
	}
	m.processed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("messaging.message.subject", subject),
		attribute.String("outcome", string(o)),
	))
}
