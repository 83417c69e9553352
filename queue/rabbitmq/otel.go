// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"log/slog"

	"github.com/z5labs/warren"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func logger() *slog.Logger {
	return warren.Logger("github.com/z5labs/warren/queue/rabbitmq")
}

func tracer() trace.Tracer {
	return otel.Tracer("github.com/z5labs/warren/queue/rabbitmq")
}

func meter() metric.Meter {
	return otel.Meter("github.com/z5labs/warren/queue/rabbitmq")
}

type consumerMetrics struct {
	messagesSettled metric.Int64Counter
	reconnects      metric.Int64Counter
}

func initConsumerMetrics(log *slog.Logger) consumerMetrics {
	m := meter()

	messagesSettled, err := m.Int64Counter(
		"messaging.client.messages.settled",
		metric.WithDescription("Total number of RabbitMQ deliveries acknowledged or rejected"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		log.Warn("failed to create messages settled metric", slog.Any("error", err))
	}

	reconnects, err := m.Int64Counter(
		"messaging.client.reconnects",
		metric.WithDescription("Total number of RabbitMQ consumer reconnects"),
		metric.WithUnit("{reconnect}"),
	)
	if err != nil {
		log.Warn("failed to create reconnects metric", slog.Any("error", err))
	}

	return consumerMetrics{
		messagesSettled: messagesSettled,
		reconnects:      reconnects,
	}
}

func (m consumerMetrics) settled(ctx context.Context, queue, outcome string) {
	if m.messagesSettled == nil {
		return
	}
	m.messagesSettled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination.name", queue),
		attribute.String("messaging.rabbitmq.outcome", outcome),
	))
}

func (m consumerMetrics) reconnected(ctx context.Context, queue string, transient bool) {
	if m.reconnects == nil {
		return
	}
	m.reconnects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination.name", queue),
		attribute.Bool("messaging.rabbitmq.transient_error", transient),
	))
}
