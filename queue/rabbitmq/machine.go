// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"errors"
	"log/slog"

	"github.com/z5labs/warren"
	"github.com/z5labs/warren/health"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func newConsumerTag() string {
	return "warren-" + uuid.NewString()
}

// machine runs a single connection to the broker from dialing until it
// either stops or needs to reconnect. It is not reusable.
type machine struct {
	route   Route
	dialer  Dialer
	log     *slog.Logger
	tracer  trace.Tracer
	metrics consumerMetrics
	health  *health.Binary
	newTag  func() string

	state   State
	pending []event
	done    bool

	stopped           bool
	wasConsuming      bool
	hadTransientError bool

	conn        Connection
	ch          Channel
	consumerTag string
	deliveries  <-chan amqp.Delivery
	connClosed  chan *amqp.Error
	chanClosed  chan *amqp.Error
	cancels     chan string
	delivery    amqp.Delivery
}

// WasConsuming reports whether the run reached the [Consuming] state.
func (m *machine) WasConsuming() bool {
	return m.wasConsuming
}

// HadTransientError reports whether the run ended because a
// delivery hit a transient error.
func (m *machine) HadTransientError() bool {
	return m.hadTransientError
}

// ShouldReconnect is true unless the run ended because it was stopped.
func (m *machine) ShouldReconnect() bool {
	return !m.stopped
}

// run blocks until the machine exits. Cancelling ctx stops the machine
// after the delivery in progress, if any, has been settled.
func (m *machine) run(ctx context.Context) {
	defer m.health.MarkUnhealthy()

	m.handle(ctx, evStart)
	for !m.done {
		m.handle(ctx, m.next(ctx))
	}
}

func (m *machine) handle(ctx context.Context, ev event) {
	m.pending = append(m.pending, ev)
	for len(m.pending) > 0 && !m.done {
		ev := m.pending[0]
		m.pending = m.pending[1:]

		if ev == evStop {
			m.stopped = true
		}

		next, actions := transition(m.state, ev)
		if next != m.state {
			m.log.DebugContext(
				ctx,
				"consumer state changed",
				QueueAttr(m.route.Queue),
				StateAttr(next),
				slog.String("event", ev.String()),
			)
		}
		m.enter(ctx, next)

		for _, a := range actions {
			res := m.do(ctx, a)
			if res != evNone {
				m.pending = append(m.pending, res)
			}
			if m.done {
				break
			}
		}
	}
}

func (m *machine) enter(ctx context.Context, s State) {
	m.state = s
	if s != Consuming {
		m.health.MarkUnhealthy()
		return
	}
	if !m.wasConsuming {
		m.log.InfoContext(
			ctx,
			"started consuming",
			QueueAttr(m.route.Queue),
			ConsumerTagAttr(m.consumerTag),
			slog.Int("prefetch_count", m.route.prefetchCount()),
		)
	}
	m.wasConsuming = true
	m.health.MarkHealthy()
}

func (m *machine) next(ctx context.Context) event {
	var deliveries <-chan amqp.Delivery
	if m.state == Consuming {
		deliveries = m.deliveries
	}
	done := ctx.Done()
	if m.stopped {
		done = nil
	} else if ctx.Err() != nil {
		return m.stop(ctx)
	}

	select {
	case <-done:
		return m.stop(ctx)
	case err := <-m.connClosed:
		m.connClosed = nil
		m.log.WarnContext(ctx, "connection closed unexpectedly", QueueAttr(m.route.Queue), slog.Any("error", err))
		return evConnectionLost
	case err := <-m.chanClosed:
		m.chanClosed = nil
		m.log.WarnContext(ctx, "channel closed unexpectedly", QueueAttr(m.route.Queue), slog.Any("error", err))
		return evChannelLost
	case tag := <-m.cancels:
		m.cancels = nil
		m.log.WarnContext(ctx, "consumer was cancelled by the broker", QueueAttr(m.route.Queue), ConsumerTagAttr(tag))
		return evBrokerCancel
	case d, ok := <-deliveries:
		if !ok {
			m.deliveries = nil
			m.log.WarnContext(ctx, "deliveries closed unexpectedly", QueueAttr(m.route.Queue))
			return evChannelLost
		}
		m.delivery = d
		return evDelivery
	}
}

func (m *machine) stop(ctx context.Context) event {
	m.log.InfoContext(ctx, "stopping consumer", QueueAttr(m.route.Queue), slog.Any("error", ctx.Err()))
	return evStop
}

func (m *machine) do(ctx context.Context, a action) event {
	switch a {
	case actDial:
		return m.dial(ctx)
	case actOpenChannel:
		return m.openChannel(ctx)
	case actSetQoS:
		return m.setQoS(ctx)
	case actConsume:
		return m.consume(ctx)
	case actDispatch:
		return m.dispatch(ctx)
	case actCancelConsumer:
		return m.cancelConsumer(ctx)
	case actCloseChannel:
		return m.closeChannel(ctx)
	case actCloseConnection:
		return m.closeConnection(ctx)
	case actExit:
		m.done = true
	}
	return evNone
}

func (m *machine) dial(ctx context.Context) event {
	m.log.InfoContext(
		ctx,
		"connecting to broker",
		QueueAttr(m.route.Queue),
		slog.String("host", m.route.Server.Host),
		slog.Int("port", m.route.Server.Port),
		slog.Bool("tls", m.route.Server.UsesTLS),
	)

	conn, err := m.dialer.Dial(ctx, m.route.Server)
	if err != nil {
		m.log.ErrorContext(ctx, "failed to connect to broker", QueueAttr(m.route.Queue), slog.Any("error", err))
		return evFailed
	}
	m.conn = conn
	m.connClosed = conn.NotifyClose(make(chan *amqp.Error, 1))
	return evConnected
}

func (m *machine) openChannel(ctx context.Context) event {
	ch, err := m.conn.Channel()
	if err != nil {
		m.log.ErrorContext(ctx, "failed to open channel", QueueAttr(m.route.Queue), slog.Any("error", err))
		return evFailed
	}
	m.ch = ch
	m.chanClosed = ch.NotifyClose(make(chan *amqp.Error, 1))
	m.cancels = ch.NotifyCancel(make(chan string, 1))
	return evChannelOpened
}

func (m *machine) setQoS(ctx context.Context) event {
	err := m.ch.Qos(m.route.prefetchCount(), 0, false)
	if err != nil {
		m.log.ErrorContext(ctx, "failed to set qos", QueueAttr(m.route.Queue), slog.Any("error", err))
		return evFailed
	}
	return evQoSSet
}

func (m *machine) consume(ctx context.Context) event {
	m.consumerTag = m.newTag()

	deliveries, err := m.ch.Consume(m.route.Queue, m.consumerTag, false, false, false, false, nil)
	if err != nil {
		m.log.ErrorContext(
			ctx,
			"failed to start consuming",
			QueueAttr(m.route.Queue),
			ConsumerTagAttr(m.consumerTag),
			slog.Any("error", err),
		)
		return evFailed
	}
	m.deliveries = deliveries
	return evConsumeStarted
}

func (m *machine) dispatch(ctx context.Context) event {
	d := m.delivery
	m.delivery = amqp.Delivery{}

	// a stop must not abandon the delivery being handled
	spanCtx, span := m.tracer.Start(
		context.WithoutCancel(ctx),
		"process "+m.route.Queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.operation.type", "process"),
			attribute.String("messaging.destination.name", m.route.Queue),
			attribute.Int64("messaging.rabbitmq.delivery_tag", int64(d.DeliveryTag)),
		),
	)
	defer span.End()

	log := m.log.With(QueueAttr(m.route.Queue), DeliveryTagAttr(d.DeliveryTag))
	log.DebugContext(spanCtx, "received delivery", slog.Int("body_size", len(d.Body)))

	ack, err := m.route.Handler(spanCtx, headersOf(d.Headers), d.Body)
	if warren.IsTransient(err) {
		m.hadTransientError = true

		span.RecordError(err)
		span.SetStatus(codes.Error, "transient error")
		log.ErrorContext(
			spanCtx,
			"transient error while handling delivery, closing connection so it is redelivered",
			slog.Any("error", err),
		)
		m.metrics.settled(spanCtx, m.route.Queue, "redeliver")
		return evTransient
	}
	if err != nil {
		span.RecordError(err)
		log.ErrorContext(spanCtx, "unrecoverable error while handling delivery", slog.Any("error", err))
		ack = false
	}

	outcome := "ack"
	if ack {
		err = d.Ack(false)
	} else {
		outcome = "reject"
		span.SetStatus(codes.Error, "rejected")
		err = d.Nack(false, false)
	}
	if err != nil {
		span.RecordError(err)
		log.ErrorContext(spanCtx, "failed to settle delivery", slog.String("outcome", outcome), slog.Any("error", err))
		return evChannelLost
	}
	m.metrics.settled(spanCtx, m.route.Queue, outcome)
	return evNone
}

func (m *machine) cancelConsumer(ctx context.Context) event {
	err := m.ch.Cancel(m.consumerTag, false)
	if err != nil {
		m.log.WarnContext(
			ctx,
			"failed to cancel consumer",
			QueueAttr(m.route.Queue),
			ConsumerTagAttr(m.consumerTag),
			slog.Any("error", err),
		)
	}
	return evCancelled
}

func (m *machine) closeChannel(ctx context.Context) event {
	err := m.ch.Close()
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		m.log.WarnContext(ctx, "failed to close channel", QueueAttr(m.route.Queue), slog.Any("error", err))
	}
	return evChannelClosed
}

func (m *machine) closeConnection(ctx context.Context) event {
	if m.conn == nil {
		return evConnectionClosed
	}

	err := m.conn.Close()
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		m.log.WarnContext(ctx, "failed to close connection", QueueAttr(m.route.Queue), slog.Any("error", err))
	}
	return evConnectionClosed
}
