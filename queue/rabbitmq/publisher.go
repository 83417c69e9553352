// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/z5labs/warren/message"
	"github.com/z5labs/warren/processing"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/z5labs/sdk-go/try"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRetryDelay = 5 * time.Second
	DefaultMaxRetries = 36
)

// ErrNotPublished is returned when a message could still not be routed
// after the maximum number of retries.
var ErrNotPublished = errors.New("rabbitmq: message was not published")

// PublisherOptions are configurable parameters of a [Publisher].
type PublisherOptions struct {
	dialer     Dialer
	log        *slog.Logger
	retryDelay time.Duration
	maxRetries int
}

// PublisherOption sets a value on [PublisherOptions].
type PublisherOption interface {
	ApplyPublisherOption(*PublisherOptions)
}

// Publisher publishes persistent messages with the warren headers.
// It opens a new connection for every message.
type Publisher struct {
	server     ServerDetails
	dialer     Dialer
	log        *slog.Logger
	tracer     trace.Tracer
	retryDelay time.Duration
	maxRetries int

	sleep func(context.Context, time.Duration) error
	newID func() string
}

// NewPublisher initializes a [Publisher].
func NewPublisher(server ServerDetails, opts ...PublisherOption) *Publisher {
	po := &PublisherOptions{
		dialer:     AMQPDialer{ConnectionName: "warren publisher"},
		log:        logger(),
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt.ApplyPublisherOption(po)
	}
	if po.maxRetries <= 0 {
		po.maxRetries = DefaultMaxRetries
	}
	if po.retryDelay < 0 {
		po.retryDelay = 0
	}

	return &Publisher{
		server:     server,
		dialer:     po.dialer,
		log:        po.log,
		tracer:     tracer(),
		retryDelay: po.retryDelay,
		maxRetries: po.maxRetries,
		sleep:      sleep,
		newID:      func() string { return ulid.Make().String() },
	}
}

// Publish implements the [processing.Publisher] interface.
//
// The message is published with the mandatory flag and waits for the broker
// to confirm it. A message which the broker returns as unroutable is retried
// after the retry delay. Once the maximum number of attempts has been
// reached, [ErrNotPublished] is returned.
func (p *Publisher) Publish(ctx context.Context, pub processing.Publishing) (err error) {
	encoderType := pub.EncoderType
	if len(encoderType) == 0 {
		encoderType = message.DefaultEncoderType
	}

	spanCtx, span := p.tracer.Start(
		ctx,
		"publish "+pub.Exchange,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.operation.type", "send"),
			attribute.String("messaging.destination.name", pub.Exchange),
			attribute.String("messaging.rabbitmq.destination.routing_key", pub.RoutingKey),
		),
	)
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	log := p.log.With(
		ExchangeAttr(pub.Exchange),
		RoutingKeyAttr(pub.RoutingKey),
		processing.SubjectAttr(pub.Subject),
		slog.String("schema_version", pub.Version),
	)
	log.InfoContext(spanCtx, "publishing message")

	conn, err := p.dialer.Dial(spanCtx, p.server)
	if err != nil {
		return fmt.Errorf("connecting to publish: %w", err)
	}
	defer try.Close(&err, conn)

	ch, err := conn.PublishChannel()
	if err != nil {
		return fmt.Errorf("opening publish channel: %w", err)
	}
	defer try.Close(&err, ch)

	msg := amqp.Publishing{
		Headers: amqp.Table{
			message.HeaderSubject:     pub.Subject,
			message.HeaderVersion:     pub.Version,
			message.HeaderEncoderType: encoderType,
		},
		DeliveryMode: amqp.Persistent,
		MessageId:    p.newID(),
		Timestamp:    time.Now().UTC(),
		Body:         pub.Body,
	}

	for attempt := 1; ; attempt++ {
		returned, err := ch.PublishMandatory(spanCtx, pub.Exchange, pub.RoutingKey, msg)
		if err != nil {
			return fmt.Errorf("publishing message: %w", err)
		}
		if !returned {
			if attempt > 1 {
				log.WarnContext(spanCtx, "publish of message required retries", slog.Int("retries", attempt-1))
			}
			log.InfoContext(spanCtx, "message was published successfully", slog.String("message_id", msg.MessageId))
			return nil
		}

		if attempt >= p.maxRetries {
			log.ErrorContext(
				spanCtx,
				"maximum number of retries exceeded, message was NOT PUBLISHED",
				slog.Int("attempts", attempt),
			)
			return ErrNotPublished
		}

		log.WarnContext(spanCtx, "message was unroutable, retrying", slog.Int("attempt", attempt), slog.Duration("delay", p.retryDelay))
		err = p.sleep(spanCtx, p.retryDelay)
		if err != nil {
			return err
		}
	}
}
