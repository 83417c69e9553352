// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package processing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/z5labs/warren"
	"github.com/z5labs/warren/codec"
	"github.com/z5labs/warren/message"
	"github.com/z5labs/warren/schema"

	"github.com/z5labs/sdk-go/try"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// encoderKinds lists, in priority order, the codecs tried for each encoder type.
var encoderKinds = map[string][]codec.Kind{
	codec.EncoderTypeBinary:     {codec.KindBinaryMessage, codec.KindBinaryFile},
	codec.EncoderTypeJSON:       {codec.KindJSON},
	message.DefaultEncoderType: {codec.KindJSON},
}

// UnrecognizedEncoderError is returned for an encoder_type header
// which does not map to any codec.
type UnrecognizedEncoderError struct {
	EncoderType string
}

func (e UnrecognizedEncoderError) Error() string {
	return fmt.Sprintf("unrecognized encoder type: %q", e.EncoderType)
}

// CodecsFor returns the candidate codecs for an encoder type in the order
// they should be tried.
func CodecsFor(encoderType string, registry schema.Registry, subject string) ([]codec.Codec, error) {
	kinds, ok := encoderKinds[encoderType]
	if !ok {
		return nil, UnrecognizedEncoderError{EncoderType: encoderType}
	}

	codecs := make([]codec.Codec, 0, len(kinds))
	for _, kind := range kinds {
		c, err := codec.New(kind, registry, subject)
		if err != nil {
			return nil, err
		}
		codecs = append(codecs, c)
	}
	return codecs, nil
}

// UnknownSubjectError is returned when building a [Dispatcher]
// whose [Binding] has no [Factory].
type UnknownSubjectError struct {
	Subject string
}

func (e UnknownSubjectError) Error() string {
	return fmt.Sprintf("no processor factory for subject: %q", e.Subject)
}

type route struct {
	processor     Processor
	readerVersion string
}

// DispatcherOptions are configurable parameters of a [Dispatcher].
type DispatcherOptions struct {
	log *slog.Logger
}

// DispatcherOption sets a value on [DispatcherOptions].
type DispatcherOption interface {
	ApplyDispatcherOption(*DispatcherOptions)
}

type dispatcherOptionFunc func(*DispatcherOptions)

func (f dispatcherOptionFunc) ApplyDispatcherOption(do *DispatcherOptions) {
	f(do)
}

// LogHandler overrides the [slog.Handler] the [Dispatcher] logs with.
func LogHandler(h slog.Handler) DispatcherOption {
	return dispatcherOptionFunc(func(do *DispatcherOptions) {
		do.log = slog.New(h)
	})
}

// Dispatcher decodes messages and routes them to the [Processor] of their subject.
// Its routing table is built once and never modified so it is safe for
// concurrent use.
type Dispatcher struct {
	registry  schema.Registry
	routes    map[string]route
	newCodecs func(encoderType string, registry schema.Registry, subject string) ([]codec.Codec, error)

	log     *slog.Logger
	tracer  trace.Tracer
	metrics dispatchMetrics
}

// NewDispatcher builds the [Processor] of every [Binding] and
// initializes a [Dispatcher] routing to them.
func NewDispatcher[C any](ctx context.Context, deps Dependencies[C], bindings map[string]Binding[C], opts ...DispatcherOption) (*Dispatcher, error) {
	do := &DispatcherOptions{
		log: logger(),
	}
	for _, opt := range opts {
		opt.ApplyDispatcherOption(do)
	}

	routes := make(map[string]route, len(bindings))
	for subject, b := range bindings {
		if b.Factory == nil {
			return nil, UnknownSubjectError{Subject: subject}
		}

		p, err := b.Factory.NewProcessor(ctx, deps)
		if err != nil {
			return nil, fmt.Errorf("building processor for subject %q: %w", subject, err)
		}
		routes[subject] = route{
			processor:     p,
			readerVersion: b.ReaderSchemaVersion,
		}
	}

	return &Dispatcher{
		registry:  deps.Registry,
		routes:    routes,
		newCodecs: CodecsFor,
		log:       do.log,
		tracer:    tracer(),
		metrics:   initDispatchMetrics(do.log),
	}, nil
}

// Subjects returns every subject the [Dispatcher] routes.
func (d *Dispatcher) Subjects() []string {
	subjects := make([]string, 0, len(d.routes))
	for subject := range d.routes {
		subjects = append(subjects, subject)
	}
	return subjects
}

// ProcessMessage decodes, validates and processes a single message.
//
// It returns true if the message should be acknowledged and false if it
// should be rejected without requeueing. The only error it returns is a
// [warren.TransientError], in which case the message must be neither
// acknowledged nor rejected.
func (d *Dispatcher) ProcessMessage(ctx context.Context, headers map[string]string, body []byte) (bool, error) {
	spanCtx, span := d.tracer.Start(ctx, "Dispatcher.ProcessMessage", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	env := message.New(headers, body)
	subject, _ := env.Subject()
	span.SetAttributes(attribute.String("messaging.message.subject", subject))

	ack, err := d.dispatch(spanCtx, env)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "transient error")
		d.metrics.record(spanCtx, subject, outcomeTransient)
	case ack:
		d.metrics.record(spanCtx, subject, outcomeAcked)
	default:
		span.SetStatus(codes.Error, "message rejected")
		d.metrics.record(spanCtx, subject, outcomeRejected)
	}
	return ack, err
}

func (d *Dispatcher) dispatch(ctx context.Context, env *message.Envelope) (bool, error) {
	subject, err := env.Subject()
	if err != nil {
		d.log.ErrorContext(ctx, "unrecoverable error: message has no subject", slog.Any("error", err))
		return false, nil
	}

	encoderType := env.EncoderType()
	codecs, err := d.newCodecs(encoderType, d.registry, subject)
	if err != nil {
		d.log.ErrorContext(
			ctx,
			"unrecoverable error: no codecs for encoder type",
			SubjectAttr(subject),
			EncoderTypeAttr(encoderType),
			slog.Any("error", err),
		)
		return false, nil
	}

	res := env.Decode(ctx, codecs)
	switch res.Kind {
	case message.Transient:
		d.log.ErrorContext(
			ctx,
			"transient error while decoding message, will reconnect and retry",
			SubjectAttr(subject),
			slog.Any("error", res.Err),
		)
		return false, res.Err
	case message.Malformed:
		d.log.ErrorContext(
			ctx,
			"unrecoverable error while decoding message",
			SubjectAttr(subject),
			EncoderTypeAttr(encoderType),
			slog.Any("error", res.Err),
		)
		return false, nil
	}

	if !env.ContainsSingleMessage() {
		d.log.ErrorContext(
			ctx,
			"message contains multiple records or none, exactly one is required",
			SubjectAttr(subject),
			slog.Int("record_count", len(env.Records())),
		)
		return false, nil
	}

	r, ok := d.routes[subject]
	if !ok {
		d.log.ErrorContext(ctx, "no processor registered for subject "+subject, SubjectAttr(subject))
		return false, nil
	}

	version := r.readerVersion
	if len(version) == 0 {
		version, _ = env.SchemaVersion()
	}

	record, _ := env.Message()
	err = res.Codec.Validate(ctx, record, version)
	if warren.IsTransient(err) {
		d.log.ErrorContext(
			ctx,
			"transient error while validating message, will reconnect and retry",
			SubjectAttr(subject),
			slog.Any("error", err),
		)
		return false, err
	}
	if err != nil {
		d.log.ErrorContext(
			ctx,
			"unrecoverable error: message failed schema validation",
			SubjectAttr(subject),
			slog.String("reader_schema_version", version),
			slog.Any("error", err),
		)
		return false, nil
	}

	ack, err := process(ctx, r.processor, env)
	if warren.IsTransient(err) {
		d.log.ErrorContext(
			ctx,
			"transient error from processor, will reconnect and retry",
			SubjectAttr(subject),
			slog.Any("error", err),
		)
		return false, err
	}
	if err != nil {
		d.log.ErrorContext(
			ctx,
			"unrecoverable error from processor",
			SubjectAttr(subject),
			slog.Any("error", err),
		)
		return false, nil
	}
	if !ack {
		d.log.ErrorContext(ctx, "processor rejected message", SubjectAttr(subject))
	}
	return ack, nil
}

func process(ctx context.Context, p Processor, env *message.Envelope) (ack bool, err error) {
	defer try.Recover(&err)

	return p.Process(ctx, env)
}
