// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package processing routes decoded messages to subject specific processors.
package processing

import (
	"context"

	"github.com/z5labs/warren/message"
	"github.com/z5labs/warren/schema"
)

// Processor implements the business logic for a single subject.
//
// Process returns true if the message should be acknowledged and false if it
// should be rejected without requeueing. Returning a [warren.TransientError]
// instead causes the consumer to reconnect and the message to be redelivered.
type Processor interface {
	Process(context.Context, *message.Envelope) (bool, error)
}

// ProcessorFunc is an adapter to allow the use of ordinary functions as [Processor]s.
type ProcessorFunc func(context.Context, *message.Envelope) (bool, error)

// Process implements the [Processor] interface.
func (f ProcessorFunc) Process(ctx context.Context, env *message.Envelope) (bool, error) {
	return f(ctx, env)
}

// Publishing is a message to be published with the standard headers.
type Publishing struct {
	Exchange    string
	RoutingKey  string
	Subject     string
	Version     string
	EncoderType string
	Body        []byte
}

// Publisher publishes messages, typically from within a [Processor].
type Publisher interface {
	Publish(context.Context, Publishing) error
}

// Dependencies are handed to every [Factory] when building its [Processor].
type Dependencies[C any] struct {
	Registry  schema.Registry
	Publisher Publisher
	Config    C
}

// Factory builds the [Processor] for a subject.
type Factory[C any] interface {
	NewProcessor(context.Context, Dependencies[C]) (Processor, error)
}

// FactoryFunc is an adapter to allow the use of ordinary functions as [Factory]s.
type FactoryFunc[C any] func(context.Context, Dependencies[C]) (Processor, error)

// NewProcessor implements the [Factory] interface.
func (f FactoryFunc[C]) NewProcessor(ctx context.Context, deps Dependencies[C]) (Processor, error) {
	return f(ctx, deps)
}

// Binding associates a subject with the [Factory] of its [Processor] and the
// schema version that [Processor] expects to receive.
type Binding[C any] struct {
	Factory Factory[C]

	// ReaderSchemaVersion is the version records are validated against
	// before being processed. When empty the version header is used.
	ReaderSchemaVersion string
}
