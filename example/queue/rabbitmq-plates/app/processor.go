// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"log/slog"

	"github.com/z5labs/warren"
	"github.com/z5labs/warren/codec"
	"github.com/z5labs/warren/message"
	"github.com/z5labs/warren/processing"
)

const plateCreatedSubject = "plate-created"

// CreatePlateProcessor handles create-plate messages by announcing
// each new plate on the configured exchange.
type CreatePlateProcessor struct {
	log        *slog.Logger
	events     codec.Codec
	publisher  processing.Publisher
	exchange   string
	routingKey string
}

// NewCreatePlateProcessor implements [processing.FactoryFunc].
func NewCreatePlateProcessor(ctx context.Context, deps processing.Dependencies[Config]) (processing.Processor, error) {
	p := &CreatePlateProcessor{
		log:        warren.Logger("github.com/z5labs/warren/example/queue/rabbitmq-plates/app"),
		events:     codec.NewJSON(deps.Registry, plateCreatedSubject),
		publisher:  deps.Publisher,
		exchange:   deps.Config.RabbitMQ.Publisher.Exchange,
		routingKey: deps.Config.Plates.CreatedRoutingKey,
	}
	return p, nil
}

// Process implements the [processing.Processor] interface.
func (p *CreatePlateProcessor) Process(ctx context.Context, env *message.Envelope) (bool, error) {
	msg, ok := env.Message()
	if !ok {
		return false, nil
	}

	record, ok := msg.(map[string]any)
	if !ok {
		return false, nil
	}

	barcode, ok := record["plate_barcode"].(string)
	if !ok || barcode == "" {
		p.log.WarnContext(ctx, "rejecting plate without a barcode")
		return false, nil
	}

	encoded, err := p.events.Encode(ctx, []any{map[string]any{"plate_barcode": barcode}}, "")
	if err != nil {
		return false, err
	}

	err = p.publisher.Publish(ctx, processing.Publishing{
		Exchange:    p.exchange,
		RoutingKey:  p.routingKey,
		Subject:     plateCreatedSubject,
		Version:     encoded.Version,
		EncoderType: p.events.EncoderType(),
		Body:        encoded.Body,
	})
	if err != nil {
		// the create-plate message is redelivered once the broker is reachable again
		return false, &warren.TransientError{Message: "failed to announce plate", Cause: err}
	}

	p.log.InfoContext(ctx, "plate created", slog.String("plate_barcode", barcode))
	return true, nil
}
