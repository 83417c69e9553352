// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import "log/slog"

// QueueAttr returns a slog attribute for the RabbitMQ queue name.
func QueueAttr(queue string) slog.Attr {
	return slog.String("messaging.destination.name", queue)
}

// ConsumerTagAttr returns a slog attribute for the RabbitMQ consumer tag.
func ConsumerTagAttr(tag string) slog.Attr {
	return slog.String("messaging.rabbitmq.consumer_tag", tag)
}

// DeliveryTagAttr returns a slog attribute for the RabbitMQ delivery tag.
func DeliveryTagAttr(tag uint64) slog.Attr {
	return slog.Uint64("messaging.rabbitmq.delivery_tag", tag)
}

// StateAttr returns a slog attribute for the state of a consumer connection.
func StateAttr(s State) slog.Attr {
	return slog.String("messaging.rabbitmq.consumer.state", s.String())
}

// ExchangeAttr returns a slog attribute for the RabbitMQ exchange.
func ExchangeAttr(exchange string) slog.Attr {
	return slog.String("messaging.rabbitmq.exchange", exchange)
}

// RoutingKeyAttr returns a slog attribute for the RabbitMQ routing key.
func RoutingKeyAttr(key string) slog.Attr {
	return slog.String("messaging.rabbitmq.destination.routing_key", key)
}
