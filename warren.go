// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package warren provides a base config and abstractions for running
// resilient RabbitMQ consumers which decode Avro encoded messages.
//
// Messages travel with three headers: the subject naming their schema,
// the schema version they were written with and the encoder type. Every
// message is decoded and validated against the schema registry before
// it reaches a processor, and only a [TransientError] causes a message
// to be redelivered. Everything else is rejected.
package warren

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// Logger returns a [slog.Logger] which is bridged to the global OTel logger provider.
// Records are dropped until the provider is initialized by [Config.InitializeOTel].
func Logger(name string) *slog.Logger {
	return otelslog.NewLogger(name)
}
