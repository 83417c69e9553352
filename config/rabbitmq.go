// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import "time"

// Server holds the details needed to dial a RabbitMQ broker.
type Server struct {
	UsesTLS  bool   `config:"uses_tls"`
	Host     string `config:"host"`
	Port     int    `config:"port"`
	Username string `config:"username"`
	Password string `config:"password"`
	Vhost    string `config:"vhost"`

	// VerifyCert toggles verification of the broker certificate
	// independently of UsesTLS. Unset means verify.
	VerifyCert *bool `config:"verify_cert"`

	// CABundle is an optional path to a PEM encoded CA bundle.
	CABundle string `config:"ca_bundle"`
}

// Subject binds a message subject to the schema version its processor expects.
type Subject struct {
	ReaderSchemaVersion string `config:"reader_schema_version"`
}

// Route is a single queue subscription.
type Route struct {
	Queue         string             `config:"queue"`
	PrefetchCount int                `config:"prefetch_count"`
	Consumer      Server             `config:"consumer"`
	Subjects      map[string]Subject `config:"subjects"`
}

// SchemaRegistry locates the schema registry.
type SchemaRegistry struct {
	BaseURI    string        `config:"base_uri"`
	VerifyCert *bool         `config:"verify_cert"`
	Timeout    time.Duration `config:"timeout"`
}

// Publisher configures the retry-until-routable publisher handed to processors.
type Publisher struct {
	Server     Server        `config:"server"`
	Exchange   string        `config:"exchange"`
	RetryDelay time.Duration `config:"retry_delay"`
	MaxRetries int           `config:"max_retries"`
}

// RabbitMQ configures every consumed route along with the
// schema registry and publisher shared by their processors.
type RabbitMQ struct {
	SchemaRegistry SchemaRegistry `config:"schema_registry"`
	Publisher      Publisher      `config:"publisher"`
	Routes         []Route        `config:"routes"`
}

// Verify dereferences a verify_cert setting which defaults to true.
func Verify(b *bool) bool {
	return b == nil || *b
}
