// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/z5labs/warren/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultVhost is used when a [ServerDetails] has no vhost.
const DefaultVhost = "/"

// ServerDetails are the connection details of a RabbitMQ broker.
type ServerDetails struct {
	UsesTLS  bool
	Host     string
	Port     int
	Username string
	Password string
	Vhost    string

	// SkipVerify turns off verification of the broker certificate
	// and is independent of UsesTLS.
	SkipVerify bool

	// CABundle is an optional path to a PEM encoded bundle of
	// certificate authorities used to verify the broker.
	CABundle string
}

// ServerDetailsFromConfig maps a [config.Server] to [ServerDetails].
func ServerDetailsFromConfig(cfg config.Server) ServerDetails {
	return ServerDetails{
		UsesTLS:    cfg.UsesTLS,
		Host:       cfg.Host,
		Port:       cfg.Port,
		Username:   cfg.Username,
		Password:   cfg.Password,
		Vhost:      cfg.Vhost,
		SkipVerify: !config.Verify(cfg.VerifyCert),
		CABundle:   cfg.CABundle,
	}
}

// VirtualHost returns the vhost or [DefaultVhost] if it is empty.
func (sd ServerDetails) VirtualHost() string {
	if len(sd.Vhost) == 0 {
		return DefaultVhost
	}
	return sd.Vhost
}

// URL returns the AMQP URL of the broker.
func (sd ServerDetails) URL() string {
	scheme := "amqp"
	if sd.UsesTLS {
		scheme = "amqps"
	}

	uri := amqp.URI{
		Scheme:   scheme,
		Host:     sd.Host,
		Port:     sd.Port,
		Username: sd.Username,
		Password: sd.Password,
		Vhost:    sd.VirtualHost(),
	}
	return uri.String()
}

// InvalidCABundleError is returned when a CA bundle contains no PEM certificates.
type InvalidCABundleError struct {
	Path string
}

func (e InvalidCABundleError) Error() string {
	return fmt.Sprintf("no certificates found in ca bundle: %s", e.Path)
}

// TLSConfig returns the [tls.Config] for dialing the broker or nil
// if the broker does not use TLS.
func (sd ServerDetails) TLSConfig() (*tls.Config, error) {
	if !sd.UsesTLS {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName:         sd.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: sd.SkipVerify,
	}
	if len(sd.CABundle) == 0 {
		return cfg, nil
	}

	b, err := os.ReadFile(sd.CABundle)
	if err != nil {
		return nil, fmt.Errorf("reading ca bundle: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(b) {
		return nil, InvalidCABundleError{Path: sd.CABundle}
	}
	cfg.RootCAs = pool
	return cfg, nil
}
