// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package warren

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/z5labs/warren/config"
	"github.com/z5labs/warren/internal/otel"

	bedrockcfg "github.com/z5labs/bedrock/config"
)

// ConfigSource renders r as a YAML template before parsing it. The
// template functions are:
//   - env - the value of an environment variable or nil if it is unset
//   - file - the trimmed contents of a file or nil if it does not exist,
//     meant for broker and registry credentials mounted as secrets
//   - default - define a default value in case the piped value is nil
//
// For example, a broker password can come from the environment, then a
// mounted secret and finally fall back to the RabbitMQ default:
//
//	password: {{env "RABBITMQ_PASSWORD" | default (file "/run/secrets/rabbitmq_password") | default "guest"}}
func ConfigSource(r io.Reader) bedrockcfg.Source {
	return bedrockcfg.FromYaml(
		bedrockcfg.RenderTextTemplate(
			r,
			bedrockcfg.TemplateFunc("env", lookupEnv),
			bedrockcfg.TemplateFunc("file", readSecret),
			bedrockcfg.TemplateFunc("default", func(def, v any) any {
				if v == nil {
					return def
				}
				return v
			}),
		),
	)
}

func lookupEnv(key string) any {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	return v
}

func readSecret(path string) (any, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(string(b)), nil
}

//go:embed default_config.yaml
var defaultConfig []byte

// DefaultConfig returns the default config source which corresponds to the [Config] type.
// It covers telemetry along with the schema registry and publisher settings shared by
// every route. Routes have no defaults and must always be configured.
func DefaultConfig() bedrockcfg.Source {
	return ConfigSource(bytes.NewReader(defaultConfig))
}

// Config is the configuration every warren consumer shares.
type Config struct {
	OTel     config.OTel     `config:"otel"`
	RabbitMQ config.RabbitMQ `config:"rabbitmq"`
}

// InitializeOTel implements the [appbuilder.OTelInitializer] interface.
func (cfg Config) InitializeOTel(ctx context.Context) error {
	return otel.Initialize(ctx, cfg.OTel)
}
