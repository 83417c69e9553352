// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/z5labs/warren/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

func writeCABundle(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test CA"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	err = os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600)
	require.NoError(t, err)
	return path
}

func TestServerDetailsFromConfig(t *testing.T) {
	t.Run("will verify certificates", func(t *testing.T) {
		t.Run("if verify_cert is not set", func(t *testing.T) {
			sd := ServerDetailsFromConfig(config.Server{Host: "localhost"})
			require.False(t, sd.SkipVerify)
		})
	})

	t.Run("will not verify certificates", func(t *testing.T) {
		t.Run("if verify_cert is false", func(t *testing.T) {
			verify := false
			sd := ServerDetailsFromConfig(config.Server{Host: "localhost", VerifyCert: &verify})
			require.True(t, sd.SkipVerify)
		})
	})
}

func TestServerDetails_URL(t *testing.T) {
	t.Run("will use the amqp scheme", func(t *testing.T) {
		t.Run("if tls is not used", func(t *testing.T) {
			sd := ServerDetails{
				Host:     "rabbit.local",
				Port:     5672,
				Username: "guest",
				Password: "p@ss",
				Vhost:    "lab",
			}

			uri, err := amqp.ParseURI(sd.URL())
			require.Nil(t, err)
			require.Equal(t, "amqp", uri.Scheme)
			require.Equal(t, "rabbit.local", uri.Host)
			require.Equal(t, 5672, uri.Port)
			require.Equal(t, "guest", uri.Username)
			require.Equal(t, "p@ss", uri.Password)
			require.Equal(t, "lab", uri.Vhost)
		})
	})

	t.Run("will use the amqps scheme", func(t *testing.T) {
		t.Run("if tls is used", func(t *testing.T) {
			sd := ServerDetails{UsesTLS: true, Host: "rabbit.local", Port: 5671, Username: "guest", Password: "guest"}

			uri, err := amqp.ParseURI(sd.URL())
			require.Nil(t, err)
			require.Equal(t, "amqps", uri.Scheme)
			require.Equal(t, 5671, uri.Port)
		})
	})

	t.Run("will use the default vhost", func(t *testing.T) {
		t.Run("if no vhost is set", func(t *testing.T) {
			sd := ServerDetails{Host: "rabbit.local", Port: 5672, Username: "guest", Password: "guest"}

			require.Equal(t, DefaultVhost, sd.VirtualHost())

			uri, err := amqp.ParseURI(sd.URL())
			require.Nil(t, err)
			require.Equal(t, DefaultVhost, uri.Vhost)
		})
	})
}

func TestServerDetails_TLSConfig(t *testing.T) {
	t.Run("will return nil", func(t *testing.T) {
		t.Run("if tls is not used", func(t *testing.T) {
			cfg, err := ServerDetails{}.TLSConfig()
			require.Nil(t, err)
			require.Nil(t, cfg)
		})
	})

	t.Run("will verify the broker certificate", func(t *testing.T) {
		t.Run("if only tls is set", func(t *testing.T) {
			cfg, err := ServerDetails{UsesTLS: true, Host: "broker"}.TLSConfig()
			require.Nil(t, err)
			require.False(t, cfg.InsecureSkipVerify)
			require.Equal(t, "broker", cfg.ServerName)
			require.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
		})
	})

	t.Run("will skip verification of the broker certificate", func(t *testing.T) {
		t.Run("if skip verify is set", func(t *testing.T) {
			cfg, err := ServerDetails{UsesTLS: true, Host: "rabbit.local", SkipVerify: true}.TLSConfig()
			require.Nil(t, err)
			require.True(t, cfg.InsecureSkipVerify)
		})
	})

	t.Run("will trust the ca bundle", func(t *testing.T) {
		path := writeCABundle(t)

		cfg, err := ServerDetails{UsesTLS: true, Host: "rabbit.local", CABundle: path}.TLSConfig()
		require.Nil(t, err)
		require.NotNil(t, cfg.RootCAs)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the ca bundle does not exist", func(t *testing.T) {
			_, err := ServerDetails{UsesTLS: true, CABundle: filepath.Join(t.TempDir(), "missing.pem")}.TLSConfig()
			require.ErrorIs(t, err, os.ErrNotExist)
		})

		t.Run("if the ca bundle has no certificates", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "empty.pem")
			require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

			_, err := ServerDetails{UsesTLS: true, CABundle: path}.TLSConfig()

			var berr InvalidCABundleError
			require.ErrorAs(t, err, &berr)
			require.Equal(t, path, berr.Path)
		})
	})
}
