// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package schema provides a client for fetching Avro schemas from a schema registry.
package schema

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/z5labs/warren"
	"github.com/z5labs/warren/concurrent"

	"github.com/bytedance/sonic"
	"github.com/hamba/avro/v2"
	"github.com/z5labs/sdk-go/try"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LatestVersion is requested when no explicit version is given.
const LatestVersion = "latest"

// Schema is a parsed Avro schema along with the registry metadata it was fetched with.
type Schema struct {
	Subject string

	// Version is the version reported by the registry, which
	// differs from the requested one when "latest" was requested.
	Version string

	// Raw is the schema document as returned by the registry.
	Raw string

	Avro avro.Schema
}

// Registry resolves a subject and version to a [Schema].
type Registry interface {
	GetSchema(ctx context.Context, subject, version string) (*Schema, error)
}

var cache = concurrent.NewCache[string, *Schema]()

// ResetCache drops every cached [Schema].
func ResetCache() {
	cache.Reset()
}

// ClientOptions are configurable parameters of a [Client].
type ClientOptions struct {
	verify    bool
	timeout   time.Duration
	transport http.RoundTripper
}

// ClientOption sets a value on [ClientOptions].
type ClientOption interface {
	ApplyClientOption(*ClientOptions)
}

type clientOptionFunc func(*ClientOptions)

func (f clientOptionFunc) ApplyClientOption(co *ClientOptions) {
	f(co)
}

// VerifyCert toggles verification of the registry TLS certificate. Defaults to true.
func VerifyCert(verify bool) ClientOption {
	return clientOptionFunc(func(co *ClientOptions) {
		co.verify = verify
	})
}

// Timeout bounds each request to the registry. Defaults to 30 seconds.
func Timeout(d time.Duration) ClientOption {
	return clientOptionFunc(func(co *ClientOptions) {
		co.timeout = d
	})
}

// Transport overrides the base [http.RoundTripper]. It is still wrapped
// with OTel instrumentation.
func Transport(rt http.RoundTripper) ClientOption {
	return clientOptionFunc(func(co *ClientOptions) {
		co.transport = rt
	})
}

// Client fetches schemas with an HTTP GET on
// {base_uri}/subjects/{subject}/versions/{version}. Responses are cached
// for the life of the process by their full URL.
type Client struct {
	baseURI string
	http    *http.Client
	log     *slog.Logger
}

// NewClient initializes a [Client].
func NewClient(baseURI string, opts ...ClientOption) *Client {
	co := &ClientOptions{
		verify:  true,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt.ApplyClientOption(co)
	}

	base := co.transport
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: !co.verify,
		}
		base = t
	}

	return &Client{
		baseURI: strings.TrimSuffix(baseURI, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(base),
			Timeout:   co.timeout,
		},
		log: warren.Logger("github.com/z5labs/warren/schema"),
	}
}

// InvalidSchemaError is returned when the registry responds with a schema
// document which is not valid Avro.
type InvalidSchemaError struct {
	Subject string
	Version string
	Cause   error
}

func (e InvalidSchemaError) Error() string {
	return fmt.Sprintf("invalid avro schema for subject %q version %q: %s", e.Subject, e.Version, e.Cause)
}

func (e InvalidSchemaError) Unwrap() error {
	return e.Cause
}

// GetSchema implements the [Registry] interface. An empty version
// requests the latest version of the subject.
//
// Any failure to reach the registry or to read its response is returned
// as a [warren.TransientError] which mentions the registry base URI. A 4xx
// response means the subject or version does not exist and is returned
// as an [UnexpectedStatusError] instead.
func (c *Client) GetSchema(ctx context.Context, subject, version string) (*Schema, error) {
	if len(version) == 0 {
		version = LatestVersion
	}

	u := fmt.Sprintf("%s/subjects/%s/versions/%s", c.baseURI, url.PathEscape(subject), url.PathEscape(version))
	return cache.GetOr(u, func() (*Schema, error) {
		c.log.DebugContext(ctx, "fetching schema from registry", slog.String("url", u))

		resp, err := c.fetch(ctx, u)
		var serr UnexpectedStatusError
		if errors.As(err, &serr) && serr.StatusCode < http.StatusInternalServerError {
			return nil, err
		}
		if err != nil {
			return nil, &warren.TransientError{
				Message: fmt.Sprintf("unable to connect to schema registry at %s", c.baseURI),
				Cause:   err,
			}
		}

		s, err := avro.ParseWithCache(resp.Schema, "", &avro.SchemaCache{})
		if err != nil {
			return nil, InvalidSchemaError{
				Subject: subject,
				Version: version,
				Cause:   err,
			}
		}

		return &Schema{
			Subject: subject,
			Version: resp.version(),
			Raw:     resp.Schema,
			Avro:    s,
		}, nil
	})
}

var jsonAPI = sonic.Config{
	UseNumber: true,
}.Froze()

type versionResponse struct {
	Subject string `json:"subject"`
	Version any    `json:"version"`
	Schema  string `json:"schema"`
}

func (r versionResponse) version() string {
	switch v := r.Version.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// UnexpectedStatusError is returned for any non 200 response from the registry.
type UnexpectedStatusError struct {
	StatusCode int
}

func (e UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected response status code: %d", e.StatusCode)
}

func (c *Client) fetch(ctx context.Context, u string) (_ *versionResponse, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.schemaregistry.v1+json, application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer try.Close(&err, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, UnexpectedStatusError{StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var vr versionResponse
	err = jsonAPI.Unmarshal(b, &vr)
	if err != nil {
		return nil, err
	}
	if len(vr.Schema) == 0 {
		return nil, errors.New("schema registry response is missing a schema")
	}
	return &vr, nil
}
