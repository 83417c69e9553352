// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package message wraps the headers and body of a delivered message
// and decodes the body with a prioritized list of codecs.
package message

import (
	"context"
	"fmt"
	"strings"

	"github.com/z5labs/warren"
	"github.com/z5labs/warren/codec"
)

// Header keys shared by consumers and publishers.
const (
	HeaderSubject     = "subject"
	HeaderVersion     = "version"
	HeaderEncoderType = "encoder_type"
)

// DefaultEncoderType is used when a message has no encoder_type header.
const DefaultEncoderType = "default"

// MissingHeaderError
type MissingHeaderError struct {
	Key string
}

func (e MissingHeaderError) Error() string {
	return fmt.Sprintf("message is missing required header: %q", e.Key)
}

// Envelope holds a delivered message. Its decoded records are set
// at most once, by the first successful call to [Envelope.Decode].
type Envelope struct {
	headers map[string]string
	body    []byte
	records []any
	decoded bool
}

// New initializes an [Envelope].
func New(headers map[string]string, body []byte) *Envelope {
	return &Envelope{
		headers: headers,
		body:    body,
	}
}

// Headers
func (e *Envelope) Headers() map[string]string {
	return e.headers
}

// Body returns the raw encoded body.
func (e *Envelope) Body() []byte {
	return e.body
}

// Subject returns the subject header or a [MissingHeaderError].
func (e *Envelope) Subject() (string, error) {
	return e.required(HeaderSubject)
}

// SchemaVersion returns the version header or a [MissingHeaderError].
func (e *Envelope) SchemaVersion() (string, error) {
	return e.required(HeaderVersion)
}

// EncoderType returns the encoder_type header or [DefaultEncoderType].
func (e *Envelope) EncoderType() string {
	v, ok := e.headers[HeaderEncoderType]
	if !ok {
		return DefaultEncoderType
	}
	return v
}

func (e *Envelope) required(key string) (string, error) {
	v, ok := e.headers[key]
	if !ok {
		return "", MissingHeaderError{Key: key}
	}
	return v, nil
}

// Records returns the decoded records, which are nil before a successful decode.
func (e *Envelope) Records() []any {
	return e.records
}

// ContainsSingleMessage reports whether exactly one record was decoded.
func (e *Envelope) ContainsSingleMessage() bool {
	return e.decoded && len(e.records) == 1
}

// Message returns the first decoded record, if any.
func (e *Envelope) Message() (any, bool) {
	if len(e.records) == 0 {
		return nil, false
	}
	return e.records[0], true
}

// ResultKind is the outcome of [Envelope.Decode].
type ResultKind int

const (
	// Decoded means a codec decoded the body.
	Decoded ResultKind = iota

	// Transient means the session, not the message, is at fault
	// and the message should be redelivered.
	Transient

	// Malformed means no codec could decode the message.
	Malformed
)

func (k ResultKind) String() string {
	switch k {
	case Decoded:
		return "decoded"
	case Transient:
		return "transient"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result of decoding an [Envelope]. Codec is only set when
// Kind is [Decoded] and Err is only set otherwise.
type Result struct {
	Kind  ResultKind
	Codec codec.Codec
	Err   error
}

// AllDecodersFailedError aggregates the failure of every codec, in the
// order the codecs were tried.
type AllDecodersFailedError struct {
	Errors []error
}

func (e AllDecodersFailedError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "failed to decode message with every codec: " + strings.Join(msgs, "; ")
}

func (e AllDecodersFailedError) Unwrap() []error {
	return e.Errors
}

// Decode tries each codec in order with the version header and keeps the
// records of the first one that succeeds. A transient error from any codec
// ends decoding immediately since no other codec can succeed either.
func (e *Envelope) Decode(ctx context.Context, codecs []codec.Codec) Result {
	version, err := e.SchemaVersion()
	if err != nil {
		return Result{Kind: Malformed, Err: err}
	}

	var errs []error
	for _, c := range codecs {
		records, err := c.Decode(ctx, e.body, version)
		if warren.IsTransient(err) {
			return Result{Kind: Transient, Err: err}
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if !e.decoded {
			e.records = records
			e.decoded = true
		}
		return Result{Kind: Decoded, Codec: c}
	}
	return Result{
		Kind: Malformed,
		Err:  AllDecodersFailedError{Errors: errs},
	}
}
