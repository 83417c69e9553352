// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package codec provides Avro encodings of message bodies whose schemas are
// resolved from a schema registry by subject and version.
package codec

import (
	"context"
	"fmt"

	"github.com/z5labs/warren/schema"

	"github.com/hamba/avro/v2"
)

// Encoder types carried in the encoder_type message header.
const (
	EncoderTypeJSON   = "json"
	EncoderTypeBinary = "binary"
)

// Encoded is the result of encoding records.
type Encoded struct {
	Body []byte

	// Version is the schema version the body was encoded with as
	// reported by the registry.
	Version string
}

// Codec encodes and decodes records of a single subject.
//
// An empty version means the latest version of the subject.
// Errors from the schema registry are returned unchanged so
// transient failures stay transient.
type Codec interface {
	EncoderType() string
	Encode(ctx context.Context, records []any, version string) (Encoded, error)
	Decode(ctx context.Context, body []byte, version string) ([]any, error)
	Validate(ctx context.Context, record any, version string) error
}

// InvalidInputError is returned when the records or body handed
// to a [Codec] can not be represented by its encoding.
type InvalidInputError struct {
	Reason string
}

func (e InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// ValidationError is returned when a record does not conform to a schema.
type ValidationError struct {
	Subject string
	Version string
	Cause   error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("record does not conform to schema %s version %s: %s", e.Subject, e.Version, e.Cause)
}

func (e ValidationError) Unwrap() error {
	return e.Cause
}

// Kind identifies a [Codec] implementation.
type Kind string

const (
	KindJSON          Kind = "json"
	KindBinaryFile    Kind = "binary_file"
	KindBinaryMessage Kind = "binary_message"
)

// UnknownKindError
type UnknownKindError struct {
	Kind Kind
}

func (e UnknownKindError) Error() string {
	return fmt.Sprintf("unknown codec kind: %q", e.Kind)
}

// New initializes the [Codec] of the given [Kind] for a subject.
func New(kind Kind, registry schema.Registry, subject string) (Codec, error) {
	switch kind {
	case KindJSON:
		return NewJSON(registry, subject), nil
	case KindBinaryFile:
		return NewBinaryFile(registry, subject), nil
	case KindBinaryMessage:
		return NewBinaryMessage(registry, subject), nil
	default:
		return nil, UnknownKindError{Kind: kind}
	}
}

// subjectSchemas resolves schemas of one subject and holds
// the behaviour shared by every [Codec].
type subjectSchemas struct {
	registry schema.Registry
	subject  string
}

func (s subjectSchemas) schema(ctx context.Context, version string) (*schema.Schema, error) {
	if len(version) == 0 {
		version = schema.LatestVersion
	}
	return s.registry.GetSchema(ctx, s.subject, version)
}

// Validate runs the record through the binary encoder of the schema which
// enforces every field level type constraint.
func (s subjectSchemas) Validate(ctx context.Context, record any, version string) error {
	sch, err := s.schema(ctx, version)
	if err != nil {
		return err
	}

	_, err = avro.Marshal(sch.Avro, record)
	if err != nil {
		return ValidationError{
			Subject: s.subject,
			Version: sch.Version,
			Cause:   err,
		}
	}
	return nil
}
