// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package codec

import (
	"bytes"
	"context"

	"github.com/z5labs/warren/schema"

	"github.com/hamba/avro/v2"
)

// singleObjectMarker prefixes every single object encoded body.
var singleObjectMarker = []byte{0xC3, 0x01}

const (
	fingerprintLen = 8
	headerLen      = 2 + fingerprintLen
)

// BinaryMessage encodes exactly one record with the Avro single object
// encoding: a two byte marker, the 8 byte little-endian CRC-64-AVRO fingerprint of the
// writer schema and then the record without any embedded schema.
//
// The fingerprint is never consulted when decoding. The schema is always
// resolved by subject and version which must travel with the message.
type BinaryMessage struct {
	subjectSchemas
}

// NewBinaryMessage initializes a [BinaryMessage] codec.
func NewBinaryMessage(registry schema.Registry, subject string) *BinaryMessage {
	return &BinaryMessage{
		subjectSchemas: subjectSchemas{
			registry: registry,
			subject:  subject,
		},
	}
}

// EncoderType implements the [Codec] interface.
func (c *BinaryMessage) EncoderType() string {
	return EncoderTypeBinary
}

// Encode implements the [Codec] interface.
func (c *BinaryMessage) Encode(ctx context.Context, records []any, version string) (Encoded, error) {
	if len(records) != 1 {
		return Encoded{}, InvalidInputError{Reason: "single object encoding requires exactly one record"}
	}

	sch, err := c.schema(ctx, version)
	if err != nil {
		return Encoded{}, err
	}

	fingerprint, err := sch.Avro.FingerprintUsing(avro.CRC64AvroLE)
	if err != nil {
		return Encoded{}, err
	}

	payload, err := avro.Marshal(sch.Avro, records[0])
	if err != nil {
		return Encoded{}, err
	}

	body := make([]byte, 0, headerLen+len(payload))
	body = append(body, singleObjectMarker...)
	body = append(body, fingerprint...)
	body = append(body, payload...)

	return Encoded{
		Body:    body,
		Version: sch.Version,
	}, nil
}

// Decode implements the [Codec] interface.
func (c *BinaryMessage) Decode(ctx context.Context, body []byte, version string) ([]any, error) {
	if !bytes.HasPrefix(body, singleObjectMarker) {
		return nil, InvalidInputError{Reason: "body does not start with the single object marker"}
	}
	if len(body) < headerLen {
		return nil, InvalidInputError{Reason: "body is too short to contain a schema fingerprint"}
	}

	sch, err := c.schema(ctx, version)
	if err != nil {
		return nil, err
	}

	var record any
	err = avro.Unmarshal(sch.Avro, body[headerLen:], &record)
	if err != nil {
		return nil, err
	}
	return []any{record}, nil
}
