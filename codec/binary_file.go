// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package codec

import (
	"bytes"
	"context"
	"slices"

	"github.com/z5labs/warren/schema"

	"github.com/hamba/avro/v2/ocf"
)

// Compression codecs supported by [BinaryFile].
const (
	CompressionNull    = ocf.Null
	CompressionDeflate = ocf.Deflate
	CompressionSnappy  = ocf.Snappy
)

// BinaryFile encodes records as an Avro object container file. The writer
// schema is embedded in every body which inflates the size of each message,
// so it suits long lived storage better than short lived broker messages.
type BinaryFile struct {
	subjectSchemas

	compression ocf.CodecName
}

// NewBinaryFile initializes a [BinaryFile] codec without compression.
func NewBinaryFile(registry schema.Registry, subject string) *BinaryFile {
	return &BinaryFile{
		subjectSchemas: subjectSchemas{
			registry: registry,
			subject:  subject,
		},
		compression: CompressionNull,
	}
}

// SetCompression changes the compression codec used when encoding.
func (c *BinaryFile) SetCompression(codec ocf.CodecName) error {
	supported := []ocf.CodecName{CompressionNull, CompressionDeflate, CompressionSnappy}
	if !slices.Contains(supported, codec) {
		return InvalidInputError{Reason: "unsupported compression codec: " + string(codec)}
	}
	c.compression = codec
	return nil
}

// EncoderType implements the [Codec] interface.
func (c *BinaryFile) EncoderType() string {
	return EncoderTypeBinary
}

// Encode implements the [Codec] interface.
func (c *BinaryFile) Encode(ctx context.Context, records []any, version string) (Encoded, error) {
	sch, err := c.schema(ctx, version)
	if err != nil {
		return Encoded{}, err
	}

	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(sch.Avro.String(), &buf, ocf.WithCodec(c.compression))
	if err != nil {
		return Encoded{}, err
	}
	for _, record := range records {
		err = enc.Encode(record)
		if err != nil {
			return Encoded{}, err
		}
	}
	err = enc.Close()
	if err != nil {
		return Encoded{}, err
	}

	return Encoded{
		Body:    buf.Bytes(),
		Version: sch.Version,
	}, nil
}

// Decode implements the [Codec] interface. Records are read with the
// schema embedded in the body but the registry is still consulted so
// an unknown subject or version fails the same way as the other codecs.
func (c *BinaryFile) Decode(ctx context.Context, body []byte, version string) ([]any, error) {
	_, err := c.schema(ctx, version)
	if err != nil {
		return nil, err
	}

	dec, err := ocf.NewDecoder(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var records []any
	for dec.HasNext() {
		var record any
		err = dec.Decode(&record)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := dec.Error(); err != nil {
		return nil, err
	}
	return records, nil
}
