// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package codec

import (
	"bytes"
	"context"
	"fmt"

	"github.com/z5labs/warren/concurrent"
	"github.com/z5labs/warren/schema"

	"github.com/bytedance/sonic"
	"github.com/hamba/avro/v2"
	"github.com/linkedin/goavro/v2"
)

var jsonAPI = sonic.Config{
	UseNumber:   true,
	SortMapKeys: true,
}.Froze()

// textualCodecs are keyed by the raw schema they were built from.
var textualCodecs = concurrent.NewCache[string, *goavro.Codec]()

func textualCodec(sch *schema.Schema) (*goavro.Codec, error) {
	return textualCodecs.GetOr(sch.Raw, func() (*goavro.Codec, error) {
		return goavro.NewCodec(sch.Raw)
	})
}

// TextualError is returned when a record can not be converted
// to or from the Avro JSON encoding.
type TextualError struct {
	// Record is the index of the offending record in the body.
	Record int
	Cause  error
}

func (e TextualError) Error() string {
	return fmt.Sprintf("record %d is not valid avro json: %s", e.Record, e.Cause)
}

func (e TextualError) Unwrap() error {
	return e.Cause
}

// JSON encodes records with the Avro JSON encoding, one record per line.
// It is human readable which makes it useful for debugging but it is
// far larger and slower than the binary encodings.
//
// Records pass through the Avro binary encoding on their way in and out
// so they share one native form with the binary codecs.
type JSON struct {
	subjectSchemas
}

// NewJSON initializes a [JSON] codec.
func NewJSON(registry schema.Registry, subject string) *JSON {
	return &JSON{
		subjectSchemas: subjectSchemas{
			registry: registry,
			subject:  subject,
		},
	}
}

// EncoderType implements the [Codec] interface.
func (c *JSON) EncoderType() string {
	return EncoderTypeJSON
}

// Encode implements the [Codec] interface. Object keys are sorted.
func (c *JSON) Encode(ctx context.Context, records []any, version string) (Encoded, error) {
	sch, err := c.schema(ctx, version)
	if err != nil {
		return Encoded{}, err
	}

	tc, err := textualCodec(sch)
	if err != nil {
		return Encoded{}, err
	}

	var buf bytes.Buffer
	for i, record := range records {
		b, err := toTextual(sch.Avro, tc, record)
		if err != nil {
			return Encoded{}, TextualError{Record: i, Cause: err}
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}

	return Encoded{
		Body:    buf.Bytes(),
		Version: sch.Version,
	}, nil
}

func toTextual(s avro.Schema, tc *goavro.Codec, record any) ([]byte, error) {
	bin, err := avro.Marshal(s, record)
	if err != nil {
		return nil, err
	}

	native, _, err := tc.NativeFromBinary(bin)
	if err != nil {
		return nil, err
	}

	text, err := tc.TextualFromNative(nil, native)
	if err != nil {
		return nil, err
	}

	var v any
	err = jsonAPI.Unmarshal(text, &v)
	if err != nil {
		return nil, err
	}
	return jsonAPI.Marshal(v)
}

// Decode implements the [Codec] interface. Missing fields take
// their schema default and blank lines are skipped.
func (c *JSON) Decode(ctx context.Context, body []byte, version string) ([]any, error) {
	sch, err := c.schema(ctx, version)
	if err != nil {
		return nil, err
	}

	tc, err := textualCodec(sch)
	if err != nil {
		return nil, err
	}

	var records []any
	rest := bytes.TrimSpace(body)
	for len(rest) > 0 {
		native, remaining, err := tc.NativeFromTextual(rest)
		if err != nil {
			return nil, TextualError{Record: len(records), Cause: err}
		}

		bin, err := tc.BinaryFromNative(nil, native)
		if err != nil {
			return nil, TextualError{Record: len(records), Cause: err}
		}

		var record any
		err = avro.Unmarshal(sch.Avro, bin, &record)
		if err != nil {
			return nil, TextualError{Record: len(records), Cause: err}
		}
		records = append(records, record)

		rest = bytes.TrimSpace(remaining)
	}
	return records, nil
}
