// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package codec

import (
	"context"
	"testing"

	"github.com/z5labs/warren/schema/schematest"

	"github.com/stretchr/testify/require"
)

const sampleSchema = `{
	"type": "record",
	"name": "Sample",
	"namespace": "test",
	"fields": [
		{"name": "sample_id", "type": "string"},
		{"name": "note", "type": ["null", "string"], "default": null},
		{"name": "checksum", "type": "bytes"},
		{"name": "volume", "type": "double", "default": 1.5}
	]
}`

func TestJSON_Encode(t *testing.T) {
	t.Run("will write one line per record", func(t *testing.T) {
		t.Run("using the avro json encoding", func(t *testing.T) {
			r, version := plateRegistry()

			encoded, err := NewJSON(r, "create-plate").Encode(
				context.Background(),
				[]any{plate("ABC123", 96), plate("DEF456", 384)},
				version,
			)
			require.Nil(t, err)

			expected := `{"plate_barcode":"ABC123","wells":96}` + "\n" + `{"plate_barcode":"DEF456","wells":384}` + "\n"
			require.Equal(t, expected, string(encoded.Body))
		})

		t.Run("with unions wrapped by their branch name", func(t *testing.T) {
			r := &schematest.Registry{}
			version := r.Add("sample", sampleSchema)

			record := map[string]any{
				"sample_id": "S1",
				"note":      "hello",
				"checksum":  []byte{0x00, 0xff},
				"volume":    2.0,
			}
			encoded, err := NewJSON(r, "sample").Encode(context.Background(), []any{record}, version)
			require.Nil(t, err)

			expected := `{"checksum":"\u0000ÿ","note":{"string":"hello"},"sample_id":"S1","volume":2}` + "\n"
			require.JSONEq(t, expected, string(encoded.Body))
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if a record does not match the schema", func(t *testing.T) {
			r, version := plateRegistry()

			_, err := NewJSON(r, "create-plate").Encode(context.Background(), []any{plate("ABC123", 96), "not a record"}, version)

			var terr TextualError
			require.ErrorAs(t, err, &terr)
			require.Equal(t, 1, terr.Record)
		})
	})
}

func TestJSON_Decode(t *testing.T) {
	t.Run("will unwrap unions and fill in defaults", func(t *testing.T) {
		r := &schematest.Registry{}
		version := r.Add("sample", sampleSchema)

		body := []byte(`{"sample_id":"S1","note":{"string":"hello"},"checksum":"\u0000ÿ"}` + "\n\n")
		records, err := NewJSON(r, "sample").Decode(context.Background(), body, version)
		require.Nil(t, err)
		require.Len(t, records, 1)

		expected := map[string]any{
			"sample_id": "S1",
			"note":      "hello",
			"checksum":  []byte{0x00, 0xff},
			"volume":    1.5,
		}
		require.Equal(t, expected, records[0])
	})

	t.Run("will decode a null union", func(t *testing.T) {
		r := &schematest.Registry{}
		version := r.Add("sample", sampleSchema)

		body := []byte(`{"sample_id":"S1","note":null,"checksum":"","volume":3}`)
		records, err := NewJSON(r, "sample").Decode(context.Background(), body, version)
		require.Nil(t, err)
		require.Len(t, records, 1)

		record := records[0].(map[string]any)
		require.Nil(t, record["note"])
		require.Equal(t, 3.0, record["volume"])
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the body is not json", func(t *testing.T) {
			r, version := plateRegistry()

			_, err := NewJSON(r, "create-plate").Decode(context.Background(), []byte{0xC3, 0x01, 0x02}, version)
			require.Error(t, err)
		})

		t.Run("if a required field is missing", func(t *testing.T) {
			r, version := plateRegistry()

			_, err := NewJSON(r, "create-plate").Decode(context.Background(), []byte(`{"wells":96}`), version)

			var terr TextualError
			require.ErrorAs(t, err, &terr)
			require.Equal(t, 0, terr.Record)
		})

		t.Run("if a long is not an integer", func(t *testing.T) {
			r, version := plateRegistry()

			_, err := NewJSON(r, "create-plate").Decode(context.Background(), []byte(`{"plate_barcode":"A","wells":1.5}`), version)

			var terr TextualError
			require.ErrorAs(t, err, &terr)
		})
	})
}

const labelSchema = `{
	"type": "record",
	"name": "Label",
	"namespace": "test",
	"fields": [
		{"name": "value", "type": ["string", {"type": "map", "values": "string"}]}
	]
}`

func TestJSON_Decode_Union(t *testing.T) {
	t.Run("will keep a map branch", func(t *testing.T) {
		t.Run("if its only key is the name of another branch", func(t *testing.T) {
			r := &schematest.Registry{}
			version := r.Add("label", labelSchema)

			body := []byte(`{"value":{"map":{"string":"x"}}}`)
			records, err := NewJSON(r, "label").Decode(context.Background(), body, version)
			require.Nil(t, err)
			require.Len(t, records, 1)

			record := records[0].(map[string]any)
			require.Equal(t, map[string]any{"string": "x"}, record["value"])
		})
	})

	t.Run("will decode the string branch", func(t *testing.T) {
		r := &schematest.Registry{}
		version := r.Add("label", labelSchema)

		body := []byte(`{"value":{"string":"x"}}`)
		records, err := NewJSON(r, "label").Decode(context.Background(), body, version)
		require.Nil(t, err)
		require.Len(t, records, 1)

		record := records[0].(map[string]any)
		require.Equal(t, "x", record["value"])
	})
}

func TestJSON_Decode_Lines(t *testing.T) {
	t.Run("will decode every record in the body", func(t *testing.T) {
		r, version := plateRegistry()

		body := []byte(`{"plate_barcode":"ABC123","wells":96}` + "\n\n" + `{"plate_barcode":"DEF456","wells":384}` + "\n")
		records, err := NewJSON(r, "create-plate").Decode(context.Background(), body, version)
		require.Nil(t, err)
		require.Equal(t, []any{plate("ABC123", 96), plate("DEF456", 384)}, records)
	})

	t.Run("will report the index of the record which failed", func(t *testing.T) {
		r, version := plateRegistry()

		body := []byte(`{"plate_barcode":"ABC123","wells":96}` + "\n" + `{"wells":384}` + "\n")
		_, err := NewJSON(r, "create-plate").Decode(context.Background(), body, version)

		var terr TextualError
		require.ErrorAs(t, err, &terr)
		require.Equal(t, 1, terr.Record)
	})
}
