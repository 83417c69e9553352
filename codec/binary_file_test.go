// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package codec

import (
	"context"
	"testing"

	"github.com/hamba/avro/v2/ocf"
	"github.com/stretchr/testify/require"
)

func TestBinaryFile_SetCompression(t *testing.T) {
	t.Run("will round trip records", func(t *testing.T) {
		for _, compression := range []ocf.CodecName{CompressionNull, CompressionDeflate, CompressionSnappy} {
			t.Run("if compressed with "+string(compression), func(t *testing.T) {
				r, version := plateRegistry()
				c := NewBinaryFile(r, "create-plate")
				require.Nil(t, c.SetCompression(compression))

				records := []any{plate("ABC123", 96), plate("DEF456", 384)}
				encoded, err := c.Encode(context.Background(), records, version)
				require.Nil(t, err)
				require.Equal(t, []byte("Obj\x01"), encoded.Body[:4])

				decoded, err := c.Decode(context.Background(), encoded.Body, version)
				require.Nil(t, err)
				require.Equal(t, records, decoded)
			})
		}
	})

	t.Run("will return an InvalidInputError", func(t *testing.T) {
		t.Run("if the compression codec is not supported", func(t *testing.T) {
			r, _ := plateRegistry()

			err := NewBinaryFile(r, "create-plate").SetCompression("lz4")

			var ierr InvalidInputError
			require.ErrorAs(t, err, &ierr)
		})
	})
}

func TestBinaryFile_Decode(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the body is a single object encoding", func(t *testing.T) {
			r, version := plateRegistry()
			encoded, err := NewBinaryMessage(r, "create-plate").Encode(context.Background(), []any{plate("ABC123", 96)}, version)
			require.Nil(t, err)

			_, err = NewBinaryFile(r, "create-plate").Decode(context.Background(), encoded.Body, version)
			require.Error(t, err)
		})
	})
}
