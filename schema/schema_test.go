// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package schema

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/z5labs/warren"

	"github.com/hamba/avro/v2"
	"github.com/stretchr/testify/require"
)

const plateSchema = `{"type":"record","name":"CreatePlate","namespace":"test","fields":[{"name":"plate_barcode","type":"string"}]}`

func registryServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int64, *atomic.Value) {
	t.Helper()

	var calls atomic.Int64
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		path.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &path
}

func TestClient_GetSchema(t *testing.T) {
	t.Run("will return the parsed schema", func(t *testing.T) {
		t.Run("if the registry responds with a valid schema", func(t *testing.T) {
			ResetCache()

			srv, _, path := registryServer(t, http.StatusOK, `{"subject":"create-plate","version":3,"id":7,"schema":`+quote(plateSchema)+`}`)
			c := NewClient(srv.URL)

			s, err := c.GetSchema(context.Background(), "create-plate", "3")
			require.Nil(t, err)
			require.Equal(t, "/subjects/create-plate/versions/3", path.Load())
			require.Equal(t, "create-plate", s.Subject)
			require.Equal(t, "3", s.Version)
			require.Equal(t, avro.Record, s.Avro.Type())
		})

		t.Run("if the registry responds with a string version", func(t *testing.T) {
			ResetCache()

			srv, _, _ := registryServer(t, http.StatusOK, `{"version":"2","schema":`+quote(plateSchema)+`}`)
			c := NewClient(srv.URL)

			s, err := c.GetSchema(context.Background(), "create-plate", "2")
			require.Nil(t, err)
			require.Equal(t, "2", s.Version)
		})
	})

	t.Run("will request the latest version", func(t *testing.T) {
		t.Run("if no version is given", func(t *testing.T) {
			ResetCache()

			srv, _, path := registryServer(t, http.StatusOK, `{"version":5,"schema":`+quote(plateSchema)+`}`)
			c := NewClient(srv.URL + "/")

			s, err := c.GetSchema(context.Background(), "create-plate", "")
			require.Nil(t, err)
			require.Equal(t, "/subjects/create-plate/versions/latest", path.Load())
			require.Equal(t, "5", s.Version)
		})
	})

	t.Run("will serve from the cache", func(t *testing.T) {
		t.Run("if the same url was already fetched", func(t *testing.T) {
			ResetCache()

			srv, calls, _ := registryServer(t, http.StatusOK, `{"version":1,"schema":`+quote(plateSchema)+`}`)

			first, err := NewClient(srv.URL).GetSchema(context.Background(), "create-plate", "1")
			require.Nil(t, err)

			second, err := NewClient(srv.URL).GetSchema(context.Background(), "create-plate", "1")
			require.Nil(t, err)

			require.Same(t, first, second)
			require.Equal(t, int64(1), calls.Load())
		})
	})

	t.Run("will fetch again", func(t *testing.T) {
		t.Run("if the cache was reset", func(t *testing.T) {
			ResetCache()

			srv, calls, _ := registryServer(t, http.StatusOK, `{"version":1,"schema":`+quote(plateSchema)+`}`)
			c := NewClient(srv.URL)

			_, err := c.GetSchema(context.Background(), "create-plate", "1")
			require.Nil(t, err)

			ResetCache()

			_, err = c.GetSchema(context.Background(), "create-plate", "1")
			require.Nil(t, err)
			require.Equal(t, int64(2), calls.Load())
		})
	})

	t.Run("will return a transient error", func(t *testing.T) {
		t.Run("if the registry can not be reached", func(t *testing.T) {
			ResetCache()

			srv := httptest.NewServer(http.NotFoundHandler())
			baseURI := srv.URL
			srv.Close()

			_, err := NewClient(baseURI).GetSchema(context.Background(), "create-plate", "1")
			require.True(t, warren.IsTransient(err))
			require.Contains(t, err.Error(), baseURI)
		})

		t.Run("if the response is not json", func(t *testing.T) {
			ResetCache()

			srv, _, _ := registryServer(t, http.StatusOK, `<html></html>`)

			_, err := NewClient(srv.URL).GetSchema(context.Background(), "create-plate", "1")
			require.True(t, warren.IsTransient(err))
			require.Contains(t, err.Error(), srv.URL)
		})

		t.Run("if the registry responds with a server error", func(t *testing.T) {
			ResetCache()

			srv, _, _ := registryServer(t, http.StatusServiceUnavailable, `{}`)

			_, err := NewClient(srv.URL).GetSchema(context.Background(), "create-plate", "1")
			require.True(t, warren.IsTransient(err))
		})
	})

	t.Run("will return a non transient error", func(t *testing.T) {
		t.Run("if the subject does not exist", func(t *testing.T) {
			ResetCache()

			srv, _, _ := registryServer(t, http.StatusNotFound, `{"error_code":40401,"message":"Subject not found."}`)

			_, err := NewClient(srv.URL).GetSchema(context.Background(), "create-plate", "1")
			require.False(t, warren.IsTransient(err))

			var serr UnexpectedStatusError
			require.ErrorAs(t, err, &serr)
			require.Equal(t, http.StatusNotFound, serr.StatusCode)
		})

		t.Run("if the schema is not valid avro", func(t *testing.T) {
			ResetCache()

			srv, calls, _ := registryServer(t, http.StatusOK, `{"version":1,"schema":"{\"type\":\"nope\"}"}`)
			c := NewClient(srv.URL)

			_, err := c.GetSchema(context.Background(), "create-plate", "1")
			require.False(t, warren.IsTransient(err))

			var ierr InvalidSchemaError
			require.ErrorAs(t, err, &ierr)

			_, err = c.GetSchema(context.Background(), "create-plate", "1")
			require.Error(t, err)
			require.Equal(t, int64(2), calls.Load())
		})
	})
}

func quote(s string) string {
	b, _ := jsonAPI.Marshal(s)
	return string(b)
}
