// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package schematest provides an in-memory schema registry for tests.
package schematest

import (
	"context"
	"fmt"
	"sync"

	"github.com/z5labs/warren/schema"

	"github.com/hamba/avro/v2"
)

// Registry is an in-memory [schema.Registry]. The zero value is empty and ready to use.
type Registry struct {
	mu       sync.Mutex
	versions map[string][]string

	// Err, if set, is returned from every lookup.
	Err error
}

// Add registers a new version of the subject and returns the version number.
func (r *Registry) Add(subject, raw string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.versions == nil {
		r.versions = make(map[string][]string)
	}
	r.versions[subject] = append(r.versions[subject], raw)
	return fmt.Sprint(len(r.versions[subject]))
}

// NotFoundError
type NotFoundError struct {
	Subject string
	Version string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("subject %q version %q not found", e.Subject, e.Version)
}

// GetSchema implements the [schema.Registry] interface.
func (r *Registry) GetSchema(ctx context.Context, subject, version string) (*schema.Schema, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	r.mu.Lock()
	versions := r.versions[subject]
	r.mu.Unlock()

	idx := len(versions)
	if version != "" && version != schema.LatestVersion {
		_, err := fmt.Sscan(version, &idx)
		if err != nil {
			return nil, NotFoundError{Subject: subject, Version: version}
		}
	}
	if idx < 1 || idx > len(versions) {
		return nil, NotFoundError{Subject: subject, Version: version}
	}

	raw := versions[idx-1]
	s, err := avro.ParseWithCache(raw, "", &avro.SchemaCache{})
	if err != nil {
		return nil, err
	}
	return &schema.Schema{
		Subject: subject,
		Version: fmt.Sprint(idx),
		Raw:     raw,
		Avro:    s,
	}, nil
}
