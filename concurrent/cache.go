// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package concurrent provides concurrency safe data structures.
package concurrent

import "sync"

// Cache is a concurrency safe, insert-if-absent cache. Entries are
// never evicted. Concurrent misses for the same key may each compute
// a value but only the first one stored is ever returned.
type Cache[K comparable, V any] struct {
	m sync.Map
}

// NewCache
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{}
}

// Get returns the value stored for k, if any.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	v, ok := c.m.Load(k)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// GetOr returns the value stored for k or computes one with f and stores it.
// f is called without holding any lock so it may block. Errors returned
// by f are not cached.
func (c *Cache[K, V]) GetOr(k K, f func() (V, error)) (V, error) {
	if v, ok := c.Get(k); ok {
		return v, nil
	}

	v, err := f()
	if err != nil {
		return v, err
	}

	actual, _ := c.m.LoadOrStore(k, v)
	return actual.(V), nil
}

// Reset removes every entry.
func (c *Cache[K, V]) Reset() {
	c.m.Clear()
}
