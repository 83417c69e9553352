// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health provides the health signals polled for consumers.
package health

import (
	"context"
	"sync/atomic"
)

// Monitor represents anything which can report its current state of health.
type Monitor interface {
	Healthy(context.Context) (bool, error)
}

// MonitorFunc is an adapter to allow the use of ordinary functions as [Monitor]s.
type MonitorFunc func(context.Context) (bool, error)

// Healthy implements the [Monitor] interface.
func (f MonitorFunc) Healthy(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Binary is a [Monitor] which is either healthy or unhealthy.
// It is safe for concurrent use and its zero value is unhealthy.
type Binary struct {
	healthy atomic.Bool
}

// MarkUnhealthy
func (b *Binary) MarkUnhealthy() {
	b.healthy.Store(false)
}

// MarkHealthy
func (b *Binary) MarkHealthy() {
	b.healthy.Store(true)
}

// Healthy implements the [Monitor] interface.
func (b *Binary) Healthy(ctx context.Context) (bool, error) {
	return b.healthy.Load(), nil
}

// AndMonitor is healthy only if every one of its [Monitor]s is.
// It stops at the first unhealthy or failing [Monitor].
type AndMonitor []Monitor

// And
func And(ms ...Monitor) AndMonitor {
	return AndMonitor(ms)
}

// Healthy implements the [Monitor] interface. An empty [AndMonitor] is unhealthy.
func (am AndMonitor) Healthy(ctx context.Context) (bool, error) {
	if len(am) == 0 {
		return false, nil
	}
	for _, m := range am {
		healthy, err := m.Healthy(ctx)
		if !healthy || err != nil {
			return false, err
		}
	}
	return true, nil
}
