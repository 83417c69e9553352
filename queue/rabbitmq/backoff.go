// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import "time"

const (
	DefaultMaxDelay  = 30 * time.Second
	DefaultDelayStep = time.Second
)

// Backoff decides how long a [Supervisor] waits before reconnecting.
// It is not safe for concurrent use.
type Backoff struct {
	Max  time.Duration
	Step time.Duration

	delay time.Duration
}

// NewBackoff initializes a [Backoff] with [DefaultMaxDelay] and [DefaultDelayStep].
func NewBackoff() *Backoff {
	return &Backoff{
		Max:  DefaultMaxDelay,
		Step: DefaultDelayStep,
	}
}

// Next returns the delay before the next connection attempt given the
// outcome of the previous one.
//
// A transient error always waits the maximum delay. Otherwise, a previous
// attempt which was consuming resets the delay to zero and any other
// attempt increases the delay by one step up to the maximum.
func (b *Backoff) Next(wasConsuming, hadTransientError bool) time.Duration {
	switch {
	case hadTransientError:
		b.delay = b.Max
	case wasConsuming:
		b.delay = 0
	default:
		b.delay = min(b.delay+b.Step, b.Max)
	}
	return b.delay
}

// Reset sets the delay back to zero.
func (b *Backoff) Reset() {
	b.delay = 0
}
