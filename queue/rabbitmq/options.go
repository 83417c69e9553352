// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"log/slog"
	"time"
)

// Option configures both a [Supervisor] and a [Publisher].
type Option interface {
	SupervisorOption
	PublisherOption
}

type dialerOption struct {
	d Dialer
}

func (o dialerOption) ApplySupervisorOption(so *SupervisorOptions) {
	so.dialer = o.d
}

func (o dialerOption) ApplyPublisherOption(po *PublisherOptions) {
	po.dialer = o.d
}

// Dial overrides the [Dialer] used to connect to brokers.
// The default is an [AMQPDialer].
func Dial(d Dialer) Option {
	return dialerOption{d: d}
}

type logHandlerOption struct {
	h slog.Handler
}

func (o logHandlerOption) ApplySupervisorOption(so *SupervisorOptions) {
	so.log = slog.New(o.h)
}

func (o logHandlerOption) ApplyPublisherOption(po *PublisherOptions) {
	po.log = slog.New(o.h)
}

// LogHandler overrides the [slog.Handler] used for logging.
func LogHandler(h slog.Handler) Option {
	return logHandlerOption{h: h}
}

type supervisorOptionFunc func(*SupervisorOptions)

func (f supervisorOptionFunc) ApplySupervisorOption(so *SupervisorOptions) {
	f(so)
}

// MaxDelay overrides [DefaultMaxDelay].
func MaxDelay(d time.Duration) SupervisorOption {
	return supervisorOptionFunc(func(so *SupervisorOptions) {
		so.maxDelay = d
	})
}

// DelayStep overrides [DefaultDelayStep].
func DelayStep(d time.Duration) SupervisorOption {
	return supervisorOptionFunc(func(so *SupervisorOptions) {
		so.delayStep = d
	})
}

type publisherOptionFunc func(*PublisherOptions)

func (f publisherOptionFunc) ApplyPublisherOption(po *PublisherOptions) {
	f(po)
}

// RetryDelay sets how long a [Publisher] waits before retrying
// a message the broker could not route.
func RetryDelay(d time.Duration) PublisherOption {
	return publisherOptionFunc(func(po *PublisherOptions) {
		po.retryDelay = d
	})
}

// MaxRetries sets how many times a [Publisher] attempts to publish
// a message the broker could not route.
func MaxRetries(n int) PublisherOption {
	return publisherOptionFunc(func(po *PublisherOptions) {
		po.maxRetries = n
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
