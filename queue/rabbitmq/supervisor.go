// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/z5labs/warren/health"
)

// SupervisorOptions are configurable parameters of a [Supervisor].
type SupervisorOptions struct {
	dialer    Dialer
	log       *slog.Logger
	maxDelay  time.Duration
	delayStep time.Duration
}

// SupervisorOption sets a value on [SupervisorOptions].
type SupervisorOption interface {
	ApplySupervisorOption(*SupervisorOptions)
}

// Supervisor keeps a [Route] consumed. It reconnects whenever the
// connection is lost, waiting between attempts according to its [Backoff].
type Supervisor struct {
	route   Route
	dialer  Dialer
	log     *slog.Logger
	metrics consumerMetrics
	backoff *Backoff
	health  health.Binary

	sleep  func(context.Context, time.Duration) error
	newTag func() string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSupervisor initializes a [Supervisor] for the given [Route].
func NewSupervisor(route Route, opts ...SupervisorOption) *Supervisor {
	so := &SupervisorOptions{
		dialer:    AMQPDialer{ConnectionName: "warren " + route.Queue},
		log:       logger(),
		maxDelay:  DefaultMaxDelay,
		delayStep: DefaultDelayStep,
	}
	for _, opt := range opts {
		opt.ApplySupervisorOption(so)
	}

	return &Supervisor{
		route:   route,
		dialer:  so.dialer,
		log:     so.log,
		metrics: initConsumerMetrics(so.log),
		backoff: &Backoff{
			Max:  so.maxDelay,
			Step: so.delayStep,
		},
		sleep:  sleep,
		newTag: newConsumerTag,
	}
}

// Queue returns the name of the queue being consumed.
func (s *Supervisor) Queue() string {
	return s.route.Queue
}

// Healthy implements the [health.Monitor] interface. A [Supervisor] is
// healthy while it is consuming.
func (s *Supervisor) Healthy(ctx context.Context) (bool, error) {
	return s.health.Healthy(ctx)
}

// Run consumes the [Route] until the context is cancelled. Run must
// not be called concurrently, use [Supervisor.BringUp] instead when the
// [Supervisor] may already be running.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		m := &machine{
			route:   s.route,
			dialer:  s.dialer,
			log:     s.log,
			tracer:  tracer(),
			metrics: s.metrics,
			health:  &s.health,
			newTag:  s.newTag,
		}
		m.run(ctx)

		if !m.ShouldReconnect() || ctx.Err() != nil {
			s.log.InfoContext(ctx, "consumer stopped", QueueAttr(s.route.Queue))
			return nil
		}

		delay := s.backoff.Next(m.WasConsuming(), m.HadTransientError())
		s.metrics.reconnected(ctx, s.route.Queue, m.HadTransientError())
		s.log.InfoContext(
			ctx,
			"reconnecting",
			QueueAttr(s.route.Queue),
			slog.Duration("delay", delay),
			slog.Bool("was_consuming", m.WasConsuming()),
			slog.Bool("had_transient_error", m.HadTransientError()),
		)

		err := s.sleep(ctx, delay)
		if err != nil {
			s.log.InfoContext(ctx, "consumer stopped while waiting to reconnect", QueueAttr(s.route.Queue))
			return nil
		}
	}
}

// BringUp starts running the [Supervisor] in the background unless it is
// already running. It keeps running until the context is cancelled or
// [Supervisor.Stop] is called.
func (s *Supervisor) BringUp(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer cancel()

		s.Run(runCtx)

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
}

// Stop requests a final stop of a [Supervisor] started by [Supervisor.BringUp]
// and waits for its connection to be closed.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
