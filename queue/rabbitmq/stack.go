// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"fmt"

	"github.com/z5labs/warren/config"
	"github.com/z5labs/warren/health"
	"github.com/z5labs/warren/processing"
	"github.com/z5labs/warren/schema"

	"github.com/sourcegraph/conc/pool"
)

// Stack runs one [Supervisor] per [Route].
type Stack struct {
	supervisors []*Supervisor
}

// NewStack initializes a [Stack] with a [Supervisor] for every [Route].
func NewStack(routes []Route, opts ...SupervisorOption) *Stack {
	supervisors := make([]*Supervisor, len(routes))
	for i, r := range routes {
		supervisors[i] = NewSupervisor(r, opts...)
	}
	return &Stack{
		supervisors: supervisors,
	}
}

// Supervisors returns the [Supervisor] of each [Route] in order.
func (s *Stack) Supervisors() []*Supervisor {
	return s.supervisors
}

// BringUp starts every [Supervisor] which is not healthy.
func (s *Stack) BringUp(ctx context.Context) {
	for _, sup := range s.supervisors {
		healthy, _ := sup.Healthy(ctx)
		if healthy {
			continue
		}
		sup.BringUp(ctx)
	}
}

// Healthy implements the [health.Monitor] interface. A [Stack] is
// healthy only if every [Supervisor] is.
func (s *Stack) Healthy(ctx context.Context) (bool, error) {
	monitors := make([]health.Monitor, len(s.supervisors))
	for i, sup := range s.supervisors {
		monitors[i] = sup
	}
	return health.And(monitors...).Healthy(ctx)
}

// Stop stops every [Supervisor] and waits for them to close their connections.
func (s *Stack) Stop() {
	p := pool.New()
	for _, sup := range s.supervisors {
		p.Go(sup.Stop)
	}
	p.Wait()
}

// ProcessQueue implements the [queue.QueueRuntime] interface.
func (s *Stack) ProcessQueue(ctx context.Context) error {
	s.BringUp(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// InvalidRouteError is returned when a configured route can not be built.
type InvalidRouteError struct {
	Index  int
	Reason string
}

func (e InvalidRouteError) Error() string {
	return fmt.Sprintf("invalid route %d: %s", e.Index, e.Reason)
}

// BuildStack builds a [Stack] from configuration. Each route dispatches
// to processors built by the [processing.Factory] of its configured subjects.
// A configured subject without a [processing.Factory] fails the build.
func BuildStack[C any](ctx context.Context, cfg config.RabbitMQ, appCfg C, factories map[string]processing.Factory[C], opts ...Option) (*Stack, error) {
	if len(cfg.Routes) == 0 {
		return nil, InvalidRouteError{Index: 0, Reason: "no routes configured"}
	}

	registryOpts := []schema.ClientOption{
		schema.VerifyCert(config.Verify(cfg.SchemaRegistry.VerifyCert)),
	}
	if cfg.SchemaRegistry.Timeout > 0 {
		registryOpts = append(registryOpts, schema.Timeout(cfg.SchemaRegistry.Timeout))
	}
	registry := schema.NewClient(cfg.SchemaRegistry.BaseURI, registryOpts...)

	var publisherOpts []PublisherOption
	if cfg.Publisher.RetryDelay > 0 {
		publisherOpts = append(publisherOpts, RetryDelay(cfg.Publisher.RetryDelay))
	}
	if cfg.Publisher.MaxRetries > 0 {
		publisherOpts = append(publisherOpts, MaxRetries(cfg.Publisher.MaxRetries))
	}
	supervisorOpts := make([]SupervisorOption, 0, len(opts))
	for _, opt := range opts {
		publisherOpts = append(publisherOpts, opt)
		supervisorOpts = append(supervisorOpts, opt)
	}
	publisher := NewPublisher(ServerDetailsFromConfig(cfg.Publisher.Server), publisherOpts...)

	deps := processing.Dependencies[C]{
		Registry:  registry,
		Publisher: publisher,
		Config:    appCfg,
	}

	routes := make([]Route, len(cfg.Routes))
	for i, rc := range cfg.Routes {
		if len(rc.Queue) == 0 {
			return nil, InvalidRouteError{Index: i, Reason: "queue is required"}
		}
		if len(rc.Subjects) == 0 {
			return nil, InvalidRouteError{Index: i, Reason: "at least one subject is required"}
		}

		bindings := make(map[string]processing.Binding[C], len(rc.Subjects))
		for subject, sc := range rc.Subjects {
			bindings[subject] = processing.Binding[C]{
				Factory:             factories[subject],
				ReaderSchemaVersion: sc.ReaderSchemaVersion,
			}
		}

		d, err := processing.NewDispatcher(ctx, deps, bindings)
		if err != nil {
			return nil, fmt.Errorf("building dispatcher for queue %q: %w", rc.Queue, err)
		}

		routes[i] = Route{
			Server:        ServerDetailsFromConfig(rc.Consumer),
			Queue:         rc.Queue,
			PrefetchCount: rc.PrefetchCount,
			Handler:       d.ProcessMessage,
		}
	}
	return NewStack(routes, supervisorOpts...), nil
}
