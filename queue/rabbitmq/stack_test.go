// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"testing"
	"time"

	"github.com/z5labs/warren/config"
	"github.com/z5labs/warren/message"
	"github.com/z5labs/warren/processing"

	"github.com/stretchr/testify/require"
)

func TestStack_Healthy(t *testing.T) {
	t.Run("will be unhealthy", func(t *testing.T) {
		t.Run("if there are no routes", func(t *testing.T) {
			s := NewStack(nil)

			healthy, err := s.Healthy(context.Background())
			require.Nil(t, err)
			require.False(t, healthy)
		})

		t.Run("if any route is not consuming", func(t *testing.T) {
			consuming, _ := connections(&fakeConnection{ch: newFakeChannel()})
			failing, _ := connections()

			s := &Stack{
				supervisors: []*Supervisor{
					NewSupervisor(Route{Queue: "a"}, Dial(consuming)),
					NewSupervisor(Route{Queue: "b"}, Dial(failing)),
				},
			}
			s.supervisors[1].sleep = func(ctx context.Context, d time.Duration) error {
				<-ctx.Done()
				return ctx.Err()
			}

			s.BringUp(context.Background())
			defer s.Stop()

			require.Eventually(t, func() bool {
				healthy, _ := s.supervisors[0].Healthy(context.Background())
				return healthy
			}, 5*time.Second, 10*time.Millisecond)

			healthy, err := s.Healthy(context.Background())
			require.Nil(t, err)
			require.False(t, healthy)
		})
	})
}

func TestStack_ProcessQueue(t *testing.T) {
	t.Run("will consume every route until the context is cancelled", func(t *testing.T) {
		connA := &fakeConnection{ch: newFakeChannel()}
		connB := &fakeConnection{ch: newFakeChannel()}
		dialer, _ := connections(connA, connB)

		s := NewStack(
			[]Route{{Queue: "a"}, {Queue: "b"}},
			Dial(dialer),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- s.ProcessQueue(ctx)
		}()

		require.Eventually(t, func() bool {
			healthy, _ := s.Healthy(context.Background())
			return healthy
		}, 5*time.Second, 10*time.Millisecond)

		cancel()

		select {
		case err := <-errCh:
			require.Nil(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("stack did not stop")
		}

		healthy, err := s.Healthy(context.Background())
		require.Nil(t, err)
		require.False(t, healthy)
		require.True(t, connA.closed.Load())
		require.True(t, connB.closed.Load())
	})
}

type appConfig struct {
	Lab string
}

func TestBuildStack(t *testing.T) {
	noop := processing.FactoryFunc[appConfig](func(ctx context.Context, deps processing.Dependencies[appConfig]) (processing.Processor, error) {
		return processing.ProcessorFunc(func(context.Context, *message.Envelope) (bool, error) {
			return true, nil
		}), nil
	})

	t.Run("will build a supervisor per route", func(t *testing.T) {
		var got []processing.Dependencies[appConfig]
		factory := processing.FactoryFunc[appConfig](func(ctx context.Context, deps processing.Dependencies[appConfig]) (processing.Processor, error) {
			got = append(got, deps)
			return noop.NewProcessor(ctx, deps)
		})

		cfg := config.RabbitMQ{
			SchemaRegistry: config.SchemaRegistry{BaseURI: "http://localhost:8081"},
			Routes: []config.Route{
				{
					Queue:    "plates",
					Consumer: config.Server{Host: "localhost", Port: 5672},
					Subjects: map[string]config.Subject{
						"create-plate": {ReaderSchemaVersion: "3"},
					},
				},
				{
					Queue:         "samples",
					PrefetchCount: 10,
					Consumer:      config.Server{Host: "localhost", Port: 5672},
					Subjects: map[string]config.Subject{
						"update-sample": {},
					},
				},
			},
		}

		s, err := BuildStack(context.Background(), cfg, appConfig{Lab: "lab-1"}, map[string]processing.Factory[appConfig]{
			"create-plate":  factory,
			"update-sample": factory,
		})
		require.Nil(t, err)
		require.Len(t, s.Supervisors(), 2)
		require.Equal(t, "plates", s.Supervisors()[0].Queue())
		require.Equal(t, "samples", s.Supervisors()[1].Queue())
		require.Equal(t, 10, s.Supervisors()[1].route.PrefetchCount)
		require.False(t, s.Supervisors()[0].route.Server.SkipVerify)

		require.Len(t, got, 2)
		require.Equal(t, "lab-1", got[0].Config.Lab)
		require.NotNil(t, got[0].Registry)
		require.NotNil(t, got[0].Publisher)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if a configured subject has no factory", func(t *testing.T) {
			cfg := config.RabbitMQ{
				Routes: []config.Route{
					{
						Queue: "plates",
						Subjects: map[string]config.Subject{
							"create-plate": {},
						},
					},
				},
			}

			_, err := BuildStack(context.Background(), cfg, appConfig{}, map[string]processing.Factory[appConfig]{
				"update-sample": noop,
			})

			var serr processing.UnknownSubjectError
			require.ErrorAs(t, err, &serr)
			require.Equal(t, "create-plate", serr.Subject)
		})

		t.Run("if a route has no queue", func(t *testing.T) {
			cfg := config.RabbitMQ{
				Routes: []config.Route{
					{Subjects: map[string]config.Subject{"create-plate": {}}},
				},
			}

			_, err := BuildStack(context.Background(), cfg, appConfig{}, map[string]processing.Factory[appConfig]{
				"create-plate": noop,
			})

			var rerr InvalidRouteError
			require.ErrorAs(t, err, &rerr)
			require.Equal(t, 0, rerr.Index)
		})

		t.Run("if there are no routes", func(t *testing.T) {
			_, err := BuildStack(context.Background(), config.RabbitMQ{}, appConfig{}, map[string]processing.Factory[appConfig]{})

			var rerr InvalidRouteError
			require.ErrorAs(t, err, &rerr)
		})
	})
}
