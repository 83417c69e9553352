// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package queue

import (
	"context"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/z5labs/warren"

	"github.com/z5labs/bedrock"
	"github.com/z5labs/bedrock/app"
	"github.com/z5labs/bedrock/appbuilder"
	bedrockcfg "github.com/z5labs/bedrock/config"
	"github.com/z5labs/bedrock/lifecycle"
)

// Config is the default config which can be easily embedded into a
// more custom app specific config.
type Config struct {
	warren.Config `config:",squash"`
}

// QueueRuntime consumes from one or more queues until the given
// [context.Context] is cancelled.
//
// When ProcessQueue returns, the application will shut down gracefully.
type QueueRuntime interface {
	ProcessQueue(context.Context) error
}

// QueueRuntimeFunc is an adapter to allow the use of ordinary functions as [QueueRuntime]s.
type QueueRuntimeFunc func(context.Context) error

// ProcessQueue implements the [QueueRuntime] interface.
func (f QueueRuntimeFunc) ProcessQueue(ctx context.Context) error {
	return f(ctx)
}

// App is a [bedrock.App] which handles running your [QueueRuntime].
type App struct {
	rt QueueRuntime
}

// NewApp initializes a new [App].
func NewApp(rt QueueRuntime) *App {
	return &App{
		rt: rt,
	}
}

// Run implements the [bedrock.App] interface.
func (a *App) Run(ctx context.Context) error {
	return a.rt.ProcessQueue(ctx)
}

// Configer is leveraged to constrain the custom config type into
// supporting specific initialization behaviour required by [Run].
type Configer interface {
	appbuilder.OTelInitializer
}

// Builder initializes a [bedrock.AppBuilder] for your [App].
func Builder[T Configer](f func(context.Context, T) (*App, error)) bedrock.AppBuilder[T] {
	return appbuilder.LifecycleContext(
		appbuilder.OTel(
			appbuilder.Recover(
				bedrock.AppBuilderFunc[T](func(ctx context.Context, cfg T) (bedrock.App, error) {
					a, err := f(ctx, cfg)
					if err != nil {
						return nil, err
					}

					bapp := app.InterruptOn(
						app.Recover(a),
						os.Kill,
						os.Interrupt,
						syscall.SIGTERM,
					)
					return bapp, nil
				}),
			),
		),
		&lifecycle.Context{},
	)
}

// RunOptions are used for configuring the running of an [App].
type RunOptions struct {
	logger *slog.Logger
}

// RunOption sets a value on [RunOptions].
type RunOption interface {
	ApplyRunOption(*RunOptions)
}

type runOptionFunc func(*RunOptions)

func (f runOptionFunc) ApplyRunOption(ro *RunOptions) {
	f(ro)
}

// LogHandler overrides the default [slog.Handler] used for logging
// any error encountered while building or running the [App].
func LogHandler(h slog.Handler) RunOption {
	return runOptionFunc(func(ro *RunOptions) {
		ro.logger = slog.New(h)
	})
}

// Run begins by reading, parsing and unmarshaling your custom config into
// the type T, on top of [warren.DefaultConfig]. Then it calls the providing
// function to initialize your [App] and runs its [QueueRuntime] until an OS
// signal is received. Panics are recovered and the OTel SDK is initialized
// and shutdown for you. Any error is logged since there is no caller left
// to handle it.
func Run[T Configer](r io.Reader, f func(context.Context, T) (*App, error), opts ...RunOption) {
	ro := &RunOptions{
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	for _, opt := range opts {
		opt.ApplyRunOption(ro)
	}

	src := bedrockcfg.MultiSource(
		warren.DefaultConfig(),
		warren.ConfigSource(r),
	)
	err := run(context.Background(), appbuilder.FromConfig(Builder(f)), src)
	if err != nil {
		ro.logger.Error("unexpected error while running queue app", slog.Any("error", err))
	}
}

func run(ctx context.Context, b bedrock.AppBuilder[bedrockcfg.Source], src bedrockcfg.Source) error {
	a, err := b.Build(ctx, src)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
