// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package queue provides support for running long lived queue consumer services.
//
// A [QueueRuntime] consumes until its [context.Context] is cancelled. The
// [github.com/z5labs/warren/queue/rabbitmq.Stack] is the runtime most services
// want: one supervised consumer per configured route, each decoding messages
// against the schema registry before handing them to your processors.
//
// [Run] wires a runtime into the common application lifecycle. It reads
// YAML config, initializes OpenTelemetry, recovers panics and shuts down
// on SIGINT or SIGTERM.
//
// # Example Usage
//
//	type Config struct {
//	    queue.Config `config:",squash"`
//	}
//
//	func Init(ctx context.Context, cfg Config) (*queue.App, error) {
//	    stack, err := rabbitmq.BuildStack(ctx, cfg.RabbitMQ, cfg, map[string]processing.Factory[Config]{
//	        "create-plate": processing.FactoryFunc[Config](plates.NewCreateProcessor),
//	    })
//	    if err != nil {
//	        return nil, err
//	    }
//	    return queue.NewApp(stack), nil
//	}
//
//	func main() {
//	    queue.Run(bytes.NewReader(configBytes), Init)
//	}
package queue
