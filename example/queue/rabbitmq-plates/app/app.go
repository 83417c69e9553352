// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"

	"github.com/z5labs/warren/processing"
	"github.com/z5labs/warren/queue"
	"github.com/z5labs/warren/queue/rabbitmq"
)

// Config holds the application configuration.
type Config struct {
	queue.Config `config:",squash"`

	Plates struct {
		CreatedRoutingKey string `config:"created_routing_key"`
	} `config:"plates"`
}

// Init initializes the application.
func Init(ctx context.Context, cfg Config) (*queue.App, error) {
	stack, err := rabbitmq.BuildStack(
		ctx,
		cfg.RabbitMQ,
		cfg,
		map[string]processing.Factory[Config]{
			"create-plate": processing.FactoryFunc[Config](NewCreatePlateProcessor),
		},
	)
	if err != nil {
		return nil, err
	}

	return queue.NewApp(stack), nil
}
