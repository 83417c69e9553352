// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/z5labs/warren/codec"
	"github.com/z5labs/warren/processing"
	"github.com/z5labs/warren/queue/rabbitmq"
	"github.com/z5labs/warren/schema"
)

func main() {
	host := flag.String("host", "localhost", "RabbitMQ host")
	port := flag.Int("port", 5672, "RabbitMQ port")
	username := flag.String("username", "guest", "RabbitMQ username")
	password := flag.String("password", "guest", "RabbitMQ password")
	exchange := flag.String("exchange", "lab.plates", "exchange to publish to")
	routingKey := flag.String("routing-key", "lab.plates", "routing key to publish with")
	registry := flag.String("registry", "http://localhost:8081", "schema registry base URI")
	kind := flag.String("codec", string(codec.KindJSON), "one of json, binary_file or binary_message")
	count := flag.Int("count", 10, "number of plates to publish")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Kill, os.Interrupt)
	defer cancel()

	c, err := codec.New(codec.Kind(*kind), schema.NewClient(*registry), "create-plate")
	if err != nil {
		log.Fatalf("failed to create codec: %v", err)
	}

	p := rabbitmq.NewPublisher(
		rabbitmq.ServerDetails{
			Host:     *host,
			Port:     *port,
			Username: *username,
			Password: *password,
		},
		rabbitmq.MaxRetries(3),
		rabbitmq.RetryDelay(time.Second),
	)

	for i := 0; i < *count; i++ {
		barcode := fmt.Sprintf("PLATE-%d", time.Now().UnixNano())

		encoded, err := c.Encode(ctx, []any{map[string]any{"plate_barcode": barcode}}, "")
		if err != nil {
			log.Fatalf("failed to encode plate: %v", err)
		}

		err = p.Publish(ctx, processing.Publishing{
			Exchange:    *exchange,
			RoutingKey:  *routingKey,
			Subject:     "create-plate",
			Version:     encoded.Version,
			EncoderType: c.EncoderType(),
			Body:        encoded.Body,
		})
		if err != nil {
			log.Fatalf("failed to publish plate %s: %v", barcode, err)
		}
	}
}
