// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler handles a single delivery.
//
// It returns true if the delivery should be acknowledged and false if it
// should be rejected without requeueing. A [warren.TransientError] causes
// the connection to be closed so the delivery is redelivered after reconnecting.
type MessageHandler func(ctx context.Context, headers map[string]string, body []byte) (bool, error)

// DefaultPrefetchCount is used when a [Route] has no prefetch count.
const DefaultPrefetchCount = 1

// Route is a single queue subscription.
type Route struct {
	Server        ServerDetails
	Queue         string
	PrefetchCount int
	Handler       MessageHandler
}

func (r Route) prefetchCount() int {
	if r.PrefetchCount <= 0 {
		return DefaultPrefetchCount
	}
	return r.PrefetchCount
}

// headersOf flattens an AMQP header table into strings.
func headersOf(t amqp.Table) map[string]string {
	headers := make(map[string]string, len(t))
	for k, v := range t {
		switch x := v.(type) {
		case nil:
		case string:
			headers[k] = x
		case []byte:
			headers[k] = string(x)
		default:
			headers[k] = fmt.Sprint(x)
		}
	}
	return headers
}
