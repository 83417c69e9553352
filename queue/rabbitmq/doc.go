// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package rabbitmq provides a supervised RabbitMQ consumer runtime for the
// warren queue framework.
//
// # Architecture
//
// Each configured [Route] is consumed by its own [Supervisor]. A [Supervisor]
// repeatedly runs a connection state machine on a background goroutine and
// waits between runs according to its [Backoff]:
//   - a run which hit a transient error waits the maximum delay
//   - a run which was consuming reconnects immediately
//   - any other run waits one step longer than the previous run, up to the maximum
//
// The state machine owns exactly one connection and one channel. It dials the
// broker, opens a channel, sets the prefetch count, starts consuming and then
// hands every delivery to the route's [MessageHandler]. A handler returning true
// acknowledges the delivery and false rejects it without requeueing so it is
// dead-lettered. A handler returning a [warren.TransientError] causes the
// connection to be closed without acknowledging or rejecting the delivery,
// which the broker then redelivers once the [Supervisor] reconnects.
//
// A [Stack] groups the supervisors of every route behind a single health signal
// and implements [queue.QueueRuntime].
//
// # Publishing
//
// [Publisher] publishes with publisher confirms and the mandatory flag set.
// Unroutable messages are retried after a delay up to a maximum number of
// retries before [ErrNotPublished] is returned.
package rabbitmq
