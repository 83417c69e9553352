// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	mu          sync.Mutex
	settlements []settlement
	err         error
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settlements = append(a.settlements, settlement{tag: tag, ack: true})
	return a.err
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settlements = append(a.settlements, settlement{tag: tag, requeue: requeue})
	return a.err
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) settled() []settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]settlement{}, a.settlements...)
}

type fakeChannel struct {
	qosErr     error
	consumeErr error
	closeErr   *amqp.Error
	cancelTag  string

	deliveries chan amqp.Delivery

	prefetch    int
	queue       string
	consumerTag string
	cancelled   atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once
}

func newFakeChannel(deliveries ...amqp.Delivery) *fakeChannel {
	ch := &fakeChannel{
		deliveries: make(chan amqp.Delivery, len(deliveries)),
	}
	for _, d := range deliveries {
		ch.deliveries <- d
	}
	return ch
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.prefetch = prefetchCount
	return c.qosErr
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.queue = queue
	c.consumerTag = consumer
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	return c.deliveries, nil
}

func (c *fakeChannel) Cancel(consumer string, noWait bool) error {
	c.cancelled.Store(true)
	c.closeOnce.Do(func() { close(c.deliveries) })
	return nil
}

func (c *fakeChannel) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	if c.closeErr != nil {
		ch <- c.closeErr
	}
	return ch
}

func (c *fakeChannel) NotifyCancel(ch chan string) chan string {
	if len(c.cancelTag) > 0 {
		ch <- c.cancelTag
	}
	return ch
}

func (c *fakeChannel) Close() error {
	c.closed.Store(true)
	return nil
}

type published struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

type fakePublishChannel struct {
	mu        sync.Mutex
	returns   int
	err       error
	published []published
	closed    bool
}

func (c *fakePublishChannel) PublishMandatory(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.published = append(c.published, published{exchange: exchange, routingKey: routingKey, msg: msg})
	if c.err != nil {
		return false, c.err
	}
	if c.returns > 0 {
		c.returns--
		return true, nil
	}
	return false, nil
}

func (c *fakePublishChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeConnection struct {
	ch       *fakeChannel
	chErr    error
	pub      *fakePublishChannel
	closeErr *amqp.Error
	closed   atomic.Bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	if c.chErr != nil {
		return nil, c.chErr
	}
	return c.ch, nil
}

func (c *fakeConnection) PublishChannel() (PublishChannel, error) {
	if c.chErr != nil {
		return nil, c.chErr
	}
	return c.pub, nil
}

func (c *fakeConnection) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	if c.closeErr != nil {
		ch <- c.closeErr
	}
	return ch
}

func (c *fakeConnection) Close() error {
	c.closed.Store(true)
	return nil
}

// connections dials each of the given connections in turn and then
// fails every following dial.
func connections(conns ...*fakeConnection) (Dialer, *atomic.Int64) {
	var dials atomic.Int64
	return DialerFunc(func(ctx context.Context, sd ServerDetails) (Connection, error) {
		n := dials.Add(1)
		if int(n) > len(conns) {
			return nil, errDialFailed
		}
		return conns[n-1], nil
	}), &dials
}

var amqpConnectionForced = amqp.Error{Code: amqp.ConnectionForced, Reason: "broker shutdown"}
