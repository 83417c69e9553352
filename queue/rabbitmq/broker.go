// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Dialer opens a [Connection] to a broker.
type Dialer interface {
	Dial(context.Context, ServerDetails) (Connection, error)
}

// DialerFunc is an adapter to allow the use of ordinary functions as [Dialer]s.
type DialerFunc func(context.Context, ServerDetails) (Connection, error)

// Dial implements the [Dialer] interface.
func (f DialerFunc) Dial(ctx context.Context, sd ServerDetails) (Connection, error) {
	return f(ctx, sd)
}

// Connection is a single connection to a broker.
type Connection interface {
	Channel() (Channel, error)
	PublishChannel() (PublishChannel, error)
	NotifyClose(chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Channel is the subset of an AMQP channel a consumer uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	NotifyClose(chan *amqp.Error) chan *amqp.Error
	NotifyCancel(chan string) chan string
	Close() error
}

// PublishChannel is a channel in confirm mode.
type PublishChannel interface {
	// PublishMandatory publishes with the mandatory flag set and waits for
	// the broker to confirm it. returned reports whether the broker returned
	// the message because no queue was bound to receive it.
	PublishMandatory(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) (returned bool, err error)
	Close() error
}

// ErrNacked is returned when the broker negatively acknowledges a publish.
var ErrNacked = errors.New("rabbitmq: publish was nacked by the broker")

// AMQPDialer is the [Dialer] backed by github.com/rabbitmq/amqp091-go.
type AMQPDialer struct {
	// Timeout bounds establishing the TCP connection and AMQP handshake.
	Timeout time.Duration

	// Heartbeat is the requested heartbeat interval.
	Heartbeat time.Duration

	// ConnectionName is reported to the broker in the client properties.
	ConnectionName string
}

// Dial implements the [Dialer] interface.
func (d AMQPDialer) Dial(ctx context.Context, sd ServerDetails) (Connection, error) {
	tlsCfg, err := sd.TLSConfig()
	if err != nil {
		return nil, err
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	heartbeat := d.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}

	props := amqp.NewConnectionProperties()
	if len(d.ConnectionName) > 0 {
		props.SetClientConnectionName(d.ConnectionName)
	}

	conn, err := amqp.DialConfig(sd.URL(), amqp.Config{
		Vhost:           sd.VirtualHost(),
		Heartbeat:       heartbeat,
		TLSClientConfig: tlsCfg,
		Properties:      props,
		Dial: func(network, addr string) (net.Conn, error) {
			var nd net.Dialer
			dialCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			c, err := nd.DialContext(dialCtx, network, addr)
			if err != nil {
				return nil, err
			}

			// cleared by amqp091-go once the handshake completes
			err = c.SetDeadline(time.Now().Add(timeout))
			if err != nil {
				c.Close()
				return nil, err
			}
			return c, nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s:%d: %w", sd.Host, sd.Port, err)
	}
	return amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c amqpConnection) PublishChannel() (PublishChannel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	err = ch.Confirm(false)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return &confirmChannel{
		ch:      ch,
		returns: ch.NotifyReturn(make(chan amqp.Return, 1)),
	}, nil
}

func (c amqpConnection) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(ch)
}

func (c amqpConnection) Close() error {
	return c.conn.Close()
}

type confirmChannel struct {
	ch      *amqp.Channel
	returns chan amqp.Return
}

func (c *confirmChannel) PublishMandatory(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) (bool, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, true, false, msg)
	if err != nil {
		return false, err
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return false, err
	}

	// the broker sends basic.return before the basic.ack of an unroutable message
	select {
	case <-c.returns:
		return true, nil
	default:
	}
	if !acked {
		return false, ErrNacked
	}
	return false, nil
}

func (c *confirmChannel) Close() error {
	return c.ch.Close()
}
