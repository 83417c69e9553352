// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rabbitmq

// State is the state of a single consumer connection.
type State int

const (
	Disconnected State = iota
	Connecting
	ChannelOpening
	QoSSetting
	Consuming
	Stopping
	ChannelClosing
	ConnectionClosing

	// Reconnecting is terminal for a single run. The [Supervisor]
	// starts a new run once its backoff elapses.
	Reconnecting
)

var stateNames = [...]string{
	Disconnected:      "disconnected",
	Connecting:        "connecting",
	ChannelOpening:    "channel_opening",
	QoSSetting:        "qos_setting",
	Consuming:         "consuming",
	Stopping:          "stopping",
	ChannelClosing:    "channel_closing",
	ConnectionClosing: "connection_closing",
	Reconnecting:      "reconnecting",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

type event int

const (
	evNone event = iota
	evStart
	evConnected
	evChannelOpened
	evQoSSet
	evConsumeStarted
	evFailed
	evDelivery
	evTransient
	evConnectionLost
	evChannelLost
	evBrokerCancel
	evStop
	evCancelled
	evChannelClosed
	evConnectionClosed
)

var eventNames = [...]string{
	evNone:             "none",
	evStart:            "start",
	evConnected:        "connected",
	evChannelOpened:    "channel_opened",
	evQoSSet:           "qos_set",
	evConsumeStarted:   "consume_started",
	evFailed:           "failed",
	evDelivery:         "delivery",
	evTransient:        "transient_error",
	evConnectionLost:   "connection_lost",
	evChannelLost:      "channel_lost",
	evBrokerCancel:     "broker_cancel",
	evStop:             "stop",
	evCancelled:        "cancelled",
	evChannelClosed:    "channel_closed",
	evConnectionClosed: "connection_closed",
}

func (e event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}

type action int

const (
	actDial action = iota
	actOpenChannel
	actSetQoS
	actConsume
	actDispatch
	actCancelConsumer
	actCloseChannel
	actCloseConnection
	actExit
)

// transition returns the next state and the actions to run, in order, for
// an event received in the given state. Events which are meaningless in a
// state leave it unchanged and run nothing.
func transition(s State, ev event) (State, []action) {
	switch s {
	case Disconnected:
		switch ev {
		case evStart:
			return Connecting, []action{actDial}
		case evStop:
			return Disconnected, []action{actExit}
		}
	case Connecting:
		switch ev {
		case evConnected:
			return ChannelOpening, []action{actOpenChannel}
		case evFailed:
			return Reconnecting, []action{actExit}
		case evStop:
			return Disconnected, []action{actExit}
		}
	case ChannelOpening:
		switch ev {
		case evChannelOpened:
			return QoSSetting, []action{actSetQoS}
		case evFailed, evChannelLost:
			return Reconnecting, []action{actCloseConnection, actExit}
		case evConnectionLost:
			return Reconnecting, []action{actExit}
		case evStop:
			return ConnectionClosing, []action{actCloseConnection}
		}
	case QoSSetting:
		switch ev {
		case evQoSSet:
			return QoSSetting, []action{actConsume}
		case evConsumeStarted:
			return Consuming, nil
		case evFailed, evChannelLost, evBrokerCancel:
			return Reconnecting, []action{actCloseConnection, actExit}
		case evConnectionLost:
			return Reconnecting, []action{actExit}
		case evStop:
			return ConnectionClosing, []action{actCloseConnection}
		}
	case Consuming:
		switch ev {
		case evDelivery:
			return Consuming, []action{actDispatch}
		case evTransient, evFailed, evChannelLost, evBrokerCancel:
			return Reconnecting, []action{actCloseConnection, actExit}
		case evConnectionLost:
			return Reconnecting, []action{actExit}
		case evStop:
			return Stopping, []action{actCancelConsumer}
		}
	case Stopping:
		switch ev {
		case evCancelled:
			return ChannelClosing, []action{actCloseChannel}
		case evChannelLost, evBrokerCancel:
			return ConnectionClosing, []action{actCloseConnection}
		case evConnectionLost:
			return Disconnected, []action{actExit}
		}
	case ChannelClosing:
		switch ev {
		case evChannelClosed:
			return ConnectionClosing, []action{actCloseConnection}
		case evConnectionLost:
			return Disconnected, []action{actExit}
		}
	case ConnectionClosing:
		switch ev {
		case evConnectionClosed, evConnectionLost:
			return Disconnected, []action{actExit}
		}
	}
	return s, nil
}
