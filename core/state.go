package core

// State is a connection's position in its request/response lifecycle.
type State uint8

const (
	StateInitial State = iota
	StateReceiving
	StateRequestReceived
	StateSendingStatic
	StateSendingDynamic
	StateSending404
	StateDataSent
	StateClosed
)

var stateNames = [...]string{
	StateInitial:         "initial",
	StateReceiving:       "receiving",
	StateRequestReceived: "request_received",
	StateSendingStatic:   "sending_static",
	StateSendingDynamic:  "sending_dynamic",
	StateSending404:      "sending_404",
	StateDataSent:        "data_sent",
	StateClosed:          "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether the connection has been torn down.
func (s State) Terminal() bool {
	return s == StateDataSent || s == StateClosed
}

// Event is either a readiness notification from the event loop or the
// outcome of the previous effect.
type Event uint8

const (
	// Readiness.
	EventReadable Event = iota
	EventWritable
	EventCompletion

	// Outcomes.
	EventHeadersReceived
	EventNoPath
	EventNotFound
	EventStaticReady
	EventDynamicReady
	EventWouldBlock
	EventTransferDone
	EventIOError
	EventHangup
)

var eventNames = [...]string{
	EventReadable:        "readable",
	EventWritable:        "writable",
	EventCompletion:      "completion",
	EventHeadersReceived: "headers_received",
	EventNoPath:          "no_path",
	EventNotFound:        "not_found",
	EventStaticReady:     "static_ready",
	EventDynamicReady:    "dynamic_ready",
	EventWouldBlock:      "would_block",
	EventTransferDone:    "transfer_done",
	EventIOError:         "io_error",
	EventHangup:          "hangup",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

func (e Event) readiness() bool {
	return e <= EventCompletion
}

// Effect is the work the engine performs after a transition.
type Effect uint8

const (
	EffectNone Effect = iota
	EffectReceive
	EffectResolve
	EffectSend404
	EffectSendStatic
	EffectSendDynamic
	EffectArmWrite
	EffectDestroy
)

var effectNames = [...]string{
	EffectNone:        "none",
	EffectReceive:     "receive",
	EffectResolve:     "resolve",
	EffectSend404:     "send_404",
	EffectSendStatic:  "send_static",
	EffectSendDynamic: "send_dynamic",
	EffectArmWrite:    "arm_write",
	EffectDestroy:     "destroy",
}

func (e Effect) String() string {
	if int(e) < len(effectNames) {
		return effectNames[e]
	}
	return "unknown"
}

// Transition is the connection state machine. It is total: readiness that a
// state does not consume is ignored, and any other unexpected pair closes
// the connection.
func Transition(s State, ev Event) (State, Effect) {
	if s.Terminal() {
		return s, EffectNone
	}
	if ev == EventIOError || ev == EventHangup {
		return StateClosed, EffectDestroy
	}

	switch s {
	case StateInitial, StateReceiving:
		switch ev {
		case EventReadable:
			return StateReceiving, EffectReceive
		case EventHeadersReceived:
			if s == StateReceiving {
				return StateRequestReceived, EffectResolve
			}
		}

	case StateRequestReceived:
		switch ev {
		case EventNoPath, EventNotFound:
			return StateSending404, EffectSend404
		case EventStaticReady:
			return StateSendingStatic, EffectSendStatic
		case EventDynamicReady:
			return StateSendingDynamic, EffectSendDynamic
		}

	case StateSendingStatic:
		switch ev {
		case EventWritable:
			return StateSendingStatic, EffectSendStatic
		case EventWouldBlock:
			return StateSendingStatic, EffectArmWrite
		case EventTransferDone:
			return StateDataSent, EffectDestroy
		}

	case StateSendingDynamic:
		switch ev {
		case EventWritable, EventCompletion:
			return StateSendingDynamic, EffectSendDynamic
		case EventWouldBlock:
			return StateSendingDynamic, EffectArmWrite
		case EventTransferDone:
			return StateDataSent, EffectDestroy
		}

	case StateSending404:
		if ev == EventTransferDone {
			return StateDataSent, EffectDestroy
		}
	}

	if ev.readiness() {
		return s, EffectNone
	}
	return StateClosed, EffectDestroy
}
