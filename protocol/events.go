package protocol

import "time"

// EventKind tags the payload carried by an Event. This is the closed sum
// type spec.md §9 calls for in place of the original's heterogeneous
// named-event emissions.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventDataReceived
	EventDataFrameSent
	EventWindowAdvanced
	EventFrameError
	EventTransmissionFailed
	EventFrameBuffered
	EventWindowFull
	EventAckSent
	EventNakSent
	EventAckReceived
	EventNakReceived
	EventAckUnexpected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventDataReceived:
		return "DataReceived"
	case EventDataFrameSent:
		return "DataFrameSent"
	case EventWindowAdvanced:
		return "WindowAdvanced"
	case EventFrameError:
		return "FrameError"
	case EventTransmissionFailed:
		return "TransmissionFailed"
	case EventFrameBuffered:
		return "FrameBuffered"
	case EventWindowFull:
		return "WindowFull"
	case EventAckSent:
		return "AckSent"
	case EventNakSent:
		return "NakSent"
	case EventAckReceived:
		return "AckReceived"
	case EventNakReceived:
		return "NakReceived"
	case EventAckUnexpected:
		return "AckUnexpected"
	default:
		return "Unknown"
	}
}

// Event is a single emission from the engine. Payload's concrete type is
// determined by Kind; callers type-switch on it.
type Event struct {
	kind    EventKind
	payload any
}

func NewEvent(kind EventKind, payload any) Event {
	return Event{kind: kind, payload: payload}
}

func (e Event) Kind() EventKind { return e.kind }
func (e Event) Payload() any    { return e.payload }

// Payload types, one per EventKind that carries data.

type ConnectedPayload struct{ EpochID string }

type DisconnectedPayload struct {
	Reason string
	Uptime time.Duration
}

type DataReceivedPayload struct {
	Seq   uint8
	Bytes []byte
}

type DataFrameSentPayload struct {
	Seq  uint8
	Size int
}

type WindowAdvancedPayload struct {
	OldBase uint8
	NewBase uint8
}

type FrameErrorPayload struct {
	Kind      FrameParseErrorKind
	CrcError  bool
	Detail    string
}

type TransmissionFailedPayload struct {
	Seq     uint8
	Retries int
}

type FrameBufferedPayload struct {
	Seq      uint8
	Expected uint8
}

type WindowFullPayload struct {
	WindowSize int
}

type AckSentPayload struct{ Seq uint8 }

type NakSentPayload struct {
	Seq    uint8
	Reason string
}

type AckReceivedPayload struct {
	Seq     uint8
	RTT     time.Duration
	Retries int
}

type NakReceivedPayload struct{ Seq uint8 }

type AckUnexpectedPayload struct{ Seq uint8 }
