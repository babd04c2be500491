package protocol

import "fmt"

// Frame control byte values (wire-exact).
const (
	TypeData      byte = 0x01
	TypeAck       byte = 0x02
	TypeNak       byte = 0x03
	TypeConn      byte = 0x04
	TypeConnAck   byte = 0x05
	TypeDisc      byte = 0x06
	TypeDiscAck   byte = 0x07
	TypeHeartbeat byte = 0x08
)

const (
	// MaxData is the largest DATA payload a frame may carry.
	MaxData = 1024
	// SeqBits is the number of bits in the sequence space (fixed).
	SeqBits = 4
	// MaxSeqNum is the largest representable sequence number.
	MaxSeqNum = 15
	seqMask   = 0x0F
)

// FrameParseErrorKind enumerates the ways Parse can fail.
type FrameParseErrorKind int

const (
	ErrTooShort FrameParseErrorKind = iota
	ErrMissingFlags
	ErrStuffing
	ErrPayloadTooShort
	ErrCrcMismatch
	ErrUnknownType
)

func (k FrameParseErrorKind) String() string {
	switch k {
	case ErrTooShort:
		return "TooShort"
	case ErrMissingFlags:
		return "MissingFlags"
	case ErrStuffing:
		return "StuffingError"
	case ErrPayloadTooShort:
		return "PayloadTooShort"
	case ErrCrcMismatch:
		return "CrcMismatch"
	case ErrUnknownType:
		return "UnknownType"
	default:
		return "Unknown"
	}
}

// FrameParseError is returned by Parse on malformed or corrupt input.
type FrameParseError struct {
	Kind   FrameParseErrorKind
	Detail string
}

func (e *FrameParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("frame parse: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("frame parse: %s", e.Kind)
}

// IsCrcMismatch reports whether err is a FrameParseError carrying
// ErrCrcMismatch — the one structural failure the coordinator treats
// distinctly (spec.md §4.3).
func IsCrcMismatch(err error) bool {
	fe, ok := err.(*FrameParseError)
	return ok && fe.Kind == ErrCrcMismatch
}

// Frame is the in-memory representation of a single DLL frame.
type Frame struct {
	Type    byte
	Seq     uint8
	Payload []byte
}

func isKnownType(t byte) bool {
	switch t {
	case TypeData, TypeAck, TypeNak, TypeConn, TypeConnAck, TypeDisc, TypeDiscAck, TypeHeartbeat:
		return true
	default:
		return false
	}
}

// Build encodes a frame onto the wire: CONTROL ‖ SEQ ‖ PAYLOAD, CRC
// appended, the whole inner region bit-stuffed, and wrapped in FLAG
// delimiters. Payloads over MaxData are a programming error, not a
// runtime event, and panic.
func Build(frameType byte, seq uint8, payload []byte) []byte {
	if len(payload) > MaxData {
		panic(fmt.Sprintf("protocol: payload of %d bytes exceeds MaxData (%d)", len(payload), MaxData))
	}

	inner := make([]byte, 0, 2+len(payload))
	inner = append(inner, frameType, seq&seqMask)
	inner = append(inner, payload...)
	inner = AppendCRC16(inner)

	stuffed := Stuff(inner)

	out := make([]byte, 0, len(stuffed)+2)
	out = append(out, FLAG)
	out = append(out, stuffed...)
	out = append(out, FLAG)
	return out
}

// Parse reverses Build. CrcMismatch is reported distinctly from the other
// structural failures so the caller can decide whether a NAK makes sense
// (spec.md §4.3 and §9: in practice it never does, since the sequence
// number living inside a corrupt frame cannot be trusted).
func Parse(wire []byte) (Frame, error) {
	if len(wire) < 2 {
		return Frame{}, &FrameParseError{Kind: ErrTooShort}
	}
	if wire[0] != FLAG || wire[len(wire)-1] != FLAG {
		return Frame{}, &FrameParseError{Kind: ErrMissingFlags}
	}

	inner, err := Unstuff(wire[1 : len(wire)-1])
	if err != nil {
		return Frame{}, &FrameParseError{Kind: ErrStuffing, Detail: err.Error()}
	}

	if len(inner) < 2+2 {
		return Frame{}, &FrameParseError{Kind: ErrPayloadTooShort}
	}

	verification, err := ExtractVerifyCRC16(inner)
	if err != nil {
		return Frame{}, &FrameParseError{Kind: ErrPayloadTooShort, Detail: err.Error()}
	}
	if !verification.Valid {
		return Frame{}, &FrameParseError{Kind: ErrCrcMismatch}
	}

	body := verification.Data
	if len(body) < 2 {
		return Frame{}, &FrameParseError{Kind: ErrPayloadTooShort}
	}

	frameType := body[0]
	if !isKnownType(frameType) {
		return Frame{}, &FrameParseError{Kind: ErrUnknownType}
	}

	seq := body[1] & seqMask
	payload := append([]byte(nil), body[2:]...)

	return Frame{Type: frameType, Seq: seq, Payload: payload}, nil
}
