package protocol

import (
	"sync"
	"time"
)

// Tunables for the acknowledgement engine (spec.md §6 "Configuration").
const (
	DefaultAckTimeout = 2000 * time.Millisecond
	DefaultMaxRetries = 3
)

// RetransmitHook is invoked with the original encoded frame bytes and its
// sequence number whenever a timer fires short of MaxRetries, or a NAK
// arrives.
type RetransmitHook func(frameBytes []byte, seq uint8)

// PendingAck tracks one outstanding DATA frame awaiting acknowledgement.
type PendingAck struct {
	Seq         uint8
	FrameBytes  []byte
	SentAt      time.Time
	Retries     int
	timer       *time.Timer
	retransmit  RetransmitHook
}

// AckEngine maintains the map of outstanding frames, their retransmission
// timers, and emits the Event stream that drives retransmission and
// failure reporting (spec.md §4.4).
type AckEngine struct {
	mu          sync.Mutex
	pending     map[uint8]*PendingAck
	ackTimeout  time.Duration
	maxRetries  int
	sink        func(Event)
	afterFunc   func(time.Duration, func()) *time.Timer
}

// NewAckEngine constructs an AckEngine. sink receives every Event this
// engine emits; afterFunc defaults to time.AfterFunc and exists as a seam
// for deterministic tests.
func NewAckEngine(ackTimeout time.Duration, maxRetries int, sink func(Event)) *AckEngine {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &AckEngine{
		pending:    make(map[uint8]*PendingAck),
		ackTimeout: ackTimeout,
		maxRetries: maxRetries,
		sink:       sink,
		afterFunc:  time.AfterFunc,
	}
}

func (e *AckEngine) emit(ev Event) {
	if e.sink != nil {
		e.sink(ev)
	}
}

// Register stores frameBytes as pending acknowledgement for seq and
// schedules its retransmission timer. Any existing entry for seq is
// replaced and its timer cancelled first (I6).
func (e *AckEngine) Register(seq uint8, frameBytes []byte, hook RetransmitHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerLocked(seq, frameBytes, hook)
}

func (e *AckEngine) registerLocked(seq uint8, frameBytes []byte, hook RetransmitHook) {
	if existing, ok := e.pending[seq]; ok {
		existing.timer.Stop()
	}

	stored := append([]byte(nil), frameBytes...)
	entry := &PendingAck{
		Seq:        seq,
		FrameBytes: stored,
		SentAt:     time.Now(),
		Retries:    0,
		retransmit: hook,
	}
	entry.timer = e.afterFunc(e.ackTimeout, func() { e.onTimer(seq) })
	e.pending[seq] = entry
}

// OnAck processes an ACK for seq. Unknown sequence numbers emit
// AckUnexpected.
func (e *AckEngine) OnAck(seq uint8) {
	e.mu.Lock()
	entry, ok := e.pending[seq]
	if !ok {
		e.mu.Unlock()
		e.emit(NewEvent(EventAckUnexpected, AckUnexpectedPayload{Seq: seq}))
		return
	}
	entry.timer.Stop()
	delete(e.pending, seq)
	retries := entry.Retries
	rtt := time.Since(entry.SentAt)
	e.mu.Unlock()

	e.emit(NewEvent(EventAckReceived, AckReceivedPayload{Seq: seq, RTT: rtt, Retries: retries}))
}

// SweepAcked removes and cancels the timers of every pending entry whose
// sequence lies in the half-open cumulative range [oldBase, newBase) of
// the modulo-16 ring. This realizes the cumulative-ACK sweep the spec
// documents as the intended behavior (spec.md §9 Design Notes).
func (e *AckEngine) SweepAcked(oldBase, newBase uint8, distance int) {
	if distance <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	seq := oldBase
	for i := 0; i < distance; i++ {
		if entry, ok := e.pending[seq]; ok {
			entry.timer.Stop()
			delete(e.pending, seq)
		}
		seq = (seq + 1) & seqMask
	}
}

// OnNak triggers an immediate retransmission for seq without waiting for
// the timer; this counts as a retry but does not reset the retry count.
// Once the retry budget is spent it retransmits nothing and leaves the
// pending timer to declare the failure.
func (e *AckEngine) OnNak(seq uint8) {
	e.mu.Lock()
	entry, ok := e.pending[seq]
	if !ok {
		e.mu.Unlock()
		return
	}
	if entry.Retries >= e.maxRetries {
		e.mu.Unlock()
		e.emit(NewEvent(EventNakReceived, NakReceivedPayload{Seq: seq}))
		return
	}
	entry.Retries++
	frameBytes := entry.FrameBytes
	hook := entry.retransmit
	e.mu.Unlock()

	if hook != nil {
		hook(frameBytes, seq)
	}
	e.emit(NewEvent(EventNakReceived, NakReceivedPayload{Seq: seq}))
}

// onTimer fires when an attempt's ack-timeout expires. A frame gets at
// most MaxRetries retransmissions beyond its initial transmission
// (P8: MAX_RETRIES+1 total sends) — the check happens before the
// increment so the final timeout (for the MaxRetries-th retry) declares
// failure without sending a MaxRetries+1-th retry.
func (e *AckEngine) onTimer(seq uint8) {
	e.mu.Lock()
	entry, ok := e.pending[seq]
	if !ok {
		e.mu.Unlock()
		return
	}

	if entry.Retries >= e.maxRetries {
		delete(e.pending, seq)
		e.mu.Unlock()
		e.emit(NewEvent(EventTransmissionFailed, TransmissionFailedPayload{Seq: seq, Retries: entry.Retries}))
		return
	}

	entry.Retries++
	frameBytes := entry.FrameBytes
	hook := entry.retransmit
	entry.timer = e.afterFunc(e.ackTimeout, func() { e.onTimer(seq) })
	e.mu.Unlock()

	if hook != nil {
		hook(frameBytes, seq)
	}
}

// Pending reports the number of outstanding (un-acked) frames — used by
// tests asserting I6/P9 (timers == len(pending)).
func (e *AckEngine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Retries reports the current retry count for seq, or -1 if seq is not
// pending.
func (e *AckEngine) Retries(seq uint8) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.pending[seq]; ok {
		return entry.Retries
	}
	return -1
}

// ClearAll cancels every live timer and drops all pending state; used on
// disconnect.
func (e *AckEngine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for seq, entry := range e.pending {
		entry.timer.Stop()
		delete(e.pending, seq)
	}
}
