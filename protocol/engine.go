package protocol

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"

	"dllink/config"
	"dllink/pkg/linklog"
	"dllink/pkg/linkmetrics"
)

// Errors surfaced to the network-layer caller (spec.md §7).
var (
	ErrNotConnected    = errors.New("dllink: not connected")
	ErrPayloadTooLarge = errors.New("dllink: payload exceeds MaxData")
)

// FrameFailedError describes a DATA frame that exhausted its
// retransmission budget. Engine reports that condition through
// EventTransmissionFailed; Send does not return this error.
type FrameFailedError struct {
	Seq     uint8
	Retries int
}

func (e *FrameFailedError) Error() string {
	return "dllink: frame failed after exhausting retries"
}

// sendQueueItem is one network-layer payload awaiting admission into the
// send window (spec.md §3 SendQueueItem).
type sendQueueItem struct {
	bytes []byte
	done  chan error
}

// EngineConfig configures a Engine. Zero values fall back to spec.md §6
// defaults.
type EngineConfig struct {
	WindowSize        int
	MaxData           int
	AckTimeout        time.Duration
	MaxRetries        int
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	// TxHook pushes a completed, encoded frame down to the physical
	// layer. Set once before use.
	TxHook func(frameBytes []byte)
	// Sink receives every Event the engine emits.
	Sink func(Event)
	// EpochID mints the identifier attached to each CONNECTED period.
	// Defaults to a fresh xid string if nil.
	EpochID func() string
}

// Engine is the top-level coordinator: it wires network-layer I/O,
// physical-layer I/O, and the frame codec / ACK engine / window manager /
// connection manager together (spec.md §4.7).
//
// Concurrency contract (spec.md §5): Engine targets the single logical
// task per peer model — RX, the heartbeat ticker, and the public API
// (Connect/Accept/Disconnect/Send) are expected to run one at a time,
// e.g. all driven from one goroutine, or from goroutines a caller has
// otherwise serialized. mu guards the window and send-queue state that
// every path touches; the connection manager's own transitions are left
// unguarded by mu because a physical loopback can re-enter RX
// synchronously mid-handshake (CONN -> CONN_ACK exchanged within one
// call stack), which a non-reentrant mutex would deadlock on. Callers
// that genuinely run RX on its own goroutine (as cmd/dllink-demo's
// runReadLoop does) alongside the heartbeat ticker must not rely on
// perfect interleaving beyond what mu already serializes; this mirrors
// the teacher's own single-Update-tick-per-session model, which this
// repo's timer-per-entry and ticker-per-connection design only partially
// preserves.
type Engine struct {
	mu sync.Mutex

	cfg    EngineConfig
	txHook func(frameBytes []byte)
	sink   func(Event)

	ack  *AckEngine
	send *SendWindow
	recv *RecvWindow
	conn *ConnectionManager

	sendQueue   []*sendQueueItem
	draining    bool
	nextEpochID int
}

// tickerCanceler adapts a *time.Ticker plus its feeder goroutine to the
// Canceler interface. (*time.Ticker).Stop() returns nothing and does not
// close the ticker's channel, so a bare *time.Ticker neither satisfies
// Canceler (Stop() bool) nor lets its feeder goroutine exit on its own;
// this wraps both concerns and stops the goroutine via done rather than
// relying on ticker.C being closed.
type tickerCanceler struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func newTickerCanceler(d time.Duration, fn func()) *tickerCanceler {
	tc := &tickerCanceler{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-tc.ticker.C:
				fn()
			case <-tc.done:
				return
			}
		}
	}()
	return tc
}

// Stop cancels the ticker and signals its feeder goroutine to exit. It
// reports whether this was the call that stopped it (false if already
// stopped), matching (*time.Timer).Stop()'s convention.
func (tc *tickerCanceler) Stop() bool {
	stopped := false
	tc.once.Do(func() {
		tc.ticker.Stop()
		close(tc.done)
		stopped = true
	})
	return stopped
}

// NewEngine constructs an Engine ready to Connect/Accept.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.MaxData <= 0 {
		cfg.MaxData = MaxData
	}
	if cfg.TxHook == nil {
		cfg.TxHook = func([]byte) {}
	}

	e := &Engine{
		cfg:    cfg,
		txHook: cfg.TxHook,
		sink:   cfg.Sink,
		send:   NewSendWindow(cfg.WindowSize),
		recv:   NewRecvWindow(cfg.WindowSize),
	}
	e.ack = NewAckEngine(cfg.AckTimeout, cfg.MaxRetries, e.emit)

	e.conn = NewConnectionManager(ConnectionManagerConfig{
		ConnectTimeout:    cfg.ConnectTimeout,
		DisconnectTimeout: cfg.DisconnectTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Sink:              e.emit,
		SendFrame:         e.sendControlFrame,
		ScheduleOnce: func(d time.Duration, fn func()) Canceler {
			return time.AfterFunc(d, fn)
		},
		ScheduleTicker: func(d time.Duration, fn func()) Canceler {
			return newTickerCanceler(d, fn)
		},
		EpochID: e.mintEpochID,
		OnReset: e.resetState,
	})

	return e
}

// NewEngineFromConfig constructs an Engine from a config.Options value,
// the CLI demo's entry point into the coordinator.
func NewEngineFromConfig(opts config.Options, txHook func([]byte), sink func(Event)) *Engine {
	return NewEngine(EngineConfig{
		WindowSize:        opts.WindowSize,
		MaxData:           opts.MaxData,
		AckTimeout:        opts.AckTimeout,
		MaxRetries:        opts.MaxRetries,
		HeartbeatInterval: opts.HeartbeatInterval,
		ConnectTimeout:    opts.ConnectTimeout,
		DisconnectTimeout: opts.DisconnectTimeout,
		TxHook:            txHook,
		Sink:              sink,
	})
}

func (e *Engine) emit(ev Event) {
	e.recordMetrics(ev)
	if e.sink != nil {
		e.sink(ev)
	}
}

// recordMetrics updates the Prometheus collectors backing pkg/linkmetrics
// and logs the events worth surfacing on the console by default; this is
// the ambient observability the coordinator carries regardless of what
// Sink the caller wires in.
func (e *Engine) recordMetrics(ev Event) {
	switch ev.Kind() {
	case EventDataFrameSent:
		linkmetrics.FramesSent.Inc()
	case EventAckReceived:
		linkmetrics.AcksReceivedTotal.Inc()
	case EventFrameError:
		if ev.Payload().(FrameErrorPayload).CrcError {
			linkmetrics.CrcErrorsTotal.Inc()
		}
		linklog.FrameDropped(ev.Payload().(FrameErrorPayload).Detail, 0)
	case EventTransmissionFailed:
		linkmetrics.FramesFailedTotal.Inc()
		p := ev.Payload().(TransmissionFailedPayload)
		linklog.Error("frame failed permanently seq=%d retries=%d", p.Seq, p.Retries)
	case EventConnected:
		linklog.Success("connected epoch=%s", ev.Payload().(ConnectedPayload).EpochID)
	case EventDisconnected:
		linklog.Warn("disconnected reason=%s", ev.Payload().(DisconnectedPayload).Reason)
	}
	// Not mutex-guarded: emit() runs on call stacks that already hold
	// e.mu (e.g. Connect()'s synchronous handshake cascade), and
	// Outstanding() is an int read/write race only in the benign sense
	// that a stale gauge reading is immediately corrected by the next
	// event.
	linkmetrics.WindowOutstanding.Set(float64(e.send.Outstanding()))
}

// mintEpochID mints a compact per-handshake session identifier using xid,
// the approach the retrieval pack's stats-collector repos use for
// connection/session ids; it is carried by the Connected event (and the
// "connected" log line) of the CONNECTED period it opens.
func (e *Engine) mintEpochID() string {
	if e.cfg.EpochID != nil {
		return e.cfg.EpochID()
	}
	return xid.New().String()
}

func (e *Engine) sendControlFrame(frameType byte, payload []byte) {
	wire := Build(frameType, 0, payload)
	e.txHook(wire)
}

// resetState runs on any transition into DISCONNECTED (spec.md §4.6):
// clears pending ACKs, empties the send queue (rejecting queued items),
// and resets window state.
func (e *Engine) resetState() {
	e.ack.ClearAll()
	for _, item := range e.sendQueue {
		item.done <- ErrNotConnected
	}
	e.sendQueue = nil
	e.draining = false
	e.send.Reset()
	e.recv.Reset()
}

// Connect starts the handshake and returns a channel resolved when it
// succeeds (nil error) or times out (non-nil error).
func (e *Engine) Connect() <-chan error {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make(chan error, 1)

	var once sync.Once
	unsub := e.subscribeOnce(func(ev Event) bool {
		switch ev.Kind() {
		case EventConnected:
			once.Do(func() { result <- nil })
			return true
		case EventDisconnected:
			once.Do(func() { result <- errors.New("dllink: connect failed: " + ev.Payload().(DisconnectedPayload).Reason) })
			return true
		}
		return false
	})
	_ = unsub

	e.conn.Connect()
	return result
}

// subscribeOnce is a small helper that lets Connect/Disconnect observe
// the next matching event without the coordinator exposing a general
// pub-sub surface; it wraps the existing Sink so every event still
// reaches the caller-supplied sink too.
func (e *Engine) subscribeOnce(match func(Event) bool) func() {
	prev := e.sink
	var done bool
	e.sink = func(ev Event) {
		if prev != nil {
			prev(ev)
		}
		if done {
			return
		}
		if match(ev) {
			done = true
			e.sink = prev
		}
	}
	return func() { e.sink = prev }
}

// Accept handles an inbound connection request: true if this engine
// accepted and is now CONNECTED.
func (e *Engine) Accept() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.Accept()
}

// Disconnect starts graceful teardown and returns a channel resolved once
// DISCONNECTED (possibly forced after the timeout).
func (e *Engine) Disconnect() <-chan error {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make(chan error, 1)

	if e.conn.State() == StateDisconnected {
		result <- nil
		return result
	}

	var once sync.Once
	e.subscribeOnce(func(ev Event) bool {
		if ev.Kind() == EventDisconnected {
			once.Do(func() { result <- nil })
			return true
		}
		return false
	})

	e.conn.Disconnect()
	return result
}

// Send enqueues bytes for transmission. The returned channel resolves
// once the bytes have been placed into a DATA frame and handed to the
// physical layer (not once ACKed — spec.md §9), or immediately with an
// error if not CONNECTED or the payload exceeds MaxData. A frame declared
// failed after dispatch is reported only as EventTransmissionFailed; the
// channel has already resolved with nil by then.
func (e *Engine) Send(bytes []byte) <-chan error {
	result := make(chan error, 1)

	if len(bytes) > e.cfg.MaxData {
		result <- ErrPayloadTooLarge
		return result
	}

	e.mu.Lock()
	if e.conn.State() != StateConnected {
		e.mu.Unlock()
		result <- ErrNotConnected
		return result
	}

	item := &sendQueueItem{bytes: bytes, done: result}
	e.sendQueue = append(e.sendQueue, item)
	e.mu.Unlock()

	e.drainSendQueue()
	return result
}

// drainSendQueue is the single-consumer loop of spec.md §4.7: while the
// window has room, it pulls an item, builds a DATA frame, registers it
// with the ACK engine, and hands it to the physical layer.
func (e *Engine) drainSendQueue() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()
	e.mu.Unlock()

	for {
		e.mu.Lock()
		if len(e.sendQueue) == 0 {
			e.mu.Unlock()
			return
		}
		seq, ok := e.send.AcquireSeq()
		if !ok {
			e.mu.Unlock()
			e.emit(NewEvent(EventWindowFull, WindowFullPayload{WindowSize: e.send.WindowSize()}))
			return
		}

		item := e.sendQueue[0]
		e.sendQueue = e.sendQueue[1:]

		wire := Build(TypeData, seq, item.bytes)
		e.ack.Register(seq, wire, e.retransmit)
		e.mu.Unlock()

		e.txHook(wire)
		e.emit(NewEvent(EventDataFrameSent, DataFrameSentPayload{Seq: seq, Size: len(wire)}))
		item.done <- nil
	}
}

func (e *Engine) retransmit(frameBytes []byte, seq uint8) {
	linkmetrics.RetransmitsTotal.Inc()
	e.txHook(frameBytes)
}

// RX is the upcall from the physical layer delivering raw (possibly
// corrupted/truncated) bytes.
func (e *Engine) RX(raw []byte) {
	frame, err := Parse(raw)
	if err != nil {
		var kind FrameParseErrorKind
		crcErr := IsCrcMismatch(err)
		if fe, ok := err.(*FrameParseError); ok {
			kind = fe.Kind
		}
		e.emit(NewEvent(EventFrameError, FrameErrorPayload{Kind: kind, CrcError: crcErr, Detail: err.Error()}))
		return
	}

	switch frame.Type {
	case TypeConn:
		e.handleConn()
	case TypeConnAck:
		e.conn.OnConnAck()
	case TypeDisc:
		e.conn.OnDisc()
	case TypeDiscAck:
		e.conn.OnDiscAck()
	case TypeHeartbeat:
		e.conn.OnHeartbeat()
	case TypeData:
		e.handleData(frame)
	case TypeAck:
		e.handleAck(frame.Seq)
	case TypeNak:
		e.ack.OnNak(frame.Seq)
	}
}

// handleConn auto-accepts an inbound CONN while DISCONNECTED. Engine has
// no separate approval step exposed over the wire, so receiving CONN is
// itself the acceptance signal; Accept is still exported for callers
// that drive the handshake manually.
func (e *Engine) handleConn() {
	if e.conn.OnConn() {
		e.conn.Accept()
	}
}

func (e *Engine) handleData(frame Frame) {
	e.mu.Lock()
	if e.conn.State() != StateConnected {
		e.mu.Unlock()
		return
	}
	outcome, delivered := e.recv.OnFrame(frame.Seq, frame.Payload)
	e.mu.Unlock()

	switch outcome {
	case OutcomeDelivered:
		for _, d := range delivered {
			e.emit(NewEvent(EventDataReceived, DataReceivedPayload{Seq: d.Seq, Bytes: d.Payload}))
		}
		highest := delivered[len(delivered)-1].Seq
		e.sendAck(highest)
	case OutcomeDuplicate:
		e.sendAck(frame.Seq)
	case OutcomeBuffered:
		// spec.md §4.7 point 3 / §9: buffered frames do not ACK or NAK.
		// NAK-ing the expected seq here would inflate its retry count on
		// every out-of-order arrival ahead of it, risking a spurious
		// FrameFailed for a frame that is still healthily in flight.
		expected := e.recv.ExpectedSeq()
		e.emit(NewEvent(EventFrameBuffered, FrameBufferedPayload{Seq: frame.Seq, Expected: expected}))
	case OutcomeOutOfWindow:
		// ignored
	}
}

func (e *Engine) sendAck(seq uint8) {
	wire := Build(TypeAck, seq, nil)
	e.txHook(wire)
	e.emit(NewEvent(EventAckSent, AckSentPayload{Seq: seq}))
}

func (e *Engine) handleAck(seq uint8) {
	e.ack.OnAck(seq)

	e.mu.Lock()
	slid, oldBase, newBase, distance := e.send.OnAck(seq)
	e.mu.Unlock()

	if slid {
		e.ack.SweepAcked(oldBase, newBase, distance)
		e.emit(NewEvent(EventWindowAdvanced, WindowAdvancedPayload{OldBase: oldBase, NewBase: newBase}))
		e.drainSendQueue()
	}
}

// Stats returns a snapshot of outstanding frames for diagnostics.
func (e *Engine) Stats() (outstanding int, expectedSeq uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.send.Outstanding(), e.recv.ExpectedSeq()
}

// AdjustWindow applies the advisory window-size hint (spec.md §4.5) to
// both halves of the window.
func (e *Engine) AdjustWindow(rttMillis float64, lossRate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := AdjustWindowHint(e.send.WindowSize(), rttMillis, lossRate)
	e.send.SetWindowSize(next)
	e.recv.SetWindowSize(next)
}
