package protocol

import (
	"strconv"
	"time"
)

// ConnState enumerates the connection lifecycle (spec.md §4.6).
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Timeouts for the connection lifecycle (spec.md §6 "Configuration").
const (
	DefaultConnectionTimeout = 10 * time.Second
	DefaultDisconnectTimeout = 5 * time.Second
	DefaultHeartbeatInterval = 5 * time.Second
	HeartbeatLivenessFactor  = 3
	DiscAckDropGrace         = 100 * time.Millisecond
)

// ConnectionManager drives the DISCONNECTED/CONNECTING/CONNECTED/
// DISCONNECTING state machine, the three-way handshake, and heartbeat
// liveness. It owns no I/O: sendFrame pushes encoded frames to the
// coordinator, scheduleOnce/scheduleTicker arm its connect, disconnect,
// DISC_ACK-grace and heartbeat timers, and every transition emits an
// Event via sink.
type ConnectionManager struct {
	state ConnState

	connectTimeout    time.Duration
	disconnectTimeout time.Duration
	heartbeatInterval time.Duration

	lastHbSent time.Time
	lastHbRecv time.Time

	sink func(Event)

	sendFrame func(frameType byte, payload []byte)

	connectTimer    Canceler
	disconnectTimer Canceler
	heartbeatTicker Canceler
	discAckTimer    Canceler

	scheduleOnce   func(d time.Duration, fn func()) Canceler
	scheduleTicker func(d time.Duration, fn func()) Canceler

	epochID func() string

	onReset func() // invoked whenever the engine must clear pending/window state
}

// Canceler stops a scheduled timer or ticker; satisfied by *time.Timer
// and *time.Ticker wrapped by the coordinator.
type Canceler interface {
	Stop() bool
}

// ConnectionManagerConfig bundles the collaborators the coordinator
// supplies: how frames are sent, how timers are scheduled, how epoch ids
// are minted, and where state-reset side effects land.
type ConnectionManagerConfig struct {
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	HeartbeatInterval time.Duration
	Sink              func(Event)
	SendFrame         func(frameType byte, payload []byte)
	ScheduleOnce      func(d time.Duration, fn func()) Canceler
	ScheduleTicker    func(d time.Duration, fn func()) Canceler
	EpochID           func() string
	OnReset           func()
}

func NewConnectionManager(cfg ConnectionManagerConfig) *ConnectionManager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectionTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = DefaultDisconnectTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &ConnectionManager{
		state:             StateDisconnected,
		connectTimeout:    cfg.ConnectTimeout,
		disconnectTimeout: cfg.DisconnectTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		sink:              cfg.Sink,
		sendFrame:         cfg.SendFrame,
		scheduleOnce:      cfg.ScheduleOnce,
		scheduleTicker:    cfg.ScheduleTicker,
		epochID:           cfg.EpochID,
		onReset:           cfg.OnReset,
	}
}

func (c *ConnectionManager) emit(ev Event) {
	if c.sink != nil {
		c.sink(ev)
	}
}

// State returns the current connection state.
func (c *ConnectionManager) State() ConnState { return c.state }

// Connect begins the three-way handshake: transmits CONN and moves to
// CONNECTING, arming the 10-second connection timeout.
func (c *ConnectionManager) Connect() {
	if c.state != StateDisconnected {
		return
	}
	c.state = StateConnecting
	c.sendFrame(TypeConn, []byte("CONNECT_REQUEST"))
	c.connectTimer = c.scheduleOnce(c.connectTimeout, c.onConnectTimeout)
}

func (c *ConnectionManager) onConnectTimeout() {
	if c.state != StateConnecting {
		return
	}
	c.state = StateDisconnected
	if c.onReset != nil {
		c.onReset()
	}
	c.emit(NewEvent(EventDisconnected, DisconnectedPayload{Reason: "connection_timeout"}))
}

// OnConnAck completes the handshake: CONNECTING -> CONNECTED.
func (c *ConnectionManager) OnConnAck() {
	if c.state != StateConnecting {
		return
	}
	if c.connectTimer != nil {
		c.connectTimer.Stop()
	}
	c.transitionToConnected()
}

// OnConn handles an inbound CONN while DISCONNECTED: the caller decides
// whether to Accept(); the manager only reports the request (spec.md
// §4.6's "emit connection_request").
func (c *ConnectionManager) OnConn() bool {
	return c.state == StateDisconnected
}

// Accept completes the passive side of the handshake: transmits
// CONN_ACK and transitions straight to CONNECTED.
func (c *ConnectionManager) Accept() bool {
	if c.state != StateDisconnected {
		return false
	}
	c.sendFrame(TypeConnAck, []byte("CONNECT_ACK"))
	c.transitionToConnected()
	return true
}

func (c *ConnectionManager) transitionToConnected() {
	c.state = StateConnected
	now := time.Now()
	c.lastHbSent = now
	c.lastHbRecv = now
	c.heartbeatTicker = c.scheduleTicker(c.heartbeatInterval, c.onHeartbeatTick)

	var epoch string
	if c.epochID != nil {
		epoch = c.epochID()
	}
	c.emit(NewEvent(EventConnected, ConnectedPayload{EpochID: epoch}))
}

func (c *ConnectionManager) onHeartbeatTick() {
	if c.state != StateConnected {
		return
	}
	if time.Since(c.lastHbRecv) > c.heartbeatInterval*HeartbeatLivenessFactor {
		c.forceDisconnect("heartbeat_timeout")
		return
	}
	c.sendFrame(TypeHeartbeat, []byte(heartbeatPayload()))
	c.lastHbSent = time.Now()
}

// heartbeatPayload is informative text only (spec.md §6): current
// wall-clock milliseconds as decimal text. Receivers must not rely on it.
func heartbeatPayload() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// OnHeartbeat records receipt of a HEARTBEAT and replies in kind.
func (c *ConnectionManager) OnHeartbeat() {
	if c.state != StateConnected {
		return
	}
	c.lastHbRecv = time.Now()
	c.sendFrame(TypeHeartbeat, []byte(heartbeatPayload()))
}

// Disconnect begins graceful teardown: transmits DISC, moves to
// DISCONNECTING, and arms the 5-second forced-teardown timeout.
func (c *ConnectionManager) Disconnect() {
	if c.state == StateDisconnected {
		return // idempotent
	}
	if c.state == StateDisconnecting {
		return
	}
	c.stopHeartbeat()
	c.state = StateDisconnecting
	c.sendFrame(TypeDisc, []byte("DISCONNECT"))
	c.disconnectTimer = c.scheduleOnce(c.disconnectTimeout, func() {
		c.forceDisconnect("disconnect_timeout")
	})
}

// OnDiscAck completes graceful teardown while DISCONNECTING.
func (c *ConnectionManager) OnDiscAck() {
	if c.state != StateDisconnecting {
		return
	}
	if c.disconnectTimer != nil {
		c.disconnectTimer.Stop()
	}
	c.toDisconnected("disconnect_ack")
}

// OnDisc handles an inbound DISC while CONNECTED: replies DISC_ACK and
// transitions to DISCONNECTED after a short grace period so the ACK has
// a chance to reach the wire.
func (c *ConnectionManager) OnDisc() {
	if c.state != StateConnected && c.state != StateDisconnecting {
		return
	}
	c.stopHeartbeat()
	c.sendFrame(TypeDiscAck, nil)
	if c.discAckTimer != nil {
		c.discAckTimer.Stop()
	}
	c.discAckTimer = c.scheduleOnce(DiscAckDropGrace, func() {
		c.toDisconnected("peer_disconnected")
	})
}

func (c *ConnectionManager) forceDisconnect(reason string) {
	c.stopHeartbeat()
	c.toDisconnected(reason)
}

func (c *ConnectionManager) stopHeartbeat() {
	if c.heartbeatTicker != nil {
		c.heartbeatTicker.Stop()
		c.heartbeatTicker = nil
	}
}

func (c *ConnectionManager) toDisconnected(reason string) {
	if c.connectTimer != nil {
		c.connectTimer.Stop()
	}
	if c.disconnectTimer != nil {
		c.disconnectTimer.Stop()
	}
	c.stopHeartbeat()
	uptime := time.Duration(0)
	if !c.lastHbSent.IsZero() {
		uptime = time.Since(c.lastHbSent)
	}
	c.state = StateDisconnected
	if c.onReset != nil {
		c.onReset()
	}
	c.emit(NewEvent(EventDisconnected, DisconnectedPayload{Reason: reason, Uptime: uptime}))
}
