// Package config holds the tunables of the protocol engine, generalized
// from the teacher's flat defaulted Config struct (core/main.go's
// loadConfig()) into a struct with a Default() constructor and With*
// functional options so callers (tests, the CLI demo) can override only
// what they need.
package config

import "time"

// Options bundles every tunable named in the spec's Configuration
// section: window size, timeouts, payload ceiling, and retry budget.
type Options struct {
	WindowSize        int
	MaxData           int
	AckTimeout        time.Duration
	MaxRetries        int
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	HeartbeatInterval time.Duration
}

// Default returns the spec's documented defaults.
func Default() Options {
	return Options{
		WindowSize:        8,
		MaxData:           1024,
		AckTimeout:        2 * time.Second,
		MaxRetries:        3,
		ConnectTimeout:    10 * time.Second,
		DisconnectTimeout: 5 * time.Second,
		HeartbeatInterval: 5 * time.Second,
	}
}

// Option mutates an Options value; With* constructors below are the only
// intended producers.
type Option func(*Options)

// WithWindowSize overrides the sliding window size (clamped elsewhere to
// 1..8 by the protocol package).
func WithWindowSize(n int) Option {
	return func(o *Options) { o.WindowSize = n }
}

// WithAckTimeout overrides the per-frame retransmission timeout.
func WithAckTimeout(d time.Duration) Option {
	return func(o *Options) { o.AckTimeout = d }
}

// WithMaxRetries overrides the retransmission budget before a frame is
// declared failed.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

// WithHeartbeatInterval overrides the liveness heartbeat period; the
// liveness timeout is always three times this value.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *Options) { o.HeartbeatInterval = d }
}

// WithConnectTimeout overrides the handshake timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

// WithDisconnectTimeout overrides the forced-teardown timeout.
func WithDisconnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.DisconnectTimeout = d }
}

// New builds an Options starting from Default() and applying opts in
// order.
func New(opts ...Option) Options {
	o := Default()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
