// Package config centralizes the configuration options named in the
// external-interfaces section: tick timing, replication cadence, input and
// interpolation delay targets, packet sizing, and connection timeouts.
// Functional options mirror the teacher's transport/client constructor style.
package config

import "time"

// Config holds every recognised option. Zero-value Config is invalid; use
// Default() and apply Options on top of it.
type Config struct {
	TickDuration                  time.Duration
	ServerReplicationSendInterval time.Duration
	ClientReplicationSendInterval time.Duration
	InputDelayTicks               uint16
	InterpolationDelayTicks       uint16
	RTTEstimateSmoothing          float64
	CorrectionTicksFactor         float64
	MaxPacketBytes                int
	FragmentSize                  int
	KeepAliveInterval             time.Duration
	DisconnectTimeout             time.Duration
	PredictionHistoryDepth        int
	InterpolationBufferCapacity   int
}

// Default returns the default configuration: 1200 byte packets, 1024 byte
// fragments, a 3s keepalive interval and a 10s disconnect timeout, which is
// also the no-packet timeout runtime.Peer gives every connection.
func Default() Config {
	return Config{
		TickDuration:                  time.Second / 60,
		ServerReplicationSendInterval: time.Second / 20,
		ClientReplicationSendInterval: time.Second / 20,
		InputDelayTicks:               2,
		InterpolationDelayTicks:       5,
		RTTEstimateSmoothing:          0.1,
		CorrectionTicksFactor:         0.1,
		MaxPacketBytes:                1200,
		FragmentSize:                  1024,
		KeepAliveInterval:             3 * time.Second,
		DisconnectTimeout:             10 * time.Second,
		PredictionHistoryDepth:        20,
		InterpolationBufferCapacity:   8,
	}
}

// Option mutates a Config in place during construction.
type Option func(*Config)

func WithTickDuration(d time.Duration) Option {
	return func(c *Config) { c.TickDuration = d }
}

func WithServerReplicationSendInterval(d time.Duration) Option {
	return func(c *Config) { c.ServerReplicationSendInterval = d }
}

func WithClientReplicationSendInterval(d time.Duration) Option {
	return func(c *Config) { c.ClientReplicationSendInterval = d }
}

func WithInputDelayTicks(n uint16) Option {
	return func(c *Config) { c.InputDelayTicks = n }
}

func WithInterpolationDelayTicks(n uint16) Option {
	return func(c *Config) { c.InterpolationDelayTicks = n }
}

func WithMaxPacketBytes(n int) Option {
	return func(c *Config) { c.MaxPacketBytes = n }
}

func WithFragmentSize(n int) Option {
	return func(c *Config) { c.FragmentSize = n }
}

func WithKeepAliveInterval(d time.Duration) Option {
	return func(c *Config) { c.KeepAliveInterval = d }
}

func WithDisconnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.DisconnectTimeout = d }
}

func WithPredictionHistoryDepth(n int) Option {
	return func(c *Config) { c.PredictionHistoryDepth = n }
}

func WithInterpolationBufferCapacity(n int) Option {
	return func(c *Config) { c.InterpolationBufferCapacity = n }
}

// New builds a Config starting from Default and applying opts in order.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
