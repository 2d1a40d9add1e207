package remote

import (
	"time"

	"github.com/fortiblox/cellvm/pkg/cpu"
	"github.com/fortiblox/cellvm/pkg/executor"
	"github.com/fortiblox/cellvm/pkg/program"
)

// Default configuration values.
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":7457"

	// DefaultMaxSteps caps the instruction budget of a remote run.
	DefaultMaxSteps = 10_000_000

	// DefaultMaxOutput caps the bytes a remote run may write.
	DefaultMaxOutput = 1 << 20

	// DefaultMaxMessageSize fits the largest image plus framing.
	DefaultMaxMessageSize = program.MaxImageSize*2 + 1<<20

	// DefaultKeepaliveTime is the default interval for keepalive pings.
	DefaultKeepaliveTime = 30 * time.Second

	// DefaultKeepaliveTimeout is the default timeout for keepalive responses.
	DefaultKeepaliveTimeout = 10 * time.Second
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address used by ListenAndServe.
	Addr string

	// MaxSteps caps the instruction budget of each run.
	MaxSteps uint64

	// MaxStackCapacity caps the stack a request may ask for.
	MaxStackCapacity int

	// MaxOutput caps the output of each run. A run writing more stops
	// with CPU_IO_ERROR.
	MaxOutput int

	// MaxMessageSize bounds request and response messages.
	MaxMessageSize int

	// KeepaliveTime and KeepaliveTimeout configure server pings.
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// Journal, if set, records every run.
	Journal executor.Journal
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:             DefaultAddr,
		MaxSteps:         DefaultMaxSteps,
		MaxStackCapacity: cpu.MaxStackCapacity,
		MaxOutput:        DefaultMaxOutput,
		MaxMessageSize:   DefaultMaxMessageSize,
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
	}
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	// Endpoint is the server address (e.g. "localhost:7457").
	Endpoint string

	// MaxMessageSize bounds request and response messages.
	MaxMessageSize int

	// KeepaliveTime and KeepaliveTimeout configure client pings.
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig(endpoint string) ClientConfig {
	return ClientConfig{
		Endpoint:         endpoint,
		MaxMessageSize:   DefaultMaxMessageSize,
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
	}
}
