package node

import (
	"testing"
	"time"

	"github.com/provchain/semchain/src/common"
	"github.com/sirupsen/logrus"
)

// Config contains the parameters of the node loop.
type Config struct {
	// HeartbeatTimeout is the period of the control timer, which drives
	// proposals, consensus timeouts and catch-up checks.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`
	// TCPTimeout bounds outbound RPCs.
	TCPTimeout time.Duration `mapstructure:"timeout"`
	// SyncInterval is how long without a commit before the node asks a
	// random peer for missing blocks.
	SyncInterval time.Duration `mapstructure:"sync-interval"`
	// SyncLimit is the maximum number of blocks per SyncResponse.
	SyncLimit int `mapstructure:"sync-limit"`
	// MaxBlockStatements is the maximum number of pool statements proposed
	// in one block.
	MaxBlockStatements int `mapstructure:"max-block-statements"`
	// MaxPoolStatements bounds the statement pool.
	MaxPoolStatements int `mapstructure:"max-pool-statements"`

	Logger *logrus.Entry
}

// NewConfig ...
func NewConfig(heartbeat time.Duration,
	timeout time.Duration,
	syncInterval time.Duration,
	syncLimit int,
	maxBlockStatements int,
	logger *logrus.Entry) *Config {

	return &Config{
		HeartbeatTimeout:   heartbeat,
		TCPTimeout:         timeout,
		SyncInterval:       syncInterval,
		SyncLimit:          syncLimit,
		MaxBlockStatements: maxBlockStatements,
		MaxPoolStatements:  DefaultMaxPoolStatements,
		Logger:             logger,
	}
}

// DefaultMaxPoolStatements ...
const DefaultMaxPoolStatements = 100000

// DefaultConfig returns a Config with default values and a debug logger.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		HeartbeatTimeout:   50 * time.Millisecond,
		TCPTimeout:         1000 * time.Millisecond,
		SyncInterval:       2 * time.Second,
		SyncLimit:          100,
		MaxBlockStatements: 1000,
		MaxPoolStatements:  DefaultMaxPoolStatements,
		Logger:             logrus.NewEntry(logger),
	}
}

// TestConfig returns a fast Config whose logs go to t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.HeartbeatTimeout = 10 * time.Millisecond
	config.SyncInterval = 200 * time.Millisecond
	config.Logger = common.NewTestEntry(t, common.TestLogLevel)
	return config
}
