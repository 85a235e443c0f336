package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/consensus"
	"github.com/provchain/semchain/src/node"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the validator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultConfigFile is the base name of the configuration file read from
	// the data directory.
	DefaultConfigFile = "semchain"

	// ValidatorsFile is the name of the JSON file containing the genesis
	// validator set.
	ValidatorsFile = "validators.json"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultBindAddr           = "127.0.0.1:1337"
	DefaultServiceAddr        = "127.0.0.1:8000"
	DefaultConsensus          = "authority"
	DefaultBlockInterval      = consensus.DefaultBlockInterval
	DefaultViewTimeout        = consensus.DefaultViewTimeout
	DefaultHeartbeatTimeout   = 50 * time.Millisecond
	DefaultTCPTimeout         = 1000 * time.Millisecond
	DefaultSyncInterval       = 2 * time.Second
	DefaultSyncLimit          = 100
	DefaultMaxPool            = 2
	DefaultStore              = false
	DefaultMaxBlockStatements = 1000
	DefaultMaxPoolStatements  = node.DefaultMaxPoolStatements
	DefaultConfirmationDepth  = 0
	DefaultSubmitRate         = 100
	DefaultSubmitBurst        = 20
	// DefaultGenesisTime is the unix timestamp of the genesis block. Every
	// node of a network must use the same value.
	DefaultGenesisTime int64 = 1700000000
)

// Config contains all the configuration properties of a SEMCHAIN node.
type Config struct {
	// DataDir is the top-level directory containing the key, the validator
	// file, the configuration file and, by default, the database.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node talks to the other
	// validators.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP API service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Consensus selects the strategy: authority or byzantine.
	Consensus string `mapstructure:"consensus"`

	// BlockInterval is the length of an authority slot.
	BlockInterval time.Duration `mapstructure:"block-interval"`

	// ViewTimeout is how long a byzantine height may take before the
	// validators change view.
	ViewTimeout time.Duration `mapstructure:"view-timeout"`

	// ConfirmationDepth is the number of descendants an authority block needs
	// before it is final.
	ConfirmationDepth uint64 `mapstructure:"confirmation-depth"`

	// GenesisTime is the unix timestamp of the genesis block.
	GenesisTime int64 `mapstructure:"genesis-time"`

	// HeartbeatTimeout is the period of the node's control timer.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// TCPTimeout is the timeout of RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// SyncInterval is how long the node waits without progress before asking
	// a peer for missing blocks.
	SyncInterval time.Duration `mapstructure:"sync-interval"`

	// SyncLimit is the max number of blocks in a SyncResponse.
	SyncLimit int `mapstructure:"sync-limit"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// MaxBlockStatements caps the number of statements in a proposed block.
	MaxBlockStatements int `mapstructure:"max-block-statements"`

	// MaxPoolStatements caps the number of pending statements.
	MaxPoolStatements int `mapstructure:"max-pool-statements"`

	// SubmitRate is the number of statement submissions per second accepted
	// by the HTTP service. Zero disables the limit.
	SubmitRate float64 `mapstructure:"submit-rate"`

	// SubmitBurst is the burst size of the submission limiter.
	SubmitBurst int `mapstructure:"submit-burst"`

	// Store activates persistent storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Bootstrap determines whether or not to load the chain from an existing
	// database. Forces Store.
	Bootstrap bool `mapstructure:"bootstrap"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		BindAddr:           DefaultBindAddr,
		ServiceAddr:        DefaultServiceAddr,
		Consensus:          DefaultConsensus,
		BlockInterval:      DefaultBlockInterval,
		ViewTimeout:        DefaultViewTimeout,
		ConfirmationDepth:  DefaultConfirmationDepth,
		GenesisTime:        DefaultGenesisTime,
		HeartbeatTimeout:   DefaultHeartbeatTimeout,
		TCPTimeout:         DefaultTCPTimeout,
		SyncInterval:       DefaultSyncInterval,
		SyncLimit:          DefaultSyncLimit,
		MaxPool:            DefaultMaxPool,
		MaxBlockStatements: DefaultMaxBlockStatements,
		MaxPoolStatements:  DefaultMaxPoolStatements,
		SubmitRate:         DefaultSubmitRate,
		SubmitBurst:        DefaultSubmitBurst,
		Store:              DefaultStore,
		DatabaseDir:        DefaultDatabaseDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// ValidatorsFile returns the full path of the genesis validator file.
func (c *Config) ValidatorsFile() string {
	return filepath.Join(c.DataDir, ValidatorsFile)
}

// Strategy parses the Consensus option.
func (c *Config) Strategy() (consensus.Strategy, error) {
	return consensus.ParseStrategy(c.Consensus)
}

// GenesisTimestamp ...
func (c *Config) GenesisTimestamp() time.Time {
	return time.Unix(c.GenesisTime, 0).UTC()
}

// NodeConfig returns the configuration of the node's event loop.
func (c *Config) NodeConfig() *node.Config {
	conf := node.NewConfig(
		c.HeartbeatTimeout,
		c.TCPTimeout,
		c.SyncInterval,
		c.SyncLimit,
		c.MaxBlockStatements,
		c.Logger(),
	)
	if c.MaxPoolStatements > 0 {
		conf.MaxPoolStatements = c.MaxPoolStatements
	}
	return conf
}

// Logger returns a formatted logrus Entry, with prefix set to "semchain".
// When LogFile is set, entries are also written to that file.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.AddHook(lfshook.NewHook(
				lfshook.PathMap{
					logrus.DebugLevel: c.LogFile,
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
					logrus.FatalLevel: c.LogFile,
					logrus.PanicLevel: c.LogFile,
				},
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "semchain")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config based
// on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Semchain")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Semchain")
		} else {
			return filepath.Join(home, ".semchain")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
