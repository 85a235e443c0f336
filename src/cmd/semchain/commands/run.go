package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/provchain/semchain/src/config"
	"github.com/provchain/semchain/src/semchain"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a SEMCHAIN node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runSemchain,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runSemchain(cmd *cobra.Command, args []string) error {
	engine := semchain.NewSemchain(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().WithError(err).Error("Cannot initialize engine")
		engine.Shutdown()
		return err
	}

	shutdownCh := make(chan error, 1)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		s := <-sigCh
		_config.Logger().WithField("signal", s).Info("Shutting down")
		shutdownCh <- engine.Shutdown()
	}()

	engine.Run()

	return <-shutdownCh
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Optional file receiving a copy of the logs")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for semchain node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for semchain node")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")
	cmd.Flags().Float64("submit-rate", _config.SubmitRate, "Statement submissions per second accepted by the HTTP service (0 for no limit)")
	cmd.Flags().Int("submit-burst", _config.SubmitBurst, "Burst size of statement submissions")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Bool("bootstrap", _config.Bootstrap, "Load from database")

	// Consensus
	cmd.Flags().String("consensus", _config.Consensus, "Consensus strategy: authority or byzantine")
	cmd.Flags().Duration("block-interval", _config.BlockInterval, "Length of an authority slot")
	cmd.Flags().Duration("view-timeout", _config.ViewTimeout, "Time before byzantine validators change view")
	cmd.Flags().Uint64("confirmation-depth", _config.ConfirmationDepth, "Descendants an authority block needs before it is final")
	cmd.Flags().Int64("genesis-time", _config.GenesisTime, "Unix timestamp of the genesis block")

	// Node configuration
	cmd.Flags().Duration("heartbeat", _config.HeartbeatTimeout, "Period of the control timer")
	cmd.Flags().Duration("sync-interval", _config.SyncInterval, "Time without progress before catching up")
	cmd.Flags().Int("sync-limit", _config.SyncLimit, "Max number of blocks for sync")
	cmd.Flags().Int("max-block-statements", _config.MaxBlockStatements, "Max number of statements in a block")
	cmd.Flags().Int("max-pool-statements", _config.MaxPoolStatements, "Max number of pending statements")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	configFile, err := bindFlagsLoadViper(cmd, _config)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"ConfigFile":         configFile,
		"DataDir":            _config.DataDir,
		"BindAddr":           _config.BindAddr,
		"AdvertiseAddr":      _config.AdvertiseAddr,
		"ServiceAddr":        _config.ServiceAddr,
		"NoService":          _config.NoService,
		"MaxPool":            _config.MaxPool,
		"Store":              _config.Store,
		"LogLevel":           _config.LogLevel,
		"LogFile":            _config.LogFile,
		"Moniker":            _config.Moniker,
		"Consensus":          _config.Consensus,
		"BlockInterval":      _config.BlockInterval,
		"ViewTimeout":        _config.ViewTimeout,
		"ConfirmationDepth":  _config.ConfirmationDepth,
		"GenesisTime":        _config.GenesisTime,
		"HeartbeatTimeout":   _config.HeartbeatTimeout,
		"TCPTimeout":         _config.TCPTimeout,
		"SyncInterval":       _config.SyncInterval,
		"SyncLimit":          _config.SyncLimit,
		"MaxBlockStatements": _config.MaxBlockStatements,
		"SubmitRate":         _config.SubmitRate,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
		logFields["Bootstrap"] = _config.Bootstrap
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper. It returns the config file
// used, if any.
func bindFlagsLoadViper(cmd *cobra.Command, conf *config.Config) (string, error) {
	v := viper.New()

	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return "", err
	}

	// first unmarshal to read from CLI flags
	if err := v.Unmarshal(conf); err != nil {
		return "", err
	}

	// look for config file in [datadir]/semchain.toml (.json, .yaml also work)
	v.SetConfigName(config.DefaultConfigFile) // name of config file (without extension)
	v.AddConfigPath(conf.DataDir)             // search root directory

	// If a config file is found, read it in.
	configFile := ""
	if err := v.ReadInConfig(); err == nil {
		configFile = v.ConfigFileUsed()
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return "", err
	}

	// second unmarshal to read from config file
	return configFile, v.Unmarshal(conf)
}
