// Package config defines the configuration for a SEMCHAIN node.
//
// Regardless of how a node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, the node relies on a data directory, defined by Config.DataDir,
// where it expects to find a few additional files:
//
//  priv_key // a plain text file containing the raw private key (cf. semchain keygen).
//  validators.json // a JSON file containing the genesis validator set.
//  semchain.toml // (optional) configuration values, overridden by command line flags.
//  badger_db // (optional, with --store) the database directory.
package config
