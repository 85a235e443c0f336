// Package semchain assembles a SEMCHAIN node from a config.Config: it reads
// the key and the genesis validator set from the data directory, opens the
// chain store, builds the consensus engine and the governance state, and
// starts the node and its HTTP service.
package semchain
