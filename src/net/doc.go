// Package net implements the transports used by semchain nodes to talk to
// each other.
//
// A Transport carries three request/response RPCs:
//
// - Consensus: delivers one consensus message (proposal, vote, view change)
//
// - Sync: fetches committed blocks from a given height, used by nodes that
// fall behind
//
// - Submit: forwards statements submitted to one node so that every node can
// include them in the blocks it proposes
//
// Two implementations are provided. The InmemTransport routes RPCs between
// transports of the same process and is used in tests. The NetworkTransport
// frames msgpack-encoded requests over a StreamLayer; NewTCPTransport builds
// one on plain TCP.
//
// To use the TCP transport, set the following configuration options:
//
// - listen: the IP:PORT of the TCP socket the node binds to.
//
// - advertise: (optional) the address advertised to other nodes. If the listen
// address is not reachable by other nodes, set advertise to the reachable
// public address.
package net
