// Package node implements the reactive component of a semchain node.
//
// A Node owns the chain, the consensus engine, governance and the statement
// pool through its Core. A single event loop processes incoming RPCs,
// statements submitted by the application, catch-up results and heartbeat
// ticks, so that none of these components needs locking. Outbound requests
// run in goroutines limited by the state.Manager and report back to the loop
// through channels.
//
// Statements
//
// Statements submitted by the application are checked against the semantic
// gate, pooled, and forwarded once to every other validator with a Submit
// request. On each heartbeat the pool is offered to the engine, which decides
// whether it is the local validator's turn to propose.
//
// Consensus
//
// The messages an engine returns are broadcast to every other validator with
// Consensus requests. Committed blocks are delivered to the application in
// height order through the AppProxy, and their statements leave the pool.
// Governance runs over finalized blocks only; the membership changes it
// decides are applied to the engine between heights and recorded in the chain
// as the validator set of the next height.
//
// Catching up
//
// A node that sees a message for a height it cannot reach, receives a
// response from a peer with a longer chain, or commits nothing for
// SyncInterval, enters the CatchingUp state and fetches blocks from a peer
// with Sync requests until it reaches the peer's height.
package node
