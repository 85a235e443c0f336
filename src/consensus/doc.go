// Package consensus decides which candidate block becomes the next chain entry
// and when it is final.
//
// Two strategies implement the Engine interface. Authority rotation lets a
// sorted list of authorities take turns proposing on a timer; a block is
// final once validated locally, or after a configurable number of
// descendants. Byzantine agreement runs a three-phase protocol per height
// (pre-prepare, prepare, commit) among the validators and tolerates f faulty
// validators out of 3f+1. A view change rotates the primary when a height
// does not commit in time.
//
// Engines are plain state machines. They are driven by a single goroutine,
// take the current time as an argument, and return the messages to send
// instead of sending them.
package consensus
