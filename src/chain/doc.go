// Package chain implements the ledger: block headers, blocks and the gap-free
// sequence of blocks they form.
//
// A block carries a named graph instead of an opaque payload. Its
// ContentHash is the canonical digest of that graph, and each header links to
// its parent through PreviousHashOf, which combines the parent's ContentHash
// with its height and timestamp. Blocks are persisted in a Store, either in
// memory or in a Badger database.
package chain
