// Package governance manages changes to the validator set.
//
// Proposals to add or remove a validator, and the votes cast on them, travel
// as ordinary statements inside blocks, using predicates of the
// urn:semchain:gov# vocabulary. They are therefore ordered and finalized by
// consensus like any other data. Every node feeds its finalized blocks to a
// Governance instance, in height order, and obtains the same sequence of
// MembershipDiffs, which the node hands to the consensus engine between
// heights.
//
// Proposals and votes are signed by the submitting validator. A proposal is
// decided once it has gathered the required number of votes: it is accepted
// when the votes in favour outnumber the votes against, and rejected
// otherwise. Voting closes at the deadline height carried by the proposal.
package governance
