// Package validators keeps track of the identities allowed to take part in
// consensus.
//
// A Validator is identified by its public key and carries a role and a
// weight. Authorities take turns proposing under the authority rotation
// strategy; every validator with a positive weight votes under the byzantine
// strategy. A ValidatorSet is immutable: membership changes produce a new set,
// and are only applied between heights.
package validators
