// Package keys implements the public key cryptography used by semchain
// validators.
//
// Every validator owns a secp256k1 ECDSA key-pair. The private key signs block
// headers and consensus messages; the public key, in its uncompressed form and
// hex-encoded with a 0X prefix, is the validator's identity in the
// ValidatorSet and the proposer_id of the blocks it creates.
package keys
