package validators

import (
	"crypto/ecdsa"

	"github.com/provchain/semchain/src/crypto/keys"
)

// Signer holds the private key of the local validator.
type Signer struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	id     uint32
	pubHex string
}

// NewSigner ...
func NewSigner(key *ecdsa.PrivateKey, moniker string) *Signer {
	return &Signer{
		Key:     key,
		Moniker: moniker,
	}
}

// ID returns the 32-bit identifier of the public key.
func (s *Signer) ID() uint32 {
	if s.id == 0 {
		s.id = keys.PublicKeyID(keys.FromPublicKey(&s.Key.PublicKey))
	}
	return s.id
}

// PublicKeyHex returns the validator identity of the signer.
func (s *Signer) PublicKeyHex() string {
	if len(s.pubHex) == 0 {
		s.pubHex = keys.PublicKeyHex(&s.Key.PublicKey)
	}
	return s.pubHex
}

// Sign signs msg with the private key.
func (s *Signer) Sign(msg []byte) (string, error) {
	return keys.SignBytes(s.Key, msg)
}
