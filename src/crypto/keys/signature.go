package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/provchain/semchain/src/crypto"
)

// Sign signs the data with the private key and the built-in pseudo-random
// generator rand.Reader.
func Sign(priv *ecdsa.PrivateKey, data []byte) (r, s *big.Int, err error) {
	return ecdsa.Sign(rand.Reader, priv, data)
}

// Verify verifies that a signature represented by r and s values, is a valid
// signature of the data by an owner of the private key associated with the
// provided public key.
func Verify(pub *ecdsa.PublicKey, data []byte, r, s *big.Int) bool {
	return ecdsa.Verify(pub, data, r, s)
}

// EncodeSignature returns a string representation of a signature.
func EncodeSignature(r, s *big.Int) string {
	return fmt.Sprintf("%s|%s", r.Text(36), s.Text(36))
}

// DecodeSignature parses a string representation of a signature as produced by
// EncodeSignature.
func DecodeSignature(sig string) (r, s *big.Int, err error) {
	values := strings.Split(sig, "|")
	if len(values) != 2 {
		return r, s, fmt.Errorf("wrong number of values in signature: got %d, want 2", len(values))
	}
	r, okR := new(big.Int).SetString(values[0], 36)
	s, okS := new(big.Int).SetString(values[1], 36)
	if !okR || !okS {
		return nil, nil, fmt.Errorf("malformed signature %q", sig)
	}
	return r, s, nil
}

// SignBytes hashes msg with SHA256, signs the digest and returns the encoded
// signature.
func SignBytes(priv *ecdsa.PrivateKey, msg []byte) (string, error) {
	r, s, err := Sign(priv, crypto.SHA256(msg))
	if err != nil {
		return "", err
	}
	return EncodeSignature(r, s), nil
}

// VerifyBytes checks an encoded signature produced by SignBytes against the
// hex-encoded public key of the alleged signer.
func VerifyBytes(pubHex string, msg []byte, sig string) (bool, error) {
	pub, err := ParsePublicKeyHex(pubHex)
	if err != nil {
		return false, err
	}
	r, s, err := DecodeSignature(sig)
	if err != nil {
		return false, err
	}
	return Verify(pub, crypto.SHA256(msg), r, s), nil
}
