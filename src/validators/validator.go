package validators

import (
	"bytes"
	"fmt"

	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/crypto/keys"
	"github.com/ugorji/go/codec"
)

// Role is the part a validator plays in consensus.
type Role string

const (
	// Authority validators propose blocks in turn.
	Authority Role = "authority"
	// Voter validators only vote.
	Voter Role = "voter"
)

// Validator is the public identity of a consensus participant.
type Validator struct {
	PubKeyHex string
	NetAddr   string
	Moniker   string
	Role      Role
	Weight    uint64

	id uint32
}

// NewValidator returns an authority of weight 1.
func NewValidator(pubKeyHex, netAddr, moniker string) *Validator {
	return &Validator{
		PubKeyHex: common.NormalizeHex(pubKeyHex),
		NetAddr:   netAddr,
		Moniker:   moniker,
		Role:      Authority,
		Weight:    1,
	}
}

// ID returns the 32-bit identifier derived from the public key.
func (v *Validator) ID() uint32 {
	if v.id == 0 {
		pubKey, err := v.PubKeyBytes()
		if err != nil {
			return 0
		}
		v.id = keys.PublicKeyID(pubKey)
	}
	return v.id
}

// PubKeyBytes decodes PubKeyHex.
func (v *Validator) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(v.PubKeyHex)
}

// IsAuthority ...
func (v *Validator) IsAuthority() bool {
	return v.Role == Authority
}

// Validate checks that the identity is usable.
func (v *Validator) Validate() error {
	if _, err := keys.ParsePublicKeyHex(v.PubKeyHex); err != nil {
		return fmt.Errorf("validator %s: %v", v.Moniker, err)
	}
	switch v.Role {
	case Authority, Voter:
	default:
		return fmt.Errorf("validator %s: unknown role %q", v.Moniker, v.Role)
	}
	return nil
}

// Marshal encodes the validator in JSON.
func (v *Validator) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, new(codec.JsonHandle))
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal ...
func (v *Validator) Unmarshal(data []byte) error {
	dec := codec.NewDecoder(bytes.NewBuffer(data), new(codec.JsonHandle))
	return dec.Decode(v)
}

func (v *Validator) copy() *Validator {
	c := *v
	return &c
}
