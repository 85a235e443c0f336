package validators

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/crypto"
	"github.com/ugorji/go/codec"
)

// ValidatorSet is an immutable set of validators sorted by public key.
type ValidatorSet struct {
	Validators []*Validator          `json:"validators"`
	ByPubKey   map[string]*Validator `json:"-"`
	ByID       map[uint32]*Validator `json:"-"`

	// cached values
	hash   []byte
	voters []*Validator
}

// NewValidatorSet creates a ValidatorSet. Validators are copied, sorted by
// public key, and deduplicated (the last entry for a key wins).
func NewValidatorSet(vals []*Validator) *ValidatorSet {
	vs := &ValidatorSet{
		ByPubKey: make(map[string]*Validator),
		ByID:     make(map[uint32]*Validator),
	}

	for _, v := range vals {
		c := v.copy()
		c.PubKeyHex = common.NormalizeHex(c.PubKeyHex)
		vs.ByPubKey[c.PubKeyHex] = c
	}

	sorted := make([]*Validator, 0, len(vs.ByPubKey))
	for _, v := range vs.ByPubKey {
		sorted = append(sorted, v)
		vs.ByID[v.ID()] = v
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PubKeyHex < sorted[j].PubKeyHex
	})
	vs.Validators = sorted

	return vs
}

// NewValidatorSetFromBytes decodes the output of Marshal.
func NewValidatorSetFromBytes(data []byte) (*ValidatorSet, error) {
	vals := []*Validator{}
	dec := codec.NewDecoder(bytes.NewBuffer(data), new(codec.JsonHandle))
	if err := dec.Decode(&vals); err != nil {
		return nil, err
	}
	return NewValidatorSet(vals), nil
}

// Validate checks every validator.
func (vs *ValidatorSet) Validate() error {
	if vs.Len() == 0 {
		return fmt.Errorf("empty validator set")
	}
	for _, v := range vs.Validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of validators.
func (vs *ValidatorSet) Len() int {
	return len(vs.Validators)
}

// Get returns the validator with the given public key.
func (vs *ValidatorSet) Get(pubKeyHex string) (*Validator, bool) {
	v, ok := vs.ByPubKey[common.NormalizeHex(pubKeyHex)]
	return v, ok
}

// Contains ...
func (vs *ValidatorSet) Contains(pubKeyHex string) bool {
	_, ok := vs.Get(pubKeyHex)
	return ok
}

// Voters returns the validators with a positive weight, in set order.
func (vs *ValidatorSet) Voters() []*Validator {
	if vs.voters == nil {
		vs.voters = []*Validator{}
		for _, v := range vs.Validators {
			if v.Weight > 0 {
				vs.voters = append(vs.voters, v)
			}
		}
	}
	return vs.voters
}

// Authorities returns the authorities with a positive weight, in set order.
func (vs *ValidatorSet) Authorities() []*Validator {
	res := []*Validator{}
	for _, v := range vs.Voters() {
		if v.IsAuthority() {
			res = append(res, v)
		}
	}
	return res
}

// IsVoter reports whether the key belongs to a validator with positive weight.
func (vs *ValidatorSet) IsVoter(pubKeyHex string) bool {
	v, ok := vs.Get(pubKeyHex)
	return ok && v.Weight > 0
}

// FaultTolerance is f, the number of faulty voters the set tolerates:
// n = 3f+1 or more.
func (vs *ValidatorSet) FaultTolerance() int {
	n := len(vs.Voters())
	if n == 0 {
		return 0
	}
	return (n - 1) / 3
}

// Quorum is n-f, which is 2f+1 when n = 3f+1. Any two quorums then share
// more than f voters, so at least one honest one.
func (vs *ValidatorSet) Quorum() int {
	return len(vs.Voters()) - vs.FaultTolerance()
}

// Primary returns the voter designated for a view, rotating through the
// voters in set order.
func (vs *ValidatorSet) Primary(view uint64) *Validator {
	voters := vs.Voters()
	if len(voters) == 0 {
		return nil
	}
	return voters[view%uint64(len(voters))]
}

// TotalWeight ...
func (vs *ValidatorSet) TotalWeight() uint64 {
	var total uint64
	for _, v := range vs.Validators {
		total += v.Weight
	}
	return total
}

// WeightOf sums the weights of the distinct known validators among pubKeys.
func (vs *ValidatorSet) WeightOf(pubKeys []string) uint64 {
	seen := make(map[string]bool)
	var total uint64
	for _, pk := range pubKeys {
		v, ok := vs.Get(pk)
		if !ok || seen[v.PubKeyHex] {
			continue
		}
		seen[v.PubKeyHex] = true
		total += v.Weight
	}
	return total
}

// PubKeys returns the public keys in set order.
func (vs *ValidatorSet) PubKeys() []string {
	res := make([]string, len(vs.Validators))
	for i, v := range vs.Validators {
		res[i] = v.PubKeyHex
	}
	return res
}

// WithNewValidator returns a new set including v, or replacing the validator
// with the same key.
func (vs *ValidatorSet) WithNewValidator(v *Validator) *ValidatorSet {
	vals := append(vs.copyValidators(), v)
	return NewValidatorSet(vals)
}

// WithRemovedValidator returns a new set without the given key.
func (vs *ValidatorSet) WithRemovedValidator(pubKeyHex string) *ValidatorSet {
	pk := common.NormalizeHex(pubKeyHex)
	vals := []*Validator{}
	for _, v := range vs.Validators {
		if v.PubKeyHex != pk {
			vals = append(vals, v)
		}
	}
	return NewValidatorSet(vals)
}

// ApplyMembershipChange returns the set resulting from diff. It refuses to
// produce an empty set or to remove an unknown validator.
func (vs *ValidatorSet) ApplyMembershipChange(diff MembershipDiff) (*ValidatorSet, error) {
	next := vs
	for _, pk := range diff.Remove {
		if !next.Contains(pk) {
			return nil, fmt.Errorf("cannot remove unknown validator %s", pk)
		}
		next = next.WithRemovedValidator(pk)
	}
	for _, v := range diff.Add {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		next = next.WithNewValidator(v)
	}
	if len(next.Voters()) == 0 {
		return nil, fmt.Errorf("membership change would leave no voters")
	}
	return next, nil
}

// Hash chains the public keys and weights of the validators, in set order.
func (vs *ValidatorSet) Hash() []byte {
	if len(vs.hash) == 0 {
		hash := []byte{}
		for _, v := range vs.Validators {
			pk, _ := v.PubKeyBytes()
			entry := crypto.SHA256Of(pk, []byte(fmt.Sprintf("%s-%d", v.Role, v.Weight)))
			hash = crypto.SimpleHashFromTwoHashes(hash, entry)
		}
		vs.hash = hash
	}
	return vs.hash
}

// Hex is the hexadecimal representation of Hash.
func (vs *ValidatorSet) Hex() string {
	return common.EncodeToString(vs.Hash())
}

// Marshal encodes the validator slice in JSON.
func (vs *ValidatorSet) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, new(codec.JsonHandle))
	if err := enc.Encode(vs.Validators); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (vs *ValidatorSet) copyValidators() []*Validator {
	res := make([]*Validator, len(vs.Validators))
	for i, v := range vs.Validators {
		res[i] = v.copy()
	}
	return res
}
