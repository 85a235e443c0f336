package validators

// MembershipDiff is a change to a ValidatorSet. Removals are applied before
// additions.
type MembershipDiff struct {
	Add    []*Validator
	Remove []string // public keys
}

// IsEmpty ...
func (d MembershipDiff) IsEmpty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}
