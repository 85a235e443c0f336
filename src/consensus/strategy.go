package consensus

import "fmt"

// Strategy selects a consensus engine.
type Strategy uint8

const (
	// AuthorityRotation is the round-robin authority strategy.
	AuthorityRotation Strategy = iota
	// ByzantineAgreement is the three-phase voting strategy.
	ByzantineAgreement
)

func (s Strategy) String() string {
	switch s {
	case AuthorityRotation:
		return "authority"
	case ByzantineAgreement:
		return "byzantine"
	default:
		return "unknown"
	}
}

// ParseStrategy reads the names returned by String.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "authority", "poa":
		return AuthorityRotation, nil
	case "byzantine", "pbft":
		return ByzantineAgreement, nil
	default:
		return 0, fmt.Errorf("unknown consensus strategy %q", s)
	}
}
