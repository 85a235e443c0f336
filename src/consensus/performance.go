package consensus

import "time"

// AuthorityPerformance tracks how an authority fills its slots.
type AuthorityPerformance struct {
	BlocksCreated uint64
	MissedSlots   uint64
	LastActive    time.Time
}

// Reputation is the share of slots the authority filled. An authority that
// never had a slot has a reputation of 1.
func (p AuthorityPerformance) Reputation() float64 {
	total := p.BlocksCreated + p.MissedSlots
	if total == 0 {
		return 1
	}
	return float64(p.BlocksCreated) / float64(total)
}

type performanceTracker struct {
	byAuthority map[string]*AuthorityPerformance
}

func newPerformanceTracker() *performanceTracker {
	return &performanceTracker{
		byAuthority: make(map[string]*AuthorityPerformance),
	}
}

func (t *performanceTracker) get(pubKey string) *AuthorityPerformance {
	p, ok := t.byAuthority[pubKey]
	if !ok {
		p = &AuthorityPerformance{}
		t.byAuthority[pubKey] = p
	}
	return p
}

func (t *performanceTracker) created(pubKey string, at time.Time) {
	p := t.get(pubKey)
	p.BlocksCreated++
	p.LastActive = at
}

func (t *performanceTracker) missed(pubKey string) {
	t.get(pubKey).MissedSlots++
}

func (t *performanceTracker) snapshot() map[string]AuthorityPerformance {
	res := make(map[string]AuthorityPerformance, len(t.byAuthority))
	for k, v := range t.byAuthority {
		res[k] = *v
	}
	return res
}
