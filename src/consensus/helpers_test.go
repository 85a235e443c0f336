package consensus

import (
	"testing"
	"time"

	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/crypto/keys"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1700000000, 0)

// newSortedSigners returns n signers ordered like the validator set, so that
// signers[i] is vs.Validators[i].
func newSortedSigners(t *testing.T, n int) ([]*validators.Signer, *validators.ValidatorSet) {
	byKey := map[string]*validators.Signer{}
	vals := []*validators.Validator{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		s := validators.NewSigner(key, "")
		byKey[s.PublicKeyHex()] = s
		vals = append(vals, validators.NewValidator(s.PublicKeyHex(), "", ""))
	}
	vs := validators.NewValidatorSet(vals)

	signers := make([]*validators.Signer, n)
	for i, v := range vs.Validators {
		signers[i] = byKey[v.PubKeyHex]
		signers[i].Moniker = v.PubKeyHex[:8]
	}
	return signers, vs
}

func newTestChain(t *testing.T, vs *validators.ValidatorSet) *chain.Chain {
	genesis, err := chain.NewGenesisBlock(nil, t0)
	require.NoError(t, err)
	c, err := chain.NewChain(chain.NewInmemStore(), genesis, vs, common.NewTestEntry(t, common.TestLogLevel))
	require.NoError(t, err)
	return c
}

func statements(batch string) []graph.Statement {
	return []graph.Statement{
		graph.NewStatement(
			graph.IRI("http://example.org/"+batch),
			graph.IRI("http://example.org/hasOrigin"),
			graph.IRI("http://example.org/FarmA"),
		),
	}
}

type envelope struct {
	from, to int
	msg      *Message
}

// testNet delivers messages between engines synchronously. Messages from or
// to silent engines are dropped; the ones a silent engine missed from the
// others are kept in missed.
type testNet struct {
	t       *testing.T
	engines []Engine
	silent  map[int]bool
	queue   []envelope
	missed  []envelope
	errs    []error
}

func newTestNet(t *testing.T, engines []Engine) *testNet {
	return &testNet{
		t:       t,
		engines: engines,
		silent:  map[int]bool{},
	}
}

func (n *testNet) broadcast(from int, msgs []*Message) {
	for _, m := range msgs {
		for to := range n.engines {
			if to != from {
				n.queue = append(n.queue, envelope{from, to, m})
			}
		}
	}
}

func (n *testNet) send(from, to int, msgs ...*Message) {
	for _, m := range msgs {
		n.queue = append(n.queue, envelope{from, to, m})
	}
}

func (n *testNet) run(now time.Time) {
	for len(n.queue) > 0 {
		env := n.queue[0]
		n.queue = n.queue[1:]
		if n.silent[env.from] || n.silent[env.to] {
			if !n.silent[env.from] {
				n.missed = append(n.missed, env)
			}
			continue
		}
		out, err := n.engines[env.to].OnMessage(env.msg, now)
		if err != nil {
			n.errs = append(n.errs, err)
		}
		n.broadcast(env.to, out)
	}
}

// takeMissed returns the messages engine to missed so far.
func (n *testNet) takeMissed(to int) []*Message {
	var res []*Message
	rest := n.missed[:0]
	for _, env := range n.missed {
		if env.to == to {
			res = append(res, env.msg)
		} else {
			rest = append(rest, env)
		}
	}
	n.missed = rest
	return res
}

// deliver hands msgs to e one by one and returns everything it sends.
func deliver(t *testing.T, e Engine, now time.Time, msgs ...*Message) []*Message {
	var out []*Message
	for _, m := range msgs {
		more, err := e.OnMessage(m, now)
		require.NoError(t, err, "delivering %s", m)
		out = append(out, more...)
	}
	return out
}

func ofType(msgs []*Message, typ MessageType) *Message {
	for _, m := range msgs {
		if m.Type == typ {
			return m
		}
	}
	return nil
}

func (n *testNet) timeout(now time.Time) {
	for i, e := range n.engines {
		if n.silent[i] {
			continue
		}
		n.broadcast(i, e.OnTimeout(now))
	}
	n.run(now)
}

func newByzantineNet(t *testing.T, n int, timeout time.Duration) (*testNet, []*validators.Signer, *validators.ValidatorSet) {
	signers, vs := newSortedSigners(t, n)
	engines := make([]Engine, n)
	for i := range signers {
		e, err := New(ByzantineAgreement, Config{
			Chain:       newTestChain(t, vs),
			Validators:  vs,
			Signer:      signers[i],
			Logger:      common.NewTestEntry(t, common.TestLogLevel),
			ViewTimeout: timeout,
		})
		require.NoError(t, err)
		engines[i] = e
	}
	return newTestNet(t, engines), signers, vs
}

func newAuthorityNet(t *testing.T, n int, interval time.Duration) (*testNet, []*validators.Signer, *validators.ValidatorSet) {
	signers, vs := newSortedSigners(t, n)
	engines := make([]Engine, n)
	for i := range signers {
		e, err := New(AuthorityRotation, Config{
			Chain:         newTestChain(t, vs),
			Validators:    vs,
			Signer:        signers[i],
			Logger:        common.NewTestEntry(t, common.TestLogLevel),
			BlockInterval: interval,
		})
		require.NoError(t, err)
		engines[i] = e
	}
	return newTestNet(t, engines), signers, vs
}

func diffAdding(vs *validators.ValidatorSet) validators.MembershipDiff {
	return validators.MembershipDiff{Add: vs.Validators}
}
