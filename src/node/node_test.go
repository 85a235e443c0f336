package node

import (
	"fmt"
	"testing"
	"time"

	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/consensus"
	"github.com/provchain/semchain/src/crypto/keys"
	"github.com/provchain/semchain/src/governance"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/net"
	"github.com/provchain/semchain/src/node/state"
	"github.com/provchain/semchain/src/proxy/inmem"
	"github.com/provchain/semchain/src/validators"
	"github.com/stretchr/testify/require"
)

const (
	testBlockInterval = 200 * time.Millisecond
	testViewTimeout   = 500 * time.Millisecond
	testWait          = 15 * time.Second
)

type testNode struct {
	node    *Node
	signer  *validators.Signer
	trans   *net.InmemTransport
	proxy   *inmem.InmemProxy
	handler *inmem.StoreHandler
}

func initNodes(t *testing.T, n int, strategy consensus.Strategy) []*testNode {
	signers := make([]*validators.Signer, n)
	transports := make([]*net.InmemTransport, n)
	vals := make([]*validators.Validator, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		signers[i] = validators.NewSigner(key, fmt.Sprintf("node%d", i))

		addr, trans := net.NewInmemTransport("")
		transports[i] = trans
		vals[i] = validators.NewValidator(signers[i].PublicKeyHex(), addr, signers[i].Moniker)
	}
	vs := validators.NewValidatorSet(vals)
	net.ConnectAll(transports)

	genesis, err := chain.NewGenesisBlock(nil, time.Now())
	require.NoError(t, err)

	nodes := make([]*testNode, n)
	for i := 0; i < n; i++ {
		logger := common.NewTestEntry(t, common.TestLogLevel).WithField("node", i)

		c, err := chain.NewChain(chain.NewInmemStore(), genesis, vs, logger)
		require.NoError(t, err)

		engine, err := consensus.New(strategy, consensus.Config{
			Chain:         c,
			Validators:    vs,
			Signer:        signers[i],
			Logger:        logger,
			BlockInterval: testBlockInterval,
			ViewTimeout:   testViewTimeout,
		})
		require.NoError(t, err)

		gov := governance.New(vs, governance.DefaultConfig(), logger)

		handler := inmem.NewStoreHandler(graph.NewInmemStatementStore())
		prox := inmem.NewInmemProxy(handler, logger)

		conf := TestConfig(t)
		conf.Logger = logger
		node := NewNode(conf, signers[i], c, engine, gov, nil, transports[i], prox)
		require.NoError(t, node.Init())

		nodes[i] = &testNode{
			node:    node,
			signer:  signers[i],
			trans:   transports[i],
			proxy:   prox,
			handler: handler,
		}
	}
	return nodes
}

func runNodes(nodes []*testNode) {
	for _, n := range nodes {
		n.node.RunAsync()
	}
}

func shutdownNodes(nodes []*testNode) {
	for _, n := range nodes {
		n.node.Shutdown()
	}
}

func provenance(i int) []graph.Statement {
	batch := graph.IRI(fmt.Sprintf("http://example.org/batch%d", i))
	return []graph.Statement{
		graph.NewStatement(batch, graph.IRI(graph.RDFType), graph.IRI("http://example.org/Batch")),
		graph.NewStatement(batch, graph.IRI("http://example.org/hasOrigin"), graph.IRI("http://example.org/FarmA")),
	}
}

func hasStatement(h *inmem.StoreHandler, s graph.Statement) bool {
	res, err := h.Store().Query("", graph.Pattern{Subject: &s.Subject, Predicate: &s.Predicate, Object: &s.Object})
	return err == nil && len(res) > 0
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(testWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func waitCommitted(t *testing.T, nodes []*testNode, statements []graph.Statement) {
	waitFor(t, "statements to be committed", func() bool {
		for _, n := range nodes {
			for _, s := range statements {
				if !hasStatement(n.handler, s) {
					return false
				}
			}
		}
		return true
	})
}

// checkSameChains verifies that the nodes agree on every block up to the
// lowest of their heights.
func checkSameChains(t *testing.T, nodes []*testNode) {
	min := nodes[0].node.GetHeight()
	for _, n := range nodes[1:] {
		if h := n.node.GetHeight(); h < min {
			min = h
		}
	}
	for h := uint64(0); h <= min; h++ {
		ref, err := nodes[0].node.GetBlock(h)
		require.NoError(t, err)
		for i, n := range nodes[1:] {
			b, err := n.node.GetBlock(h)
			require.NoError(t, err)
			require.Equal(t, ref.Hash(), b.Hash(), "node %d block %d", i+1, h)
		}
	}
}

func testCommit(t *testing.T, strategy consensus.Strategy) {
	nodes := initNodes(t, 4, strategy)
	runNodes(nodes)
	defer shutdownNodes(nodes)

	all := []graph.Statement{}
	for i := 0; i < 5; i++ {
		s := provenance(i)
		all = append(all, s...)
		nodes[i%len(nodes)].proxy.SubmitStatements(s)
	}

	waitCommitted(t, nodes, all)
	checkSameChains(t, nodes)

	for _, n := range nodes {
		stats := n.node.GetStats()
		require.Equal(t, strategy.String(), stats["strategy"])
		require.Equal(t, "4", stats["validators"])
	}
}

func TestAuthorityCommit(t *testing.T) {
	testCommit(t, consensus.AuthorityRotation)
}

func TestByzantineCommit(t *testing.T) {
	testCommit(t, consensus.ByzantineAgreement)
}

func TestByzantineSilentNodeAndCatchUp(t *testing.T) {
	nodes := initNodes(t, 4, consensus.ByzantineAgreement)

	silent := nodes[3]
	silent.trans.DisconnectAll()
	for _, n := range nodes[:3] {
		n.trans.Disconnect(silent.trans.LocalAddr())
	}

	runNodes(nodes)
	defer shutdownNodes(nodes)

	statements := append(provenance(0), provenance(1)...)
	nodes[0].proxy.SubmitStatements(statements)

	waitCommitted(t, nodes[:3], statements)
	require.False(t, hasStatement(silent.handler, statements[0]), "a disconnected node cannot commit")

	// reconnect the silent node; it fetches the missing blocks
	for _, n := range nodes[:3] {
		n.trans.Connect(silent.trans.LocalAddr(), silent.trans)
		silent.trans.Connect(n.trans.LocalAddr(), n.trans)
	}

	waitCommitted(t, nodes, statements)
	checkSameChains(t, nodes)

	require.Equal(t, nodes[0].handler.StateHash(), silent.handler.StateHash())
}

func TestGovernanceAddsValidator(t *testing.T) {
	nodes := initNodes(t, 4, consensus.AuthorityRotation)
	runNodes(nodes)
	defer shutdownNodes(nodes)

	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	candidate := validators.NewValidator(keys.PublicKeyHex(&key.PublicKey), "", "observer")
	candidate.Role = validators.Voter

	proposal, err := governance.NewProposal(governance.ValidatorAddition, candidate, 1000, nodes[0].signer)
	require.NoError(t, err)

	statements := proposal.Statements()
	for _, n := range nodes[:3] {
		vote, err := governance.NewVote(proposal.ID, true, n.signer)
		require.NoError(t, err)
		statements = append(statements, vote.Statements()...)
	}
	nodes[1].proxy.SubmitStatements(statements)

	waitFor(t, "the validator set to grow", func() bool {
		for _, n := range nodes {
			if !n.node.GetValidators().Contains(candidate.PubKeyHex) {
				return false
			}
		}
		return true
	})

	for _, n := range nodes {
		props := n.node.GetProposals()
		require.Len(t, props, 1)
		require.Equal(t, governance.Executed, props[0].Status)
		require.Equal(t, "5", n.node.GetStats()["validators"])
	}
	checkSameChains(t, nodes)
}

func TestSubmitRejectsGateViolations(t *testing.T) {
	nodes := initNodes(t, 1, consensus.AuthorityRotation)
	nodes[0].node.core.gate = graph.NewRuleGate(graph.MaxStatements(1))
	runNodes(nodes)
	defer shutdownNodes(nodes)

	_, err := nodes[0].node.SubmitStatements(provenance(0))
	require.Error(t, err)

	added, err := nodes[0].node.SubmitStatements(provenance(0)[:1])
	require.NoError(t, err)
	require.Equal(t, 1, added)
}

func TestShutdownIsIdempotent(t *testing.T) {
	nodes := initNodes(t, 1, consensus.ByzantineAgreement)
	runNodes(nodes)

	nodes[0].node.Shutdown()
	nodes[0].node.Shutdown()

	require.Equal(t, state.Shutdown, nodes[0].node.GetState())
	_, err := nodes[0].node.SubmitStatements(provenance(0))
	require.Error(t, err)
}
