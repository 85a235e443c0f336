package node

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/consensus"
	"github.com/provchain/semchain/src/governance"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/net"
	"github.com/provchain/semchain/src/node/state"
	"github.com/provchain/semchain/src/proxy"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
)

// stateChangeNotifier is implemented by proxies that want to hear about node
// state changes.
type stateChangeNotifier interface {
	OnStateChanged(state.State) error
}

type syncResult struct {
	peer  *validators.Validator
	from  uint64
	limit int
	resp  net.SyncResponse
	err   error
}

// Node defines a semchain node
type Node struct {
	state.Manager

	conf   *Config
	logger *logrus.Entry

	signer *validators.Signer

	// core is only touched by the Run loop
	core *Core

	trans net.Transport
	netCh <-chan net.RPC

	proxy    proxy.AppProxy
	submitCh chan []graph.Statement

	// syncCh receives the outcome of catch-up requests, behindCh the peers
	// that reported a longer chain, and queryCh closures run against core on
	// behalf of other goroutines.
	syncCh   chan syncResult
	behindCh chan *validators.Validator
	queryCh  chan func(*Core)

	// queues holds one send queue per peer; only the Run loop touches it
	queues  map[string]*peerQueue
	senders sync.WaitGroup

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	loop         sync.WaitGroup

	controlTimer *ControlTimer

	syncing  bool
	lastSync time.Time
	start    time.Time
}

// NewNode is a factory method that returns a Node instance
func NewNode(conf *Config,
	signer *validators.Signer,
	c *chain.Chain,
	engine consensus.Engine,
	gov *governance.Governance,
	gate graph.Gate,
	trans net.Transport,
	proxy proxy.AppProxy,
) *Node {

	logger := conf.Logger.WithFields(logrus.Fields{
		"this_id": signer.ID(),
		"moniker": signer.Moniker,
	})
	coreConf := *conf
	coreConf.Logger = logger

	node := Node{
		conf:         conf,
		logger:       logger,
		signer:       signer,
		core:         NewCore(signer, c, engine, gov, proxy, gate, &coreConf),
		trans:        trans,
		netCh:        trans.Consumer(),
		proxy:        proxy,
		submitCh:     proxy.SubmitCh(),
		syncCh:       make(chan syncResult),
		behindCh:     make(chan *validators.Validator, 1),
		queryCh:      make(chan func(*Core)),
		queues:       make(map[string]*peerQueue),
		shutdownCh:   make(chan struct{}),
		controlTimer: NewRandomControlTimer(),
	}

	return &node
}

// Init replays the stored chain into the application.
func (n *Node) Init() error {
	if err := n.core.Bootstrap(); err != nil {
		return err
	}
	if !n.core.Validators().Contains(n.signer.PublicKeyHex()) {
		n.logger.Info("Not in the validator set; following the chain only")
	}
	n.setState(state.Running)
	return nil
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync() {
	n.loop.Add(1)
	go func() {
		defer n.loop.Done()
		n.run()
	}()
}

// Run invokes the main loop of the node and blocks until Shutdown.
func (n *Node) Run() {
	n.loop.Add(1)
	defer n.loop.Done()
	n.run()
}

func (n *Node) run() {
	n.start = time.Now()

	go n.controlTimer.Run(n.conf.HeartbeatTimeout)

	for {
		select {
		case rpc := <-n.netCh:
			n.processRPC(rpc)
		case statements := <-n.submitCh:
			if _, err := n.addStatements(statements, true); err != nil {
				n.logger.WithError(err).Warn("Rejecting submitted statements")
			}
		case res := <-n.syncCh:
			n.processSyncResult(res)
		case peer := <-n.behindCh:
			n.catchUp(peer)
		case f := <-n.queryCh:
			f(n.core)
		case <-n.controlTimer.tickCh:
			n.heartbeat(time.Now())
			n.controlTimer.Reset(n.conf.HeartbeatTimeout)
		case <-n.shutdownCh:
			return
		}
	}
}

// heartbeat proposes from the pool, fires consensus timeouts, and starts a
// catch-up when nothing was committed for a while.
func (n *Node) heartbeat(now time.Time) {
	if n.GetState() == state.Running {
		msgs, err := n.core.Propose(now)
		if err != nil {
			n.logger.WithError(err).Error("Proposing")
		}
		n.broadcast(msgs)
	}

	msgs, err := n.core.Timeout(now)
	if err != nil {
		n.logger.WithError(err).Error("Processing timeout")
	}
	n.broadcast(msgs)

	last := n.core.LastCommit()
	if n.lastSync.After(last) {
		last = n.lastSync
	}
	if !n.syncing && now.Sub(last) > n.conf.SyncInterval {
		n.catchUp(n.core.peerSelector.Next())
	}
}

func (n *Node) addStatements(statements []graph.Statement, forward bool) (int, error) {
	added, err := n.core.AddStatements(statements)
	if err != nil {
		return 0, err
	}
	if forward && added > 0 {
		n.forward(statements)
	}
	return added, nil
}

// catchUp asks peer for the blocks above the local finalized height, so that
// a diverging non-final branch shows up in the response.
func (n *Node) catchUp(peer *validators.Validator) {
	if peer == nil || n.syncing {
		return
	}

	from := n.core.FinalizedHeight() + 1
	limit := n.conf.SyncLimit

	launched := n.GoFunc(func() {
		resp, err := n.requestSync(peer.NetAddr, from, limit)
		select {
		case n.syncCh <- syncResult{peer: peer, from: from, limit: limit, resp: resp, err: err}:
		case <-n.shutdownCh:
		}
	})
	if !launched {
		return
	}

	n.syncing = true
	n.lastSync = time.Now()
	n.core.syncRequests++
	n.core.metrics.syncRequests.Inc()
	n.core.peerSelector.UpdateLast(peer.PubKeyHex)
	n.setState(state.CatchingUp)
}

func (n *Node) processSyncResult(res syncResult) {
	n.syncing = false
	defer func() {
		if !n.syncing && n.GetState() == state.CatchingUp {
			n.setState(state.Running)
		}
	}()

	logger := n.logger.WithFields(logrus.Fields{
		"peer": res.peer.Moniker,
		"from": res.from,
	})

	if res.err != nil {
		n.core.syncErrors++
		n.core.metrics.syncErrors.Inc()
		logger.WithError(res.err).Debug("Sync request failed")
		return
	}

	applied, err := n.core.SyncBlocks(res.resp.Blocks, time.Now())
	if err != nil {
		n.core.syncErrors++
		n.core.metrics.syncErrors.Inc()
		logger.WithError(err).Warn("Applying synced blocks")
	}

	logger.WithFields(logrus.Fields{
		"received":    len(res.resp.Blocks),
		"applied":     applied,
		"peer_height": res.resp.Height,
		"height":      n.core.Height(),
	}).Debug("Synced")

	if err == nil && applied > 0 && res.resp.Height > n.core.Height() {
		n.catchUp(res.peer)
	}
}

// broadcast queues consensus messages for every other validator.
func (n *Node) broadcast(msgs []*consensus.Message) {
	if len(msgs) == 0 {
		return
	}
	n.enqueue(n.core.peerSelector.Peers(), msgs, n.core.Height())
}

func (n *Node) sendConsensus(peer *validators.Validator, msgs []*consensus.Message, height uint64) {
	resp, err := n.requestConsensus(peer.NetAddr, msgs)
	if err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"peer":     peer.Moniker,
			"messages": len(msgs),
		}).Debug("requestConsensus()")
		return
	}
	if resp.Height > height+1 {
		select {
		case n.behindCh <- peer:
		default:
		}
	}
}

// forward gossips statements to every other validator.
func (n *Node) forward(statements []graph.Statement) {
	for _, p := range n.core.peerSelector.Peers() {
		peer := p
		n.GoFunc(func() {
			if _, err := n.requestSubmit(peer.NetAddr, statements); err != nil {
				n.logger.WithError(err).WithField("peer", peer.Moniker).Debug("requestSubmit()")
			}
		})
	}
}

func (n *Node) setState(s state.State) {
	if n.GetState() == s {
		return
	}
	n.SetState(s)
	if notifier, ok := n.proxy.(stateChangeNotifier); ok {
		if err := notifier.OnStateChanged(s); err != nil {
			n.logger.WithError(err).Error("Notifying state change")
		}
	}
}

// Shutdown stops the loop, waits for outstanding requests and closes the
// transport. It is safe to call more than once.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.SetState(state.Shutdown)
		close(n.shutdownCh)
		n.controlTimer.Shutdown()

		n.loop.Wait()
		n.senders.Wait()
		n.WaitRoutines()

		if err := n.trans.Close(); err != nil {
			n.logger.WithError(err).Error("Closing transport")
		}
	})
}

/*******************************************************************************
Queries
*******************************************************************************/

// query runs f on the loop goroutine and waits for it. It reports false if the
// node is shut down.
func (n *Node) query(f func(c *Core)) bool {
	done := make(chan struct{})
	select {
	case n.queryCh <- func(c *Core) { f(c); close(done) }:
	case <-n.shutdownCh:
		return false
	}
	<-done
	return true
}

var errShutdown = fmt.Errorf("node is shut down")

// SubmitStatements adds statements to the pool and gossips them. It returns
// the number of statements that were new.
func (n *Node) SubmitStatements(statements []graph.Statement) (int, error) {
	var (
		added int
		err   error
	)
	if !n.query(func(c *Core) { added, err = n.addStatements(statements, true) }) {
		return 0, errShutdown
	}
	return added, err
}

// GetBlock ...
func (n *Node) GetBlock(height uint64) (*chain.Block, error) {
	var (
		b   *chain.Block
		err error
	)
	if !n.query(func(c *Core) { b, err = c.Block(height) }) {
		return nil, errShutdown
	}
	return b, err
}

// GetBlocks returns up to limit blocks starting at height from.
func (n *Node) GetBlocks(from uint64, limit int) ([]*chain.Block, error) {
	var (
		blocks []*chain.Block
		err    error
	)
	if !n.query(func(c *Core) { blocks, err = c.Blocks(from, limit) }) {
		return nil, errShutdown
	}
	return blocks, err
}

// GetHeight ...
func (n *Node) GetHeight() uint64 {
	var h uint64
	n.query(func(c *Core) { h = c.Height() })
	return h
}

// GetValidators returns the active validator set.
func (n *Node) GetValidators() *validators.ValidatorSet {
	var vs *validators.ValidatorSet
	n.query(func(c *Core) { vs = c.Validators() })
	return vs
}

// GetProposals returns copies of the governance proposals.
func (n *Node) GetProposals() []governance.Proposal {
	res := []governance.Proposal{}
	n.query(func(c *Core) {
		for _, p := range c.Governance().Proposals() {
			res = append(res, *p)
		}
	})
	return res
}

// Registry returns the node's metrics registry.
func (n *Node) Registry() *prometheus.Registry {
	return n.core.metrics.registry
}

// ID ...
func (n *Node) ID() uint32 {
	return n.signer.ID()
}

// GetStats returns information about the node.
func (n *Node) GetStats() map[string]string {
	stats := map[string]string{}
	n.query(func(c *Core) {
		timeElapsed := time.Since(n.start)

		stats = map[string]string{
			"height":                strconv.FormatUint(c.Height(), 10),
			"finalized_height":      strconv.FormatUint(c.FinalizedHeight(), 10),
			"view":                  strconv.FormatUint(c.View(), 10),
			"strategy":              c.Strategy().String(),
			"pool":                  strconv.Itoa(c.PoolSize()),
			"validators":            strconv.Itoa(c.Validators().Len()),
			"proposals":             strconv.Itoa(len(c.Governance().ActiveProposals())),
			"committed_statements":  strconv.Itoa(c.CommittedStatements()),
			"median_block_interval": c.MedianBlockInterval().String(),
			"state_hash":            c.StateHash().String(),
			"state":                 n.GetState().String(),
			"sync_rate":             strconv.FormatFloat(n.SyncRate(c), 'f', 2, 64),
			"time_elapsed":          strconv.FormatFloat(timeElapsed.Seconds(), 'f', 2, 64),
			"moniker":               n.signer.Moniker,
			"id":                    fmt.Sprint(n.signer.ID()),
		}
	})
	return stats
}

// SyncRate is the share of catch-up requests that succeeded.
func (n *Node) SyncRate(c *Core) float64 {
	if c.syncRequests == 0 {
		return 1
	}
	return 1 - float64(c.syncErrors)/float64(c.syncRequests)
}
