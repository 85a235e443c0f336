package inmem

import (
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/node/state"
	"github.com/provchain/semchain/src/proxy"
	"github.com/sirupsen/logrus"
)

// InmemProxy implements the AppProxy interface natively
type InmemProxy struct {
	handler  proxy.ProxyHandler
	submitCh chan []graph.Statement
	logger   *logrus.Entry
}

// NewInmemProxy instantiates an InmemProxy from a set of handlers.
// If no logger, a new one is created
func NewInmemProxy(handler proxy.ProxyHandler,
	logger *logrus.Entry) *InmemProxy {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &InmemProxy{
		handler:  handler,
		submitCh: make(chan []graph.Statement),
		logger:   logger,
	}
}

/*******************************************************************************
* SubmitStatements                                                             *
*******************************************************************************/

// SubmitStatements is called by the App to submit statements to the node. It
// blocks until the node takes them.
func (p *InmemProxy) SubmitStatements(statements []graph.Statement) {
	s := make([]graph.Statement, len(statements))
	copy(s, statements)

	p.submitCh <- s
}

/*******************************************************************************
* Implement AppProxy Interface                                                 *
*******************************************************************************/

// SubmitCh returns the channel of submitted statements
func (p *InmemProxy) SubmitCh() chan []graph.Statement {
	return p.submitCh
}

// CommitBlock calls the commitHandler
func (p *InmemProxy) CommitBlock(block *chain.Block) (proxy.CommitResponse, error) {
	commitResponse, err := p.handler.CommitHandler(block)

	p.logger.WithFields(logrus.Fields{
		"height":     block.Height(),
		"statements": block.Graph.Len(),
		"state_hash": commitResponse.StateHash,
		"err":        err,
	}).Debug("InmemProxy.CommitBlock")

	return commitResponse, err
}

// OnStateChanged forwards a node state change to the handler.
func (p *InmemProxy) OnStateChanged(s state.State) error {
	return p.handler.StateChangeHandler(s)
}
