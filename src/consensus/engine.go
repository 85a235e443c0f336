package consensus

import (
	"fmt"
	"time"

	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
)

// Engine is the contract shared by the consensus strategies. None of the
// methods are safe for concurrent use.
type Engine interface {
	// Strategy identifies the engine.
	Strategy() Strategy
	// Propose builds a candidate block from statements when it is the local
	// validator's turn. It returns a nil block otherwise.
	Propose(statements []graph.Statement, now time.Time) (*chain.Block, []*Message, error)
	// OnMessage processes a message from a peer and returns the messages to
	// broadcast in response.
	OnMessage(msg *Message, now time.Time) ([]*Message, error)
	// OnTimeout is called when Deadline has elapsed.
	OnTimeout(now time.Time) []*Message
	// Deadline is the next time at which OnTimeout must be called. A zero
	// time means no deadline is armed.
	Deadline() time.Time
	// SyncBlock appends a block fetched from a peer after checking it
	// according to the strategy's finality rules.
	SyncBlock(b *chain.Block, now time.Time) error
	// FinalizedHeight is the height of the last final block.
	FinalizedHeight() uint64
	// View returns the current view, or slot for authority rotation.
	View() uint64
	// Validators returns the active validator set.
	Validators() *validators.ValidatorSet
	// ApplyMembershipChange replaces the validator set. It must only be
	// called between heights.
	ApplyMembershipChange(diff validators.MembershipDiff) error
	// TakeCommitted returns the blocks appended since the last call.
	TakeCommitted() []*chain.Block
}

// Config holds the collaborators and parameters of an engine.
type Config struct {
	Chain      *chain.Chain
	Validators *validators.ValidatorSet
	Signer     *validators.Signer
	Gate       graph.Gate
	Logger     *logrus.Entry

	// BlockInterval is the length of an authority slot.
	BlockInterval time.Duration
	// ConfirmationDepth is the number of descendants an authority block
	// needs before it is final.
	ConfirmationDepth uint64
	// MaxFutureDrift bounds how far ahead of local time an authority block
	// timestamp may be.
	MaxFutureDrift time.Duration
	// ViewTimeout is how long a byzantine height may take before a view
	// change is requested.
	ViewTimeout time.Duration
}

// Default parameters.
const (
	DefaultBlockInterval  = 5 * time.Second
	DefaultMaxFutureDrift = 30 * time.Second
	DefaultViewTimeout    = 10 * time.Second
	// FutureHeightWindow is how many heights ahead messages are buffered.
	FutureHeightWindow = 16
)

func (c *Config) setDefaults() {
	if c.BlockInterval <= 0 {
		c.BlockInterval = DefaultBlockInterval
	}
	if c.MaxFutureDrift <= 0 {
		c.MaxFutureDrift = DefaultMaxFutureDrift
	}
	if c.ViewTimeout <= 0 {
		c.ViewTimeout = DefaultViewTimeout
	}
	if c.Logger == nil {
		c.Logger = logrus.NewEntry(logrus.New())
	}
}

func (c *Config) check() error {
	if c.Chain == nil {
		return fmt.Errorf("missing chain")
	}
	if c.Validators == nil || len(c.Validators.Voters()) == 0 {
		return fmt.Errorf("missing validators")
	}
	if c.Signer == nil {
		return fmt.Errorf("missing signer")
	}
	return nil
}

// New builds the engine for a strategy.
func New(strategy Strategy, conf Config) (Engine, error) {
	switch strategy {
	case AuthorityRotation:
		return NewAuthorityEngine(conf)
	case ByzantineAgreement:
		return NewByzantineEngine(conf)
	default:
		return nil, fmt.Errorf("unknown consensus strategy %d", strategy)
	}
}
