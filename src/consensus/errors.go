package consensus

import "github.com/pkg/errors"

var (
	// ErrQuorumTimeout is reported when a height does not commit before the
	// round deadline. It triggers a view change and is not terminal.
	ErrQuorumTimeout = errors.New("quorum timeout")
	// ErrMidRound is returned when a membership change is attempted while a
	// height is being agreed on.
	ErrMidRound = errors.New("membership changes are only applied between heights")
	// ErrUnknownSender is returned for messages from non voting identities.
	ErrUnknownSender = errors.New("sender is not a voting validator")
	// ErrBadSignature ...
	ErrBadSignature = errors.New("invalid message signature")
	// ErrFutureHeight is returned for messages too far ahead of the local
	// chain to be buffered. The chain should catch up instead.
	ErrFutureHeight = errors.New("message height is beyond the buffering window")
	// ErrPreparedProof is returned for view changes whose prepared block is
	// not backed by a quorum of Prepare signatures.
	ErrPreparedProof = errors.New("invalid prepared certificate")
	// ErrNewView is returned for PrePrepares above view 0 that do not carry a
	// valid quorum of view changes, or that ignore the block they report.
	ErrNewView = errors.New("invalid new view")
	// ErrLocked is returned when a validator prepared on one block at this
	// height is asked to prepare another without proof of a later lock.
	ErrLocked = errors.New("locked on another block")
)
