package node

import (
	"time"

	"github.com/pkg/errors"
	"github.com/provchain/semchain/src/consensus"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/net"
	"github.com/sirupsen/logrus"
)

func (n *Node) requestConsensus(target string, msgs []*consensus.Message) (net.ConsensusResponse, error) {
	args := net.ConsensusRequest{
		FromID:   n.signer.ID(),
		Messages: msgs,
	}

	var out net.ConsensusResponse
	err := n.trans.Consensus(target, &args, &out)
	return out, err
}

func (n *Node) requestSync(target string, from uint64, limit int) (net.SyncResponse, error) {
	args := net.SyncRequest{
		FromID:     n.signer.ID(),
		FromHeight: from,
		Limit:      limit,
	}

	var out net.SyncResponse
	err := n.trans.Sync(target, &args, &out)
	return out, err
}

func (n *Node) requestSubmit(target string, statements []graph.Statement) (net.SubmitResponse, error) {
	args := net.SubmitRequest{
		FromID:     n.signer.ID(),
		Statements: statements,
	}

	var out net.SubmitResponse
	err := n.trans.Submit(target, &args, &out)
	return out, err
}

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.ConsensusRequest:
		n.processConsensusRequest(rpc, cmd)
	case *net.SyncRequest:
		n.processSyncRequest(rpc, cmd)
	case *net.SubmitRequest:
		n.processSubmitRequest(rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, errors.New("unexpected command"))
	}
}

func (n *Node) processConsensusRequest(rpc net.RPC, cmd *net.ConsensusRequest) {
	if len(cmd.Messages) == 0 {
		rpc.Respond(nil, errors.New("empty consensus request"))
		return
	}

	var out []*consensus.Message
	success := true
	for _, msg := range cmd.Messages {
		if msg == nil {
			success = false
			continue
		}

		msgs, err := n.core.ProcessMessage(msg, time.Now())
		out = append(out, msgs...)
		if err != nil {
			success = false
			n.logger.WithError(err).WithFields(logrus.Fields{
				"from_id": cmd.FromID,
				"message": msg.String(),
			}).Debug("Rejected consensus message")
		}

		if errors.Cause(err) == consensus.ErrFutureHeight || msg.Height > n.core.Height()+1 {
			if peer, ok := n.core.Validators().Get(msg.SenderID); ok {
				n.catchUp(peer)
			}
		}
	}

	rpc.Respond(&net.ConsensusResponse{
		FromID:          n.signer.ID(),
		Success:         success,
		Height:          n.core.Height(),
		FinalizedHeight: n.core.FinalizedHeight(),
	}, nil)

	n.broadcast(out)
}

func (n *Node) processSyncRequest(rpc net.RPC, cmd *net.SyncRequest) {
	limit := cmd.Limit
	if limit <= 0 || limit > n.conf.SyncLimit {
		limit = n.conf.SyncLimit
	}

	resp := &net.SyncResponse{
		FromID:          n.signer.ID(),
		Height:          n.core.Height(),
		FinalizedHeight: n.core.FinalizedHeight(),
	}

	blocks, err := n.core.Blocks(cmd.FromHeight, limit)
	if err != nil {
		n.logger.WithError(err).WithField("from", cmd.FromHeight).Error("Reading blocks for sync")
		rpc.Respond(nil, err)
		return
	}
	resp.Blocks = blocks

	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"from":    cmd.FromHeight,
		"blocks":  len(blocks),
	}).Debug("Responding to SyncRequest")

	rpc.Respond(resp, nil)
}

func (n *Node) processSubmitRequest(rpc net.RPC, cmd *net.SubmitRequest) {
	added, err := n.addStatements(cmd.Statements, false)
	if err != nil {
		rpc.Respond(nil, err)
		return
	}
	rpc.Respond(&net.SubmitResponse{
		FromID:   n.signer.ID(),
		Accepted: added,
	}, nil)
}
