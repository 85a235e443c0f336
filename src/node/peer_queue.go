package node

import (
	"github.com/provchain/semchain/src/consensus"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
)

const (
	// sendQueueSize bounds the batches waiting for one peer.
	sendQueueSize = 64
	// maxBatchMessages bounds the messages merged into one ConsensusRequest.
	maxBatchMessages = 256
)

type outbound struct {
	msgs   []*consensus.Message
	height uint64
}

// peerQueue delivers consensus messages to one peer, in order, from a single
// goroutine. Batches that pile up while a request is in flight are merged
// into the next request.
type peerQueue struct {
	peer *validators.Validator
	ch   chan outbound
}

func queueKey(peer *validators.Validator) string {
	return peer.PubKeyHex + "@" + peer.NetAddr
}

// enqueue hands msgs to the queue of every peer, starting queues for new
// peers and stopping those of peers that left the set. It is only called from
// the Run loop.
func (n *Node) enqueue(peers []*validators.Validator, msgs []*consensus.Message, height uint64) {
	current := make(map[string]bool, len(peers))
	for _, p := range peers {
		key := queueKey(p)
		current[key] = true

		q, ok := n.queues[key]
		if !ok {
			q = &peerQueue{peer: p, ch: make(chan outbound, sendQueueSize)}
			n.queues[key] = q
			n.senders.Add(1)
			go n.drain(q)
		}

		select {
		case q.ch <- outbound{msgs: msgs, height: height}:
		default:
			n.core.metrics.messagesDropped.Add(float64(len(msgs)))
			n.logger.WithFields(logrus.Fields{
				"peer":     p.Moniker,
				"messages": len(msgs),
			}).Warn("Send queue full; dropping consensus messages")
		}
	}

	for key, q := range n.queues {
		if !current[key] {
			close(q.ch)
			delete(n.queues, key)
		}
	}
}

// drain sends the batches of q until the queue is closed or the node shuts
// down.
func (n *Node) drain(q *peerQueue) {
	defer n.senders.Done()
	for {
		select {
		case ob, ok := <-q.ch:
			if !ok {
				return
			}
			closed := false
		merge:
			for len(ob.msgs) < maxBatchMessages {
				select {
				case more, ok := <-q.ch:
					if !ok {
						closed = true
						break merge
					}
					ob.msgs = append(ob.msgs[:len(ob.msgs):len(ob.msgs)], more.msgs...)
					ob.height = more.height
				default:
					break merge
				}
			}
			n.sendConsensus(q.peer, ob.msgs, ob.height)
			if closed {
				return
			}
		case <-n.shutdownCh:
			return
		}
	}
}
