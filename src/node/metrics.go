package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "semchain"

// metrics are the prometheus collectors of a node. Each node has its own
// registry so that several nodes can run in one process.
type metrics struct {
	registry *prometheus.Registry

	blocksCommitted     prometheus.Counter
	statementsCommitted prometheus.Counter
	statementsSubmitted prometheus.Counter
	messagesRejected    prometheus.Counter
	messagesDropped     prometheus.Counter
	syncRequests        prometheus.Counter
	syncErrors          prometheus.Counter

	height          prometheus.Gauge
	finalizedHeight prometheus.Gauge
	view            prometheus.Gauge
	poolSize        prometheus.Gauge
	validators      prometheus.Gauge
}

func newMetrics() *metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		})
	}

	m := &metrics{
		registry:            prometheus.NewRegistry(),
		blocksCommitted:     counter("blocks_committed_total", "Blocks appended to the local chain."),
		statementsCommitted: counter("statements_committed_total", "Statements committed to the application."),
		statementsSubmitted: counter("statements_submitted_total", "Statements accepted into the pool."),
		messagesRejected:    counter("consensus_messages_rejected_total", "Consensus messages that failed processing."),
		messagesDropped:     counter("consensus_messages_dropped_total", "Outbound consensus messages dropped on a full send queue."),
		syncRequests:        counter("sync_requests_total", "Catch-up requests sent to peers."),
		syncErrors:          counter("sync_errors_total", "Catch-up requests that failed."),
		height:              gauge("chain_height", "Height of the chain tip."),
		finalizedHeight:     gauge("finalized_height", "Height of the last final block."),
		view:                gauge("consensus_view", "Current consensus view or authority slot."),
		poolSize:            gauge("pool_statements", "Statements waiting to be proposed."),
		validators:          gauge("validators", "Size of the active validator set."),
	}

	m.registry.MustRegister(
		m.blocksCommitted,
		m.statementsCommitted,
		m.statementsSubmitted,
		m.messagesRejected,
		m.messagesDropped,
		m.syncRequests,
		m.syncErrors,
		m.height,
		m.finalizedHeight,
		m.view,
		m.poolSize,
		m.validators,
	)
	return m
}
