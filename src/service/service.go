// Package service exposes a node over HTTP: stats, blocks, validators,
// governance proposals, statement submission, queries over the committed
// graphs, and prometheus metrics.
package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/governance"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/node"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxSubmitBytes bounds the body of a statement submission.
const maxSubmitBytes = 1 << 20

// Node is the part of node.Node the service uses.
type Node interface {
	GetStats() map[string]string
	GetBlock(height uint64) (*chain.Block, error)
	GetValidators() *validators.ValidatorSet
	GetProposals() []governance.Proposal
	SubmitStatements(statements []graph.Statement) (int, error)
	Registry() *prometheus.Registry
}

var _ Node = (*node.Node)(nil)

// Service ...
type Service struct {
	bindAddress string
	node        Node
	store       graph.StatementStore
	limiter     *rate.Limiter
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService returns a Service for n. Queries are answered from store.
// Statement submissions are limited to submitRate per second with bursts of
// submitBurst; a zero rate disables the limit.
func NewService(bindAddress string,
	n Node,
	store graph.StatementStore,
	submitRate float64,
	submitBurst int,
	logger *logrus.Entry) *Service {

	limit := rate.Limit(submitRate)
	if submitRate <= 0 {
		limit = rate.Inf
	}
	if submitBurst <= 0 {
		submitBurst = 1
	}

	service := Service{
		bindAddress: bindAddress,
		node:        n,
		store:       store,
		limiter:     rate.NewLimiter(limit, submitBurst),
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()
	service.server = &http.Server{Addr: bindAddress, Handler: service.mux}

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering semchain API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(http.MethodGet, s.GetStats))
	s.mux.HandleFunc("/block/", s.makeHandler(http.MethodGet, s.GetBlock))
	s.mux.HandleFunc("/validators", s.makeHandler(http.MethodGet, s.GetValidators))
	s.mux.HandleFunc("/proposals", s.makeHandler(http.MethodGet, s.GetProposals))
	s.mux.HandleFunc("/statements", s.makeHandler(http.MethodPost, s.SubmitStatements))
	s.mux.HandleFunc("/query", s.makeHandler(http.MethodGet, s.Query))
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.node.Registry(), promhttp.HandlerOpts{}))
}

func (s *Service) makeHandler(method string, fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		fn(w, r)
	}
}

// Handler returns the API handler, to mount it on another server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve listens on the bind address. This is a blocking call which returns
// when Close is called.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving semchain API")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Close stops the server started by Serve.
func (s *Service) Close() error {
	return s.server.Close()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetBlock ...
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/block/"):]

	height, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		s.logger.WithError(err).Debugf("Parsing block height parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	block, err := s.node.GetBlock(height)
	if err != nil {
		s.logger.WithError(err).Debugf("Retrieving block %d", height)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	data, err := block.Marshal()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// GetValidators ...
func (s *Service) GetValidators(w http.ResponseWriter, r *http.Request) {
	vs := s.node.GetValidators()
	if vs == nil {
		writeJSON(w, []*validators.Validator{})
		return
	}
	writeJSON(w, vs.Validators)
}

type proposalInfo struct {
	ID           string
	Action       string
	Validator    string
	Deadline     uint64
	Proposer     string
	Height       uint64
	Status       string
	VotesFor     int
	VotesAgainst int
}

// GetProposals ...
func (s *Service) GetProposals(w http.ResponseWriter, r *http.Request) {
	res := []proposalInfo{}
	for _, p := range s.node.GetProposals() {
		res = append(res, proposalInfo{
			ID:           p.ID,
			Action:       string(p.Action),
			Validator:    p.Validator.PubKeyHex,
			Deadline:     p.Deadline,
			Proposer:     p.Proposer,
			Height:       p.Height,
			Status:       p.Status.String(),
			VotesFor:     len(p.VotesFor),
			VotesAgainst: len(p.VotesAgainst),
		})
	}
	writeJSON(w, res)
}

// SubmitStatements reads N-Triples from the request body and hands them to
// the node.
func (s *Service) SubmitStatements(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, "too many submissions", http.StatusTooManyRequests)
		return
	}

	statements, err := graph.ParseNTriples(io.LimitReader(r.Body, maxSubmitBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(statements) == 0 {
		http.Error(w, "no statements", http.StatusBadRequest)
		return
	}

	accepted, err := s.node.SubmitStatements(statements)
	if err != nil {
		s.logger.WithError(err).Debug("Rejecting submitted statements")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"submitted": len(statements),
		"accepted":  accepted,
	}).Debug("Statements submitted")

	writeJSONStatus(w, http.StatusAccepted, map[string]int{
		"submitted": len(statements),
		"accepted":  accepted,
	})
}

// Query returns the committed statements matching the s, p and o parameters,
// each written as an N-Triples term. The graph parameter restricts the query
// to one block graph, by name or by height.
func (s *Service) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var pattern graph.Pattern
	for _, part := range []struct {
		name string
		dst  **graph.Term
	}{
		{"s", &pattern.Subject},
		{"p", &pattern.Predicate},
		{"o", &pattern.Object},
	} {
		v := q.Get(part.name)
		if v == "" {
			continue
		}
		term, err := graph.ParseTerm(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("parameter %s: %v", part.name, err), http.StatusBadRequest)
			return
		}
		*part.dst = &term
	}

	graphName := q.Get("graph")
	if height, err := strconv.ParseUint(graphName, 10, 64); err == nil {
		graphName = chain.GraphName(height)
	}

	statements, err := s.store.Query(graphName, pattern)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/n-triples") {
		w.Header().Set("Content-Type", "application/n-triples")
		for _, st := range statements {
			fmt.Fprintln(w, st.String())
		}
		return
	}

	res := make([]string, 0, len(statements))
	for _, st := range statements {
		res = append(res, st.String())
	}
	writeJSON(w, res)
}
