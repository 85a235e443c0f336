package semchain

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/provchain/semchain/src/chain"
	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/config"
	"github.com/provchain/semchain/src/consensus"
	"github.com/provchain/semchain/src/crypto/keys"
	"github.com/provchain/semchain/src/governance"
	"github.com/provchain/semchain/src/graph"
	"github.com/provchain/semchain/src/net"
	"github.com/provchain/semchain/src/node"
	"github.com/provchain/semchain/src/proxy/inmem"
	"github.com/provchain/semchain/src/service"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Semchain is a struct containing the key parts of a SEMCHAIN node.
//
// Key, Validators, Transport and Gate may be set before Init; the
// corresponding files and defaults are then ignored.
type Semchain struct {
	Config     *config.Config
	Key        *ecdsa.PrivateKey
	Signer     *validators.Signer
	Validators *validators.ValidatorSet
	Gate       graph.Gate
	Store      chain.Store
	Chain      *chain.Chain
	Engine     consensus.Engine
	Governance *governance.Governance
	Transport  net.Transport
	Handler    *inmem.StoreHandler
	Proxy      *inmem.InmemProxy
	Node       *node.Node
	Service    *service.Service

	logger *logrus.Entry
}

// NewSemchain is a factory method to produce a Semchain instance.
func NewSemchain(c *config.Config) *Semchain {
	return &Semchain{
		Config: c,
		logger: c.Logger(),
	}
}

// Init initializes all the components from the configuration. The call
// order matters: the chain needs the validators, the engine needs the chain
// and the key.
func (s *Semchain) Init() error {
	if s.Config.Bootstrap {
		s.Config.Store = true
	}

	if err := s.initKey(); err != nil {
		return err
	}

	if err := s.initValidators(); err != nil {
		return err
	}

	if err := s.initStore(); err != nil {
		return err
	}

	if err := s.initChain(); err != nil {
		return err
	}

	if err := s.initEngine(); err != nil {
		return err
	}

	if err := s.initTransport(); err != nil {
		return err
	}

	if err := s.initNode(); err != nil {
		return err
	}

	if err := s.initService(); err != nil {
		return err
	}

	return nil
}

func (s *Semchain) initKey() error {
	if s.Key == nil {
		keyfile := keys.NewSimpleKeyfile(s.Config.Keyfile())

		privKey, err := keyfile.ReadKey()
		if err != nil {
			s.logger.WithError(err).Warn("Cannot read private key from file")

			privKey, err = Keygen(s.Config.Keyfile())
			if err != nil {
				return errors.Wrap(err, "generating a new private key")
			}

			s.logger.WithField("pub", keys.PublicKeyHex(&privKey.PublicKey)).Info("Created a new key")
		}

		s.Key = privKey
	}

	return nil
}

func (s *Semchain) initValidators() error {
	if s.Validators == nil {
		vs, err := validators.NewJSONValidatorSet(s.Config.DataDir).ValidatorSet()
		if err != nil {
			return errors.Wrapf(err, "reading %s", s.Config.ValidatorsFile())
		}
		if vs == nil || len(vs.Voters()) == 0 {
			return fmt.Errorf("%s should define at least one validator", s.Config.ValidatorsFile())
		}
		s.Validators = vs
	}

	pub := keys.PublicKeyHex(&s.Key.PublicKey)
	moniker := s.Config.Moniker
	if v, ok := s.Validators.Get(pub); ok && moniker == "" {
		moniker = v.Moniker
	}
	s.Signer = validators.NewSigner(s.Key, moniker)

	s.logger.WithFields(logrus.Fields{
		"validators": s.Validators.Len(),
		"id":         s.Signer.ID(),
		"moniker":    moniker,
	}).Debug("VALIDATORS")

	return nil
}

func (s *Semchain) initStore() error {
	if !s.Config.Store {
		s.Store = chain.NewInmemStore()

		s.logger.Debug("created new in-mem store")

		return nil
	}

	dbPath := s.Config.DatabaseDir

	s.logger.WithField("path", dbPath).Debug("Attempting to load or create database")

	if err := os.MkdirAll(dbPath, 0700); err != nil {
		return errors.Wrapf(err, "creating database directory %s", dbPath)
	}

	store, err := chain.NewBadgerStore(dbPath, s.logger)
	if err != nil {
		return err
	}
	s.Store = store

	return nil
}

func (s *Semchain) initChain() error {
	_, err := s.Store.LastHeight()
	empty := common.IsStore(err, common.Empty)
	if err != nil && !empty {
		return errors.Wrap(err, "reading the store")
	}

	if !empty {
		if !s.Config.Bootstrap {
			return fmt.Errorf("database %s already holds a chain; start with --bootstrap to load it", s.Store.StorePath())
		}

		c, err := chain.LoadChain(s.Store, s.logger)
		if err != nil {
			return err
		}
		s.Chain = c

		s.logger.WithField("height", c.Height()).Debug("loaded chain from existing database")

		return nil
	}

	genesis, err := chain.NewGenesisBlock(nil, s.Config.GenesisTimestamp())
	if err != nil {
		return err
	}

	c, err := chain.NewChain(s.Store, genesis, s.Validators, s.logger)
	if err != nil {
		return err
	}
	s.Chain = c

	s.logger.WithField("genesis", genesis.Hash()).Debug("created new chain")

	return nil
}

func (s *Semchain) initEngine() error {
	strategy, err := s.Config.Strategy()
	if err != nil {
		return err
	}

	if s.Gate == nil {
		s.Gate = graph.NewRuleGate(graph.MaxStatements(s.Config.MaxBlockStatements))
	}

	// Governance replays the chain from genesis, the engine resumes with the
	// set in force at the next height.
	genesisSet, err := s.Chain.ValidatorSet(0)
	if err != nil {
		return errors.Wrap(err, "loading genesis validator set")
	}
	current, err := s.Chain.ValidatorSet(s.Chain.Height() + 1)
	if err != nil {
		return errors.Wrap(err, "loading current validator set")
	}

	s.Governance = governance.New(genesisSet, governance.DefaultConfig(), s.logger.WithField("ns", "governance"))

	engine, err := consensus.New(strategy, consensus.Config{
		Chain:             s.Chain,
		Validators:        current,
		Signer:            s.Signer,
		Gate:              s.Gate,
		Logger:            s.logger.WithField("ns", strategy.String()),
		BlockInterval:     s.Config.BlockInterval,
		ConfirmationDepth: s.Config.ConfirmationDepth,
		ViewTimeout:       s.Config.ViewTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "creating consensus engine")
	}
	s.Engine = engine

	return nil
}

func (s *Semchain) initTransport() error {
	if s.Transport != nil {
		return nil
	}

	transport, err := net.NewTCPTransport(
		s.Config.BindAddr,
		s.Config.AdvertiseAddr,
		s.Config.MaxPool,
		s.Config.TCPTimeout,
		2*s.Config.TCPTimeout,
		s.logger,
	)
	if err != nil {
		return err
	}

	s.Transport = transport

	return nil
}

func (s *Semchain) initNode() error {
	s.Handler = inmem.NewStoreHandler(graph.NewInmemStatementStore())
	s.Proxy = inmem.NewInmemProxy(s.Handler, s.logger)

	s.Node = node.NewNode(
		s.Config.NodeConfig(),
		s.Signer,
		s.Chain,
		s.Engine,
		s.Governance,
		s.Gate,
		s.Transport,
		s.Proxy,
	)

	if err := s.Node.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize node")
	}

	return nil
}

func (s *Semchain) initService() error {
	if !s.Config.NoService {
		s.Service = service.NewService(
			s.Config.ServiceAddr,
			s.Node,
			s.Handler.Store(),
			s.Config.SubmitRate,
			s.Config.SubmitBurst,
			s.logger,
		)
	}
	return nil
}

// Run starts the HTTP service and the node, and blocks until Shutdown.
func (s *Semchain) Run() {
	if s.Service != nil {
		go s.Service.Serve()
	}

	s.Node.Run()
}

// RunAsync is Run in a separate goroutine.
func (s *Semchain) RunAsync() {
	if s.Service != nil {
		go s.Service.Serve()
	}

	s.Node.RunAsync()
}

// Shutdown stops the node, the service, and closes the store.
func (s *Semchain) Shutdown() error {
	var err error

	if s.Node != nil {
		s.Node.Shutdown()
	}

	if s.Service != nil {
		err = multierr.Append(err, errors.Wrap(s.Service.Close(), "closing service"))
	}

	if s.Store != nil {
		err = multierr.Append(err, errors.Wrap(s.Store.Close(), "closing store"))
	}

	return err
}

// Keygen creates a new private key and writes it to keyfile, unless a key is
// already there.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(keyfile); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", keyfile)
	}

	privKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keys.NewSimpleKeyfile(keyfile).WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
