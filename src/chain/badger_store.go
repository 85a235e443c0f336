package chain

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	cm "github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/validators"
	"github.com/sirupsen/logrus"
)

const (
	blockPrefix        = "block"
	validatorSetPrefix = "vset"
)

// BadgerStore persists blocks and validator sets in a Badger database. The
// validator set history is small and is kept in memory as well.
type BadgerStore struct {
	sync.RWMutex

	db            *badger.DB
	path          string
	lastHeight    int64 // -1 when empty
	validatorSets *validatorSetHistory
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger database in %s", path)
	}

	store := &BadgerStore{
		db:            handle,
		path:          path,
		lastHeight:    -1,
		validatorSets: newValidatorSetHistory(),
	}

	if err := store.load(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func blockKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", blockPrefix, height))
}

func validatorSetKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", validatorSetPrefix, height))
}

func parseKeyHeight(prefix string, key []byte) (uint64, error) {
	var height uint64
	if _, err := fmt.Sscanf(string(key), prefix+"_%d", &height); err != nil {
		return 0, errors.Wrapf(err, "malformed key %q", key)
	}
	return height, nil
}

/*******************************************************************************
Store interface
*******************************************************************************/

// GetBlock implements the Store interface.
func (s *BadgerStore) GetBlock(height uint64) (*Block, error) {
	var data []byte
	key := blockKey(height)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Block", string(key))
	}

	block := new(Block)
	if err := block.Unmarshal(data); err != nil {
		return nil, errors.Wrapf(err, "decoding block %d", height)
	}
	return block, nil
}

// SetBlock implements the Store interface. Heights must be contiguous.
func (s *BadgerStore) SetBlock(block *Block) error {
	s.Lock()
	defer s.Unlock()

	next := uint64(s.lastHeight + 1)
	switch {
	case block.Height() < next:
		return cm.NewStoreErr("Block", cm.KeyAlreadyExists, string(blockKey(block.Height())))
	case block.Height() > next:
		return cm.NewStoreErr("Block", cm.SkippedIndex, string(blockKey(block.Height())))
	}

	val, err := block.Marshal()
	if err != nil {
		return errors.Wrapf(err, "encoding block %d", block.Height())
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	//insert [block_height] => [block bytes]
	if err := tx.Set(blockKey(block.Height()), val); err != nil {
		return errors.Wrapf(err, "writing block %d", block.Height())
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "writing block %d", block.Height())
	}

	s.lastHeight = int64(block.Height())
	return nil
}

// LastHeight implements the Store interface.
func (s *BadgerStore) LastHeight() (uint64, error) {
	s.RLock()
	defer s.RUnlock()

	if s.lastHeight < 0 {
		return 0, cm.NewStoreErr("Block", cm.Empty, "")
	}
	return uint64(s.lastHeight), nil
}

// TruncateFrom implements the Store interface.
func (s *BadgerStore) TruncateFrom(height uint64) error {
	s.Lock()
	defer s.Unlock()

	if int64(height) > s.lastHeight {
		return cm.NewStoreErr("Block", cm.PassedIndex, fmt.Sprintf("%d", height))
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	for h := height; int64(h) <= s.lastHeight; h++ {
		if err := tx.Delete(blockKey(h)); err != nil {
			return errors.Wrapf(err, "deleting block %d", h)
		}
	}
	for _, h := range s.validatorSets.dropFrom(height + 1) {
		if err := tx.Delete(validatorSetKey(h)); err != nil {
			return errors.Wrapf(err, "deleting validator set %d", h)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "truncating chain")
	}

	s.lastHeight = int64(height) - 1
	return nil
}

// GetValidatorSet implements the Store interface.
func (s *BadgerStore) GetValidatorSet(height uint64) (*validators.ValidatorSet, error) {
	s.RLock()
	defer s.RUnlock()

	return s.validatorSets.get(height)
}

// SetValidatorSet implements the Store interface.
func (s *BadgerStore) SetValidatorSet(height uint64, vs *validators.ValidatorSet) error {
	s.Lock()
	defer s.Unlock()

	val, err := vs.Marshal()
	if err != nil {
		return errors.Wrapf(err, "encoding validator set %d", height)
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	//insert [vset_height] => [validator slice bytes]
	if err := tx.Set(validatorSetKey(height), val); err != nil {
		return errors.Wrapf(err, "writing validator set %d", height)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "writing validator set %d", height)
	}

	s.validatorSets.set(height, vs)
	return nil
}

// Close closes the underlying Badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath returns the full path of the underlying Badger database directory.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

// load recovers the last height and the validator set history.
func (s *BadgerStore) load() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		prefix := []byte(blockPrefix + "_")
		it.Seek(append(append([]byte{}, prefix...), 0xFF))
		if it.ValidForPrefix(prefix) {
			height, err := parseKeyHeight(blockPrefix, it.Item().KeyCopy(nil))
			if err != nil {
				it.Close()
				return err
			}
			s.lastHeight = int64(height)
		}
		it.Close()

		vit := txn.NewIterator(badger.DefaultIteratorOptions)
		defer vit.Close()

		vprefix := []byte(validatorSetPrefix + "_")
		for vit.Seek(vprefix); vit.ValidForPrefix(vprefix); vit.Next() {
			item := vit.Item()
			height, err := parseKeyHeight(validatorSetPrefix, item.KeyCopy(nil))
			if err != nil {
				return err
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			vs, err := validators.NewValidatorSetFromBytes(data)
			if err != nil {
				return errors.Wrapf(err, "decoding validator set %d", height)
			}
			s.validatorSets.set(height, vs)
		}
		return nil
	})
}

func isDBKeyNotFound(err error) bool {
	return err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
