package chain

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/provchain/semchain/src/common"
	"github.com/provchain/semchain/src/validators"
)

func newTestBadgerStore(t *testing.T) (*BadgerStore, string) {
	dir, err := ioutil.TempDir("", "semchain_badger")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "db")
	store, err := NewBadgerStore(path, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	return store, dir
}

func testStoreContract(t *testing.T, store Store) {
	if _, err := store.LastHeight(); !common.IsStore(err, common.Empty) {
		t.Fatalf("new store should be Empty, got %v", err)
	}

	c, signers, vs := buildChain(t, store, 3)

	last, err := store.LastHeight()
	if err != nil || last != 3 {
		t.Fatalf("last height should be 3, got %d (%v)", last, err)
	}

	for h := uint64(0); h <= 3; h++ {
		b, err := store.GetBlock(h)
		if err != nil {
			t.Fatalf("block %d: %v", h, err)
		}
		want, _ := c.Block(h)
		if b.Hash() != want.Hash() {
			t.Fatalf("block %d differs", h)
		}
	}

	if _, err := store.GetBlock(4); !common.IsStore(err, common.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}

	tip, _ := store.GetBlock(3)
	if err := store.SetBlock(tip); !common.IsStore(err, common.KeyAlreadyExists) {
		t.Fatalf("expected KeyAlreadyExists, got %v", err)
	}
	skipped := *tip
	skipped.Header.Height = 5
	if err := store.SetBlock(&skipped); !common.IsStore(err, common.SkippedIndex) {
		t.Fatalf("expected SkippedIndex, got %v", err)
	}

	// validator set effective from height 3 onwards
	next := vs.WithRemovedValidator(signers[0].PublicKeyHex())
	if err := store.SetValidatorSet(3, next); err != nil {
		t.Fatal(err)
	}
	if s, _ := store.GetValidatorSet(2); s.Hex() != vs.Hex() {
		t.Fatalf("height 2 should use the genesis set")
	}
	if s, _ := store.GetValidatorSet(10); s.Hex() != next.Hex() {
		t.Fatalf("height 10 should use the set from height 3")
	}

	if err := store.TruncateFrom(2); err != nil {
		t.Fatal(err)
	}
	if last, _ := store.LastHeight(); last != 1 {
		t.Fatalf("last height should be 1 after truncation, not %d", last)
	}
	if _, err := store.GetBlock(2); !common.IsStore(err, common.KeyNotFound) {
		t.Fatalf("truncated block still present")
	}
	if s, _ := store.GetValidatorSet(10); s.Hex() != vs.Hex() {
		t.Fatalf("validator set of truncated heights should be dropped")
	}
}

func TestInmemStore(t *testing.T) {
	testStoreContract(t, NewInmemStore())
}

func TestBadgerStore(t *testing.T) {
	store, dir := newTestBadgerStore(t)
	defer os.RemoveAll(dir)
	defer store.Close()

	testStoreContract(t, store)
}

func TestBadgerStoreRestart(t *testing.T) {
	store, dir := newTestBadgerStore(t)
	defer os.RemoveAll(dir)

	c, signers, vs := buildChain(t, store, 4)
	heavier := validators.NewValidator(signers[0].PublicKeyHex(), "", "heavier")
	heavier.Weight = 3
	next := vs.WithNewValidator(heavier)
	if err := c.SetValidatorSet(5, next); err != nil {
		t.Fatal(err)
	}
	tipHash := c.Tip().Hash()

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBadgerStore(store.StorePath(), common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	loaded, err := LoadChain(reopened, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Height() != 4 || loaded.Tip().Hash() != tipHash {
		t.Fatalf("restart should resume at height 4")
	}
	s, err := loaded.ValidatorSet(5)
	if err != nil {
		t.Fatal(err)
	}
	if s.Hex() != next.Hex() {
		t.Fatalf("validator set history not restored")
	}
	if s0, _ := loaded.ValidatorSet(0); s0.Hex() != vs.Hex() {
		t.Fatalf("genesis validator set not restored")
	}
}
