package common

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
)

func TestIsStore(t *testing.T) {
	err := NewStoreErr("Block", KeyNotFound, "block_000000004")

	if !IsStore(err, KeyNotFound) {
		t.Fatalf("expected KeyNotFound")
	}
	if IsStore(err, Empty) {
		t.Fatalf("KeyNotFound should not match Empty")
	}
	if !IsStore(errors.Wrap(err, "loading chain"), KeyNotFound) {
		t.Fatalf("wrapped store errors should match")
	}
	if IsStore(fmt.Errorf("other"), KeyNotFound) {
		t.Fatalf("plain errors are not store errors")
	}
	if err.Error() != "Block, block_000000004, Not Found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestNormalizeHex(t *testing.T) {
	for in, want := range map[string]string{
		"0x04ab": "0X04AB",
		"04ab":   "0X04AB",
		"0X04AB": "0X04AB",
	} {
		if got := NormalizeHex(in); got != want {
			t.Fatalf("NormalizeHex(%s) = %s, want %s", in, got, want)
		}
	}

	b, err := DecodeFromString(EncodeToString([]byte{0xde, 0xad}))
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 2 || b[0] != 0xde || b[1] != 0xad {
		t.Fatalf("round trip failed: %x", b)
	}
}
