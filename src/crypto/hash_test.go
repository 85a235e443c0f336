package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestSHA256(t *testing.T) {
	// sha256("")
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := hex.EncodeToString(SHA256(nil)); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestSHA256OfMatchesTwoHashes(t *testing.T) {
	left := SHA256([]byte("left"))
	right := SHA256([]byte("right"))

	if !bytes.Equal(SimpleHashFromTwoHashes(left, right), SHA256Of(left, right)) {
		t.Fatalf("SHA256Of should equal SimpleHashFromTwoHashes for two parts")
	}
	if bytes.Equal(SHA256Of(left, right), SHA256Of(right, left)) {
		t.Fatalf("order of parts should matter")
	}
}
