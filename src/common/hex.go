package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EncodeToString returns the UPPERCASE string representation of hexBytes with
// the 0X prefix. Validator public keys are identified by this form.
func EncodeToString(hexBytes []byte) string {
	return fmt.Sprintf("0X%X", hexBytes)
}

// DecodeFromString converts a hex string with 0X prefix to a byte slice.
func DecodeFromString(hexString string) ([]byte, error) {
	if len(hexString) < 2 {
		return nil, fmt.Errorf("hex string too short: %q", hexString)
	}
	return hex.DecodeString(hexString[2:])
}

// NormalizeHex upper-cases a hex string and makes sure it carries the 0X
// prefix, so that keys copied by hand compare equal to derived ones.
func NormalizeHex(hexString string) string {
	return "0X" + strings.TrimPrefix(strings.ToUpper(hexString), "0X")
}
