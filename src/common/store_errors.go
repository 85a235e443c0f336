package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// StoreErrType enumerates the failure modes of chain and validator stores.
type StoreErrType uint32

const (
	// KeyNotFound means nothing is stored under the key.
	KeyNotFound StoreErrType = iota
	// Empty means the store holds no blocks yet.
	Empty
	// KeyAlreadyExists means a different value is already stored under the
	// key.
	KeyAlreadyExists
	// SkippedIndex means the height is beyond the next expected one.
	SkippedIndex
	// PassedIndex means the height is below the current tip.
	PassedIndex
	// NoValidatorSet means no validator set is effective at the height.
	NoValidatorSet
)

// StoreErr ...
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case Empty:
		m = "Empty"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case SkippedIndex:
		m = "Skipped Index"
	case PassedIndex:
		m = "Passed Index"
	case NoValidatorSet:
		m = "No ValidatorSet"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that the cause of an error is of type StoreErr and that its
// code matches the provided StoreErrType.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := errors.Cause(err).(StoreErr)
	return ok && storeErr.errType == t
}
