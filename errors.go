package cas

import (
	stderrs "errors"
	"fmt"
)

// ErrNotFound is the error returned
// when a Getter tries to access a non-existent hash,
// or when a required shard is absent during reconstruction.
var ErrNotFound = stderrs.New("not found")

// IsNotFound tells whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return stderrs.Is(err, ErrNotFound)
}

// MismatchError is the error returned when reassembled,
// reconstructed, or pushed bytes fail to match their claimed hash.
// It is always surfaced, never silently repaired.
type MismatchError struct {
	Expected, Actual Hash
}

func (e MismatchError) Error() string {
	return fmt.Sprintf("hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// IsMismatch tells whether err is or wraps a MismatchError.
func IsMismatch(err error) bool {
	var m MismatchError
	return stderrs.As(err, &m)
}

// InvalidDataError is the error returned for structurally invalid input:
// too few shards to reconstruct, or an unrecognized encoding label.
type InvalidDataError struct {
	Reason string
}

func (e InvalidDataError) Error() string {
	return "invalid data: " + e.Reason
}

// IsInvalidData tells whether err is or wraps an InvalidDataError.
func IsInvalidData(err error) bool {
	var i InvalidDataError
	return stderrs.As(err, &i)
}
