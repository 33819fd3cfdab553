package tierkv

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding marks a key or value that could not be encoded or decoded.
	ErrEncoding = errors.New("tierkv: encoding failed")
	// ErrBackendUnavailable marks a failed backend I/O. In-memory state is
	// unchanged (dirty entries stay dirty), so the operation can be retried.
	ErrBackendUnavailable = errors.New("tierkv: backend unavailable")
	// ErrPoisonedShard is returned for every operation on a shard after a
	// panic interrupted a mutation on it.
	ErrPoisonedShard = errors.New("tierkv: shard poisoned")
	// ErrClosed is returned by operations on a closed map.
	ErrClosed = errors.New("tierkv: map closed")
)

// EncodingError reports a codec failure. It matches ErrEncoding and the codec's
// own error with errors.Is.
type EncodingError struct {
	Op  string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("tierkv: %s: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() []error {
	return []error{ErrEncoding, e.Err}
}

// BackendError reports a backend failure. Shard is -1 when no shard was involved.
type BackendError struct {
	Op    string
	Shard int
	Err   error
}

func (e *BackendError) Error() string {
	if e.Shard < 0 {
		return fmt.Sprintf("tierkv: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("tierkv: %s (shard %d): %v", e.Op, e.Shard, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}

func encodingErr(op string, err error) error {
	return &EncodingError{Op: op, Err: err}
}

func backendErr(op string, shard int, err error) error {
	return &BackendError{Op: op, Shard: shard, Err: err}
}

func poisonedErr(shard int) error {
	return fmt.Errorf("%w: shard %d", ErrPoisonedShard, shard)
}
