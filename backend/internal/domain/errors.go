// backend/internal/domain/errors.go

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyKeyList is wrapped by InputError when no keys are available.
	ErrEmptyKeyList = errors.New("key list is empty")
	// ErrNotFound is returned by extractors when the source has no page for a key.
	ErrNotFound = errors.New("not found")
)

// InputError aborts a run before any I/O.
type InputError struct {
	Msg string
	Err error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input: %s: %v", e.Msg, e.Err)
	}
	return "input: " + e.Msg
}

func (e *InputError) Unwrap() error { return e.Err }

// ExtractionError reports a failed fetch for one key.
type ExtractionError struct {
	Source Source
	Key    string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s %q: %v", e.Source, e.Key, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageError reports a failed version write. The entity is left as it was.
type StorageError struct {
	Op     string
	Path   string
	Entity string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s (entity %q): %v", e.Op, e.Path, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CorruptVersionError reports a latest version file that could not be parsed.
type CorruptVersionError struct {
	Path string
	Err  error
}

func (e *CorruptVersionError) Error() string {
	return fmt.Sprintf("corrupt version %s: %v", e.Path, e.Err)
}

func (e *CorruptVersionError) Unwrap() error { return e.Err }
