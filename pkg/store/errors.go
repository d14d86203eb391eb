package store

import (
	"errors"
	"fmt"
)

// WriteError reports a failed Set or Update. Writes are never retried.
type WriteError struct {
	Op      string
	Path    string
	Payload interface{}
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed %s to path=%s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// MissingDataError reports a null value where data must exist.
type MissingDataError struct {
	Path string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing data at path=%s", e.Path)
}

func IsMissingData(err error) bool {
	var me *MissingDataError
	return errors.As(err, &me)
}
