package repositories

import (
	"errors"
	"fmt"
)

type ErrNotFound struct {
	GameSpecID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("game spec %s not found", e.GameSpecID)
}

func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
