package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTxDone is returned when a BlockTx is used after Commit or Rollback.
	ErrTxDone = errors.New("block transaction already finished")
)

// UnresolvedError reports dimension keys that could not be resolved to rows.
type UnresolvedError struct {
	Dimension string
	Keys      []string
	Err       error
}

func (e *UnresolvedError) Error() string {
	msg := fmt.Sprintf("unresolved %s: %s", e.Dimension, strings.Join(e.Keys, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnresolvedError) Unwrap() error {
	return e.Err
}
