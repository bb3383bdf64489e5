package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
	ErrRunFinalized        = errors.New("analysis run already finalized")
	ErrSemanticUnavailable = errors.New("semantic retrieval unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// StageError pins a pipeline failure to the stage and block that produced it.
// Block is the sequence number, or 0 when the failure is not block-scoped.
type StageError struct {
	Stage string
	Block int
	Err   error
}

func (e *StageError) Error() string {
	if e.Block > 0 {
		return fmt.Sprintf("stage %s, block %d: %v", e.Stage, e.Block, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
