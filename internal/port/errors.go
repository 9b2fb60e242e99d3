package port

import (
	"errors"
	"fmt"
)

// Sentinel errors used across ports.
var (
	ErrProvider         = errors.New("provider error")
	ErrDuplicateID      = errors.New("duplicate record id")
	ErrInvalidTopK      = errors.New("top_k must be positive")
	ErrRecordNotFound   = errors.New("deviation record not found")
	ErrMissingField     = errors.New("missing required field")
	ErrDimensionChanged = errors.New("embedding dimension changed")
)

// DuplicateIDError reports the id that collided on index add.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate record id %q", e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// ProviderError wraps a failure of an embedding or generation backend.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Is makes errors.Is(err, ErrProvider) hold for every ProviderError.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func (e *ProviderError) Unwrap() error { return e.Err }
