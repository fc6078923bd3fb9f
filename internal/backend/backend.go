package backend

import (
	"context"
	"errors"
	"fmt"
)

// Generator turns a prompt into free-form text. Implementations return
// *TransientError for failures worth retrying and *FatalError otherwise.
type Generator interface {
	Name() string
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type TransientError struct {
	Backend string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Backend, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

type FatalError struct {
	Backend string
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

func transient(backend string, err error) error {
	return &TransientError{Backend: backend, Err: err}
}

func fatal(backend string, err error) error {
	return &FatalError{Backend: backend, Err: err}
}
