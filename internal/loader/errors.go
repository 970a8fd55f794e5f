package loader

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrModuleNotFound is matched by every "cannot find module" error.
var ErrModuleNotFound = errors.New("cannot find module")

// NotFoundError reports a module name that neither the registry nor the
// working directory could resolve.
type NotFoundError struct {
	Module string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cannot find module '%s'", e.Module)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrModuleNotFound
}

// LoadError wraps a module resolution failure with a message naming the
// option being loaded.
type LoadError struct {
	Module string
	Msg    string
	Err    error
}

func (e *LoadError) Error() string { return e.Msg }

func (e *LoadError) Unwrap() error { return e.Err }

// TypeError reports a loaded or generated value of the wrong shape.
type TypeError struct {
	Option string
	Module string
	Msg    string
}

func (e *TypeError) Error() string { return e.Msg }

// NewTypeError builds a TypeError for option without a module.
func NewTypeError(option, msg string) *TypeError {
	return &TypeError{Option: option, Msg: msg}
}
