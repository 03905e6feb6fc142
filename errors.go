package pta

import (
	"errors"
	"fmt"
)

// Error taxonomy of the analysis core. All errors surfaced at the package
// boundary wrap one of these sentinels.
var (
	// ErrConfiguration marks invalid or unknown option values. Raised
	// before any analysis work is done.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrFrontEnd marks inconsistent input from the IR producer. Fatal.
	ErrFrontEnd = errors.New("front end produced inconsistent input")

	// ErrCancelled is returned when the solver is cancelled cooperatively
	// or its wall-clock budget expires. Partial state is not freezable.
	ErrCancelled = errors.New("analysis cancelled")

	// ErrInternal marks a broken solver invariant (a points-to set shrank,
	// the freeze barrier was violated). Always a bug.
	ErrInternal = errors.New("internal invariant violated")
)

// PluginError wraps a failure raised by a plugin hook. Non-fatal plugin
// errors are logged and the analysis continues; a fatal error is rethrown
// after the current worklist pop completes so solver invariants stay
// intact.
type PluginError struct {
	Plugin string
	Hook   string
	Err    error
	Fatal  bool
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }
