package pta

import (
	"fmt"
	"time"
)

// Solver variants.
const (
	SolverDefault = "default"
	SolverSimple  = "simple"
)

// Reflection inference strategies.
const (
	ReflectionOff            = "off"
	ReflectionStringConstant = "string-constant"
	ReflectionSolar          = "solar"
)

// Options configures the analysis core. The zero value is not valid; use
// DefaultOptions and override fields.
type Options struct {
	// Solver selects the solver variant: "default" (delta propagation,
	// hybrid sets) or "simple" (reference implementation without delta
	// propagation, used for cross-checking).
	Solver string

	// CS selects the context-sensitivity variant, e.g. "ci", "2-call",
	// "1-obj", "2-type". Aliases: "k-cfa" for "k-call", "k-object" for
	// "k-obj".
	CS string

	// OnlyApp confines reachable-method discovery to application classes:
	// library methods become reachable but their bodies are not expanded.
	OnlyApp bool

	// DistinguishStringConstants gives every string literal its own
	// abstract object (equal literals share one); otherwise all string
	// constants are merged into a single object.
	DistinguishStringConstants bool

	// Heap-model coalescing toggles.
	MergeStringObjects    bool
	MergeStringBuilders   bool
	MergeExceptionObjects bool

	// TaintConfig is the path of a taint specification; non-empty enables
	// the taint plugin.
	TaintConfig string

	// ReflectionInference chooses the reflection-resolution strategy.
	ReflectionInference string

	// ReflectionLog is the path of an externally supplied
	// reflection-resolution log.
	ReflectionLog string

	// Timeout bounds the wall-clock time of Solve; zero means no bound.
	Timeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Solver:              SolverDefault,
		CS:                  "ci",
		ReflectionInference: ReflectionOff,
	}
}

// Validate checks all option values, returning a configuration error for
// the first unknown one.
func (o *Options) Validate() error {
	switch o.Solver {
	case SolverDefault, SolverSimple:
	default:
		return fmt.Errorf("%w: unknown solver %q", ErrConfiguration, o.Solver)
	}

	if _, err := ParseCS(o.CS); err != nil {
		return err
	}

	switch o.ReflectionInference {
	case ReflectionOff, ReflectionStringConstant, ReflectionSolar:
	default:
		return fmt.Errorf("%w: unknown reflection-inference %q",
			ErrConfiguration, o.ReflectionInference)
	}

	if o.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrConfiguration, o.Timeout)
	}

	return nil
}
