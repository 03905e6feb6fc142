// Package plugin provides the built-in plugins of the analysis: auxiliary
// semantic models that inject constraints as the solver discovers new
// reachable code.
package plugin

import (
	"github.com/polaris-analysis/pta"
)

// Well-known class and method names consulted by the built-in plugins.
const (
	ObjectClassName    = "java.lang.Object"
	ClassClassName     = "java.lang.Class"
	StringClassName    = "java.lang.String"
	ThreadClassName    = "java.lang.Thread"
	ThrowableClassName = "java.lang.Throwable"

	StartMethodName         = "start"
	RunMethodName           = "run"
	CurrentThreadMethodName = "currentThread"
	ForNameMethodName       = "forName"
	NewInstanceMethodName   = "newInstance"
)

// Set collects the plugins wired by RegisterDefaults that callers may
// want to consult afterwards. Reflection and Taint are nil unless the
// options enabled them.
type Set struct {
	Timer      *Timer
	Reflection *Reflection
	Taint      *Taint
}

// RegisterDefaults wires the standard plugin set into the solver, driven
// by its options: the timer (registered first so it measures the whole
// run), class initialization, thread and exception modeling, lambda
// desugaring, plus reflection and taint when configured.
func RegisterDefaults(s *pta.Solver) (*Set, error) {
	opts := s.Options()
	set := &Set{Timer: NewTimer()}

	s.Register(set.Timer)
	s.Register(NewClassInit())
	s.Register(NewThread())

	if opts.ReflectionInference != pta.ReflectionOff || opts.ReflectionLog != "" {
		refl, err := NewReflection(opts.ReflectionInference, opts.ReflectionLog)
		if err != nil {
			return nil, err
		}
		set.Reflection = refl
		s.Register(refl)
	}

	s.Register(NewException())
	s.Register(NewLambda())

	if opts.TaintConfig != "" {
		taint, err := NewTaintFromFile(opts.TaintConfig)
		if err != nil {
			return nil, err
		}
		set.Taint = taint
		s.Register(taint)
	}

	return set, nil
}
