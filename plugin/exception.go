package plugin

import (
	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/ir"
)

// Exception threads thrown objects along catch-handler chains as a side
// subgraph of the pointer flow graph: a throw flows into every handler of
// the same method (filtered by the handler's type) and into the method's
// uncaught pointer; call edges connect the callee's uncaught pointer to
// the caller's handlers.
type Exception struct {
	pta.NopPlugin

	s        *pta.Solver
	uncaught map[*ir.Method]*ir.Var
}

func NewException() *Exception {
	return &Exception{uncaught: make(map[*ir.Method]*ir.Var)}
}

func (e *Exception) OnStart(s *pta.Solver) {
	e.s = s
}

// uncaughtVar lazily declares the synthetic variable collecting the
// exceptions escaping m.
func (e *Exception) uncaughtVar(m *ir.Method) *ir.Var {
	if v, found := e.uncaught[m]; found {
		return v
	}
	var typ ir.Type = m.Class
	if t := e.s.Hierarchy().Lookup(ThrowableClassName); t != nil {
		typ = t
	}
	v := m.NewVar("<uncaught>", typ)
	e.uncaught[m] = v
	return v
}

func (e *Exception) OnNewCSMethod(cm *pta.CSMethod) {
	m := cm.Method
	csm := e.s.CSManager()

	var catches []*ir.Catch
	hasThrow := false
	for _, st := range m.Body {
		switch st := st.(type) {
		case *ir.Catch:
			catches = append(catches, st)
		case *ir.Throw:
			hasThrow = true
		}
	}
	if !hasThrow && len(catches) == 0 {
		return
	}

	uncaught := csm.CSVar(cm.Ctx, e.uncaughtVar(m))
	for _, st := range m.Body {
		throw, ok := st.(*ir.Throw)
		if !ok {
			continue
		}
		thrown := csm.CSVar(cm.Ctx, throw.Var)
		for _, c := range catches {
			e.s.AddPFGEdge(thrown, csm.CSVar(cm.Ctx, c.Var), pta.EdgeThrow, c.Type)
		}
		e.s.AddPFGEdge(thrown, uncaught, pta.EdgeThrow, nil)
	}
}

func (e *Exception) OnNewCallEdge(edge *pta.CallEdge) {
	callee := edge.Callee
	if _, found := e.uncaught[callee.Method]; !found {
		// Nothing can escape a method that neither throws nor calls; for a
		// method that calls, what escapes its own callees is wired into
		// its uncaught pointer as those edges appear.
		if !methodThrows(callee.Method) {
			return
		}
	}

	csm := e.s.CSManager()
	calleeUncaught := csm.CSVar(callee.Ctx, e.uncaughtVar(callee.Method))

	caller := edge.Site.Container
	callerUncaught := csm.CSVar(caller.Ctx, e.uncaughtVar(caller.Method))
	for _, st := range caller.Method.Body {
		if c, ok := st.(*ir.Catch); ok {
			e.s.AddPFGEdge(calleeUncaught, csm.CSVar(caller.Ctx, c.Var),
				pta.EdgeThrow, c.Type)
		}
	}
	e.s.AddPFGEdge(calleeUncaught, callerUncaught, pta.EdgeThrow, nil)
}

func methodThrows(m *ir.Method) bool {
	for _, st := range m.Body {
		switch st.(type) {
		case *ir.Throw, *ir.Invoke:
			return true
		}
	}
	return false
}
