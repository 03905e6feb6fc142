package plugin

import (
	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/ir"
)

// Lambda desugars dynamic (invokedynamic-style) call sites into synthetic
// function objects. A dynamic call site whose Ref names the implementation
// method produces an object typed as the site's declared functional
// interface; interface calls dispatching on that object are later routed
// to the implementation.
type Lambda struct {
	pta.NopPlugin

	s *pta.Solver
	// impls maps synthetic lambda objects to their implementation method.
	impls map[*pta.Obj]*ir.Method
}

func NewLambda() *Lambda {
	return &Lambda{impls: make(map[*pta.Obj]*ir.Method)}
}

func (l *Lambda) OnStart(s *pta.Solver) {
	l.s = s
}

func (l *Lambda) OnUnresolvedCall(recv *pta.Obj, cs *pta.CSCallSite) {
	if recv == nil {
		l.capture(cs)
		return
	}
	l.invoke(recv, cs)
}

// capture materializes the lambda object at a dynamic call site.
func (l *Lambda) capture(cs *pta.CSCallSite) {
	iv := cs.Site
	if iv.Kind != ir.CallDynamic || iv.Result == nil {
		return
	}
	impl := iv.Ref.Resolve()
	if impl == nil {
		return
	}

	typ := iv.Result.Type
	if typ == nil {
		typ = impl.Class
	}
	obj := l.s.Heap().MockObj("lambda "+iv.Ref.String(), typ)
	l.impls[obj] = impl
	l.s.AddPointsTo(l.s.CSManager().CSVar(cs.Ctx, iv.Result), obj)
}

// invoke routes a functional-interface call on a lambda object to its
// implementation method.
func (l *Lambda) invoke(recv *pta.Obj, cs *pta.CSCallSite) {
	impl, found := l.impls[recv]
	if !found {
		return
	}

	csCallee := l.s.CSManager().CSMethod(l.s.EmptyContext(), impl)
	l.s.AddCallEdge(cs, csCallee, ir.CallDynamic)
}
