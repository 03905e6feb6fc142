package pta

import (
	"github.com/polaris-analysis/pta/ir"
)

// Result is the frozen, read-only view over the analysis outcome.
type Result struct {
	csm  *CSManager
	cg   *CallGraph
	heap HeapModel
	opts Options
}

// CallGraph returns the context-sensitive call graph.
func (r *Result) CallGraph() *CallGraph { return r.cg }

// Heap returns the heap model used by the analysis.
func (r *Result) Heap() HeapModel { return r.heap }

// Options returns the configuration the analysis ran with.
func (r *Result) Options() Options { return r.opts }

// Vars returns all interned context-sensitive variable pointers.
func (r *Result) Vars() []*Pointer { return r.csm.Vars() }

// InstanceFields returns all interned instance-field pointers.
func (r *Result) InstanceFields() []*Pointer { return r.csm.InstanceFields() }

// ArrayIndexes returns all interned array-index pointers.
func (r *Result) ArrayIndexes() []*Pointer { return r.csm.ArrayIndexes() }

// StaticFields returns all interned static-field pointers.
func (r *Result) StaticFields() []*Pointer { return r.csm.StaticFields() }

// PointsTo resolves the points-to set of a pointer to objects.
func (r *Result) PointsTo(p *Pointer) []*Obj {
	objs := make([]*Obj, 0, p.pts.Len())
	p.pts.ForEach(func(id ObjID) { objs = append(objs, r.heap.ObjByID(id)) })
	return objs
}

// VarPointsTo returns the points-to set of variable v under context ctx,
// or nil when no pointer was ever interned for v under ctx.
func (r *Result) VarPointsTo(ctx *Context, v *ir.Var) []*Obj {
	r.csm.mu.Lock()
	p, found := r.csm.vars[varKey{ctx: ctx, v: v}]
	r.csm.mu.Unlock()
	if !found {
		return nil
	}
	return r.PointsTo(p)
}

// InsensitiveVarPointsTo returns the context-insensitive projection for
// v: the union of its points-to sets over all contexts.
func (r *Result) InsensitiveVarPointsTo(v *ir.Var) []*Obj {
	var union PTSet
	for _, p := range r.csm.Vars() {
		if p.Var == v {
			union.AddAll(&p.pts)
		}
	}
	objs := make([]*Obj, 0, union.Len())
	union.ForEach(func(id ObjID) { objs = append(objs, r.heap.ObjByID(id)) })
	return objs
}

// FieldPointsTo returns the points-to set of field f on the abstract
// object base.
func (r *Result) FieldPointsTo(base *Obj, f *ir.Field) []*Obj {
	r.csm.mu.Lock()
	p, found := r.csm.ifieldMap[ifieldKey{base: base, field: f}]
	r.csm.mu.Unlock()
	if !found {
		return nil
	}
	return r.PointsTo(p)
}

// MayAlias reports whether two pointers share an object.
func (r *Result) MayAlias(a, b *Pointer) bool {
	alias := false
	a.pts.ForEach(func(id ObjID) {
		if !alias && b.pts.Contains(id) {
			alias = true
		}
	})
	return alias
}
