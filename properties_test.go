package pta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polaris-analysis/pta/ir"
)

// buildChainProgram returns a program exercising copies, casts, fields,
// arrays and virtual dispatch at once.
func buildChainProgram() *ir.Program {
	b := ir.NewBuilder()
	cA := b.Class("A", nil)
	cB := b.Class("B", cA)
	cC := b.Class("C", nil)
	f := cA.NewField("f", cA, false)

	mA := cA.NewMethod("m", false)
	rv := mA.NewVar("r", cA)
	mA.AddLoadField(rv, mA.This, f)
	mA.AddReturn(rv)

	mB := cB.NewMethod("m", false)
	rb := mB.NewVar("r", cA)
	mB.AddNew(rb, cC)
	mB.AddReturn(rb)

	cMain := b.Class("Main", nil)
	main := cMain.NewMethod("main", true)
	a := main.NewVar("a", cA)
	x := main.NewVar("x", cA)
	y := main.NewVar("y", cA)
	z := main.NewVar("z", cB)
	r := main.NewVar("res", cA)
	xs := main.NewVar("xs", &ir.ArrayType{Elem: cA})
	e := main.NewVar("e", cA)

	main.AddNew(a, cA)
	main.AddNew(x, cB)
	main.AddStoreField(a, f, x)
	main.AddCopy(y, x)
	main.AddCast(z, cB, y)
	main.AddInvoke(ir.CallVirtual, ir.MethodRef{Class: cA, Name: "m"}, a, nil, r)
	main.AddInvoke(ir.CallVirtual, ir.MethodRef{Class: cA, Name: "m"}, z, nil, r)
	main.AddNew(xs, &ir.ArrayType{Elem: cA})
	main.AddStoreArray(xs, x)
	main.AddLoadArray(e, xs)
	b.Entry(main)

	return b.Program()
}

// TestClosureProperty checks that at the fixpoint every pointer flow edge
// is saturated: filter(pts(src)) ⊆ pts(dst).
func TestClosureProperty(t *testing.T) {
	for _, cs := range []string{"ci", "1-call", "1-obj", "2-type"} {
		t.Run(cs, func(t *testing.T) {
			opts := DefaultOptions()
			opts.CS = cs
			s, err := NewSolver(buildChainProgram(), opts)
			require.NoError(t, err)
			_, err = s.Solve(context.Background())
			require.NoError(t, err)

			for _, p := range s.csm.Pointers() {
				for _, e := range p.edges {
					p.pts.ForEach(func(id ObjID) {
						if e.Filter != nil && !ir.Subtype(s.heap.ObjByID(id).Type, e.Filter) {
							return
						}
						if !e.Target.pts.Contains(id) {
							t.Errorf("edge %v -> %v not saturated: missing %v",
								p, e.Target, s.heap.ObjByID(id))
						}
					})
				}
			}
		})
	}
}

// TestFilterSoundness checks that objects reaching a pointer through a
// filtered edge satisfy the filter.
func TestFilterSoundness(t *testing.T) {
	s, err := NewSolver(buildChainProgram(), DefaultOptions())
	require.NoError(t, err)
	_, err = s.Solve(context.Background())
	require.NoError(t, err)

	for _, p := range s.csm.Pointers() {
		for _, e := range p.edges {
			if e.Filter == nil {
				continue
			}
			e.Target.pts.ForEach(func(id ObjID) {
				o := s.heap.ObjByID(id)
				// The target may receive objects via other, unfiltered
				// edges; those that came through this edge must pass.
				if p.pts.Contains(id) && !ir.Subtype(o.Type, e.Filter) {
					t.Errorf("filtered edge %v -> %v leaked %v", p, e.Target, o)
				}
			})
		}
	}
}

// TestCallGraphCompleteness checks that every receiver object of every
// reachable virtual call has its dispatched edge in the call graph.
func TestCallGraphCompleteness(t *testing.T) {
	for _, cs := range []string{"ci", "1-call", "1-obj"} {
		t.Run(cs, func(t *testing.T) {
			opts := DefaultOptions()
			opts.CS = cs
			s, err := NewSolver(buildChainProgram(), opts)
			require.NoError(t, err)
			_, err = s.Solve(context.Background())
			require.NoError(t, err)

			for _, cm := range s.cg.Reachable() {
				for _, st := range cm.Method.Body {
					iv, ok := st.(*ir.Invoke)
					if !ok || (iv.Kind != ir.CallVirtual && iv.Kind != ir.CallInterface) {
						continue
					}
					recv := s.csm.CSVar(cm.Ctx, iv.Base)
					site := s.csm.CSCallSite(cm, iv)
					recv.pts.ForEach(func(id ObjID) {
						o := s.heap.ObjByID(id)
						callee := ir.Dispatch(o.Type, iv.Ref)
						if callee == nil {
							return
						}
						want := s.csm.CSMethod(s.selector.SelectContext(&s.pool, site, o), callee)
						found := false
						for _, e := range s.cg.CalleesOf(site) {
							if e.Callee == want {
								found = true
							}
						}
						if !found {
							t.Errorf("missing call edge %v -> %v for receiver %v", site, want, o)
						}
					})
				}
			}
		})
	}
}

// TestReachabilityMonotone checks that methods never leave the reachable
// set while the analysis runs.
func TestReachabilityMonotone(t *testing.T) {
	s, err := NewSolver(buildChainProgram(), DefaultOptions())
	require.NoError(t, err)

	seen := make(map[*CSMethod]bool)
	probe := &monotoneProbe{t: t, s: s, seen: seen}
	s.Register(probe)

	_, err = s.Solve(context.Background())
	require.NoError(t, err)
}

// TestFreezeBarrier checks that constraint additions after the result is
// frozen trip the internal invariant check.
func TestFreezeBarrier(t *testing.T) {
	s, err := NewSolver(buildChainProgram(), DefaultOptions())
	require.NoError(t, err)
	_, err = s.Solve(context.Background())
	require.NoError(t, err)

	p := s.csm.Pointers()[0]
	o := s.heap.MockObj("late arrival", s.prog.Hierarchy.Lookup("A"))
	require.Panics(t, func() { s.AddPointsTo(p, o) })
}

type monotoneProbe struct {
	NopPlugin
	t    *testing.T
	s    *Solver
	seen map[*CSMethod]bool
}

func (p *monotoneProbe) OnNewCSMethod(m *CSMethod) {
	if p.seen[m] {
		p.t.Errorf("method %v reported reachable twice", m)
	}
	p.seen[m] = true
}

func (p *monotoneProbe) OnNewPointsToSet(ptr *Pointer, delta *PTSet) {
	for m := range p.seen {
		if !m.Reachable() {
			p.t.Errorf("method %v left the reachable set", m)
		}
	}
}
