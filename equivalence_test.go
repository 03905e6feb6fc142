package pta_test

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/internal/maps"
	"github.com/polaris-analysis/pta/internal/slices"
	"github.com/polaris-analysis/pta/ir"
)

// snapshot projects a frozen result onto comparable maps: per-pointer
// points-to sets and the call graph, both as sorted strings.
func snapshot(res *pta.Result) map[string][]string {
	snap := make(map[string][]string)

	add := func(p *pta.Pointer) {
		var objs []string
		for _, o := range res.PointsTo(p) {
			objs = append(objs, o.String())
		}
		sort.Strings(objs)
		snap["pts: "+p.String()] = objs
	}
	for _, p := range res.Vars() {
		add(p)
	}
	for _, p := range res.InstanceFields() {
		add(p)
	}
	for _, p := range res.ArrayIndexes() {
		add(p)
	}
	for _, p := range res.StaticFields() {
		add(p)
	}

	var edges []string
	for _, e := range res.CallGraph().Edges() {
		edges = append(edges, e.String())
	}
	sort.Strings(edges)
	snap["callgraph"] = edges

	var reachable []string
	for _, m := range res.CallGraph().Reachable() {
		reachable = append(reachable, m.String())
	}
	sort.Strings(reachable)
	snap["reachable"] = reachable

	return snap
}

// mixedProgram exercises dispatch, fields, arrays, casts and static
// fields together.
func mixedProgram() *ir.Program {
	b := ir.NewBuilder()
	cA := b.Class("A", nil)
	cB := b.Class("B", cA)
	cC := b.Class("C", cA)
	f := cA.NewField("f", cA, false)
	g := cA.NewField("g", cA, true)

	mA := cA.NewMethod("dup", false)
	pa := mA.NewParam("p", cA)
	ra := mA.NewVar("r", cA)
	mA.AddStoreField(mA.This, f, pa)
	mA.AddLoadField(ra, mA.This, f)
	mA.AddReturn(ra)

	mB := cB.NewMethod("dup", false)
	pb := mB.NewParam("p", cA)
	rb := mB.NewVar("r", cA)
	mB.AddNew(rb, cC)
	mB.AddStoreField(nil, g, pb)
	mB.AddReturn(rb)

	cMain := b.Class("Main", nil)
	main := cMain.NewMethod("main", true)
	a := main.NewVar("a", cA)
	x := main.NewVar("x", cA)
	y := main.NewVar("y", cA)
	r := main.NewVar("r", cA)
	cast := main.NewVar("cast", cB)
	xs := main.NewVar("xs", &ir.ArrayType{Elem: cA})
	el := main.NewVar("el", cA)

	main.AddNew(a, cB)
	main.AddNew(x, cA)
	main.AddNew(y, cC)
	dup := ir.MethodRef{Class: cA, Name: "dup"}
	main.AddInvoke(ir.CallVirtual, dup, a, []*ir.Var{x}, r)
	main.AddInvoke(ir.CallVirtual, dup, x, []*ir.Var{y}, r)
	main.AddCast(cast, cB, r)
	main.AddNew(xs, &ir.ArrayType{Elem: cA})
	main.AddStoreArray(xs, r)
	main.AddLoadArray(el, xs)
	main.AddLoadField(el, nil, g)
	b.Entry(main)

	return b.Program()
}

var allCS = []string{"ci", "1-call", "2-call", "1-obj", "2-obj", "1-type", "2-type"}

// TestSimpleSolverRoundTrip cross-checks the optimizing solver against
// the simple reference solver: both must reach the same fixpoint.
func TestSimpleSolverRoundTrip(t *testing.T) {
	for _, cs := range allCS {
		t.Run(cs, func(t *testing.T) {
			run := func(solver string) map[string][]string {
				opts := pta.DefaultOptions()
				opts.CS = cs
				opts.Solver = solver
				s, err := pta.NewSolver(mixedProgram(), opts)
				require.NoError(t, err)
				res, err := s.Solve(context.Background())
				require.NoError(t, err)
				return snapshot(res)
			}

			if diff := cmp.Diff(run(pta.SolverDefault), run(pta.SolverSimple)); diff != "" {
				t.Errorf("default and simple solver disagree (-default +simple):\n%s", diff)
			}
		})
	}
}

// TestDeterminism checks that identical inputs produce identical frozen
// results.
func TestDeterminism(t *testing.T) {
	for _, cs := range allCS {
		t.Run(cs, func(t *testing.T) {
			run := func() map[string][]string {
				opts := pta.DefaultOptions()
				opts.CS = cs
				s, err := pta.NewSolver(mixedProgram(), opts)
				require.NoError(t, err)
				res, err := s.Solve(context.Background())
				require.NoError(t, err)
				return snapshot(res)
			}

			if diff := cmp.Diff(run(), run()); diff != "" {
				t.Errorf("two runs disagree:\n%s", diff)
			}
		})
	}
}

// resultPairs projects a result onto its (variable, object) pairs.
func resultPairs(res *pta.Result) []string {
	var pairs []string
	for _, m := range res.CallGraph().ReachableMethods() {
		for _, v := range m.Vars() {
			for _, o := range res.InsensitiveVarPointsTo(v) {
				pairs = append(pairs, pairKey(v, o))
			}
		}
	}
	return pairs
}

// TestInsensitiveIsSuperset checks that every (var, obj) pair of a
// sensitive analysis also appears in the insensitive result.
func TestInsensitiveIsSuperset(t *testing.T) {
	ciPairs := func() []string {
		s, err := pta.NewSolver(mixedProgram(), pta.DefaultOptions())
		require.NoError(t, err)
		res, err := s.Solve(context.Background())
		require.NoError(t, err)
		return resultPairs(res)
	}()

	for _, cs := range allCS[1:] {
		t.Run(cs, func(t *testing.T) {
			opts := pta.DefaultOptions()
			opts.CS = cs
			s, err := pta.NewSolver(mixedProgram(), opts)
			require.NoError(t, err)
			res, err := s.Solve(context.Background())
			require.NoError(t, err)

			pairs := resultPairs(res)
			if !slices.Subset(pairs, ciPairs) {
				ciSet := maps.FromKeys(ciPairs)
				var missing []string
				for _, pair := range pairs {
					if _, found := ciSet[pair]; !found {
						missing = append(missing, pair)
					}
				}
				t.Errorf("%s:\n%s\n⊈\n%s", cs, missing, maps.Keys(ciSet))
			}
		})
	}
}

// pairKey identifies a (variable, object) pair across analysis runs,
// which intern distinct *Obj values for the same allocation site.
func pairKey(v *ir.Var, o *pta.Obj) string {
	if o.Site != nil {
		return fmt.Sprintf("%v|%v", v, o.Site)
	}
	return fmt.Sprintf("%v|%s", v, o.Desc)
}
