package pta_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/ir"
)

var blackHole any

// syntheticProgram builds a call chain of n classes, each allocating,
// storing into a shared field and dispatching on the next one.
func syntheticProgram(n int) *ir.Program {
	b := ir.NewBuilder()

	base := b.Class("Base", nil)
	f := base.NewField("f", base, false)

	classes := make([]*ir.Class, n)
	for i := range classes {
		classes[i] = b.Class(fmt.Sprintf("C%d", i), base)
	}

	for i, cls := range classes {
		m := cls.NewMethod("step", false)
		x := m.NewVar("x", base)
		y := m.NewVar("y", base)
		m.AddNew(x, cls)
		m.AddStoreField(m.This, f, x)
		m.AddLoadField(y, m.This, f)
		if i+1 < n {
			next := m.NewVar("next", classes[i+1])
			m.AddNew(next, classes[i+1])
			m.AddInvoke(ir.CallVirtual,
				ir.MethodRef{Class: base, Name: "step"}, next, nil, nil)
		}
		m.AddReturn(y)
	}

	cMain := b.Class("Main", nil)
	main := cMain.NewMethod("main", true)
	c0 := main.NewVar("c0", classes[0])
	r := main.NewVar("r", base)
	main.AddNew(c0, classes[0])
	main.AddInvoke(ir.CallVirtual, ir.MethodRef{Class: base, Name: "step"}, c0, nil, r)
	b.Entry(main)

	return b.Program()
}

func BenchmarkSolve(b *testing.B) {
	for _, cs := range []string{"ci", "2-call", "2-obj"} {
		for _, solver := range []string{pta.SolverDefault, pta.SolverSimple} {
			b.Run(fmt.Sprintf("cs=%s/solver=%s", cs, solver), func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					b.StopTimer()
					prog := syntheticProgram(200)
					opts := pta.DefaultOptions()
					opts.CS = cs
					opts.Solver = solver
					s, err := pta.NewSolver(prog, opts)
					require.NoError(b, err)
					b.StartTimer()

					res, err := s.Solve(context.Background())
					require.NoError(b, err)
					blackHole = res
				}
			})
		}
	}
}
