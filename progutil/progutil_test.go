package progutil_test

import (
	"context"
	"testing"

	"github.com/lithammer/dedent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/ir"
	"github.com/polaris-analysis/pta/progutil"
)

const boxProgram = `
	classes:
	  - name: B
	  - name: A
	    fields:
	      - {name: f, type: B}
	    methods:
	      - name: getF
	        vars: [{name: r, type: B}]
	        body:
	          - {op: load, to: r, base: this, field: A.f}
	          - {op: return, var: r}
	  - name: Main
	    methods:
	      - name: main
	        static: true
	        vars:
	          - {name: a, type: A}
	          - {name: b, type: B}
	          - {name: c, type: B}
	        body:
	          - {op: new, to: a, type: A}
	          - {op: new, to: b, type: B}
	          - {op: store, base: a, field: A.f, from: b}
	          - {op: invoke, kind: virtual, method: A.getF, base: a, to: c}
	entry: [Main.main]
`

func TestLoadProgramFromYAML(t *testing.T) {
	prog, err := progutil.LoadProgramFromYAML([]byte(dedent.Dedent(boxProgram)))
	require.NoError(t, err)

	hier := prog.Hierarchy
	cA := hier.Lookup("A")
	require.NotNil(t, cA)
	require.NotNil(t, cA.Field("f"))
	require.Len(t, prog.Entries, 1)
	assert.Equal(t, "Main.main", prog.Entries[0].String())

	// The loaded program analyses like a hand-built one.
	s, err := pta.NewSolver(prog, pta.DefaultOptions())
	require.NoError(t, err)
	res, err := s.Solve(context.Background())
	require.NoError(t, err)

	getF := cA.Method("getF")
	require.NotNil(t, getF)
	assert.Contains(t, res.CallGraph().ReachableMethods(), getF)

	var c *ir.Var
	for _, v := range prog.Entries[0].Vars() {
		if v.Name == "c" {
			c = v
		}
	}
	require.NotNil(t, c)
	objs := res.InsensitiveVarPointsTo(c)
	require.Len(t, objs, 1)
	assert.Equal(t, hier.Lookup("B"), objs[0].Type)
}

func TestLoadProgramErrors(t *testing.T) {
	cases := map[string]string{
		"UndeclaredSuper": `
			classes:
			  - name: A
			    super: Missing
			entry: [A.main]
		`,
		"UndeclaredField": `
			classes:
			  - name: A
			    methods:
			      - name: main
			        static: true
			        body:
			          - {op: load, to: x, field: A.f}
			entry: [A.main]
		`,
		"UnknownOp": `
			classes:
			  - name: A
			    methods:
			      - name: main
			        static: true
			        body:
			          - {op: warp, to: x}
			entry: [A.main]
		`,
		"UnknownEntry": `
			classes:
			  - name: A
			entry: [A.main]
		`,
		"BadCallKind": `
			classes:
			  - name: A
			    methods:
			      - name: main
			        static: true
			        body:
			          - {op: invoke, kind: psychic, method: A.main}
			entry: [A.main]
		`,
	}

	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := progutil.LoadProgramFromYAML([]byte(dedent.Dedent(src)))
			assert.Error(t, err)
		})
	}
}

func TestLoadProgramArraysAndConsts(t *testing.T) {
	src := `
		classes:
		  - name: java.lang.String
		    library: true
		  - name: A
		    methods:
		      - name: main
		        static: true
		        vars:
		          - {name: xs, type: "A[]"}
		          - {name: s, type: java.lang.String}
		        body:
		          - {op: new, to: xs, type: "A[]"}
		          - {op: const, to: s, value: hello}
		          - {op: astore, base: xs, from: s}
		entry: [A.main]
	`
	prog, err := progutil.LoadProgramFromYAML([]byte(dedent.Dedent(src)))
	require.NoError(t, err)

	s, err := pta.NewSolver(prog, pta.DefaultOptions())
	require.NoError(t, err)
	_, err = s.Solve(context.Background())
	require.NoError(t, err)
}
