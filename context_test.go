package pta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-analysis/pta/ir"
)

func testInvokes(n int) []*ir.Invoke {
	b := ir.NewBuilder()
	cls := b.Class("A", nil)
	m := cls.NewMethod("m", true)
	sites := make([]*ir.Invoke, n)
	for i := range sites {
		sites[i] = m.AddInvoke(ir.CallStatic, ir.MethodRef{Class: cls, Name: "m"}, nil, nil, nil)
	}
	return sites
}

func TestContextInterning(t *testing.T) {
	var pool contextPool
	sites := testInvokes(3)

	empty := pool.Empty()
	assert.Equal(t, 0, empty.Depth())

	c1 := pool.Append(empty, CallSiteElem{Site: sites[0]}, 2)
	c2 := pool.Append(empty, CallSiteElem{Site: sites[0]}, 2)
	assert.Same(t, c1, c2, "structurally equal contexts must be identical")

	c3 := pool.Append(c1, CallSiteElem{Site: sites[1]}, 2)
	assert.Equal(t, 2, c3.Depth())
	assert.Equal(t,
		[]ContextElem{CallSiteElem{Site: sites[0]}, CallSiteElem{Site: sites[1]}},
		c3.Elems())

	// Appending past the bound drops the oldest element.
	c4 := pool.Append(c3, CallSiteElem{Site: sites[2]}, 2)
	assert.Equal(t, 2, c4.Depth())
	assert.Equal(t,
		[]ContextElem{CallSiteElem{Site: sites[1]}, CallSiteElem{Site: sites[2]}},
		c4.Elems())

	// Rebuilding the same suffix reuses the interned context.
	c5 := pool.Append(pool.Append(empty, CallSiteElem{Site: sites[1]}, 2),
		CallSiteElem{Site: sites[2]}, 2)
	assert.Same(t, c4, c5)

	assert.Same(t, empty, pool.Truncate(c4, 0))
	assert.Same(t, c4, pool.Truncate(c4, 2))
}

func TestSelectorParsing(t *testing.T) {
	for cs, want := range map[string]string{
		"ci":       "ci",
		"1-call":   "1-call",
		"1-cfa":    "1-call",
		"2-call":   "2-call",
		"2-cfa":    "2-call",
		"1-obj":    "1-obj",
		"1-object": "1-obj",
		"2-obj":    "2-obj",
		"2-object": "2-obj",
		"1-type":   "1-type",
		"2-type":   "2-type",
	} {
		sel, err := ParseCS(cs)
		require.NoError(t, err, cs)
		assert.Equal(t, want, sel.Name())
	}

	for _, cs := range []string{"", "3cfa", "0-call", "k-call", "1-objekt", "10-call"} {
		_, err := ParseCS(cs)
		assert.ErrorIs(t, err, ErrConfiguration, cs)
	}
}

func TestKCallSelector(t *testing.T) {
	var pool contextPool
	sites := testInvokes(3)
	sel, err := ParseCS("2-call")
	require.NoError(t, err)

	ctx := pool.Empty()
	for _, site := range sites {
		ctx = sel.SelectContext(&pool, &CSCallSite{Ctx: ctx, Site: site}, nil)
	}

	assert.Equal(t,
		[]ContextElem{CallSiteElem{Site: sites[1]}, CallSiteElem{Site: sites[2]}},
		ctx.Elems(), "only the two most recent call sites survive")

	// Heap contexts are the allocator's context truncated to k-1.
	hctx := sel.SelectHeapContext(&pool, ctx, nil)
	assert.Equal(t, []ContextElem{CallSiteElem{Site: sites[2]}}, hctx.Elems())
}

func TestKObjSelector(t *testing.T) {
	var pool contextPool
	sel, err := ParseCS("2-obj")
	require.NoError(t, err)

	o1 := &Obj{ID: 1, HeapCtx: pool.Empty()}
	c1 := sel.SelectContext(&pool, &CSCallSite{Ctx: pool.Empty()}, o1)
	assert.Equal(t, []ContextElem{ObjElem{Obj: o1}}, c1.Elems())

	// An object allocated under c1 carries heap context [o1] (k-1 = 1).
	h2 := sel.SelectHeapContext(&pool, c1, nil)
	assert.Equal(t, []ContextElem{ObjElem{Obj: o1}}, h2.Elems())

	o2 := &Obj{ID: 2, HeapCtx: h2}
	c2 := sel.SelectContext(&pool, &CSCallSite{Ctx: pool.Empty()}, o2)
	assert.Equal(t, []ContextElem{ObjElem{Obj: o1}, ObjElem{Obj: o2}}, c2.Elems())

	// Static calls fall back to the caller context.
	caller := &CSCallSite{Ctx: c2}
	assert.Same(t, c2, sel.SelectContext(&pool, caller, nil))
}

func TestKTypeSelector(t *testing.T) {
	var pool contextPool
	sel, err := ParseCS("1-type")
	require.NoError(t, err)

	b := ir.NewBuilder()
	cls := b.Class("A", nil)
	o := &Obj{ID: 1, HeapCtx: pool.Empty(), Type: cls}

	ctx := sel.SelectContext(&pool, &CSCallSite{Ctx: pool.Empty()}, o)
	assert.Equal(t, []ContextElem{TypeElem{Class: cls}}, ctx.Elems())

	// Two objects of the same class land in the same context.
	o2 := &Obj{ID: 2, HeapCtx: pool.Empty(), Type: cls}
	ctx2 := sel.SelectContext(&pool, &CSCallSite{Ctx: pool.Empty()}, o2)
	assert.Same(t, ctx, ctx2)
}

func TestInsensitiveSelector(t *testing.T) {
	var pool contextPool
	sel, err := ParseCS("ci")
	require.NoError(t, err)

	o := &Obj{ID: 1, HeapCtx: pool.Empty()}
	assert.Same(t, pool.Empty(), sel.SelectContext(&pool, &CSCallSite{Ctx: pool.Empty()}, o))
	assert.Same(t, pool.Empty(), sel.SelectHeapContext(&pool, pool.Empty(), nil))
}
