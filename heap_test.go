package pta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-analysis/pta/ir"
)

func TestHeapAllocationSites(t *testing.T) {
	b := ir.NewBuilder()
	a := b.Class("A", nil)
	m := a.NewMethod("m", true)
	s1 := m.NewAllocSite(a)
	s2 := m.NewAllocSite(a)

	var pool contextPool
	h := newAllocSiteHeap(DefaultOptions(), b.Hierarchy())

	o1 := h.Obj(s1, pool.Empty())
	o2 := h.Obj(s2, pool.Empty())
	assert.NotSame(t, o1, o2, "distinct sites yield distinct objects")
	assert.Same(t, o1, h.Obj(s1, pool.Empty()), "interning is stable")
	assert.Equal(t, 2, h.NumObjs())
	assert.Same(t, o1, h.ObjByID(o1.ID))

	// The same site under a different heap context is a different object.
	ctx := pool.Append(pool.Empty(), ObjElem{Obj: o1}, 1)
	o3 := h.Obj(s1, ctx)
	assert.NotSame(t, o1, o3)
}

func TestHeapStringConstants(t *testing.T) {
	b := ir.NewBuilder()
	str := b.LibraryClass(StringClassName, nil)
	a := b.Class("A", nil)
	m := a.NewMethod("m", true)

	mk := func() (*ir.AllocSite, *ir.AllocSite, *ir.AllocSite) {
		s1 := m.NewAllocSite(str)
		s1.StringConst, s1.IsConst = "hello", true
		s2 := m.NewAllocSite(str)
		s2.StringConst, s2.IsConst = "hello", true
		s3 := m.NewAllocSite(str)
		s3.StringConst, s3.IsConst = "world", true
		return s1, s2, s3
	}

	var pool contextPool

	t.Run("Distinguished", func(t *testing.T) {
		opts := DefaultOptions()
		opts.DistinguishStringConstants = true
		h := newAllocSiteHeap(opts, b.Hierarchy())

		s1, s2, s3 := mk()
		o1 := h.Obj(s1, pool.Empty())
		assert.Same(t, o1, h.Obj(s2, pool.Empty()),
			"equal literals merge into one object")
		assert.NotSame(t, o1, h.Obj(s3, pool.Empty()))
	})

	t.Run("Merged", func(t *testing.T) {
		h := newAllocSiteHeap(DefaultOptions(), b.Hierarchy())

		s1, _, s3 := mk()
		o1 := h.Obj(s1, pool.Empty())
		assert.Same(t, o1, h.Obj(s3, pool.Empty()),
			"all constants collapse without distinguish-string-constants")
	})
}

func TestHeapCoalescing(t *testing.T) {
	b := ir.NewBuilder()
	throwable := b.LibraryClass(ThrowableClassName, nil)
	exc := b.LibraryClass("java.lang.Exception", throwable)
	sb := b.LibraryClass(StringBuilderClassName, nil)
	a := b.Class("A", nil)
	m := a.NewMethod("m", true)

	opts := DefaultOptions()
	opts.MergeStringBuilders = true
	opts.MergeExceptionObjects = true
	h := newAllocSiteHeap(opts, b.Hierarchy())

	var pool contextPool
	e1 := h.Obj(m.NewAllocSite(exc), pool.Empty())
	e2 := h.Obj(m.NewAllocSite(exc), pool.Empty())
	assert.Same(t, e1, e2, "exception objects merge by type")

	t1 := h.Obj(m.NewAllocSite(throwable), pool.Empty())
	assert.NotSame(t, e1, t1, "merging is per type, not per hierarchy")

	b1 := h.Obj(m.NewAllocSite(sb), pool.Empty())
	b2 := h.Obj(m.NewAllocSite(sb), pool.Empty())
	assert.Same(t, b1, b2)

	a1 := h.Obj(m.NewAllocSite(a), pool.Empty())
	a2 := h.Obj(m.NewAllocSite(a), pool.Empty())
	assert.NotSame(t, a1, a2)
}

func TestHeapMockObjs(t *testing.T) {
	b := ir.NewBuilder()
	a := b.Class("A", nil)
	h := newAllocSiteHeap(DefaultOptions(), b.Hierarchy())

	o1 := h.MockObj("main thread", a)
	o2 := h.MockObj("main thread", a)
	require.Same(t, o1, o2)
	assert.Equal(t, a, o1.Type)
	assert.Nil(t, o1.Site)
}
