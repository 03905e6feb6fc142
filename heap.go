package pta

import (
	"fmt"
	"sync"

	"github.com/polaris-analysis/pta/ir"
)

// ObjID is the dense index of an abstract object.
type ObjID int32

// Obj is an abstract heap object: an allocation site paired with an
// optional heap context. Immutable after interning. Synthetic objects
// registered by plugins have a nil Site and carry a description instead.
type Obj struct {
	ID      ObjID
	Site    *ir.AllocSite
	HeapCtx *Context
	Type    ir.Type
	Desc    string
}

func (o *Obj) String() string {
	if o.Site == nil {
		return fmt.Sprintf("<%s>", o.Desc)
	}
	if o.HeapCtx != nil && o.HeapCtx.Depth() > 0 {
		return fmt.Sprintf("%v@%v", o.Site, o.HeapCtx)
	}
	return o.Site.String()
}

// HeapModel maps allocation sites (plus a heap context chosen by the
// selector) to abstract objects.
type HeapModel interface {
	// Obj interns the abstract object for an allocation site under the
	// given heap context.
	Obj(site *ir.AllocSite, hctx *Context) *Obj
	// MockObj interns a synthetic object for plugins.
	MockObj(desc string, typ ir.Type) *Obj
	// ObjByID resolves a dense id.
	ObjByID(id ObjID) *Obj
	// NumObjs returns the number of interned objects.
	NumObjs() int
}

type heapKey struct {
	site *ir.AllocSite
	hctx *Context
}

// allocSiteHeap is the allocation-site-based heap model. Two distinct
// sites yield distinct objects, modulo the configured coalescing rules
// for string constants, string builders and exception objects.
type allocSiteHeap struct {
	opts Options
	hier *ir.Hierarchy

	mu     sync.Mutex
	objs   []*Obj
	sites  map[heapKey]*Obj
	consts map[string]*Obj
	merged map[ir.Type]*Obj // per-type objects for coalesced allocations
	mocks  map[string]*Obj
	allStr *Obj

	throwable   *ir.Class
	strBuilders []*ir.Class
}

// Well-known class names consulted by the coalescing toggles.
const (
	StringClassName        = "java.lang.String"
	StringBuilderClassName = "java.lang.StringBuilder"
	StringBufferClassName  = "java.lang.StringBuffer"
	ThrowableClassName     = "java.lang.Throwable"
)

func newAllocSiteHeap(opts Options, hier *ir.Hierarchy) *allocSiteHeap {
	h := &allocSiteHeap{
		opts:   opts,
		hier:   hier,
		sites:  make(map[heapKey]*Obj),
		consts: make(map[string]*Obj),
		merged: make(map[ir.Type]*Obj),
		mocks:  make(map[string]*Obj),
	}
	h.throwable = hier.Lookup(ThrowableClassName)
	for _, name := range [...]string{StringBuilderClassName, StringBufferClassName} {
		if c := hier.Lookup(name); c != nil {
			h.strBuilders = append(h.strBuilders, c)
		}
	}
	return h
}

func (h *allocSiteHeap) Obj(site *ir.AllocSite, hctx *Context) *Obj {
	h.mu.Lock()
	defer h.mu.Unlock()

	if site.IsConst {
		return h.constObj(site)
	}
	if h.coalesced(site.Type) {
		return h.mergedObj(site.Type)
	}

	key := heapKey{site: site, hctx: hctx}
	if o, found := h.sites[key]; found {
		return o
	}
	o := h.intern(&Obj{Site: site, HeapCtx: hctx, Type: site.Type})
	h.sites[key] = o
	return o
}

// constObj merges string constants into one object per literal, or one
// object overall when constants are not distinguished.
func (h *allocSiteHeap) constObj(site *ir.AllocSite) *Obj {
	if !h.opts.DistinguishStringConstants || h.opts.MergeStringObjects {
		if h.allStr == nil {
			h.allStr = h.intern(&Obj{Type: site.Type, Desc: "merged string constants"})
		}
		return h.allStr
	}

	if o, found := h.consts[site.StringConst]; found {
		return o
	}
	o := h.intern(&Obj{Site: site, Type: site.Type,
		Desc: fmt.Sprintf("string constant %q", site.StringConst)})
	h.consts[site.StringConst] = o
	return o
}

// coalesced reports whether allocations of typ collapse to one object per
// type under the current options.
func (h *allocSiteHeap) coalesced(typ ir.Type) bool {
	cls, ok := typ.(*ir.Class)
	if !ok {
		return false
	}
	if h.opts.MergeStringObjects && cls.Name == StringClassName {
		return true
	}
	if h.opts.MergeStringBuilders {
		for _, sb := range h.strBuilders {
			if ir.Subtype(cls, sb) {
				return true
			}
		}
	}
	if h.opts.MergeExceptionObjects && h.throwable != nil && ir.Subtype(cls, h.throwable) {
		return true
	}
	return false
}

func (h *allocSiteHeap) mergedObj(typ ir.Type) *Obj {
	if o, found := h.merged[typ]; found {
		return o
	}
	o := h.intern(&Obj{Type: typ, Desc: fmt.Sprintf("merged objects of %v", typ)})
	h.merged[typ] = o
	return o
}

func (h *allocSiteHeap) MockObj(desc string, typ ir.Type) *Obj {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := desc + "\x00" + typ.String()
	if o, found := h.mocks[key]; found {
		return o
	}
	o := h.intern(&Obj{Type: typ, Desc: desc})
	h.mocks[key] = o
	return o
}

func (h *allocSiteHeap) intern(o *Obj) *Obj {
	o.ID = ObjID(len(h.objs))
	h.objs = append(h.objs, o)
	return o
}

func (h *allocSiteHeap) ObjByID(id ObjID) *Obj {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.objs[id]
}

func (h *allocSiteHeap) NumObjs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objs)
}
