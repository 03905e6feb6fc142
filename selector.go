package pta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/polaris-analysis/pta/ir"
)

// Selector chooses analysis contexts at dispatches and allocations.
//
// SelectContext picks the callee context from the call site, the caller
// context and the receiver object (nil for static calls).
// SelectHeapContext picks the heap context attached to objects allocated
// at the given site while the allocating method runs under ctx.
type Selector interface {
	Name() string
	SelectContext(pool *contextPool, site *CSCallSite, recv *Obj) *Context
	SelectHeapContext(pool *contextPool, ctx *Context, site *ir.AllocSite) *Context
}

// ParseCS maps a cs option string to a selector. Accepted values: "ci",
// "k-call"/"k-cfa", "k-obj"/"k-object" and "k-type" for k in 1..9.
func ParseCS(cs string) (Selector, error) {
	if cs == "ci" || cs == "insensitive" {
		return insensitive{}, nil
	}

	k, variant, found := strings.Cut(cs, "-")
	if found {
		if n, err := strconv.Atoi(k); err == nil && n >= 1 && n <= 9 {
			switch variant {
			case "call", "cfa":
				return kCall{k: n}, nil
			case "obj", "object":
				return kObj{k: n}, nil
			case "type":
				return kType{k: n}, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: unknown cs variant %q", ErrConfiguration, cs)
}

// insensitive uses the empty context everywhere.
type insensitive struct{}

func (insensitive) Name() string { return "ci" }

func (insensitive) SelectContext(pool *contextPool, site *CSCallSite, recv *Obj) *Context {
	return pool.Empty()
}

func (insensitive) SelectHeapContext(pool *contextPool, ctx *Context, site *ir.AllocSite) *Context {
	return pool.Empty()
}

// kCall appends the call site to the caller context, keeping the most
// recent k sites. Heap contexts are the allocator's context truncated to
// k-1.
type kCall struct{ k int }

func (s kCall) Name() string { return fmt.Sprintf("%d-call", s.k) }

func (s kCall) SelectContext(pool *contextPool, site *CSCallSite, recv *Obj) *Context {
	return pool.Append(site.Ctx, CallSiteElem{Site: site.Site}, s.k)
}

func (s kCall) SelectHeapContext(pool *contextPool, ctx *Context, site *ir.AllocSite) *Context {
	return pool.Truncate(ctx, s.k-1)
}

// kObj appends the receiver object to its own heap context, keeping k
// elements. Static calls fall back to the caller context. Heap contexts
// are k-1 long.
type kObj struct{ k int }

func (s kObj) Name() string { return fmt.Sprintf("%d-obj", s.k) }

func (s kObj) SelectContext(pool *contextPool, site *CSCallSite, recv *Obj) *Context {
	if recv == nil {
		return site.Ctx
	}
	return pool.Append(recv.HeapCtx, ObjElem{Obj: recv}, s.k)
}

func (s kObj) SelectHeapContext(pool *contextPool, ctx *Context, site *ir.AllocSite) *Context {
	return pool.Truncate(ctx, s.k-1)
}

// kType is kObj with the declaring class of the receiver object in place
// of the object identity.
type kType struct{ k int }

func (s kType) Name() string { return fmt.Sprintf("%d-type", s.k) }

func (s kType) SelectContext(pool *contextPool, site *CSCallSite, recv *Obj) *Context {
	if recv == nil {
		return site.Ctx
	}
	return pool.Append(recv.HeapCtx, TypeElem{Class: declaringClass(recv)}, s.k)
}

func (s kType) SelectHeapContext(pool *contextPool, ctx *Context, site *ir.AllocSite) *Context {
	return pool.Truncate(ctx, s.k-1)
}

func declaringClass(o *Obj) *ir.Class {
	if cls, ok := o.Type.(*ir.Class); ok {
		return cls
	}
	// Array objects contribute the allocating method's class; synthetic
	// objects of a non-class type have no site and contribute nil.
	if o.Site != nil {
		return o.Site.Method.Class
	}
	return nil
}
