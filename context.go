package pta

import (
	"strings"
	"sync"

	"github.com/polaris-analysis/pta/ir"
)

// ContextElem is an element of an analysis context: a call site for
// call-site sensitivity, an abstract object for object sensitivity, or a
// class for type sensitivity.
type ContextElem interface {
	contextElem()
}

// CallSiteElem wraps a call site as a context element.
type CallSiteElem struct{ Site *ir.Invoke }

// ObjElem wraps an abstract object as a context element.
type ObjElem struct{ Obj *Obj }

// TypeElem wraps a class as a context element.
type TypeElem struct{ Class *ir.Class }

func (CallSiteElem) contextElem() {}
func (ObjElem) contextElem()      {}
func (TypeElem) contextElem()     {}

// Context is an interned, ordered tuple of context elements. Contexts are
// hash-consed in a trie so that structurally equal contexts are pointer
// identical and comparison is O(1).
type Context struct {
	parent *Context
	elem   ContextElem
	depth  int

	mu       sync.Mutex
	children map[ContextElem]*Context
}

// Depth returns the number of elements in the tuple.
func (c *Context) Depth() int { return c.depth }

// Elems returns the tuple elements, oldest first.
func (c *Context) Elems() []ContextElem {
	elems := make([]ContextElem, c.depth)
	for cur := c; cur.parent != nil; cur = cur.parent {
		elems[cur.depth-1] = cur.elem
	}
	return elems
}

func (c *Context) String() string {
	if c.depth == 0 {
		return "[]"
	}

	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range c.Elems() {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch e := e.(type) {
		case CallSiteElem:
			sb.WriteString(e.Site.String())
		case ObjElem:
			sb.WriteString(e.Obj.String())
		case TypeElem:
			sb.WriteString(e.Class.Name)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// child interns the one-element extension of c.
func (c *Context) child(e ContextElem) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	if child, found := c.children[e]; found {
		return child
	}
	if c.children == nil {
		c.children = make(map[ContextElem]*Context)
	}
	child := &Context{parent: c, elem: e, depth: c.depth + 1}
	c.children[e] = child
	return child
}

// contextPool interns contexts under a shared empty root.
type contextPool struct {
	empty Context
}

// Empty returns the distinguished insensitive context.
func (p *contextPool) Empty() *Context { return &p.empty }

// Append returns the context holding the last limit elements of c
// extended by e, so e is always kept and at most limit-1 elements of c
// survive. A nil c (synthetic objects carry no heap context) is
// the empty context.
func (p *contextPool) Append(c *Context, e ContextElem, limit int) *Context {
	if limit <= 0 {
		return p.Empty()
	}
	if c == nil {
		c = p.Empty()
	}

	elems := append(c.Elems(), e)
	if len(elems) > limit {
		elems = elems[len(elems)-limit:]
	}
	return p.Make(elems)
}

// Truncate returns the context holding the last limit elements of c.
func (p *contextPool) Truncate(c *Context, limit int) *Context {
	if c == nil {
		return p.Empty()
	}
	if c.depth <= limit {
		return c
	}
	elems := c.Elems()
	return p.Make(elems[len(elems)-limit:])
}

// Make interns the context with exactly the given elements.
func (p *contextPool) Make(elems []ContextElem) *Context {
	cur := p.Empty()
	for _, e := range elems {
		cur = cur.child(e)
	}
	return cur
}
