package pta

import (
	"fmt"
	"sync"

	"github.com/polaris-analysis/pta/ir"
)

// PointerID is the dense index of a pointer node in the pointer flow
// graph.
type PointerID int32

// PointerKind discriminates the pointer variants.
type PointerKind int

const (
	PVar PointerKind = iota
	PInstanceField
	PArrayIndex
	PStaticField
)

// Pointer is a node of the pointer flow graph: a context-sensitive
// variable, an instance field of an abstract object, the conflated index
// of an abstract array, or a static field. All variants share the
// points-to payload and the outgoing edge list; the solver switches on
// Kind only when materializing per-object edges.
type Pointer struct {
	ID   PointerID
	Kind PointerKind

	// PVar
	Ctx *Context
	Var *ir.Var
	// PInstanceField (Base, Field), PStaticField (Field), PArrayIndex (Base)
	Base  *Obj
	Field *ir.Field

	pts     PTSet
	edges   []Edge
	edgeSet map[edgeKey]struct{}

	// hooks carry the statements and pending call sites that must be
	// re-examined when the points-to set of a receiver variable grows.
	hooks *varHooks
}

// PointsTo returns the current points-to set of the pointer. The returned
// set is owned by the solver and must not be mutated.
func (p *Pointer) PointsTo() *PTSet { return &p.pts }

func (p *Pointer) String() string {
	switch p.Kind {
	case PVar:
		if p.Ctx.Depth() == 0 {
			return p.Var.String()
		}
		return fmt.Sprintf("%v%v", p.Ctx, p.Var)
	case PInstanceField:
		return fmt.Sprintf("%v.%s", p.Base, p.Field.Name)
	case PArrayIndex:
		return fmt.Sprintf("%v[*]", p.Base)
	default:
		return p.Field.String()
	}
}

// EdgeKind records how a pointer flow graph edge came to be. Propagation
// only distinguishes filtered edges (cast, exception-catch) from plain
// inclusion edges; the kind is kept for reporting.
type EdgeKind int

const (
	EdgeCopy EdgeKind = iota
	EdgeCast
	EdgeLoad
	EdgeStore
	EdgeArrayLoad
	EdgeArrayStore
	EdgeStaticLoad
	EdgeStaticStore
	EdgeParam
	EdgeReturn
	EdgeThrow
)

// Edge is an outgoing pointer-flow edge. A non-nil Filter restricts
// propagation to objects whose type is a subtype of it.
type Edge struct {
	Target *Pointer
	Kind   EdgeKind
	Filter ir.Type
}

type edgeKey struct {
	target PointerID
	kind   EdgeKind
	filter ir.Type
}

// addEdge inserts the deduplicated edge, reporting whether it is new.
func (p *Pointer) addEdge(e Edge) bool {
	key := edgeKey{target: e.Target.ID, kind: e.Kind, filter: e.Filter}
	if _, found := p.edgeSet[key]; found {
		return false
	}
	if p.edgeSet == nil {
		p.edgeSet = make(map[edgeKey]struct{})
	}
	p.edgeSet[key] = struct{}{}
	p.edges = append(p.edges, e)
	return true
}

type varHooks struct {
	invokes []*CSCallSite
	loads   []*ir.LoadField
	stores  []*ir.StoreField
	aloads  []*ir.LoadArray
	astores []*ir.StoreArray
}

func (p *Pointer) varHooks() *varHooks {
	if p.hooks == nil {
		p.hooks = new(varHooks)
	}
	return p.hooks
}

// CSMethod is a method paired with an analysis context. Reachability is
// monotone: once reachable, always reachable.
type CSMethod struct {
	ID     int
	Ctx    *Context
	Method *ir.Method

	reachable bool
}

func (m *CSMethod) Reachable() bool { return m.reachable }

func (m *CSMethod) String() string {
	if m.Ctx.Depth() == 0 {
		return m.Method.String()
	}
	return fmt.Sprintf("%v%v", m.Ctx, m.Method)
}

// CSCallSite is a call site paired with the context of its container.
type CSCallSite struct {
	Ctx       *Context
	Site      *ir.Invoke
	Container *CSMethod
}

func (cs *CSCallSite) String() string {
	if cs.Ctx.Depth() == 0 {
		return cs.Site.String()
	}
	return fmt.Sprintf("%v%v", cs.Ctx, cs.Site)
}

type varKey struct {
	ctx *Context
	v   *ir.Var
}

type ifieldKey struct {
	base  *Obj
	field *ir.Field
}

type methodKey struct {
	ctx *Context
	m   *ir.Method
}

type callSiteKey struct {
	ctx  *Context
	site *ir.Invoke
}

// CSManager interns all context-sensitive entities and hands out dense
// ids. Interning is guarded by a mutex: the front end may build IR on
// multiple goroutines and plugins may consult the manager lazily, so
// insertion must be idempotent under concurrency.
type CSManager struct {
	mu sync.Mutex

	pointers []*Pointer
	varList  []*Pointer
	ifields  []*Pointer
	arrays   []*Pointer
	statics  []*Pointer

	vars      map[varKey]*Pointer
	ifieldMap map[ifieldKey]*Pointer
	arrayMap  map[*Obj]*Pointer
	staticMap map[*ir.Field]*Pointer

	methods    map[methodKey]*CSMethod
	methodList []*CSMethod

	callSites map[callSiteKey]*CSCallSite
}

func newCSManager() *CSManager {
	return &CSManager{
		vars:      make(map[varKey]*Pointer),
		ifieldMap: make(map[ifieldKey]*Pointer),
		arrayMap:  make(map[*Obj]*Pointer),
		staticMap: make(map[*ir.Field]*Pointer),
		methods:   make(map[methodKey]*CSMethod),
		callSites: make(map[callSiteKey]*CSCallSite),
	}
}

func (c *CSManager) intern(p *Pointer) *Pointer {
	p.ID = PointerID(len(c.pointers))
	c.pointers = append(c.pointers, p)
	return p
}

// CSVar interns the pointer for variable v under context ctx.
func (c *CSManager) CSVar(ctx *Context, v *ir.Var) *Pointer {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := varKey{ctx: ctx, v: v}
	if p, found := c.vars[key]; found {
		return p
	}
	p := c.intern(&Pointer{Kind: PVar, Ctx: ctx, Var: v})
	c.vars[key] = p
	c.varList = append(c.varList, p)
	return p
}

// InstanceField interns the pointer for field f of object base.
func (c *CSManager) InstanceField(base *Obj, f *ir.Field) *Pointer {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ifieldKey{base: base, field: f}
	if p, found := c.ifieldMap[key]; found {
		return p
	}
	p := c.intern(&Pointer{Kind: PInstanceField, Base: base, Field: f})
	c.ifieldMap[key] = p
	c.ifields = append(c.ifields, p)
	return p
}

// ArrayIndex interns the single pointer conflating all indices of the
// abstract array base.
func (c *CSManager) ArrayIndex(base *Obj) *Pointer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, found := c.arrayMap[base]; found {
		return p
	}
	p := c.intern(&Pointer{Kind: PArrayIndex, Base: base})
	c.arrayMap[base] = p
	c.arrays = append(c.arrays, p)
	return p
}

// StaticField interns the pointer for static field f.
func (c *CSManager) StaticField(f *ir.Field) *Pointer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, found := c.staticMap[f]; found {
		return p
	}
	p := c.intern(&Pointer{Kind: PStaticField, Field: f})
	c.staticMap[f] = p
	c.statics = append(c.statics, p)
	return p
}

// CSMethod interns method m under context ctx.
func (c *CSManager) CSMethod(ctx *Context, m *ir.Method) *CSMethod {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := methodKey{ctx: ctx, m: m}
	if cm, found := c.methods[key]; found {
		return cm
	}
	cm := &CSMethod{ID: len(c.methodList), Ctx: ctx, Method: m}
	c.methods[key] = cm
	c.methodList = append(c.methodList, cm)
	return cm
}

// CSCallSite interns call site s under the context of its container.
func (c *CSManager) CSCallSite(container *CSMethod, s *ir.Invoke) *CSCallSite {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := callSiteKey{ctx: container.Ctx, site: s}
	if cs, found := c.callSites[key]; found {
		return cs
	}
	cs := &CSCallSite{Ctx: container.Ctx, Site: s, Container: container}
	c.callSites[key] = cs
	return cs
}

// Iteration in interning order, for result reporting.

func (c *CSManager) Vars() []*Pointer           { return c.varList }
func (c *CSManager) InstanceFields() []*Pointer { return c.ifields }
func (c *CSManager) ArrayIndexes() []*Pointer   { return c.arrays }
func (c *CSManager) StaticFields() []*Pointer   { return c.statics }
func (c *CSManager) CSMethods() []*CSMethod     { return c.methodList }
func (c *CSManager) Pointers() []*Pointer       { return c.pointers }
