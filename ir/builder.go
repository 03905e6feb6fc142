package ir

// Builder constructs programs for tests and front ends. It maintains a
// hierarchy rooted at an implicit object class and provides shorthand
// constructors that panic on misuse (front ends with untrusted inputs
// should use the Hierarchy API directly and Validate the result).
type Builder struct {
	hier    *Hierarchy
	root    *Class
	entries []*Method
}

// RootClassName is the name of the implicit hierarchy root.
const RootClassName = "java.lang.Object"

func NewBuilder() *Builder {
	h := NewHierarchy()
	root, _ := h.NewClass(RootClassName, nil)
	return &Builder{hier: h, root: root}
}

// Root returns the hierarchy root class.
func (b *Builder) Root() *Class { return b.root }

func (b *Builder) Hierarchy() *Hierarchy { return b.hier }

// Class declares an application class extending super (the root when nil).
func (b *Builder) Class(name string, super *Class) *Class {
	if super == nil {
		super = b.root
	}
	c, err := b.hier.NewClass(name, super)
	if err != nil {
		panic(err)
	}
	c.Application = true
	return c
}

// Interface declares an application interface.
func (b *Builder) Interface(name string) *Class {
	c, err := b.hier.NewClass(name, nil)
	if err != nil {
		panic(err)
	}
	c.Interface = true
	c.Application = true
	return c
}

// LibraryClass declares a non-application class extending super.
func (b *Builder) LibraryClass(name string, super *Class) *Class {
	if super == nil {
		super = b.root
	}
	c, err := b.hier.NewClass(name, super)
	if err != nil {
		panic(err)
	}
	return c
}

// Entry registers an entry-point method.
func (b *Builder) Entry(m *Method) {
	b.entries = append(b.entries, m)
}

// Program finalizes the build.
func (b *Builder) Program() *Program {
	return &Program{Hierarchy: b.hier, Entries: b.entries}
}

// Statement shorthands. Each appends to the method body and returns the
// statement for identity-based bookkeeping (call sites, allocation sites).

func (m *Method) AddNew(result *Var, typ Type) *New {
	st := &New{Result: result, Site: m.NewAllocSite(typ)}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddStringConst(result *Var, cls *Class, literal string) *New {
	site := m.NewAllocSite(cls)
	site.StringConst = literal
	site.IsConst = true
	st := &New{Result: result, Site: site}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddCopy(to, from *Var) *Copy {
	st := &Copy{To: to, From: from}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddCast(to *Var, typ Type, from *Var) *Cast {
	st := &Cast{To: to, From: from, Type: typ}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddLoadField(to, base *Var, f *Field) *LoadField {
	st := &LoadField{To: to, Base: base, Field: f}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddStoreField(base *Var, f *Field, from *Var) *StoreField {
	st := &StoreField{Base: base, Field: f, From: from}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddLoadArray(to, base *Var) *LoadArray {
	st := &LoadArray{To: to, Base: base}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddStoreArray(base, from *Var) *StoreArray {
	st := &StoreArray{Base: base, From: from}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddInvoke(kind CallKind, ref MethodRef, base *Var, args []*Var, result *Var) *Invoke {
	st := &Invoke{Kind: kind, Ref: ref, Base: base, Args: args, Result: result, In: m}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddReturn(v *Var) *Return {
	st := &Return{Var: v}
	if v != nil {
		m.Rets = append(m.Rets, v)
	}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddThrow(v *Var) *Throw {
	st := &Throw{Var: v}
	m.Body = append(m.Body, st)
	return st
}

func (m *Method) AddCatch(v *Var, typ Type) *Catch {
	st := &Catch{Var: v, Type: typ}
	m.Body = append(m.Body, st)
	return st
}
