package ir

import (
	"errors"
	"fmt"
)

// Hierarchy interns the classes of the analysed program and answers
// subtype and dispatch queries.
type Hierarchy struct {
	classes map[string]*Class
	order   []*Class
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{classes: make(map[string]*Class)}
}

// Class is a class or interface of the analysed program.
type Class struct {
	Name       string
	Super      *Class
	Interfaces []*Class
	Interface  bool
	// Application marks classes belonging to the program under analysis as
	// opposed to library code.
	Application bool

	methods map[string]*Method
	fields  map[string]*Field
}

func (c *Class) typ()           {}
func (c *Class) String() string { return c.Name }

var ErrDuplicateClass = errors.New("class defined twice")

func (h *Hierarchy) NewClass(name string, super *Class) (*Class, error) {
	if _, found := h.classes[name]; found {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, name)
	}

	c := &Class{
		Name:    name,
		Super:   super,
		methods: make(map[string]*Method),
		fields:  make(map[string]*Field),
	}
	h.classes[name] = c
	h.order = append(h.order, c)
	return c, nil
}

// Lookup returns the class with the given name, or nil.
func (h *Hierarchy) Lookup(name string) *Class {
	return h.classes[name]
}

// Classes returns all classes in definition order.
func (h *Hierarchy) Classes() []*Class {
	return h.order
}

// Field is a (static or instance) field declared on a class.
type Field struct {
	Class  *Class
	Name   string
	Type   Type
	Static bool
}

func (f *Field) String() string {
	return f.Class.Name + "." + f.Name
}

func (c *Class) NewField(name string, typ Type, static bool) *Field {
	f := &Field{Class: c, Name: name, Type: typ, Static: static}
	c.fields[name] = f
	return f
}

// Field resolves a field by name, searching superclasses.
func (c *Class) Field(name string) *Field {
	for cur := c; cur != nil; cur = cur.Super {
		if f, found := cur.fields[name]; found {
			return f
		}
	}
	return nil
}

// Method resolves a declared method by name, searching superclasses. It
// implements the static resolution step of JVM-style method references.
func (c *Class) Method(name string) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if m, found := cur.methods[name]; found {
			return m
		}
		for _, itf := range cur.Interfaces {
			if m := itf.Method(name); m != nil {
				return m
			}
		}
	}
	return nil
}

// Clinit returns the class initializer of c, or nil.
func (c *Class) Clinit() *Method {
	return c.methods[ClinitName]
}

// MethodRef is a symbolic reference to a method, as it appears at a call
// site before dispatch.
type MethodRef struct {
	Class *Class
	Name  string
}

func (r MethodRef) String() string { return r.Class.Name + "." + r.Name }

// Resolve performs static resolution of the reference: the method found by
// searching the referenced class and its superclasses.
func (r MethodRef) Resolve() *Method {
	return r.Class.Method(r.Name)
}

// Dispatch resolves the method invoked on a receiver of the given type via
// dynamic dispatch. Returns nil when no concrete target exists (abstract
// methods, broken inputs).
func Dispatch(recv Type, ref MethodRef) *Method {
	cls, ok := recv.(*Class)
	if !ok {
		// Arrays inherit the root class's methods.
		if _, isArr := recv.(*ArrayType); isArr && ref.Class != nil {
			root := ref.Class
			for root.Super != nil {
				root = root.Super
			}
			cls = root
		} else {
			return nil
		}
	}

	m := cls.Method(ref.Name)
	if m == nil || m.Abstract {
		return nil
	}
	return m
}
