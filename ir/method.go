package ir

// Special method names from the underlying bytecode model.
const (
	InitName   = "<init>"
	ClinitName = "<clinit>"
)

// Method is a method declaration together with its body IR.
type Method struct {
	Class    *Class
	Name     string
	Static   bool
	Abstract bool

	// This is the receiver variable; nil for static methods.
	This   *Var
	Params []*Var
	// Rets collects the variables returned by the Return statements of the
	// body. Empty for void methods.
	Rets []*Var

	Body []Stmt

	vars      []*Var
	nextAlloc int
}

func (m *Method) String() string { return m.Class.Name + "." + m.Name }

// Vars returns all variables declared in the method, including the
// receiver and parameters.
func (m *Method) Vars() []*Var { return m.vars }

// NewVar declares a fresh local variable in the method.
func (m *Method) NewVar(name string, typ Type) *Var {
	v := &Var{Method: m, Name: name, Type: typ}
	m.vars = append(m.vars, v)
	return v
}

// NewAllocSite reserves an allocation site in the method for objects of
// the given type.
func (m *Method) NewAllocSite(typ Type) *AllocSite {
	s := &AllocSite{Method: m, Index: m.nextAlloc, Type: typ}
	m.nextAlloc++
	return s
}

// Var is a method-scoped local variable (including receiver, parameters
// and compiler temporaries).
type Var struct {
	Method *Method
	Name   string
	Type   Type
}

func (v *Var) String() string { return v.Method.String() + "/" + v.Name }

// NewMethod declares a method on the class. The receiver variable is
// created automatically for instance methods.
func (c *Class) NewMethod(name string, static bool) *Method {
	m := &Method{Class: c, Name: name, Static: static}
	if !static {
		m.This = m.NewVar("this", c)
	}
	c.methods[name] = m
	return m
}

// NewParam appends a parameter variable to the method.
func (m *Method) NewParam(name string, typ Type) *Var {
	v := m.NewVar(name, typ)
	m.Params = append(m.Params, v)
	return v
}
