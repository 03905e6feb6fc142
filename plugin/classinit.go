package plugin

import (
	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/ir"
)

// ClassInit models class initialization: the first use of a class (an
// allocation, a static field access or a static call) makes its
// `<clinit>` reachable, superclasses first, following the JVM
// initialization ordering.
type ClassInit struct {
	pta.NopPlugin

	s           *pta.Solver
	initialized map[*ir.Class]bool
}

func NewClassInit() *ClassInit {
	return &ClassInit{initialized: make(map[*ir.Class]bool)}
}

func (c *ClassInit) OnStart(s *pta.Solver) {
	c.s = s
}

func (c *ClassInit) OnNewCSMethod(m *pta.CSMethod) {
	// The declaring class of any reachable method is in use.
	c.initClass(m.Method.Class)

	for _, st := range m.Method.Body {
		switch st := st.(type) {
		case *ir.New:
			if cls, ok := st.Site.Type.(*ir.Class); ok {
				c.initClass(cls)
			}
		case *ir.LoadField:
			if st.Base == nil || st.Field.Static {
				c.initClass(st.Field.Class)
			}
		case *ir.StoreField:
			if st.Base == nil || st.Field.Static {
				c.initClass(st.Field.Class)
			}
		case *ir.Invoke:
			if st.Kind == ir.CallStatic {
				c.initClass(st.Ref.Class)
			}
		}
	}
}

func (c *ClassInit) initClass(cls *ir.Class) {
	if cls == nil || c.initialized[cls] {
		return
	}
	c.initialized[cls] = true

	// Superclasses initialize before their subclasses.
	c.initClass(cls.Super)

	if clinit := cls.Clinit(); clinit != nil {
		c.s.MarkReachable(c.s.EmptyContext(), clinit)
	}
}
