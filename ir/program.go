package ir

import (
	"errors"
	"fmt"
)

// Program is a reified program: a class hierarchy plus the designated
// entry-point methods.
type Program struct {
	Hierarchy *Hierarchy
	Entries   []*Method
}

var ErrMalformed = errors.New("malformed program")

// Validate checks basic well-formedness of the program. The analysis
// reports failures here as front-end errors.
func (p *Program) Validate() error {
	if p.Hierarchy == nil {
		return fmt.Errorf("%w: no class hierarchy", ErrMalformed)
	}
	if len(p.Entries) == 0 {
		return fmt.Errorf("%w: no entry points", ErrMalformed)
	}

	for _, cls := range p.Hierarchy.Classes() {
		for _, m := range cls.methods {
			for _, st := range m.Body {
				if err := checkStmt(m, st); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkStmt(m *Method, st Stmt) error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %v: %s", ErrMalformed, m, fmt.Sprintf(format, args...))
	}

	switch st := st.(type) {
	case *New:
		if st.Result == nil || st.Site == nil {
			return bad("allocation without result or site")
		}
	case *Copy:
		if st.To == nil || st.From == nil {
			return bad("copy with missing operand")
		}
	case *Cast:
		if st.Type == nil {
			return bad("cast without target type")
		}
	case *LoadField, *StoreField:
		var f *Field
		if l, ok := st.(*LoadField); ok {
			f = l.Field
		} else {
			f = st.(*StoreField).Field
		}
		if f == nil {
			return bad("field access on unknown field")
		}
	case *Invoke:
		if st.Ref.Class == nil {
			return bad("call to method of unknown class")
		}
		if st.Kind != CallStatic && st.Kind != CallDynamic && st.Base == nil {
			return bad("instance call %v without receiver", st.Ref)
		}
	}
	return nil
}
