// Package ir defines the program model consumed by the analysis: a class
// hierarchy with methods whose bodies are sequences of typed statements.
// Front ends populate it through [Builder]; the analysis core only reads it.
package ir

import "fmt"

// Type is a reference or primitive type appearing in the analysed program.
type Type interface {
	fmt.Stringer
	typ()
}

// Primitive is a non-reference type. The analysis ignores values of
// primitive type; they only occur as declared types of variables.
type Primitive string

func (p Primitive) typ()           {}
func (p Primitive) String() string { return string(p) }

// ArrayType is the type of arrays with the given element type.
// Array subtyping is covariant in the element type.
type ArrayType struct {
	Elem Type
}

func (a *ArrayType) typ()           {}
func (a *ArrayType) String() string { return a.Elem.String() + "[]" }

// Subtype reports whether sub ≼ sup.
func Subtype(sub, sup Type) bool {
	if sub == sup {
		return true
	}

	switch sub := sub.(type) {
	case *Class:
		sup, ok := sup.(*Class)
		if !ok {
			return false
		}
		return sub.isSubclassOf(sup)

	case *ArrayType:
		switch sup := sup.(type) {
		case *ArrayType:
			return Subtype(sub.Elem, sup.Elem)
		case *Class:
			// Arrays are subtypes of the hierarchy root only.
			return sup.Super == nil && !sup.Interface
		}
	}

	return false
}

func (c *Class) isSubclassOf(sup *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == sup {
			return true
		}
		for _, itf := range cur.Interfaces {
			if itf.isSubclassOf(sup) {
				return true
			}
		}
	}
	return false
}
