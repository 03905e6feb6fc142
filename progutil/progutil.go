// Package progutil loads program descriptions from YAML. It exists for
// the CLI and for tests, which would otherwise need a class-file front
// end to produce input programs.
package progutil

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/polaris-analysis/pta/ir"
)

type programDoc struct {
	Classes []classDoc `yaml:"classes"`
	Entry   []string   `yaml:"entry"`
}

type classDoc struct {
	Name       string      `yaml:"name"`
	Super      string      `yaml:"super"`
	Implements []string    `yaml:"implements"`
	Interface  bool        `yaml:"interface"`
	Library    bool        `yaml:"library"`
	Fields     []fieldDoc  `yaml:"fields"`
	Methods    []methodDoc `yaml:"methods"`
}

type fieldDoc struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Static bool   `yaml:"static"`
}

type methodDoc struct {
	Name     string    `yaml:"name"`
	Static   bool      `yaml:"static"`
	Abstract bool      `yaml:"abstract"`
	Params   []varDoc  `yaml:"params"`
	Vars     []varDoc  `yaml:"vars"`
	Body     []stmtDoc `yaml:"body"`
}

type varDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type stmtDoc struct {
	Op     string   `yaml:"op"`
	To     string   `yaml:"to"`
	From   string   `yaml:"from"`
	Var    string   `yaml:"var"`
	Base   string   `yaml:"base"`
	Type   string   `yaml:"type"`
	Value  string   `yaml:"value"`
	Field  string   `yaml:"field"`
	Kind   string   `yaml:"kind"`
	Method string   `yaml:"method"`
	Args   []string `yaml:"args"`
}

var ErrProgram = errors.New("malformed program description")

// LoadProgramFile reads a YAML program description from disk.
func LoadProgramFile(path string) (*ir.Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadProgramFromYAML(raw)
}

// LoadProgramFromYAML builds an IR program from a YAML description.
// Superclasses and interfaces must be declared before their subclasses.
func LoadProgramFromYAML(raw []byte) (*ir.Program, error) {
	var doc programDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgram, err)
	}

	l := &loader{hier: ir.NewHierarchy()}
	if _, err := l.hier.NewClass(ir.RootClassName, nil); err != nil {
		return nil, err
	}

	if err := l.declareClasses(doc.Classes); err != nil {
		return nil, err
	}
	if err := l.declareMembers(doc.Classes); err != nil {
		return nil, err
	}
	if err := l.buildBodies(doc.Classes); err != nil {
		return nil, err
	}

	prog := &ir.Program{Hierarchy: l.hier}
	for _, e := range doc.Entry {
		m, err := l.method(e)
		if err != nil {
			return nil, err
		}
		prog.Entries = append(prog.Entries, m)
	}

	if err := prog.Validate(); err != nil {
		return nil, err
	}
	return prog, nil
}

type loader struct {
	hier *ir.Hierarchy
}

func (l *loader) declareClasses(docs []classDoc) error {
	for _, cd := range docs {
		var super *ir.Class
		if !cd.Interface {
			superName := cd.Super
			if superName == "" {
				superName = ir.RootClassName
			}
			super = l.hier.Lookup(superName)
			if super == nil {
				return fmt.Errorf("%w: class %s extends undeclared %s",
					ErrProgram, cd.Name, superName)
			}
		}

		cls, err := l.hier.NewClass(cd.Name, super)
		if err != nil {
			return err
		}
		cls.Interface = cd.Interface
		cls.Application = !cd.Library

		for _, name := range cd.Implements {
			itf := l.hier.Lookup(name)
			if itf == nil {
				return fmt.Errorf("%w: class %s implements undeclared %s",
					ErrProgram, cd.Name, name)
			}
			cls.Interfaces = append(cls.Interfaces, itf)
		}
	}
	return nil
}

func (l *loader) declareMembers(docs []classDoc) error {
	for _, cd := range docs {
		cls := l.hier.Lookup(cd.Name)

		for _, fd := range cd.Fields {
			typ, err := l.parseType(fd.Type)
			if err != nil {
				return err
			}
			cls.NewField(fd.Name, typ, fd.Static)
		}

		for _, md := range cd.Methods {
			m := cls.NewMethod(md.Name, md.Static)
			m.Abstract = md.Abstract
			for _, pd := range md.Params {
				typ, err := l.parseType(pd.Type)
				if err != nil {
					return err
				}
				m.NewParam(pd.Name, typ)
			}
		}
	}
	return nil
}

func (l *loader) buildBodies(docs []classDoc) error {
	for _, cd := range docs {
		cls := l.hier.Lookup(cd.Name)
		for _, md := range cd.Methods {
			m := cls.Method(md.Name)
			b := &bodyBuilder{loader: l, m: m, vars: make(map[string]*ir.Var)}
			if m.This != nil {
				b.vars["this"] = m.This
			}
			for _, p := range m.Params {
				b.vars[p.Name] = p
			}
			for _, vd := range md.Vars {
				typ, err := l.parseType(vd.Type)
				if err != nil {
					return err
				}
				b.vars[vd.Name] = m.NewVar(vd.Name, typ)
			}

			for i, sd := range md.Body {
				if err := b.stmt(sd); err != nil {
					return fmt.Errorf("%v body[%d]: %w", m, i, err)
				}
			}
		}
	}
	return nil
}

type bodyBuilder struct {
	*loader
	m    *ir.Method
	vars map[string]*ir.Var
}

// v resolves a named variable, declaring untyped locals on first use.
func (b *bodyBuilder) v(name string) *ir.Var {
	if v, found := b.vars[name]; found {
		return v
	}
	v := b.m.NewVar(name, b.hier.Lookup(ir.RootClassName))
	b.vars[name] = v
	return v
}

func (b *bodyBuilder) stmt(sd stmtDoc) error {
	switch sd.Op {
	case "new":
		typ, err := b.parseType(sd.Type)
		if err != nil {
			return err
		}
		b.m.AddNew(b.v(sd.To), typ)

	case "const":
		cls := b.hier.Lookup(StringClassName)
		if cls == nil {
			cls = b.hier.Lookup(ir.RootClassName)
		}
		b.m.AddStringConst(b.v(sd.To), cls, sd.Value)

	case "copy":
		b.m.AddCopy(b.v(sd.To), b.v(sd.From))

	case "cast":
		typ, err := b.parseType(sd.Type)
		if err != nil {
			return err
		}
		b.m.AddCast(b.v(sd.To), typ, b.v(sd.From))

	case "load":
		f, err := b.field(sd.Field)
		if err != nil {
			return err
		}
		var base *ir.Var
		if sd.Base != "" {
			base = b.v(sd.Base)
		}
		b.m.AddLoadField(b.v(sd.To), base, f)

	case "store":
		f, err := b.field(sd.Field)
		if err != nil {
			return err
		}
		var base *ir.Var
		if sd.Base != "" {
			base = b.v(sd.Base)
		}
		b.m.AddStoreField(base, f, b.v(sd.From))

	case "aload":
		b.m.AddLoadArray(b.v(sd.To), b.v(sd.Base))

	case "astore":
		b.m.AddStoreArray(b.v(sd.Base), b.v(sd.From))

	case "invoke":
		kind, err := parseCallKind(sd.Kind)
		if err != nil {
			return err
		}
		ref, err := b.methodRef(sd.Method)
		if err != nil {
			return err
		}
		var base, result *ir.Var
		if sd.Base != "" {
			base = b.v(sd.Base)
		}
		if sd.To != "" {
			result = b.v(sd.To)
		}
		args := make([]*ir.Var, len(sd.Args))
		for i, a := range sd.Args {
			args[i] = b.v(a)
		}
		b.m.AddInvoke(kind, ref, base, args, result)

	case "return":
		var v *ir.Var
		if sd.Var != "" {
			v = b.v(sd.Var)
		}
		b.m.AddReturn(v)

	case "throw":
		b.m.AddThrow(b.v(sd.Var))

	case "catch":
		typ, err := b.parseType(sd.Type)
		if err != nil {
			return err
		}
		b.m.AddCatch(b.v(sd.Var), typ)

	default:
		return fmt.Errorf("%w: unknown op %q", ErrProgram, sd.Op)
	}
	return nil
}

// StringClassName is the class used for string-constant allocations.
const StringClassName = "java.lang.String"

func (l *loader) parseType(name string) (ir.Type, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: missing type", ErrProgram)
	}
	if elem, found := strings.CutSuffix(name, "[]"); found {
		inner, err := l.parseType(elem)
		if err != nil {
			return nil, err
		}
		return &ir.ArrayType{Elem: inner}, nil
	}
	if cls := l.hier.Lookup(name); cls != nil {
		return cls, nil
	}
	// Unknown names denote primitives.
	return ir.Primitive(name), nil
}

// field resolves "Class.field" references.
func (l *loader) field(ref string) (*ir.Field, error) {
	clsName, fName, found := cutLast(ref)
	if !found {
		return nil, fmt.Errorf("%w: bad field reference %q", ErrProgram, ref)
	}
	cls := l.hier.Lookup(clsName)
	if cls == nil {
		return nil, fmt.Errorf("%w: field on undeclared class %q", ErrProgram, ref)
	}
	f := cls.Field(fName)
	if f == nil {
		return nil, fmt.Errorf("%w: undeclared field %q", ErrProgram, ref)
	}
	return f, nil
}

func (l *loader) methodRef(ref string) (ir.MethodRef, error) {
	clsName, mName, found := cutLast(ref)
	if !found {
		return ir.MethodRef{}, fmt.Errorf("%w: bad method reference %q", ErrProgram, ref)
	}
	cls := l.hier.Lookup(clsName)
	if cls == nil {
		return ir.MethodRef{}, fmt.Errorf("%w: method on undeclared class %q", ErrProgram, ref)
	}
	return ir.MethodRef{Class: cls, Name: mName}, nil
}

func (l *loader) method(ref string) (*ir.Method, error) {
	mref, err := l.methodRef(ref)
	if err != nil {
		return nil, err
	}
	m := mref.Resolve()
	if m == nil {
		return nil, fmt.Errorf("%w: undeclared method %q", ErrProgram, ref)
	}
	return m, nil
}

// cutLast splits at the final dot, so dotted class names survive.
func cutLast(s string) (before, after string, found bool) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

func parseCallKind(kind string) (ir.CallKind, error) {
	switch kind {
	case "virtual", "":
		return ir.CallVirtual, nil
	case "interface":
		return ir.CallInterface, nil
	case "special":
		return ir.CallSpecial, nil
	case "static":
		return ir.CallStatic, nil
	case "dynamic":
		return ir.CallDynamic, nil
	default:
		return 0, fmt.Errorf("%w: unknown call kind %q", ErrProgram, kind)
	}
}
