// Package types implements unification over inferred types.
//
// A Unifier owns every metavariable as a slot in an arena. Slots are joined
// with union-find, so unifying two unbound metavariables merges them and a
// later binding of either one binds both. Bindings are occurs-checked and
// concrete types are compared structurally.
package types

import (
	"fmt"
	"strings"
)

// Tycon is a type constructor.
type Tycon uint8

const (
	Unit Tycon = iota
	Bool
	Int
	Float
	Option
	Char
	String
	List
	Map
	Bytes
	File
	Struct
	Enum
	Intf
)

var tyconNames = [...]string{
	Unit:   "unit",
	Bool:   "bool",
	Int:    "int",
	Float:  "float",
	Option: "option",
	Char:   "char",
	String: "string",
	List:   "list",
	Map:    "map",
	Bytes:  "bytes",
	File:   "file",
	Struct: "struct",
	Enum:   "enum",
	Intf:   "intf",
}

func (c Tycon) String() string {
	if int(c) < len(tyconNames) {
		return tyconNames[c]
	}
	return fmt.Sprintf("tycon(%d)", c)
}

// Type is one of App, Assoc or Meta.
type Type interface {
	isType()
}

// App applies a constructor to type arguments, e.g. App{List, [Int]}.
type App struct {
	Con  Tycon
	Args []Type
}

// Assoc is a named field with an optional default type.
type Assoc struct {
	Name    string
	Type    Type
	Default Type // nil when the field has no default
}

// Meta is a type variable. ID is a slot in the Unifier that created it and
// is meaningless to any other Unifier.
type Meta struct {
	ID int
}

func (App) isType()   {}
func (Assoc) isType() {}
func (Meta) isType()  {}

// Con builds a constructor application.
func Con(c Tycon, args ...Type) App {
	return App{Con: c, Args: args}
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// printer names unbound metavariables 'a, 'b, ... in order of appearance.
type printer struct {
	u     *Unifier
	names map[int]string
}

func (p *printer) metaName(root int) string {
	if n, ok := p.names[root]; ok {
		return n
	}
	i := len(p.names)
	n := "'" + string(rune('a'+i%26))
	if i >= 26 {
		n += fmt.Sprint(i / 26)
	}
	p.names[root] = n
	return n
}

func (p *printer) write(sb *strings.Builder, t Type) {
	if p.u != nil {
		t = p.u.walk(t)
	}
	switch x := t.(type) {
	case Meta:
		sb.WriteString(p.metaName(x.ID))
	case App:
		switch len(x.Args) {
		case 0:
		case 1:
			p.writeArg(sb, x.Args[0])
			sb.WriteByte(' ')
		default:
			sb.WriteByte('(')
			for i, a := range x.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				p.write(sb, a)
			}
			sb.WriteString(") ")
		}
		sb.WriteString(x.Con.String())
	case Assoc:
		sb.WriteString(x.Name)
		sb.WriteString(": ")
		p.write(sb, x.Type)
		if x.Default != nil {
			sb.WriteString(" = ")
			p.write(sb, x.Default)
		}
	case nil:
		sb.WriteString("<nil>")
	}
}

// writeArg parenthesizes arguments that would otherwise be ambiguous.
func (p *printer) writeArg(sb *strings.Builder, t Type) {
	if p.u != nil {
		t = p.u.walk(t)
	}
	needParens := false
	switch x := t.(type) {
	case App:
		needParens = len(x.Args) > 1
	case Assoc:
		needParens = true
	}
	if needParens {
		sb.WriteByte('(')
		p.write(sb, t)
		sb.WriteByte(')')
		return
	}
	p.write(sb, t)
}

// Format renders t without consulting any unifier bindings.
func Format(t Type) string {
	p := &printer{names: map[int]string{}}
	var sb strings.Builder
	p.write(&sb, t)
	return sb.String()
}

func (a App) String() string   { return Format(a) }
func (a Assoc) String() string { return Format(a) }
func (m Meta) String() string  { return fmt.Sprintf("?%d", m.ID) }
