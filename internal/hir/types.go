package hir

import (
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the shape of a Type.
type Kind int

const (
	KindUnknown Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindNone
	KindList
	KindDict
	KindSet
	KindTuple
	KindOptional
	KindUnion
	KindCallable
	KindNamed
	KindVar
)

var kindNames = [...]string{
	KindUnknown:  "Unknown",
	KindInt:      "int",
	KindFloat:    "float",
	KindBool:     "bool",
	KindString:   "str",
	KindNone:     "None",
	KindList:     "list",
	KindDict:     "dict",
	KindSet:      "set",
	KindTuple:    "tuple",
	KindOptional: "Optional",
	KindUnion:    "Union",
	KindCallable: "Callable",
	KindNamed:    "Named",
	KindVar:      "Var",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Type is a value-level type term. The zero value is Unknown.
//
// Elems holds the component types: the element of List, Set and
// Optional; key then value for Dict; the members of Tuple and Union; the
// parameters followed by the result for Callable; the type arguments of
// Named.
type Type struct {
	Kind  Kind
	Elems []Type
	Name  string
	Var   uint32
}

var (
	Unknown = Type{}
	Int     = Type{Kind: KindInt}
	Float   = Type{Kind: KindFloat}
	Bool    = Type{Kind: KindBool}
	Str     = Type{Kind: KindString}
	None    = Type{Kind: KindNone}
)

func ListOf(elem Type) Type { return Type{Kind: KindList, Elems: []Type{elem}} }

func SetOf(elem Type) Type { return Type{Kind: KindSet, Elems: []Type{elem}} }

func DictOf(key, value Type) Type { return Type{Kind: KindDict, Elems: []Type{key, value}} }

func TupleOf(elems ...Type) Type {
	return Type{Kind: KindTuple, Elems: append([]Type{}, elems...)}
}

// OptionalOf lifts t. Optional is idempotent, Optional(None) is None and
// Optional(Unknown) stays Unknown.
func OptionalOf(t Type) Type {
	switch t.Kind {
	case KindOptional, KindNone, KindUnknown:
		return t
	case KindUnion:
		return UnionOf(append(append([]Type{}, t.Elems...), None)...)
	}
	return Type{Kind: KindOptional, Elems: []Type{t}}
}

// UnionOf builds a normalized union: nested unions are flattened,
// duplicates removed and members ordered by Key. A single member collapses
// to itself, and T | None becomes Optional(T). Unknown absorbs everything.
func UnionOf(members ...Type) Type {
	seen := make(map[string]bool)
	var flat []Type
	hasNone := false
	var add func(t Type) bool
	add = func(t Type) bool {
		switch t.Kind {
		case KindUnknown:
			return false
		case KindUnion:
			for _, m := range t.Elems {
				if !add(m) {
					return false
				}
			}
			return true
		case KindOptional:
			hasNone = true
			return add(t.Elems[0])
		case KindNone:
			hasNone = true
			return true
		}
		if k := t.Key(); !seen[k] {
			seen[k] = true
			flat = append(flat, t)
		}
		return true
	}
	for _, m := range members {
		if !add(m) {
			return Unknown
		}
	}
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].Key() < flat[j].Key() })

	var inner Type
	switch len(flat) {
	case 0:
		if hasNone {
			return None
		}
		return Unknown
	case 1:
		inner = flat[0]
	default:
		inner = Type{Kind: KindUnion, Elems: flat}
	}
	if hasNone {
		if inner.Kind == KindUnion {
			return Type{Kind: KindOptional, Elems: []Type{inner}}
		}
		return OptionalOf(inner)
	}
	return inner
}

func CallableOf(params []Type, result Type) Type {
	elems := append(append([]Type{}, params...), result)
	return Type{Kind: KindCallable, Elems: elems}
}

func NamedOf(name string, args ...Type) Type {
	return Type{Kind: KindNamed, Name: name, Elems: append([]Type(nil), args...)}
}

func VarOf(id uint32) Type { return Type{Kind: KindVar, Var: id} }

// Elem returns the element type of List, Set and Optional, or Unknown.
func (t Type) Elem() Type {
	switch t.Kind {
	case KindList, KindSet, KindOptional:
		return t.Elems[0]
	}
	return Unknown
}

// KeyType and ValueType return the components of a Dict.
func (t Type) KeyType() Type {
	if t.Kind == KindDict {
		return t.Elems[0]
	}
	return Unknown
}

func (t Type) ValueType() Type {
	if t.Kind == KindDict {
		return t.Elems[1]
	}
	return Unknown
}

// Params and Result split a Callable.
func (t Type) Params() []Type {
	if t.Kind != KindCallable {
		return nil
	}
	return t.Elems[:len(t.Elems)-1]
}

func (t Type) Result() Type {
	if t.Kind != KindCallable {
		return Unknown
	}
	return t.Elems[len(t.Elems)-1]
}

func (t Type) IsUnknown() bool { return t.Kind == KindUnknown }

// IsNumeric reports whether t is int or float.
func (t Type) IsNumeric() bool { return t.Kind == KindInt || t.Kind == KindFloat }

// IsCopy reports whether values of t are Copy in the emitted code.
func (t Type) IsCopy() bool {
	switch t.Kind {
	case KindInt, KindFloat, KindBool, KindNone:
		return true
	case KindTuple:
		for _, e := range t.Elems {
			if !e.IsCopy() {
				return false
			}
		}
		return true
	case KindOptional:
		return t.Elems[0].IsCopy()
	}
	return false
}

// IsGround reports whether t contains no unification variables.
func (t Type) IsGround() bool {
	if t.Kind == KindVar {
		return false
	}
	for _, e := range t.Elems {
		if !e.IsGround() {
			return false
		}
	}
	return true
}

// ContainsUnknown reports whether Unknown appears anywhere inside t.
func (t Type) ContainsUnknown() bool {
	if t.Kind == KindUnknown {
		return true
	}
	for _, e := range t.Elems {
		if e.ContainsUnknown() {
			return true
		}
	}
	return false
}

// Equal reports structural equality.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind || t.Name != other.Name || t.Var != other.Var {
		return false
	}
	if len(t.Elems) != len(other.Elems) {
		return false
	}
	for i := range t.Elems {
		if !t.Elems[i].Equal(other.Elems[i]) {
			return false
		}
	}
	return true
}

// Key returns a canonical string for t, stable across runs.
func (t Type) Key() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Type) String() string { return t.Key() }

func (t Type) write(b *strings.Builder) {
	list := func(ts []Type, sep string) {
		for i, e := range ts {
			if i > 0 {
				b.WriteString(sep)
			}
			e.write(b)
		}
	}
	switch t.Kind {
	case KindUnknown, KindInt, KindFloat, KindBool, KindString, KindNone:
		b.WriteString(t.Kind.String())
	case KindList, KindSet, KindDict, KindTuple, KindOptional:
		b.WriteString(t.Kind.String())
		b.WriteByte('[')
		list(t.Elems, ", ")
		b.WriteByte(']')
	case KindUnion:
		list(t.Elems, " | ")
	case KindCallable:
		b.WriteString("Callable[[")
		list(t.Params(), ", ")
		b.WriteString("], ")
		t.Result().write(b)
		b.WriteByte(']')
	case KindNamed:
		b.WriteString(t.Name)
		if len(t.Elems) > 0 {
			b.WriteByte('[')
			list(t.Elems, ", ")
			b.WriteByte(']')
		}
	case KindVar:
		b.WriteString("?T")
		b.WriteString(strconv.FormatUint(uint64(t.Var), 10))
	}
}

// Map rebuilds t bottom-up, applying f to every node.
func (t Type) Map(f func(Type) Type) Type {
	if len(t.Elems) > 0 {
		elems := make([]Type, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = e.Map(f)
		}
		t = Type{Kind: t.Kind, Elems: elems, Name: t.Name, Var: t.Var}
		switch t.Kind {
		case KindUnion:
			t = UnionOf(t.Elems...)
		case KindOptional:
			t = OptionalOf(t.Elems[0])
		}
	}
	return f(t)
}
