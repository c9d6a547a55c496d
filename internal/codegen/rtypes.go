package codegen

import (
	"strconv"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/ownership"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// ====== Type mapping ======

// typePos selects how callable types are spelled.
type typePos int

const (
	posValue typePos = iota // locals, fields, containers: Box<dyn Fn>
	posParam                 // parameters: impl Fn
)

// rustType spells t as a Rust type. Unknown types degrade to PyValue.
func (g *generator) rustType(t hir.Type) string {
	return g.rustTypeAt(t, posValue)
}

func (g *generator) rustTypeAt(t hir.Type, pos typePos) string {
	switch t.Kind {
	case hir.KindUnknown, hir.KindVar:
		g.helper("PyValue")
		return "PyValue"
	case hir.KindInt:
		return "i64"
	case hir.KindFloat:
		return "f64"
	case hir.KindBool:
		return "bool"
	case hir.KindString:
		return "String"
	case hir.KindNone:
		return "()"
	case hir.KindList:
		return "Vec<" + g.rustType(t.Elem()) + ">"
	case hir.KindSet:
		g.use("std::collections::HashSet")
		return "HashSet<" + g.keyType(t.Elem()) + ">"
	case hir.KindDict:
		g.use("std::collections::HashMap")
		return "HashMap<" + g.keyType(t.KeyType()) + ", " + g.rustType(t.ValueType()) + ">"
	case hir.KindTuple:
		return g.tupleType(t.Elems)
	case hir.KindOptional:
		return "Option<" + g.rustType(t.Elem()) + ">"
	case hir.KindUnion:
		return g.unionEnum(t)
	case hir.KindCallable:
		params := make([]string, len(t.Params()))
		for i, p := range t.Params() {
			params[i] = g.rustType(p)
		}
		sig := "Fn(" + strings.Join(params, ", ") + ")"
		if r := t.Result(); r.Kind != hir.KindNone && !r.IsUnknown() {
			sig += " -> " + g.rustType(r)
		}
		if pos == posParam {
			return "impl " + sig
		}
		return "Box<dyn " + sig + ">"
	case hir.KindNamed:
		return g.namedType(t)
	}
	g.helper("PyValue")
	return "PyValue"
}

func (g *generator) tupleType(elems []hir.Type) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = g.rustType(e)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// keyType spells a set element or dictionary key. Keys must hash, so
// unknown keys are strings.
func (g *generator) keyType(t hir.Type) string {
	if t.IsUnknown() || t.Kind == hir.KindVar {
		return "String"
	}
	return g.rustType(t)
}

func (g *generator) namedType(t hir.Type) string {
	chrono := g.reg.Options().Chrono
	switch t.Name {
	case stdlib.TypeRegex:
		g.use("regex::Regex")
		g.crate("regex")
		return "Regex"
	case stdlib.TypeMatch:
		g.helper("PyMatch")
		return "PyMatch"
	case stdlib.TypeFile:
		g.helper("PyFile")
		return "PyFile"
	case stdlib.TypeDatetime:
		if chrono {
			g.crate("chrono")
			return "chrono::NaiveDateTime"
		}
		return "std::time::SystemTime"
	case stdlib.TypeDuration:
		if chrono {
			g.crate("chrono")
			return "chrono::Duration"
		}
		return "std::time::Duration"
	case stdlib.TypeDeque:
		g.use("std::collections::VecDeque")
		return "VecDeque<" + g.rustType(elemOr(t)) + ">"
	case stdlib.TypeCounter:
		g.use("std::collections::HashMap")
		return "HashMap<" + g.keyType(elemOr(t)) + ", i64>"
	case stdlib.TypeHash, stdlib.TypeBytes:
		return "Vec<u8>"
	case stdlib.TypeParser:
		g.helper("PyArgParser")
		return "PyArgParser"
	case stdlib.TypeArgs:
		g.helper("PyArgParser")
		return "PyArgs"
	case stdlib.TypeIter:
		return "Vec<" + g.rustType(elemOr(t)) + ">"
	case stdlib.TypeType:
		g.helper("PyValue")
		return "PyValue"
	}
	if g.isException(t.Name) {
		g.helper("PyError")
		return "PyError"
	}
	if cl, ok := g.classes[t.Name]; ok {
		return typeName(cl.Name)
	}
	if g.typeParams[t.Name] {
		return t.Name
	}
	if g.isProtocol(t.Name) {
		g.helper("PyValue")
		return "PyValue"
	}
	return Sanitize(t.Name)
}

func elemOr(t hir.Type) hir.Type {
	if len(t.Elems) > 0 {
		return t.Elems[0]
	}
	return hir.Unknown
}

// isIter reports whether t is a lazily produced sequence.
func isIter(t hir.Type) bool {
	return t.Kind == hir.KindNamed && t.Name == stdlib.TypeIter
}

// isValue reports whether t lowers to the PyValue sum.
func isValue(t hir.Type) bool {
	return t.Kind == hir.KindUnknown || t.Kind == hir.KindVar ||
		t.Kind == hir.KindNamed && t.Name == stdlib.TypeType
}

// iterElem is the element type produced by iterating t.
func iterElem(t hir.Type) hir.Type {
	switch {
	case t.Kind == hir.KindNamed && t.Name == stdlib.TypeFile:
		return hir.Str
	case t.Kind == hir.KindNamed && (t.Name == stdlib.TypeBytes || t.Name == stdlib.TypeHash):
		return hir.Int
	case t.Kind == hir.KindNamed && t.Name == stdlib.TypeCounter:
		return elemOr(t)
	}
	return stdlib.ElementOf(t)
}

// ====== Parameters ======

// paramType spells a parameter of type t received in mode.
func (g *generator) paramType(t hir.Type, pp ownership.ParamPlan) string {
	if t.Kind == hir.KindCallable {
		return g.rustTypeAt(t, posParam)
	}
	if !byRef(t, pp.Mode) {
		return g.rustType(t)
	}
	lt := ""
	if pp.Lifetime != "" {
		lt = pp.Lifetime + " "
	}
	switch pp.Mode {
	case ownership.BorrowMut:
		return "&" + lt + "mut " + g.rustType(t)
	default:
		if t.Kind == hir.KindString {
			return "&" + lt + "str"
		}
		return "&" + lt + g.rustType(t)
	}
}

// byRef reports whether a parameter of type t in mode is passed as a
// reference. Copy values and optionals always travel by value.
func byRef(t hir.Type, mode ownership.Mode) bool {
	if mode == ownership.Moved || t.IsCopy() || t.Kind == hir.KindOptional || t.Kind == hir.KindCallable {
		return false
	}
	return true
}

// ====== Derivable traits ======

type traits struct {
	clone, debug, eq, dflt bool
}

func (g *generator) traitsOf(t hir.Type, seen map[string]bool) traits {
	all := traits{true, true, true, true}
	and := func(a, b traits) traits {
		return traits{a.clone && b.clone, a.debug && b.debug, a.eq && b.eq, a.dflt && b.dflt}
	}
	switch t.Kind {
	case hir.KindInt, hir.KindFloat, hir.KindBool, hir.KindString, hir.KindNone, hir.KindUnknown, hir.KindVar:
		return all
	case hir.KindList, hir.KindSet, hir.KindDict, hir.KindOptional:
		out := all
		for _, e := range t.Elems {
			sub := g.traitsOf(e, seen)
			sub.dflt = true
			out = and(out, sub)
		}
		return out
	case hir.KindTuple:
		out := all
		for _, e := range t.Elems {
			out = and(out, g.traitsOf(e, seen))
		}
		return out
	case hir.KindUnion:
		out := all
		for _, e := range t.Elems {
			out = and(out, g.traitsOf(e, seen))
		}
		out.dflt = false
		return out
	case hir.KindCallable:
		return traits{}
	case hir.KindNamed:
		switch t.Name {
		case stdlib.TypeRegex:
			return traits{clone: true, debug: true}
		case stdlib.TypeMatch, stdlib.TypeParser, stdlib.TypeArgs:
			return traits{clone: true, debug: true}
		case stdlib.TypeFile:
			return traits{debug: true}
		case stdlib.TypeDatetime:
			return traits{clone: true, debug: true, eq: true, dflt: g.reg.Options().Chrono}
		case stdlib.TypeDuration, stdlib.TypeHash, stdlib.TypeBytes, stdlib.TypeType:
			return all
		case stdlib.TypeDeque, stdlib.TypeCounter, stdlib.TypeIter:
			return all
		}
		if g.isException(t.Name) {
			return traits{clone: true, debug: true, eq: true}
		}
		if cl, ok := g.classes[t.Name]; ok {
			if seen[cl.Name] {
				return all
			}
			seen[cl.Name] = true
			return g.classTraits(cl, seen)
		}
		return all
	}
	return all
}

// classTraits is what a struct can derive: the traits every field type
// provides.
func (g *generator) classTraits(cl *hir.Class, seen map[string]bool) traits {
	if seen == nil {
		seen = map[string]bool{cl.Name: true}
	}
	out := traits{true, true, true, true}
	for _, f := range g.fieldsOf(cl) {
		ft := g.traitsOf(f.typ, seen)
		out = traits{out.clone && ft.clone, out.debug && ft.debug, out.eq && ft.eq, out.dflt && ft.dflt}
	}
	return out
}

func derives(t traits) []string {
	var out []string
	if t.debug {
		out = append(out, "Debug")
	}
	if t.clone {
		out = append(out, "Clone")
	}
	if t.eq {
		out = append(out, "PartialEq")
	}
	if t.dflt {
		out = append(out, "Default")
	}
	return out
}

// defaultable reports whether a hoisted local of type t can start from
// Default::default().
func (g *generator) defaultable(t hir.Type) bool {
	return g.traitsOf(t, map[string]bool{}).dflt
}

// ====== Union enums ======

// unionEnum returns the name of the enum generated for a union type,
// registering it on first use.
func (g *generator) unionEnum(t hir.Type) string {
	variants := g.unionVariants(t)
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.name
	}
	name := strings.Join(names, "Or")
	if _, ok := g.unions[name]; !ok {
		g.unions[name] = t
		g.unionOrder = append(g.unionOrder, name)
	}
	return name
}

type unionVariant struct {
	name string
	typ  hir.Type
}

func (g *generator) unionVariants(t hir.Type) []unionVariant {
	out := make([]unionVariant, 0, len(t.Elems))
	seen := map[string]int{}
	for _, m := range t.Elems {
		name := variantName(m)
		seen[name]++
		if n := seen[name]; n > 1 {
			name += strconv.Itoa(n)
		}
		out = append(out, unionVariant{name: name, typ: m})
	}
	return out
}

func variantName(t hir.Type) string {
	switch t.Kind {
	case hir.KindInt:
		return "Int"
	case hir.KindFloat:
		return "Float"
	case hir.KindBool:
		return "Bool"
	case hir.KindString:
		return "Str"
	case hir.KindList:
		return "List"
	case hir.KindDict:
		return "Dict"
	case hir.KindSet:
		return "Set"
	case hir.KindTuple:
		return "Tuple"
	case hir.KindCallable:
		return "Func"
	case hir.KindNamed:
		return typeName(strings.ReplaceAll(t.Name, ".", "_"))
	}
	return "Value"
}

// variantOf finds the union member that accepts a value of type t.
func (g *generator) variantOf(union, t hir.Type) (unionVariant, bool) {
	vs := g.unionVariants(union)
	for _, v := range vs {
		if v.typ.Equal(t) {
			return v, true
		}
	}
	for _, v := range vs {
		if v.typ.Kind == t.Kind && v.typ.Kind != hir.KindNamed {
			return v, true
		}
	}
	if t.Kind == hir.KindInt {
		for _, v := range vs {
			if v.typ.Kind == hir.KindFloat {
				return v, true
			}
		}
	}
	return unionVariant{}, false
}
