package codegen

import (
	"strconv"
	"strings"
)

// rustKeywords are the strict and reserved keywords of Rust 2021.
var rustKeywords = map[string]bool{
	"as": true, "break": true, "const": true, "continue": true, "crate": true, "else": true,
	"enum": true, "extern": true, "false": true, "fn": true, "for": true, "if": true, "impl": true,
	"in": true, "let": true, "loop": true, "match": true, "mod": true, "move": true, "mut": true,
	"pub": true, "ref": true, "return": true, "static": true, "struct": true, "trait": true,
	"true": true, "type": true, "unsafe": true, "use": true, "where": true, "while": true,
	"async": true, "await": true, "dyn": true, "abstract": true, "become": true, "box": true,
	"do": true, "final": true, "macro": true, "override": true, "priv": true, "typeof": true,
	"unsized": true, "virtual": true, "yield": true, "try": true, "union": true,
}

// noRawForm are keywords that cannot be written as raw identifiers.
var noRawForm = map[string]bool{"self": true, "Self": true, "super": true, "crate": true}

// reserved are names generated code uses for itself.
var reserved = map[string]bool{
	"this": true, "did_break": true, "PyValue": true, "PyError": true, "ScopeGuard": true,
	"PyWith": true, "PyContext": true, "FromPyValue": true, "Vec": true, "String": true,
	"HashMap": true, "HashSet": true, "VecDeque": true, "Option": true, "Result": true,
	"Some": true, "None": true, "Ok": true, "Err": true, "Box": true,
}

// Sanitize maps a source identifier to a valid Rust identifier. The
// mapping is stable: keywords become raw identifiers (or gain a trailing
// underscore when they have no raw form), names generated code reserves
// gain a trailing underscore, a leading digit gains an underscore prefix,
// and characters outside [A-Za-z0-9_] become underscores. An empty
// result becomes "unnamed".
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	switch {
	case s == "" || s == "_" && name != "_":
		return "unnamed"
	case s[0] >= '0' && s[0] <= '9':
		s = "_" + s
	}
	switch {
	case noRawForm[s]:
		return s + "_"
	case rustKeywords[s]:
		return "r#" + s
	case reserved[s]:
		return s + "_"
	}
	return s
}

// namer hands out fresh temporaries that cannot collide with sanitized
// source names, which never start with a double underscore followed by
// a lowercase "t".
type namer struct {
	n map[string]int
}

func (nm *namer) fresh(prefix string) string {
	if nm.n == nil {
		nm.n = make(map[string]int)
	}
	i := nm.n[prefix]
	nm.n[prefix] = i + 1
	return "__" + prefix + strconv.Itoa(i)
}

// label returns a fresh loop or block label.
func (nm *namer) label(prefix string) string {
	return "'" + strings.TrimPrefix(nm.fresh(prefix), "__")
}

// upper turns a module-level variable name into the name of its static.
func upper(name string) string {
	return strings.ToUpper(Sanitize(name))
}

// typeName turns a source name into a CamelCase type name.
func typeName(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		for _, w := range strings.FieldsFunc(p, func(r rune) bool { return r == '_' || r == '.' || r == ' ' }) {
			b.WriteString(strings.ToUpper(w[:1]))
			b.WriteString(w[1:])
		}
	}
	return Sanitize(b.String())
}
