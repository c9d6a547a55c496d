package stdlib

import (
	"strconv"
	"strings"
)

// Arg is a rendered call operand in every form a template can ask for.
// Codegen fills the fields; Expand only selects among them.
type Arg struct {
	// Code is the expression as written, usable as a place.
	Code string
	// Own is an owned value (cloned or converted when needed).
	Own string
	// Ref is a shared borrow.
	Ref string
	// Str is a &str view; for string literals it is the bare literal.
	Str string
	// Char is set when the operand is a one-character string literal.
	Char string
	// IsStr reports that the operand is a string, so keyed lookups borrow
	// it as &str.
	IsStr bool
}

func (a Arg) form(mode string, recvIsString bool) string {
	pick := func(s string) string {
		if s == "" {
			return a.Code
		}
		return s
	}
	switch mode {
	case "":
		return a.Code
	case "own":
		return pick(a.Own)
	case "ref":
		return pick(a.Ref)
	case "str":
		return pick(a.Str)
	case "pat":
		if a.Char != "" && recvIsString {
			return a.Char
		}
		return pick(a.Str)
	case "key":
		if a.IsStr {
			return pick(a.Str)
		}
		return pick(a.Ref)
	}
	return a.Code
}

// Call carries the operands of one expansion.
type Call struct {
	Recv     *Arg
	Args     []Arg
	Defaults []string
	// RecvIsString enables char patterns for :pat arguments.
	RecvIsString bool
}

// Expand substitutes the placeholders of tpl. A placeholder whose
// argument is missing takes the recipe default for that slot, or
// Default::default().
func Expand(tpl string, c Call) string {
	var b strings.Builder
	for i := 0; i < len(tpl); i++ {
		ch := tpl[i]
		if ch != '{' {
			b.WriteByte(ch)
			continue
		}
		end := strings.IndexByte(tpl[i:], '}')
		if end < 0 {
			b.WriteString(tpl[i:])
			break
		}
		body := tpl[i+1 : i+end]
		if out, ok := c.placeholder(body); ok {
			b.WriteString(out)
			i += end
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func (c Call) placeholder(body string) (string, bool) {
	name, mode, _ := strings.Cut(body, ":")
	switch name {
	case "recv":
		if !validMode(mode) {
			return "", false
		}
		if c.Recv == nil {
			return "self", true
		}
		return c.Recv.form(mode, c.RecvIsString), true
	case "args":
		if mode != "" {
			return "", false
		}
		parts := make([]string, len(c.Args))
		for i, a := range c.Args {
			parts[i] = a.form("own", c.RecvIsString)
		}
		return strings.Join(parts, ", "), true
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || !validMode(mode) {
		return "", false
	}
	if n < len(c.Args) {
		return c.Args[n].form(mode, c.RecvIsString), true
	}
	if n < len(c.Defaults) && c.Defaults[n] != "" {
		return c.Defaults[n], true
	}
	return "Default::default()", true
}

func validMode(mode string) bool {
	switch mode {
	case "", "own", "ref", "str", "pat", "key":
		return true
	}
	return false
}

// Placeholders lists the argument slots a template references, with the
// mode of each use. Slot -1 is the receiver.
func Placeholders(tpl string) map[int][]string {
	out := make(map[int][]string)
	for i := 0; i < len(tpl); i++ {
		if tpl[i] != '{' {
			continue
		}
		end := strings.IndexByte(tpl[i:], '}')
		if end < 0 {
			break
		}
		name, mode, _ := strings.Cut(tpl[i+1:i+end], ":")
		if !validMode(mode) {
			continue
		}
		if name == "recv" {
			out[-1] = append(out[-1], mode)
		} else if n, err := strconv.Atoi(name); err == nil && n >= 0 {
			out[n] = append(out[n], mode)
		}
	}
	return out
}
