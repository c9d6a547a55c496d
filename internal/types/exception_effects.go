package types

import (
	"sort"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// builtinParents is the part of the builtin exception hierarchy handlers
// can name.
var builtinParents = map[string]string{
	"ValueError":           "Exception",
	"TypeError":            "Exception",
	"LookupError":          "Exception",
	"KeyError":             "LookupError",
	"IndexError":           "LookupError",
	"RuntimeError":         "Exception",
	"NotImplementedError":  "RuntimeError",
	"OSError":              "Exception",
	"IOError":              "OSError",
	"FileNotFoundError":    "OSError",
	"PermissionError":      "OSError",
	"TimeoutError":         "OSError",
	"ConnectionError":      "OSError",
	"ArithmeticError":      "Exception",
	"ZeroDivisionError":    "ArithmeticError",
	"OverflowError":        "ArithmeticError",
	"AttributeError":       "Exception",
	"StopIteration":        "Exception",
	"AssertionError":       "Exception",
	"UnicodeDecodeError":   "ValueError",
	"json.JSONDecodeError": "ValueError",
	"re.error":             "Exception",
	"Exception":            "BaseException",
	"SystemExit":           "BaseException",
	"KeyboardInterrupt":    "BaseException",
}

// isA reports whether exception exc is target or derives from it.
func (c *Checker) isA(exc, target string) bool {
	return c.info.IsA(exc, target)
}

// catches reports whether a handler catching types stops exc.
func (c *Checker) catches(types []string, exc string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if c.isA(exc, t) {
			return true
		}
	}
	return false
}

// computeFallibility finds the exceptions escaping every function body.
// It iterates to a fixpoint because calls propagate their callee's
// exceptions. A function is fallible when anything escapes it, or when it
// is an argument validator.
func (c *Checker) computeFallibility() {
	sigs := make([]*Signature, 0, len(c.sigs))
	for _, s := range c.sigs {
		sigs = append(sigs, s)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Name < sigs[j].Name })

	raised := make(map[*Signature]map[string]bool, len(sigs))
	for changed, round := true, 0; changed && round <= len(sigs)+1; round++ {
		changed = false
		for _, s := range sigs {
			out := map[string]bool{}
			c.escapes(s.Func.Body, nil, out, raised, false)
			if len(out) != len(raised[s]) {
				changed = true
			}
			raised[s] = out
		}
	}
	for _, s := range sigs {
		s.Raises = s.Raises[:0]
		for name := range raised[s] {
			s.Raises = append(s.Raises, name)
		}
		sort.Strings(s.Raises)
		s.Fallible = len(s.Raises) > 0 || s.Func.Props.Validator
		c.escapes(s.Func.Body, nil, map[string]bool{}, raised, true)
	}
	main := map[string]bool{}
	c.escapes(c.mod.Main, nil, main, raised, true)
	c.info.MainFallible = len(main) > 0
}

// escapes adds to out the exceptions leaving b. current lists the types
// of the enclosing handler, for bare re-raises. With record set, every
// fallible call is entered in Info.Fallible.
func (c *Checker) escapes(b hir.Block, current []string, out map[string]bool, raised map[*Signature]map[string]bool, record bool) {
	hir.InspectBlock(b, func(n hir.Node) bool {
		switch n := n.(type) {
		case *hir.FuncDef, *hir.ClassDef, *hir.Lambda:
			return false
		case *hir.Try:
			c.tryEscapes(n, current, out, raised, record)
			return false
		case *hir.Raise:
			switch {
			case n.Reraise && len(current) > 0:
				for _, t := range current {
					out[t] = true
				}
			case n.Reraise, n.Exc == "":
				out["Exception"] = true
			default:
				out[n.Exc] = true
			}
			if sig, ok := c.callees[n]; ok {
				for e := range raised[sig] {
					out[e] = true
				}
			}
		case *hir.Call, *hir.MethodCall:
			kinds := c.callRaises(n, raised)
			for _, k := range kinds {
				out[k] = true
			}
			if record && len(kinds) > 0 {
				c.info.Fallible[n.(hir.Expr)] = kinds[0]
			}
		}
		return true
	})
}

func (c *Checker) tryEscapes(t *hir.Try, current []string, out map[string]bool, raised map[*Signature]map[string]bool, record bool) {
	body := map[string]bool{}
	c.escapes(t.Body, current, body, raised, record)
	for exc := range body {
		caught := false
		for _, h := range t.Handlers {
			if c.catches(h.Types, exc) {
				caught = true
				break
			}
		}
		if !caught {
			out[exc] = true
		}
	}
	for _, h := range t.Handlers {
		types := h.Types
		if len(types) == 0 {
			types = []string{"Exception"}
		}
		c.escapes(h.Body, types, out, raised, record)
	}
	c.escapes(t.Else, current, out, raised, record)
	c.escapes(t.Finally, current, out, raised, record)
}

// callRaises lists what a call can raise, sorted.
func (c *Checker) callRaises(n hir.Node, raised map[*Signature]map[string]bool) []string {
	if sig, ok := c.callees[n]; ok {
		set := raised[sig]
		if len(set) == 0 && sig.Func.Props.Validator {
			return []string{"ValueError"}
		}
		out := make([]string, 0, len(set))
		for e := range set {
			out = append(out, e)
		}
		sort.Strings(out)
		return out
	}
	if rc, ok := c.recipes[n]; ok && rc.Fallible && rc.OnError == stdlib.Propagate {
		kind := rc.ErrorKind
		if kind == "" {
			kind = "Exception"
		}
		return []string{kind}
	}
	return nil
}
