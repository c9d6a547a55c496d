package types

import (
	"github.com/pyrite-lang/pyrite/internal/hir"
)

// Lattice decides subtyping between HIR types and computes least upper
// bounds. Unknown is the top element. Subtype queries are memoized, so a
// Lattice belongs to one checker run.
type Lattice struct {
	// bases maps a class name to its direct base classes.
	bases map[string][]string
	memo  map[[2]string]bool
}

// NewLattice creates a lattice over the given class hierarchy.
func NewLattice(bases map[string][]string) *Lattice {
	if bases == nil {
		bases = make(map[string][]string)
	}
	return &Lattice{bases: bases, memo: make(map[[2]string]bool)}
}

// IsSubtype reports a <: b under reflexivity, Int <: Float, option
// lifting, covariance of List and Optional, class inheritance and union
// membership. Narrowing is never admitted.
func (l *Lattice) IsSubtype(a, b hir.Type) bool {
	key := [2]string{a.Key(), b.Key()}
	if v, ok := l.memo[key]; ok {
		return v
	}
	// Seed with false so cyclic queries through class bases terminate.
	l.memo[key] = false
	v := l.subtype(a, b)
	l.memo[key] = v
	return v
}

func (l *Lattice) subtype(a, b hir.Type) bool {
	if b.Kind == hir.KindUnknown || a.Equal(b) {
		return true
	}
	if a.Kind == hir.KindUnknown {
		return false
	}
	if a.Kind == hir.KindUnion {
		for _, m := range a.Elems {
			if !l.IsSubtype(m, b) {
				return false
			}
		}
		return true
	}
	switch b.Kind {
	case hir.KindFloat:
		return a.Kind == hir.KindInt
	case hir.KindOptional:
		switch a.Kind {
		case hir.KindNone:
			return true
		case hir.KindOptional:
			return l.IsSubtype(a.Elems[0], b.Elems[0])
		}
		return l.IsSubtype(a, b.Elems[0])
	case hir.KindUnion:
		for _, m := range b.Elems {
			if l.IsSubtype(a, m) {
				return true
			}
		}
		return false
	case hir.KindList:
		return a.Kind == hir.KindList && l.IsSubtype(a.Elems[0], b.Elems[0])
	case hir.KindNamed:
		if a.Kind != hir.KindNamed || len(b.Elems) > 0 {
			return false
		}
		return l.inherits(a.Name, b.Name)
	}
	return false
}

// inherits reports whether class sub derives from class sup.
func (l *Lattice) inherits(sub, sup string) bool {
	seen := map[string]bool{}
	stack := []string{sub}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == sup {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, l.bases[n]...)
	}
	return false
}

// ancestors lists name followed by its bases, breadth first.
func (l *Lattice) ancestors(name string) []string {
	out := []string{name}
	seen := map[string]bool{name: true}
	for i := 0; i < len(out); i++ {
		for _, b := range l.bases[out[i]] {
			if !seen[b] {
				seen[b] = true
				out = append(out, b)
			}
		}
	}
	return out
}

// LUB is the least upper bound of a and b. When no bound exists short of
// the top it widens to a Union. A unification variable on one side
// yields the other side.
func (l *Lattice) LUB(a, b hir.Type) hir.Type {
	switch {
	case a.Kind == hir.KindVar && b.Kind == hir.KindVar:
		if a.Var <= b.Var {
			return a
		}
		return b
	case a.Kind == hir.KindVar:
		return b
	case b.Kind == hir.KindVar:
		return a
	case a.Kind == hir.KindUnknown || b.Kind == hir.KindUnknown:
		return hir.Unknown
	}
	if l.IsSubtype(a, b) {
		return b
	}
	if l.IsSubtype(b, a) {
		return a
	}
	if a.Kind == b.Kind {
		switch a.Kind {
		case hir.KindList:
			return hir.ListOf(l.LUB(a.Elems[0], b.Elems[0]))
		case hir.KindSet:
			return hir.SetOf(l.LUB(a.Elems[0], b.Elems[0]))
		case hir.KindOptional:
			return hir.OptionalOf(l.LUB(a.Elems[0], b.Elems[0]))
		case hir.KindDict:
			return hir.DictOf(l.LUB(a.Elems[0], b.Elems[0]), l.LUB(a.Elems[1], b.Elems[1]))
		case hir.KindTuple:
			if len(a.Elems) == len(b.Elems) {
				elems := make([]hir.Type, len(a.Elems))
				for i := range a.Elems {
					elems[i] = l.LUB(a.Elems[i], b.Elems[i])
				}
				return hir.TupleOf(elems...)
			}
		case hir.KindNamed:
			if len(a.Elems) == 0 && len(b.Elems) == 0 {
				for _, anc := range l.ancestors(a.Name) {
					if l.inherits(b.Name, anc) {
						return hir.NamedOf(anc)
					}
				}
			}
		}
	}
	if a.Kind == hir.KindNone {
		return hir.OptionalOf(b)
	}
	if b.Kind == hir.KindNone {
		return hir.OptionalOf(a)
	}
	if a.Kind == hir.KindOptional {
		return hir.OptionalOf(l.LUB(a.Elems[0], b))
	}
	if b.Kind == hir.KindOptional {
		return hir.OptionalOf(l.LUB(a, b.Elems[0]))
	}
	return hir.UnionOf(a, b)
}

// Join is the element type of a container literal holding values of the
// given types. It never produces a Union: when only a Union would fit the
// result is Unknown, which the generator renders as the generic value sum.
func (l *Lattice) Join(ts []hir.Type) hir.Type {
	if len(ts) == 0 {
		return hir.Unknown
	}
	out := ts[0]
	for _, t := range ts[1:] {
		out = l.LUB(out, t)
	}
	if hasUnion(out) {
		return hir.Unknown
	}
	return out
}

func hasUnion(t hir.Type) bool {
	if t.Kind == hir.KindUnion {
		return true
	}
	for _, e := range t.Elems {
		if hasUnion(e) {
			return true
		}
	}
	return false
}

// Compatible reports whether a value of type a may flow into a slot of
// type b: a <: b, or either side still carries Unknown or a variable.
// Values of Unknown type convert through the generic value sum.
func (l *Lattice) Compatible(a, b hir.Type) bool {
	if !a.IsGround() || !b.IsGround() || a.ContainsUnknown() {
		return true
	}
	return l.IsSubtype(a, b)
}
