package types

import (
	"fmt"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/position"
)

// ConstraintKind distinguishes the relations the generator emits.
type ConstraintKind int

const (
	// Eq requires both sides to be the same type.
	Eq ConstraintKind = iota
	// Sub requires Left <: Right.
	Sub
	// Flow records that the name Var has type Right at a program point
	// where its declared type is Left.
	Flow
)

func (k ConstraintKind) String() string {
	switch k {
	case Eq:
		return "eq"
	case Sub:
		return "sub"
	case Flow:
		return "flow"
	}
	return fmt.Sprintf("ConstraintKind(%d)", int(k))
}

// Constraint is one relation between types. Reason is the human-readable
// origin used in mismatch diagnostics.
type Constraint struct {
	Kind   ConstraintKind
	Left   hir.Type
	Right  hir.Type
	Var    string
	Reason string
	Span   position.Span
}

func (c Constraint) String() string {
	switch c.Kind {
	case Eq:
		return fmt.Sprintf("%s = %s", c.Left, c.Right)
	case Sub:
		return fmt.Sprintf("%s <: %s", c.Left, c.Right)
	}
	return fmt.Sprintf("%s: %s ~> %s", c.Var, c.Left, c.Right)
}

// Conflict is a constraint that does not hold once every variable is
// resolved.
type Conflict struct {
	Constraint Constraint
	Left       hir.Type
	Right      hir.Type
}

// varState is the solver's knowledge about one unification variable.
type varState struct {
	parent uint32
	lower  hir.Type
	hasLow bool
	upper  hir.Type
	hasUp  bool
}

// Solver is a worklist solver over Eq, Sub and Flow constraints.
// Variables carry a lower bound grown by LUB as types flow into them, and
// an upper hint taken from the first slot they flow out to. A variable
// whose bound changes re-queues every constraint that mentions it.
type Solver struct {
	lat         *Lattice
	vars        []varState
	constraints []Constraint
	watchers    map[uint32][]int
	steps       int
	// Exhausted is set when Solve stopped at its step bound.
	Exhausted bool
}

// NewSolver creates an empty solver over lat.
func NewSolver(lat *Lattice) *Solver {
	return &Solver{lat: lat, watchers: make(map[uint32][]int)}
}

// Fresh introduces a new unification variable.
func (s *Solver) Fresh() hir.Type {
	id := uint32(len(s.vars))
	s.vars = append(s.vars, varState{parent: id})
	return hir.VarOf(id)
}

// Add records a constraint.
func (s *Solver) Add(c Constraint) {
	idx := len(s.constraints)
	s.constraints = append(s.constraints, c)
	seen := map[uint32]bool{}
	for _, t := range []hir.Type{c.Left, c.Right} {
		collectVars(t, func(id uint32) {
			if !seen[id] {
				seen[id] = true
				s.watchers[id] = append(s.watchers[id], idx)
			}
		})
	}
}

// Constraints returns the recorded constraints in insertion order.
func (s *Solver) Constraints() []Constraint { return s.constraints }

// Steps is the number of constraint visits the last Solve made.
func (s *Solver) Steps() int { return s.steps }

func collectVars(t hir.Type, f func(uint32)) {
	if t.Kind == hir.KindVar {
		f(t.Var)
		return
	}
	for _, e := range t.Elems {
		collectVars(e, f)
	}
}

func (s *Solver) find(id uint32) uint32 {
	for int(id) < len(s.vars) && s.vars[id].parent != id {
		s.vars[id].parent = s.vars[s.vars[id].parent].parent
		id = s.vars[id].parent
	}
	return id
}

// Solve runs the worklist to a fixpoint. The number of visits is bounded
// by a multiple of the constraint count; the lattice has finite height
// for the supported types so the bound is only hit on pathological input.
func (s *Solver) Solve() {
	queue := make([]int, 0, len(s.constraints))
	queued := make([]bool, len(s.constraints))
	for i := range s.constraints {
		queue = append(queue, i)
		queued[i] = true
	}
	maxSteps := 16*len(s.constraints) + 64
	s.steps = 0
	for len(queue) > 0 {
		if s.steps >= maxSteps {
			s.Exhausted = true
			return
		}
		s.steps++
		idx := queue[0]
		queue = queue[1:]
		queued[idx] = false
		for _, id := range s.process(s.constraints[idx]) {
			for _, w := range s.watchers[id] {
				if !queued[w] {
					queued[w] = true
					queue = append(queue, w)
				}
			}
		}
	}
}

// process applies one constraint and returns the variables whose bounds
// changed.
func (s *Solver) process(c Constraint) []uint32 {
	switch c.Kind {
	case Eq:
		var changed []uint32
		changed = append(changed, s.relate(c.Left, c.Right, true)...)
		changed = append(changed, s.relate(c.Right, c.Left, true)...)
		return changed
	case Sub:
		return s.relate(c.Left, c.Right, false)
	case Flow:
		// A narrowing of an unconstrained variable is evidence for its
		// type: `x is None` admits None.
		if c.Left.Kind == hir.KindVar && c.Right.IsGround() {
			return s.raise(s.find(c.Left.Var), c.Right)
		}
	}
	return nil
}

// raise grows the lower bound of id by t.
func (s *Solver) raise(id uint32, t hir.Type) []uint32 {
	t = s.Resolve(t)
	if t.Kind == hir.KindVar && s.find(t.Var) == id {
		return nil
	}
	v := &s.vars[id]
	if !v.hasLow {
		v.lower, v.hasLow = t, true
		return []uint32{id}
	}
	next := s.lat.LUB(v.lower, t)
	if next.Equal(v.lower) {
		return nil
	}
	v.lower = next
	return []uint32{id}
}

// relate propagates sub <: sup. With exact set it also unifies two
// variables.
func (s *Solver) relate(sub, sup hir.Type, exact bool) []uint32 {
	if sub.Kind == hir.KindVar && sup.Kind == hir.KindVar {
		a, b := s.find(sub.Var), s.find(sup.Var)
		if a == b {
			return nil
		}
		if exact {
			return s.union(a, b)
		}
		if s.vars[a].hasLow {
			return s.raise(b, s.vars[a].lower)
		}
		return nil
	}
	if sup.Kind == hir.KindVar {
		return s.raise(s.find(sup.Var), sub)
	}
	if sub.Kind == hir.KindVar {
		id := s.find(sub.Var)
		v := &s.vars[id]
		if !v.hasUp && sup.IsGround() && !sup.IsUnknown() {
			v.upper, v.hasUp = sup, true
			return []uint32{id}
		}
		return nil
	}
	if sub.Kind == sup.Kind && len(sub.Elems) == len(sup.Elems) && sub.Name == sup.Name {
		var changed []uint32
		switch sub.Kind {
		case hir.KindCallable:
			n := len(sub.Elems) - 1
			for i := 0; i < n; i++ {
				changed = append(changed, s.relate(sup.Elems[i], sub.Elems[i], exact)...)
			}
			changed = append(changed, s.relate(sub.Elems[n], sup.Elems[n], exact)...)
		default:
			for i := range sub.Elems {
				changed = append(changed, s.relate(sub.Elems[i], sup.Elems[i], exact)...)
			}
		}
		return changed
	}
	if sup.Kind == hir.KindOptional && sub.Kind != hir.KindNone {
		return s.relate(sub, sup.Elems[0], exact)
	}
	if sup.Kind == hir.KindUnion && !sub.IsGround() {
		for _, m := range sup.Elems {
			if m.Kind == sub.Kind {
				return s.relate(sub, m, exact)
			}
		}
	}
	return nil
}

func (s *Solver) union(a, b uint32) []uint32 {
	if b < a {
		a, b = b, a
	}
	vb := s.vars[b]
	s.vars[b].parent = a
	s.watchers[a] = append(s.watchers[a], s.watchers[b]...)
	changed := []uint32{a}
	if vb.hasLow {
		s.raise(a, vb.lower)
	}
	if vb.hasUp && !s.vars[a].hasUp {
		s.vars[a].upper, s.vars[a].hasUp = vb.upper, true
	}
	return changed
}

// Bound returns the solved type of variable id: its lower bound, else
// its upper hint. ok is false for a variable nothing constrained.
func (s *Solver) Bound(id uint32) (hir.Type, bool) {
	if int(id) >= len(s.vars) {
		return hir.Unknown, false
	}
	v := s.vars[s.find(id)]
	if v.hasLow {
		return v.lower, true
	}
	if v.hasUp {
		return v.upper, true
	}
	return hir.Unknown, false
}

// Root returns the representative of id after unification.
func (s *Solver) Root(id uint32) uint32 { return s.find(id) }

// Resolve substitutes every bound variable in t. Unbound variables are
// kept, canonicalized to their representative.
func (s *Solver) Resolve(t hir.Type) hir.Type {
	return s.resolve(t, 0)
}

func (s *Solver) resolve(t hir.Type, depth int) hir.Type {
	if depth > 32 {
		return hir.Unknown
	}
	if t.IsGround() {
		return t
	}
	return t.Map(func(u hir.Type) hir.Type {
		if u.Kind != hir.KindVar {
			return u
		}
		id := s.find(u.Var)
		if b, ok := s.Bound(id); ok {
			if b.Kind == hir.KindVar && s.find(b.Var) == id {
				return hir.VarOf(id)
			}
			return s.resolve(b, depth+1)
		}
		return hir.VarOf(id)
	})
}

// Conflicts re-checks every Sub and Eq constraint with all variables
// resolved and returns the ones that fail. Sides still carrying Unknown
// or an unbound variable are accepted.
func (s *Solver) Conflicts() []Conflict {
	var out []Conflict
	for _, c := range s.constraints {
		if c.Kind == Flow {
			continue
		}
		l, r := s.Resolve(c.Left), s.Resolve(c.Right)
		ok := s.lat.Compatible(l, r)
		if c.Kind == Eq {
			ok = ok && s.lat.Compatible(r, l)
		}
		if !ok {
			out = append(out, Conflict{Constraint: c, Left: l, Right: r})
		}
	}
	return out
}
