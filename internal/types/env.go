package types

import (
	"sort"

	"github.com/pyrite-lang/pyrite/internal/hir"
)

// binding is the live version of a name at a program point.
type binding struct {
	local   *Local
	version int
	narrow  *Narrowing
}

// Env is the flow-sensitive typing environment of one body. Each name
// maps to its live SSA version; Fork copies the map for a nested block
// and Join merges the surviving branches back.
//
// During the generation walk Bind decides versions and widens version
// types in the scope. During the annotation walk it replays the decisions
// recorded for each binding target, so both walks agree.
type Env struct {
	lat   *Lattice
	scope *Scope
	vars  map[string]binding
	depth int

	// record collects the version chosen for each binding target; replay
	// is the record of an earlier walk, nil while generating.
	record map[*hir.Name]int
	replay map[*hir.Name]int
}

// NewEnv creates an empty top-level environment over scope.
func NewEnv(lat *Lattice, scope *Scope) *Env {
	return &Env{lat: lat, scope: scope, vars: make(map[string]binding), record: make(map[*hir.Name]int)}
}

func (e *Env) replaying(replay map[*hir.Name]int) *Env {
	e.replay = replay
	return e
}

// Lookup returns the type, version and narrowing of name.
func (e *Env) Lookup(name string) (hir.Type, int, *Narrowing, bool) {
	b, ok := e.vars[name]
	if !ok {
		return hir.Unknown, 0, nil, false
	}
	if b.narrow != nil {
		return b.narrow.To, b.version, b.narrow, true
	}
	return b.local.Versions[b.version], b.version, nil, true
}

// Has reports whether name is bound.
func (e *Env) Has(name string) bool {
	_, ok := e.vars[name]
	return ok
}

// Declare binds name with a fixed annotated type. Later bindings keep it.
func (e *Env) Declare(name string, t hir.Type, target *hir.Name, at hir.Node) int {
	loc := e.scope.Lookup(name)
	if loc == nil {
		loc = e.scope.add(name, t, at)
	} else if e.replay == nil {
		loc.Versions[len(loc.Versions)-1] = t
	}
	loc.Declared = true
	v := len(loc.Versions) - 1
	e.vars[name] = binding{local: loc, version: v}
	if target != nil {
		e.record[target] = v
	}
	return v
}

// Param binds a function parameter as version 0.
func (e *Env) Param(name string, t hir.Type, at hir.Node) {
	loc := e.scope.Lookup(name)
	if loc == nil {
		loc = e.scope.add(name, t, at)
		loc.Param = true
	}
	e.vars[name] = binding{local: loc, version: 0}
}

// Bind assigns t to name and returns the version the target denotes.
// A rebinding whose least upper bound with the live version is a proper
// type widens that version. An incompatible rebinding at the top level
// of the body pushes a new version; inside a nested block it widens to
// the union, since a new version would not outlive the block.
func (e *Env) Bind(name string, t hir.Type, target *hir.Name, at hir.Node) int {
	if e.replay != nil {
		if v, ok := e.replay[target]; ok {
			loc := e.scope.Lookup(name)
			if loc == nil {
				if b, ok := e.vars[name]; ok {
					loc = b.local
				}
			}
			if loc != nil && v < len(loc.Versions) {
				e.vars[name] = binding{local: loc, version: v}
				e.record[target] = v
				return v
			}
		}
	}
	loc := e.scope.Lookup(name)
	var v int
	switch {
	case loc == nil:
		loc = e.scope.add(name, t, at)
	case loc.Declared:
		v = len(loc.Versions) - 1
	default:
		v = len(loc.Versions) - 1
		if b, ok := e.vars[name]; ok && b.local == loc {
			v = b.version
		}
		cur := loc.Versions[v]
		lub := e.lat.LUB(cur, t)
		switch {
		case !hasUnion(lub) || e.depth > 0:
			loc.Versions[v] = lub
		case e.replay == nil:
			loc.Versions = append(loc.Versions, t)
			v = len(loc.Versions) - 1
		}
	}
	e.vars[name] = binding{local: loc, version: v}
	if target != nil {
		e.record[target] = v
	}
	return v
}

// BindLocal binds a name that is not a function local, such as a
// comprehension or lambda variable.
func (e *Env) BindLocal(name string, t hir.Type, at hir.Node) {
	e.vars[name] = binding{local: &Local{Name: name, Versions: []hir.Type{t}, First: at}}
}

// Narrow gives name a narrower type until the enclosing block ends.
func (e *Env) Narrow(name string, to hir.Type, guard hir.Node) (hir.Type, bool) {
	b, ok := e.vars[name]
	if !ok {
		return hir.Unknown, false
	}
	from := b.local.Versions[b.version]
	b.narrow = &Narrowing{From: from, To: to, Guard: guard}
	e.vars[name] = b
	return from, true
}

// Delete unbinds name.
func (e *Env) Delete(name string) { delete(e.vars, name) }

// Fork copies the environment for a nested block.
func (e *Env) Fork() *Env {
	vars := make(map[string]binding, len(e.vars))
	for k, v := range e.vars {
		vars[k] = v
	}
	return &Env{lat: e.lat, scope: e.scope, vars: vars, depth: e.depth + 1, record: e.record, replay: e.replay}
}

// WithScope returns a fork whose new bindings go to scope, for nested
// function bodies. Enclosing bindings stay visible.
func (e *Env) WithScope(scope *Scope) *Env {
	f := e.Fork()
	f.scope = scope
	f.depth = 0
	return f
}

// Join merges the environments of the branches that fall through into e.
// Names bound to the same version keep it; differing versions resolve to
// the newest one, widened to the LUB of every branch. Narrowings survive
// only when every branch carries the same one.
func (e *Env) Join(branches ...*Env) {
	if len(branches) == 0 {
		return
	}
	names := map[string]bool{}
	for _, b := range branches {
		for k := range b.vars {
			names[k] = true
		}
	}
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	merged := make(map[string]binding, len(keys))
	for _, name := range keys {
		var out binding
		first := true
		same := true
		for _, br := range branches {
			b, ok := br.vars[name]
			if !ok {
				continue
			}
			if first {
				out, first = b, false
				continue
			}
			if b.local != out.local || b.version != out.version || !sameNarrowing(b.narrow, out.narrow) {
				same = false
			}
			if b.local == out.local && b.version > out.version {
				out.version = b.version
			}
		}
		if !same {
			out.narrow = nil
			if e.replay == nil {
				t := out.local.Versions[out.version]
				for _, br := range branches {
					if b, ok := br.vars[name]; ok && b.local == out.local {
						t = e.lat.LUB(t, b.local.Versions[b.version])
					}
				}
				out.local.Versions[out.version] = t
			}
		}
		merged[name] = out
	}
	e.vars = merged
}

func sameNarrowing(a, b *Narrowing) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Guard == b.Guard && a.To.Equal(b.To)
}

// adopt copies into e the names first bound in fork, such as walrus
// targets inside a short-circuit operand.
func (e *Env) adopt(fork *Env) {
	for name, b := range fork.vars {
		if _, ok := e.vars[name]; !ok {
			b.narrow = nil
			e.vars[name] = b
		}
	}
}
