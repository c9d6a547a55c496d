package ownership

import "github.com/pyrite-lang/pyrite/internal/hir"

// ====== Last use ======

// lastUses marks every read after which its variable is dead on all
// paths, so generated code may move the value instead of cloning it.
func lastUses(ft *facts, isVar func(string) bool) map[*hir.Name]bool {
	reads := make(map[string][]ref)
	for _, r := range ft.reads {
		reads[r.id] = append(reads[r.id], r)
	}
	writes := make(map[string][]ref)
	for _, w := range ft.writes {
		writes[w.id] = append(writes[w.id], w)
	}
	out := make(map[*hir.Name]bool)
	for id, rs := range reads {
		if !isVar(id) || ft.captured[id] {
			continue
		}
		for _, r := range rs {
			if isLast(r, rs, writes[id]) {
				out[r.name] = true
			}
		}
	}
	return out
}

func isLast(r ref, reads, writes []ref) bool {
	for _, st := range r.path {
		if st.kind == stepClosure {
			return false
		}
	}
	if r.stmt != nil && !guarded(r.path) {
		// Control leaves the body once the statement finishes.
		for _, o := range reads {
			if o.stmt == r.stmt && o.seq > r.seq {
				return false
			}
		}
		return true
	}
	for _, st := range r.path {
		if st.kind == stepLoop && carried(st.node, r, reads, writes) {
			return false
		}
	}
	for _, o := range reads {
		if o.seq <= r.seq || exclusive(r.path, o.path) || killed(r, o, writes) {
			continue
		}
		return false
	}
	return true
}

// carried reports whether the value read by r can reach another read in
// the next iteration of loop. It cannot when a write inside the loop,
// on every path through r, rebinds the variable before any such read.
func carried(loop hir.Node, r ref, reads, writes []ref) bool {
	for _, w := range writes {
		if !inside(w.path, loop) || !prefix(w.path, r.path) {
			continue
		}
		blocked := false
		for _, o := range reads {
			if o.seq == r.seq || !inside(o.path, loop) {
				continue
			}
			if w.seq > r.seq {
				blocked = o.seq > r.seq && o.seq < w.seq
			} else {
				blocked = o.seq > r.seq || o.seq < w.seq
			}
			if blocked {
				break
			}
		}
		if !blocked {
			return false
		}
	}
	return true
}

// killed reports whether a write between r and o rebinds the variable on
// every path reaching o.
func killed(r, o ref, writes []ref) bool {
	for _, w := range writes {
		if w.seq > r.seq && w.seq < o.seq && prefix(w.path, o.path) {
			return true
		}
	}
	return false
}

// exclusive reports whether no execution reaches both program points:
// they sit in different arms of one branch, or in different handlers of
// one try.
func exclusive(p, q []step) bool {
	for i := 0; i < len(p) && i < len(q); i++ {
		if p[i].node != q[i].node {
			return false
		}
		if p[i].arm == q[i].arm {
			continue
		}
		switch p[i].kind {
		case stepBranch:
			return true
		case stepHandler:
			return p[i].arm > 0 && q[i].arm > 0
		}
		return false
	}
	return false
}

// guarded reports whether a point lies in a try body, where a handler or
// finally block may still run after a return or raise.
func guarded(p []step) bool {
	for _, st := range p {
		if st.kind == stepHandler && st.arm == 0 {
			return true
		}
	}
	return false
}

func prefix(p, q []step) bool {
	if len(p) > len(q) {
		return false
	}
	for i := range p {
		if p[i].node != q[i].node || p[i].arm != q[i].arm {
			return false
		}
	}
	return true
}

func inside(p []step, n hir.Node) bool {
	for _, st := range p {
		if st.node == n {
			return true
		}
	}
	return false
}
