package stdlib

import (
	"github.com/pyrite-lang/pyrite/internal/hir"
)

func dictValue(recv hir.Type, _ []hir.Type) hir.Type { return recv.ValueType() }

func dictValueOption(recv hir.Type, _ []hir.Type) hir.Type { return hir.OptionalOf(recv.ValueType()) }

func registerListMethods(r *Registry) {
	list := func(rc Recipe) {
		r.addMethod(RecvList, rc)
		r.addMethod(RecvDeque, rc)
	}
	none := ret(hir.None)
	list(Recipe{Path: "append", Template: "{recv}.push({0:own})", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	list(Recipe{Path: "extend", Template: "{recv}.extend({0:own})", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	list(Recipe{Path: "insert", Template: "{recv}.insert({0} as usize, {1:own})", MinArgs: 2, MaxArgs: 2, Mutates: true, Result: none})
	list(Recipe{Path: "pop", Template: "{recv}.pop().expect(\"pop from empty list\")", MinArgs: 0, MaxArgs: 0, Mutates: true, Result: recvElem})
	list(Recipe{Path: "pop", Template: "{recv}.remove({0} as usize)", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: recvElem})
	list(Recipe{Path: "remove", Template: "if let Some(i) = {recv}.iter().position(|v| *v == {0}) { {recv}.remove(i); }",
		MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	list(Recipe{Path: "index", Template: "{recv}.iter().position(|v| *v == {0}).map(|i| i as i64).ok_or(\"value is not in list\")",
		MinArgs: 1, MaxArgs: 1, Fallible: true, ErrorKind: "ValueError", Result: ret(hir.Int)})
	list(Recipe{Path: "count", Template: "({recv}.iter().filter(|v| **v == {0}).count() as i64)", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Int)})
	list(Recipe{Path: "sort", Special: "list_sort", MinArgs: 0, MaxArgs: 0, Keywords: []string{"key", "reverse"}, Mutates: true, Result: none})
	list(Recipe{Path: "reverse", Template: "{recv}.reverse()", Mutates: true, Result: none})
	list(Recipe{Path: "clear", Template: "{recv}.clear()", Mutates: true, Result: none})
	list(Recipe{Path: "copy", Template: "{recv}.clone()", Result: recvSelf})

	r.addMethod(RecvDeque, Recipe{Path: "append", Template: "{recv}.push_back({0:own})", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	r.addMethod(RecvDeque, Recipe{Path: "appendleft", Template: "{recv}.push_front({0:own})", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	r.addMethod(RecvDeque, Recipe{Path: "pop", Template: "{recv}.pop_back().expect(\"pop from an empty deque\")", Mutates: true, Result: recvElem})
	r.addMethod(RecvDeque, Recipe{Path: "popleft", Template: "{recv}.pop_front().expect(\"pop from an empty deque\")", Mutates: true, Result: recvElem})
	r.addMethod(RecvDeque, Recipe{Path: "rotate", Template: "{recv}.rotate_right({0} as usize)", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
}

func registerDictMethods(r *Registry) {
	dict := func(rc Recipe) { r.addMethod(RecvDict, rc) }
	none := ret(hir.None)
	dict(Recipe{Path: "get", Template: "{recv}.get({0:key}).cloned()", MinArgs: 1, MaxArgs: 1, ReturnsOption: true, Result: dictValueOption})
	dict(Recipe{Path: "get", Template: "{recv}.get({0:key}).cloned().unwrap_or({1:own})", MinArgs: 2, MaxArgs: 2, Result: dictValue})
	dict(Recipe{Path: "keys", Template: "{recv}.keys().cloned().collect::<Vec<_>>()",
		Result: func(recv hir.Type, _ []hir.Type) hir.Type { return hir.ListOf(recv.KeyType()) }})
	dict(Recipe{Path: "values", Template: "{recv}.values().cloned().collect::<Vec<_>>()",
		Result: func(recv hir.Type, _ []hir.Type) hir.Type { return hir.ListOf(recv.ValueType()) }})
	dict(Recipe{Path: "items", Template: "{recv}.iter().map(|(k, v)| (k.clone(), v.clone())).collect::<Vec<_>>()",
		Result: func(recv hir.Type, _ []hir.Type) hir.Type {
			return hir.ListOf(hir.TupleOf(recv.KeyType(), recv.ValueType()))
		}})
	dict(Recipe{Path: "pop", Template: "{recv}.remove({0:key}).expect(\"KeyError\")", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: dictValue})
	dict(Recipe{Path: "pop", Template: "{recv}.remove({0:key}).unwrap_or({1:own})", MinArgs: 2, MaxArgs: 2, Mutates: true, Result: dictValue})
	dict(Recipe{Path: "setdefault", Template: "{recv}.entry({0:own}).or_insert({1:own}).clone()", MinArgs: 2, MaxArgs: 2, Mutates: true, Result: dictValue})
	dict(Recipe{Path: "update", Template: "{recv}.extend({0:own})", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	dict(Recipe{Path: "clear", Template: "{recv}.clear()", Mutates: true, Result: none})
	dict(Recipe{Path: "copy", Template: "{recv}.clone()", Result: recvSelf})
	dict(Recipe{Path: "most_common", Template: "py_most_common(&{recv}, {0} as usize)", MinArgs: 0, MaxArgs: 1, Defaults: []string{"usize::MAX"},
		Helpers: []string{"py_most_common"},
		Result: func(recv hir.Type, _ []hir.Type) hir.Type {
			return hir.ListOf(hir.TupleOf(recv.KeyType(), hir.Int))
		}})
}

func registerSetMethods(r *Registry) {
	set := func(rc Recipe) { r.addMethod(RecvSet, rc) }
	none := ret(hir.None)
	set(Recipe{Path: "add", Template: "{recv}.insert({0:own})", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	set(Recipe{Path: "remove", Template: "{recv}.remove({0:key})", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	set(Recipe{Path: "discard", Template: "{recv}.remove({0:key})", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	set(Recipe{Path: "clear", Template: "{recv}.clear()", Mutates: true, Result: none})
	set(Recipe{Path: "update", Template: "{recv}.extend({0:own})", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: none})
	set(Recipe{Path: "copy", Template: "{recv}.clone()", Result: recvSelf})
	set(Recipe{Path: "union", Template: "{recv}.union(&{0}).cloned().collect::<HashSet<_>>()", MinArgs: 1, MaxArgs: 1, Result: recvSelf})
	set(Recipe{Path: "intersection", Template: "{recv}.intersection(&{0}).cloned().collect::<HashSet<_>>()", MinArgs: 1, MaxArgs: 1, Result: recvSelf})
	set(Recipe{Path: "difference", Template: "{recv}.difference(&{0}).cloned().collect::<HashSet<_>>()", MinArgs: 1, MaxArgs: 1, Result: recvSelf})
	set(Recipe{Path: "symmetric_difference", Template: "{recv}.symmetric_difference(&{0}).cloned().collect::<HashSet<_>>()", MinArgs: 1, MaxArgs: 1, Result: recvSelf})
	set(Recipe{Path: "issubset", Template: "{recv}.is_subset(&{0})", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Bool)})
	set(Recipe{Path: "issuperset", Template: "{recv}.is_superset(&{0})", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Bool)})
	set(Recipe{Path: "isdisjoint", Template: "{recv}.is_disjoint(&{0})", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Bool)})
}

// registerValueMethods covers receivers whose type degraded to PyValue.
// Accessors go through the generated sum type's helper methods.
func registerValueMethods(r *Registry) {
	val := func(rc Recipe) {
		rc.Helpers = append(rc.Helpers, "PyValue")
		r.addMethod(RecvValue, rc)
	}
	val(Recipe{Path: "get", Template: "{recv}.get_item({0:str}).cloned()", MinArgs: 1, MaxArgs: 1, ReturnsOption: true, Result: ret(hir.OptionalOf(hir.Unknown))})
	val(Recipe{Path: "get", Template: "{recv}.get_item({0:str}).cloned().unwrap_or_else(|| PyValue::from({1:own}))", MinArgs: 2, MaxArgs: 2, Result: ret(hir.Unknown)})
	val(Recipe{Path: "keys", Template: "{recv}.keys()", Result: ret(hir.ListOf(hir.Str))})
	val(Recipe{Path: "values", Template: "{recv}.as_dict().values().cloned().collect::<Vec<PyValue>>()", Result: ret(hir.ListOf(hir.Unknown))})
	val(Recipe{Path: "items", Template: "{recv}.as_dict().iter().map(|(k, v)| (k.clone(), v.clone())).collect::<Vec<_>>()",
		Result: ret(hir.ListOf(hir.TupleOf(hir.Str, hir.Unknown)))})
	val(Recipe{Path: "append", Template: "{recv}.push(PyValue::from({0:own}))", MinArgs: 1, MaxArgs: 1, Mutates: true, Result: ret(hir.None)})
	val(Recipe{Path: "upper", Template: "{recv}.to_string().to_uppercase()", Result: ret(hir.Str)})
	val(Recipe{Path: "lower", Template: "{recv}.to_string().to_lowercase()", Result: ret(hir.Str)})
	val(Recipe{Path: "strip", Template: "{recv}.to_string().trim().to_string()", Result: ret(hir.Str)})
}
