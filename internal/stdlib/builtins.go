package stdlib

import (
	"github.com/pyrite-lang/pyrite/internal/hir"
)

func ret(t hir.Type) ResultFunc {
	return func(hir.Type, []hir.Type) hir.Type { return t }
}

// ElementOf returns the type produced by iterating over t.
func ElementOf(t hir.Type) hir.Type {
	switch t.Kind {
	case hir.KindList, hir.KindSet:
		return t.Elem()
	case hir.KindDict:
		return t.KeyType()
	case hir.KindString:
		return hir.Str
	case hir.KindTuple:
		if len(t.Elems) == 0 {
			return hir.Unknown
		}
		for _, e := range t.Elems[1:] {
			if !e.Equal(t.Elems[0]) {
				return hir.Unknown
			}
		}
		return t.Elems[0]
	case hir.KindNamed:
		if len(t.Elems) > 0 {
			return t.Elems[0]
		}
	}
	return hir.Unknown
}

func argType(args []hir.Type, i int) hir.Type {
	if i < len(args) {
		return args[i]
	}
	return hir.Unknown
}

func argElem(i int) ResultFunc {
	return func(_ hir.Type, args []hir.Type) hir.Type { return ElementOf(argType(args, i)) }
}

func listOfArgElem(i int) ResultFunc {
	return func(_ hir.Type, args []hir.Type) hir.Type { return hir.ListOf(ElementOf(argType(args, i))) }
}

func argSelf(i int) ResultFunc {
	return func(_ hir.Type, args []hir.Type) hir.Type { return argType(args, i) }
}

func recvSelf(recv hir.Type, _ []hir.Type) hir.Type { return recv }

func recvElem(recv hir.Type, _ []hir.Type) hir.Type { return ElementOf(recv) }

// numericJoin is the result of arithmetic-like builtins over all args.
func numericJoin(_ hir.Type, args []hir.Type) hir.Type {
	out := hir.Int
	for _, a := range args {
		switch a.Kind {
		case hir.KindFloat:
			out = hir.Float
		case hir.KindInt, hir.KindBool:
		default:
			return hir.Unknown
		}
	}
	return out
}

func minMaxResult(_ hir.Type, args []hir.Type) hir.Type {
	if len(args) == 1 {
		return ElementOf(args[0])
	}
	if len(args) == 0 {
		return hir.Unknown
	}
	if t := numericJoin(hir.Unknown, args); !t.IsUnknown() {
		return t
	}
	for _, a := range args[1:] {
		if !a.Equal(args[0]) {
			return hir.Unknown
		}
	}
	return args[0]
}

func registerBuiltins(r *Registry) {
	// len dispatches on the container kind.
	r.addFunc(Recipe{Path: "len", On: RecvStr, Template: "({0}.chars().count() as i64)", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Int)})
	r.addFunc(Recipe{Path: "len", On: RecvValue, Template: "({0}.len() as i64)", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Int), Helpers: []string{"PyValue"}})
	r.addFunc(Recipe{Path: "len", Template: "({0}.len() as i64)", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Int)})

	r.addFunc(Recipe{Path: "print", Special: "print", MinArgs: 0, MaxArgs: -1, Keywords: []string{"sep", "end", "file"}, Result: ret(hir.None)})
	r.addFunc(Recipe{Path: "input", Template: "py_input({0:str})", MinArgs: 0, MaxArgs: 1, Result: ret(hir.Str), Helpers: []string{"py_input"}})

	r.addFunc(Recipe{Path: "range", Template: "(0..{0})", MinArgs: 1, MaxArgs: 1, Result: ret(hir.NamedOf(TypeIter, hir.Int))})
	r.addFunc(Recipe{Path: "range", Template: "({0}..{1})", MinArgs: 2, MaxArgs: 2, Result: ret(hir.NamedOf(TypeIter, hir.Int))})
	r.addFunc(Recipe{Path: "range", Special: "range_step", MinArgs: 3, MaxArgs: 3, Result: ret(hir.NamedOf(TypeIter, hir.Int))})

	r.addFunc(Recipe{Path: "int", On: RecvStr, Template: "{0:str}.trim().parse::<i64>()", MinArgs: 1, MaxArgs: 1,
		Fallible: true, ErrorKind: "ValueError", Result: ret(hir.Int)})
	r.addFunc(Recipe{Path: "int", On: RecvStr, Template: "i64::from_str_radix({0:str}.trim(), {1} as u32)", MinArgs: 2, MaxArgs: 2,
		Fallible: true, ErrorKind: "ValueError", Result: ret(hir.Int)})
	r.addFunc(Recipe{Path: "int", On: RecvValue, Template: "{0}.as_int()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Int), Helpers: []string{"PyValue"}})
	r.addFunc(Recipe{Path: "int", On: RecvInt, Template: "{0}", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Int)})
	r.addFunc(Recipe{Path: "int", Template: "({0} as i64)", MinArgs: 0, MaxArgs: 1, Result: ret(hir.Int)})

	r.addFunc(Recipe{Path: "float", On: RecvStr, Template: "{0:str}.trim().parse::<f64>()", MinArgs: 1, MaxArgs: 1,
		Fallible: true, ErrorKind: "ValueError", Result: ret(hir.Float)})
	r.addFunc(Recipe{Path: "float", On: RecvValue, Template: "{0}.as_float()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Float), Helpers: []string{"PyValue"}})
	r.addFunc(Recipe{Path: "float", On: RecvFloat, Template: "{0}", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Float)})
	r.addFunc(Recipe{Path: "float", Template: "({0} as f64)", MinArgs: 0, MaxArgs: 1, Result: ret(hir.Float)})

	r.addFunc(Recipe{Path: "str", Special: "str", MinArgs: 0, MaxArgs: 1, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "repr", Template: "format!(\"{:?}\", {0})", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "bool", Special: "truthy", MinArgs: 0, MaxArgs: 1, Result: ret(hir.Bool)})

	r.addFunc(Recipe{Path: "abs", Template: "{0}.abs()", MinArgs: 1, MaxArgs: 1, Result: argSelf(0)})
	r.addFunc(Recipe{Path: "pow", On: RecvFloat, Template: "{0}.powf({1} as f64)", MinArgs: 2, MaxArgs: 2, Result: ret(hir.Float)})
	r.addFunc(Recipe{Path: "pow", Template: "{0}.pow({1} as u32)", MinArgs: 2, MaxArgs: 2, Result: argSelf(0)})
	r.addFunc(Recipe{Path: "divmod", Template: "({0}.div_euclid({1}), {0}.rem_euclid({1}))", MinArgs: 2, MaxArgs: 2,
		Result: func(_ hir.Type, args []hir.Type) hir.Type {
			t := numericJoin(hir.Unknown, args)
			return hir.TupleOf(t, t)
		}})
	r.addFunc(Recipe{Path: "round", Template: "({0}.round() as i64)", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Int)})
	r.addFunc(Recipe{Path: "round", Template: "(({0} * 10f64.powi({1} as i32)).round() / 10f64.powi({1} as i32))", MinArgs: 2, MaxArgs: 2, Result: ret(hir.Float)})
	r.addFunc(Recipe{Path: "min", Special: "min", MinArgs: 1, MaxArgs: -1, Keywords: []string{"key", "default"}, Result: minMaxResult})
	r.addFunc(Recipe{Path: "max", Special: "max", MinArgs: 1, MaxArgs: -1, Keywords: []string{"key", "default"}, Result: minMaxResult})
	r.addFunc(Recipe{Path: "sum", Special: "sum", MinArgs: 1, MaxArgs: 2, Result: argElem(0)})

	r.addFunc(Recipe{Path: "sorted", Special: "sorted", MinArgs: 1, MaxArgs: 1, Keywords: []string{"key", "reverse"}, Result: listOfArgElem(0)})
	r.addFunc(Recipe{Path: "reversed", Template: "{0}.iter().rev().cloned().collect::<Vec<_>>()", MinArgs: 1, MaxArgs: 1, Result: listOfArgElem(0)})
	r.addFunc(Recipe{Path: "enumerate", Special: "enumerate", MinArgs: 1, MaxArgs: 2, Keywords: []string{"", "start"},
		Result: func(_ hir.Type, args []hir.Type) hir.Type {
			return hir.NamedOf(TypeIter, hir.TupleOf(hir.Int, ElementOf(argType(args, 0))))
		}})
	r.addFunc(Recipe{Path: "zip", Special: "zip", MinArgs: 2, MaxArgs: 3,
		Result: func(_ hir.Type, args []hir.Type) hir.Type {
			elems := make([]hir.Type, len(args))
			for i, a := range args {
				elems[i] = ElementOf(a)
			}
			return hir.NamedOf(TypeIter, hir.TupleOf(elems...))
		}})
	r.addFunc(Recipe{Path: "any", Special: "any", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Bool)})
	r.addFunc(Recipe{Path: "all", Special: "all", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Bool)})

	r.addFunc(Recipe{Path: "list", Template: "Vec::new()", MinArgs: 0, MaxArgs: 0, Result: ret(hir.ListOf(hir.Unknown))})
	r.addFunc(Recipe{Path: "list", On: RecvStr, Template: "{0}.chars().map(String::from).collect::<Vec<String>>()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.ListOf(hir.Str))})
	r.addFunc(Recipe{Path: "list", Special: "collect_list", MinArgs: 1, MaxArgs: 1, Result: listOfArgElem(0)})
	r.addFunc(Recipe{Path: "set", Template: "HashSet::new()", MinArgs: 0, MaxArgs: 0, Imports: []string{"std::collections::HashSet"}, Result: ret(hir.SetOf(hir.Unknown))})
	r.addFunc(Recipe{Path: "set", Special: "collect_set", MinArgs: 1, MaxArgs: 1, Imports: []string{"std::collections::HashSet"},
		Result: func(_ hir.Type, args []hir.Type) hir.Type { return hir.SetOf(ElementOf(argType(args, 0))) }})
	r.addFunc(Recipe{Path: "dict", Template: "HashMap::new()", MinArgs: 0, MaxArgs: 0, Imports: []string{"std::collections::HashMap"}, Result: ret(hir.DictOf(hir.Unknown, hir.Unknown))})
	r.addFunc(Recipe{Path: "dict", Special: "collect_dict", MinArgs: 1, MaxArgs: 1, Imports: []string{"std::collections::HashMap"},
		Result: func(_ hir.Type, args []hir.Type) hir.Type {
			a := argType(args, 0)
			if a.Kind == hir.KindDict {
				return a
			}
			if el := ElementOf(a); el.Kind == hir.KindTuple && len(el.Elems) == 2 {
				return hir.DictOf(el.Elems[0], el.Elems[1])
			}
			return hir.DictOf(hir.Unknown, hir.Unknown)
		}})
	r.addFunc(Recipe{Path: "tuple", Special: "collect_list", MinArgs: 1, MaxArgs: 1, Result: listOfArgElem(0)})

	r.addFunc(Recipe{Path: "isinstance", Special: "isinstance", MinArgs: 2, MaxArgs: 2, Result: ret(hir.Bool)})
	r.addFunc(Recipe{Path: "ord", Template: "({0:str}.chars().next().unwrap_or('\\0') as i64)", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Int)})
	r.addFunc(Recipe{Path: "chr", Template: "char::from_u32({0} as u32).map(String::from).unwrap_or_default()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "hex", Template: "format!(\"{:#x}\", {0})", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "bin", Template: "format!(\"{:#b}\", {0})", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "oct", Template: "format!(\"{:#o}\", {0})", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "exit", Template: "std::process::exit({0} as i32)", MinArgs: 0, MaxArgs: 1, Result: ret(hir.None)})

	r.addFunc(Recipe{Path: "open", Special: "open", MinArgs: 1, MaxArgs: 2, Keywords: []string{"file", "mode", "encoding"},
		Fallible: true, ErrorKind: "OSError", Result: ret(hir.NamedOf(TypeFile))})
}
