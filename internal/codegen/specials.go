package codegen

import (
	"strconv"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/diagnostic"
	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/stdlib"
)

// special expands the recipes whose Rust shape depends on argument types
// or keywords beyond what a template can express.
func (g *generator) special(rc stdlib.Recipe, node hir.Node, recv *val, args []hir.Expr, kws []hir.Keyword, t hir.Type) val {
	switch rc.Special {
	case "print":
		return g.print(node, args, kws)
	case "str":
		if len(args) == 0 {
			return val{code: "String::new()", t: hir.Str}
		}
		return val{code: g.strOf(g.expr(args[0])), t: hir.Str}
	case "truthy":
		if len(args) == 0 {
			return val{code: "false", t: hir.Bool}
		}
		return val{code: g.truthy(g.expr(args[0])), t: hir.Bool}
	case "range_step":
		return g.rangeStep(args)
	case "min", "max":
		return g.minMax(rc.Special, args, kws, t)
	case "sum":
		return g.sum(args, t)
	case "sorted":
		return g.sorted(args[0], keyword(kws, "key"), keyword(kws, "reverse"), t)
	case "list_sort":
		stmts := g.sortStmts(recv.code, elemOr(recv.t), keyword(kws, "key"), keyword(kws, "reverse"))
		if len(stmts) == 1 {
			return val{code: stmts[0], t: hir.None}
		}
		return val{code: "{ " + strings.Join(stmts, "; ") + "; }", t: hir.None}
	case "enumerate":
		c := node.(*hir.Call)
		return val{code: g.iterOwned(g.enumerateSource(c, nil)), t: t, iter: true}
	case "zip":
		c := node.(*hir.Call)
		return val{code: g.iterOwned(g.zipSource(c, nil)), t: t, iter: true}
	case "any", "all":
		return g.anyAll(rc.Special, args[0])
	case "collect_list":
		return val{code: g.ownedVec(args[0], t), t: t}
	case "collect_set", "collect_dict":
		if at := g.typeOf(args[0]); at.Kind == t.Kind {
			return val{code: g.coerce(g.expr(args[0]), t), t: t}
		}
		src := g.iterOwned(g.iterSource(args[0], nil))
		return val{code: src + ".collect::<" + g.rustType(t) + ">()", t: t}
	case "isinstance":
		return val{code: g.isInstance(args[0], args[1]), t: hir.Bool}
	case "open":
		return g.open(node, args, kws)
	case "join":
		return g.join(*recv, args[0])
	case "str_format":
		return g.strFormat(node.(*hir.MethodCall), *recv, args, kws)
	case "timedelta":
		return g.timedelta(args, kws, rc.Keywords)
	case "add_argument":
		return g.addArgument(*recv, args, kws)
	}
	g.warnf(diagnostic.CodeUnmapped, node.GetSpan(), "no expansion for %s", rc.Path)
	return val{code: "()", t: hir.None}
}

func keyword(kws []hir.Keyword, name string) hir.Expr {
	for _, k := range kws {
		if k.Name == name {
			return k.Value
		}
	}
	return nil
}

// ====== print ======

func (g *generator) print(node hir.Node, args []hir.Expr, kws []hir.Keyword) val {
	sep, end := " ", "\n"
	if e := keyword(kws, "sep"); e != nil {
		if l, ok := e.(*hir.Lit); ok && l.Kind == hir.LitStr {
			sep = l.Str
		} else {
			g.warnf(diagnostic.CodeUnsupported, e.GetSpan(), "print sep must be a string literal; using a space")
		}
	}
	if e := keyword(kws, "end"); e != nil {
		if l, ok := e.(*hir.Lit); ok && l.Kind == hir.LitStr {
			end = l.Str
		} else {
			g.warnf(diagnostic.CodeUnsupported, e.GetSpan(), "print end must be a string literal; using a newline")
		}
	}
	var parts, fargs []string
	for _, a := range args {
		if st, ok := a.(*hir.Starred); ok {
			v := g.expr(st.Value)
			el := val{code: "x", t: iterElem(v.t), ref: refShared, place: true}
			ph, arg := g.display(el)
			item := "x.to_string()"
			if arg != "x" || ph != "{}" {
				item = "format!(" + rustString(ph) + ", " + arg + ")"
			}
			parts = append(parts, "{}")
			fargs = append(fargs, g.borrowPlainIter(v)+".map(|x| "+item+").collect::<Vec<String>>().join("+rustString(sep)+")")
			continue
		}
		if l, ok := a.(*hir.Lit); ok && l.Kind == hir.LitStr {
			parts = append(parts, fmtEscape(l.Str))
			continue
		}
		v := g.expr(a)
		ph, arg := g.display(v)
		if arg == "" {
			parts = append(parts, ph)
			continue
		}
		if isIdent(arg) && ph == "{}" {
			parts = append(parts, "{"+arg+"}")
			continue
		}
		parts = append(parts, ph)
		fargs = append(fargs, arg)
	}
	format := strings.Join(parts, fmtEscape(sep))
	if f := keyword(kws, "file"); f != nil {
		if q, ok := f.(*hir.Qualified); !ok || q.Path != "sys.stderr" {
			if q, ok := f.(*hir.Qualified); ok && q.Path == "sys.stdout" {
				return val{code: printMacro("print", format+fmtEscape(end), fargs), t: hir.None}
			}
			fv := g.expr(f)
			g.helper("PyFile")
			code := atomic(fv.code) + ".write(&" + printMacro("format", format+fmtEscape(end), fargs) + ")"
			return val{code: g.propagate(code, node, "", "OSError"), t: hir.None}
		}
		if end == "\n" {
			return val{code: printMacro("eprintln", format, fargs), t: hir.None}
		}
		return val{code: printMacro("eprint", format+fmtEscape(end), fargs), t: hir.None}
	}
	if end == "\n" {
		return val{code: printMacro("println", format, fargs), t: hir.None}
	}
	return val{code: printMacro("print", format+fmtEscape(end), fargs), t: hir.None}
}

func printMacro(name, format string, args []string) string {
	if format == "" && len(args) == 0 && strings.HasSuffix(name, "ln") {
		return name + "!()"
	}
	code := name + "!(" + rustString(format)
	for _, a := range args {
		code += ", " + a
	}
	return code + ")"
}

// ====== Numeric builtins ======

func (g *generator) rangeStep(args []hir.Expr) val {
	t := hir.NamedOf(stdlib.TypeIter, hir.Int)
	lo, hi := g.exprAs(args[0], hir.Int), g.exprAs(args[1], hir.Int)
	if n, ok := negIndex(args[2]); ok {
		return val{code: "((" + hi + " + 1)..=" + lo + ").rev().step_by(" + strconv.FormatInt(n, 10) + ")", t: t, iter: true}
	}
	step := g.usize(g.expr(args[2]))
	return val{code: "(" + lo + ".." + hi + ").step_by(" + step + ")", t: t, iter: true}
}

func hasFloat(t hir.Type) bool {
	if t.Kind == hir.KindFloat {
		return true
	}
	for _, e := range t.Elems {
		if hasFloat(e) {
			return true
		}
	}
	return false
}

// partialOrd reports whether values of t only compare partially in Rust.
func partialOrd(t hir.Type) bool { return hasFloat(t) || isValue(t) }

func (g *generator) minMax(which string, args []hir.Expr, kws []hir.Keyword, t hir.Type) val {
	keyE, defE := keyword(kws, "key"), keyword(kws, "default")
	cmp := "std::cmp::" + which
	if len(args) > 1 {
		vals := make([]string, len(args))
		for i, a := range args {
			vals[i] = g.exprAs(a, t)
		}
		if keyE != nil {
			kf, kt := g.keyFn(keyE, t)
			g.fn.pre = append(g.fn.pre, letStmt("__key", kf))
			return val{code: "[" + strings.Join(vals, ", ") + "].into_iter()." + g.byKey(which, kt) + ".unwrap()", t: t}
		}
		if t.Kind == hir.KindFloat {
			cmp = "f64::" + which
		}
		code := vals[0]
		for _, v := range vals[1:] {
			code = cmp + "(" + code + ", " + v + ")"
		}
		return val{code: code, t: t}
	}
	elem := iterElem(g.typeOf(args[0]))
	src := g.iterOwned(g.iterSource(args[0], nil))
	if elem.Kind == hir.KindInt && t.Kind == hir.KindFloat {
		src += ".map(|x| x as f64)"
	}
	var code string
	switch {
	case keyE != nil:
		kf, kt := g.keyFn(keyE, elem)
		g.fn.pre = append(g.fn.pre, letStmt("__key", kf))
		code = src + "." + g.byKey(which, kt)
	case t.Kind == hir.KindFloat && defE == nil:
		init := "f64::INFINITY"
		if which == "max" {
			init = "f64::NEG_INFINITY"
		}
		return val{code: src + ".fold(" + init + ", f64::" + which + ")", t: t}
	case partialOrd(elem):
		code = src + "." + which + "_by(|a, b| a.partial_cmp(b).unwrap_or(std::cmp::Ordering::Equal))"
	default:
		code = src + "." + which + "()"
	}
	if defE != nil {
		return val{code: code + ".unwrap_or(" + g.exprAs(defE, t) + ")", t: t}
	}
	return val{code: code + `.expect("` + which + `() arg is an empty sequence")`, t: t}
}

// byKey picks max_by_key or a partial comparison for the __key closure.
func (g *generator) byKey(which string, kt hir.Type) string {
	if partialOrd(kt) {
		return which + "_by(|a, b| __key(a).partial_cmp(&__key(b)).unwrap_or(std::cmp::Ordering::Equal))"
	}
	return which + "_by_key(|x| __key(x))"
}

// keyFn renders a key= argument as a closure over &elem, with the type
// of the key it computes.
func (g *generator) keyFn(e hir.Expr, elem hir.Type) (string, hir.Type) {
	ty := "&" + g.rustType(elem)
	switch k := e.(type) {
	case *hir.Lambda:
		v := g.lambda(k, []hir.Type{elem}, true)
		return v.code, v.t.Result()
	case *hir.Name:
		if f, ok := g.funcs[k.ID]; ok && len(f.Params) > 0 {
			arg := g.argOf(f, 0, val{code: "__k", t: elem, ref: refShared, place: true})
			return "|__k: " + ty + "| " + g.fnName(k.ID) + "(" + arg + ")", g.sigOf(f).Ret
		}
		switch k.ID {
		case "len":
			if elem.Kind == hir.KindString {
				return "|__k: " + ty + "| __k.chars().count() as i64", hir.Int
			}
			return "|__k: " + ty + "| __k.len() as i64", hir.Int
		case "abs":
			return "|__k: " + ty + "| __k.abs()", elem
		case "str":
			return "|__k: " + ty + "| __k.to_string()", hir.Str
		}
	case *hir.Attribute:
		if n, ok := k.Value.(*hir.Name); ok && n.ID == "str" {
			switch k.Attr {
			case "lower":
				return "|__k: " + ty + "| __k.to_lowercase()", hir.Str
			case "upper":
				return "|__k: " + ty + "| __k.to_uppercase()", hir.Str
			}
		}
	}
	v := g.expr(e)
	if v.t.Kind != hir.KindCallable {
		g.warnf(diagnostic.CodeUnmapped, e.GetSpan(), "key function %s is not callable", hir.Print(e))
	}
	return "|__k: " + ty + "| (" + v.code + ")(__k.clone())", v.t.Result()
}

func (g *generator) sum(args []hir.Expr, t hir.Type) val {
	elem := iterElem(g.typeOf(args[0]))
	src := g.iterOwned(g.iterSource(args[0], nil))
	if elem.Kind == hir.KindBool {
		return val{code: "(" + src + ".filter(|b| *b).count() as i64)", t: hir.Int}
	}
	if isValue(elem) {
		g.helper("PyValue")
		return val{code: src + `.fold(PyValue::from(0i64), |a, b| PyValue::binop("+", a, b))`, t: hir.Unknown}
	}
	if len(args) > 1 && g.typeOf(args[1]).Kind == hir.KindFloat {
		t = hir.Float
	}
	if elem.Kind == hir.KindInt && t.Kind == hir.KindFloat {
		src += ".map(|x| x as f64)"
	}
	if !t.IsNumeric() {
		g.warnf(diagnostic.CodeTypeMismatch, args[0].GetSpan(), "sum over %s", elem)
	}
	code := src + ".sum::<" + g.rustType(t) + ">()"
	if len(args) > 1 {
		start := g.exprAs(args[1], t)
		if start != "0" && start != "0.0" {
			code = "(" + start + " + " + code + ")"
		}
	}
	return val{code: code, t: t}
}

func (g *generator) anyAll(which string, arg hir.Expr) val {
	spec := g.iterSource(arg, nil)
	src := g.iterOwned(spec)
	test := g.truthy(val{code: "x", t: spec.elem, last: true})
	if test == "x" {
		return val{code: src + "." + which + "(|x| x)", t: hir.Bool}
	}
	return val{code: src + "." + which + "(|x| " + test + ")", t: hir.Bool}
}

// ====== Sorting and collecting ======

// ownedVec renders arg as a fresh Vec of the element type of t.
func (g *generator) ownedVec(arg hir.Expr, t hir.Type) string {
	if at := g.typeOf(arg); at.Kind == hir.KindList {
		return g.coerce(g.expr(arg), t)
	}
	src := g.iterOwned(g.iterSource(arg, nil))
	return src + ".collect::<" + g.rustType(t) + ">()"
}

func (g *generator) sorted(arg, keyE, revE hir.Expr, t hir.Type) val {
	src := g.ownedVec(arg, t)
	stmts := g.sortStmts("__v", elemOr(t), keyE, revE)
	code := "{ let mut __v: " + g.rustType(t) + " = " + src + "; " + strings.Join(stmts, "; ") + "; __v }"
	return val{code: code, t: t}
}

// sortStmts sorts the Vec named v in place. Sorting is stable in both
// directions, as in Python.
func (g *generator) sortStmts(v string, elem hir.Type, keyE, revE hir.Expr) []string {
	rev, dyn := false, ""
	if revE != nil {
		switch {
		case isTrueLit(revE):
			rev = true
		case isFalseLit(revE):
		default:
			dyn = g.cond(revE)
		}
	}
	a, b := "a", "b"
	if rev {
		a, b = "b", "a"
	}
	var out []string
	if keyE == nil {
		switch {
		case partialOrd(elem):
			out = append(out, v+".sort_by(|a, b| "+a+".partial_cmp("+b+").unwrap_or(std::cmp::Ordering::Equal))")
		case rev:
			out = append(out, v+".sort_by(|a, b| b.cmp(a))")
		default:
			out = append(out, v+".sort()")
		}
	} else {
		kf, kt := g.keyFn(keyE, elem)
		out = append(out, "let __key = "+kf)
		switch {
		case partialOrd(kt):
			out = append(out, v+".sort_by(|a, b| __key("+a+").partial_cmp(&__key("+b+")).unwrap_or(std::cmp::Ordering::Equal))")
		case rev:
			out = append(out, v+".sort_by(|a, b| __key(b).cmp(&__key(a)))")
		default:
			out = append(out, v+".sort_by_key(|x| __key(x))")
		}
	}
	if dyn != "" {
		out = append(out, "if "+dyn+" { "+v+".reverse(); }")
	}
	return out
}

func isFalseLit(e hir.Expr) bool {
	l, ok := e.(*hir.Lit)
	return ok && (l.Kind == hir.LitBool && !l.Bool || l.Kind == hir.LitInt && l.Int == 0)
}

// ====== isinstance ======

var builtinTypeNames = map[string]hir.Type{
	"int": hir.Int, "float": hir.Float, "str": hir.Str, "bool": hir.Bool,
	"list": hir.ListOf(hir.Unknown), "dict": hir.DictOf(hir.Unknown, hir.Unknown),
	"set": hir.SetOf(hir.Unknown), "tuple": hir.TupleOf(), "bytes": hir.NamedOf(stdlib.TypeBytes),
}

// instanceTypes reads the class argument of isinstance.
func (g *generator) instanceTypes(e hir.Expr) []hir.Type {
	switch n := e.(type) {
	case *hir.Name:
		if t, ok := builtinTypeNames[n.ID]; ok {
			return []hir.Type{t}
		}
		if _, ok := g.classes[n.ID]; ok || g.isException(n.ID) {
			return []hir.Type{hir.NamedOf(n.ID)}
		}
	case *hir.TupleLit:
		var out []hir.Type
		for _, x := range n.Elts {
			out = append(out, g.instanceTypes(x)...)
		}
		return out
	}
	g.warnf(diagnostic.CodeUnsupported, e.GetSpan(), "isinstance class %s is not a known type", hir.Print(e))
	return nil
}

func (g *generator) isInstance(subject, class hir.Expr) string {
	targets := g.instanceTypes(class)
	v := g.expr(subject)
	var parts []string
	for _, to := range targets {
		parts = append(parts, g.instanceTest(v, to))
	}
	for _, p := range parts {
		if p == "true" {
			return "true"
		}
	}
	var live []string
	for _, p := range parts {
		if p != "false" {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return "false"
	}
	return strings.Join(live, " || ")
}

// instanceTest checks one candidate type against a value whose static
// type is known, which settles most tests at translation time.
func (g *generator) instanceTest(v val, to hir.Type) string {
	t := v.t
	switch {
	case t.Kind == hir.KindUnion:
		if vr, ok := g.variantOf(t, to); ok && (vr.typ.Kind == to.Kind) {
			return "matches!(" + v.code + ", " + g.unionEnum(t) + "::" + vr.name + "(_))"
		}
		return "false"
	case isValue(t):
		g.helper("PyValue")
		return atomic(v.code) + ".is_instance(" + rustString(instanceName(to)) + ")"
	case t.Kind == hir.KindOptional:
		inner := g.instanceTest(val{code: "__x", t: t.Elem()}, to)
		if inner == "false" {
			return "false"
		}
		return atomic(v.code) + ".is_some()"
	case t.Kind == hir.KindNamed && g.isException(t.Name) && to.Kind == hir.KindNamed:
		if g.info.IsA(t.Name, to.Name) {
			return "true"
		}
		if g.isException(to.Name) {
			g.helper("PyError")
			return atomic(v.code) + ".is_a(" + rustString(to.Name) + ")"
		}
		return "false"
	case t.Kind == hir.KindNamed && to.Kind == hir.KindNamed:
		for cl := g.classes[t.Name]; cl != nil; cl = g.superOf(cl) {
			if cl.Name == to.Name {
				return "true"
			}
		}
		if t.Name == to.Name {
			return "true"
		}
		return "false"
	case t.Kind == hir.KindBool && to.Kind == hir.KindInt:
		return "true"
	case t.Kind == to.Kind:
		return "true"
	}
	return "false"
}

func instanceName(t hir.Type) string {
	switch t.Kind {
	case hir.KindInt:
		return "int"
	case hir.KindFloat:
		return "float"
	case hir.KindString:
		return "str"
	case hir.KindBool:
		return "bool"
	case hir.KindList:
		return "list"
	case hir.KindDict:
		return "dict"
	case hir.KindSet:
		return "set"
	case hir.KindTuple:
		return "tuple"
	case hir.KindNone:
		return "NoneType"
	}
	return t.Name
}

// ====== Files and strings ======

func (g *generator) open(node hir.Node, args []hir.Expr, kws []hir.Keyword) val {
	g.helper("PyFile")
	path := args[0]
	var mode hir.Expr
	if len(args) > 1 {
		mode = args[1]
	}
	if e := keyword(kws, "mode"); e != nil {
		mode = e
	}
	modeCode := `"r"`
	if mode != nil {
		modeCode = g.strView(g.expr(mode))
	}
	if l, ok := mode.(*hir.Lit); ok && strings.Contains(l.Str, "b") {
		g.warnf(diagnostic.CodeUnsupported, l.Span, "binary file mode %q is read as text", l.Str)
	}
	code := "PyFile::open(" + g.strView(g.expr(path)) + ", " + modeCode + ")"
	return val{code: g.propagate(code, node, "", "OSError"), t: hir.NamedOf(stdlib.TypeFile)}
}

func (g *generator) join(sep val, arg hir.Expr) val {
	at := g.typeOf(arg)
	if at.Kind == hir.KindList && at.Elem().Kind == hir.KindString {
		v := g.expr(arg)
		if !v.iter {
			return val{code: atomic(v.code) + ".join(" + g.strView(sep) + ")", t: hir.Str}
		}
	}
	spec := g.iterSource(arg, nil)
	src := g.iterOwned(spec)
	if spec.elem.Kind != hir.KindString {
		src += ".map(|x| x.to_string())"
	}
	return val{code: src + ".collect::<Vec<String>>().join(" + g.strView(sep) + ")", t: hir.Str}
}

// strFormat handles "...".format(...) on a literal template by rewriting
// it as an f-string over the arguments.
func (g *generator) strFormat(m *hir.MethodCall, recv val, args []hir.Expr, kws []hir.Keyword) val {
	lit, ok := m.Recv.(*hir.Lit)
	if !ok || lit.Kind != hir.LitStr {
		g.unsupported(m.Span, "str.format on a non-literal template")
		return val{code: g.own(recv), t: hir.Str}
	}
	parts, ok := formatFields(lit.Str, args, kws)
	if !ok {
		g.unsupported(m.Span, "malformed format template %q", lit.Str)
		return val{code: g.own(recv), t: hir.Str}
	}
	return g.fstring(&hir.FString{Span: m.Span, Parts: parts})
}

// formatFields splits a str.format template into f-string parts.
func formatFields(tpl string, args []hir.Expr, kws []hir.Keyword) ([]hir.FPart, bool) {
	var parts []hir.FPart
	var lit strings.Builder
	auto := 0
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch {
		case c == '{' && i+1 < len(tpl) && tpl[i+1] == '{', c == '}' && i+1 < len(tpl) && tpl[i+1] == '}':
			lit.WriteByte(c)
			i++
			continue
		case c == '}':
			return nil, false
		case c != '{':
			lit.WriteByte(c)
			continue
		}
		j := strings.IndexByte(tpl[i:], '}')
		if j < 0 {
			return nil, false
		}
		field := tpl[i+1 : i+j]
		i += j
		spec := ""
		if k := strings.IndexByte(field, ':'); k >= 0 {
			field, spec = field[:k], field[k+1:]
		}
		var conv rune
		if k := strings.IndexByte(field, '!'); k >= 0 {
			if k+1 < len(field) {
				conv = rune(field[k+1])
			}
			field = field[:k]
		}
		var e hir.Expr
		switch n, err := strconv.Atoi(field); {
		case field == "":
			if auto >= len(args) {
				return nil, false
			}
			e = args[auto]
			auto++
		case err == nil:
			if n >= len(args) {
				return nil, false
			}
			e = args[n]
		default:
			e = keyword(kws, field)
			if e == nil {
				return nil, false
			}
		}
		if lit.Len() > 0 {
			parts = append(parts, hir.FPart{Lit: lit.String()})
			lit.Reset()
		}
		parts = append(parts, hir.FPart{Expr: e, Conv: conv, Spec: spec})
	}
	if lit.Len() > 0 {
		parts = append(parts, hir.FPart{Lit: lit.String()})
	}
	return parts, true
}

// percentFormat handles the printf-style "%" operator on a literal
// template.
func (g *generator) percentFormat(e *hir.BinOp) val {
	lit := e.Left.(*hir.Lit)
	var args []hir.Expr
	switch r := e.Right.(type) {
	case *hir.TupleLit:
		args = r.Elts
	default:
		if g.typeOf(r).Kind == hir.KindTuple {
			g.unsupported(e.Span, "%% formatting with a tuple variable; unpack it into a tuple literal")
			return val{code: "String::new()", t: hir.Str}
		}
		args = []hir.Expr{r}
	}
	parts, ok := percentFields(lit.Str, args)
	if !ok {
		g.unsupported(e.Span, "malformed %% template %q", lit.Str)
		return val{code: "String::new()", t: hir.Str}
	}
	return g.fstring(&hir.FString{Span: e.Span, Parts: parts})
}

// percentFields converts printf conversions to format-spec parts.
// Widths right-align by default, as printf does for strings too.
func percentFields(tpl string, args []hir.Expr) ([]hir.FPart, bool) {
	var parts []hir.FPart
	var lit strings.Builder
	n := 0
	for i := 0; i < len(tpl); i++ {
		if tpl[i] != '%' {
			lit.WriteByte(tpl[i])
			continue
		}
		i++
		if i >= len(tpl) {
			return nil, false
		}
		if tpl[i] == '%' {
			lit.WriteByte('%')
			continue
		}
		start := i
		for i < len(tpl) && strings.IndexByte("-+ 0#.123456789", tpl[i]) >= 0 {
			i++
		}
		if i >= len(tpl) || n >= len(args) {
			return nil, false
		}
		flags, conv := tpl[start:i], tpl[i]
		align := ">"
		if strings.HasPrefix(flags, "-") {
			align, flags = "<", flags[1:]
		}
		var spec string
		var cv rune
		switch conv {
		case 's':
		case 'r':
			cv = 'r'
		case 'd', 'i', 'u':
		case 'f', 'F', 'e', 'E', 'x', 'X', 'o':
			spec = string(conv)
		case 'g', 'G':
			spec = "g"
		default:
			return nil, false
		}
		width := flags
		if width != "" && !strings.HasPrefix(width, "0") && !strings.HasPrefix(width, ".") {
			width = align + width
		}
		if spec == "" && strings.Contains(width, ".") {
			spec = "f"
			if conv == 's' {
				spec = ""
			}
		}
		if lit.Len() > 0 {
			parts = append(parts, hir.FPart{Lit: lit.String()})
			lit.Reset()
		}
		parts = append(parts, hir.FPart{Expr: args[n], Conv: cv, Spec: width + spec})
		n++
	}
	if n != len(args) {
		return nil, false
	}
	if lit.Len() > 0 {
		parts = append(parts, hir.FPart{Lit: lit.String()})
	}
	return parts, true
}

// ====== datetime and argparse ======

var timedeltaSeconds = map[string]float64{
	"days": 86400, "seconds": 1, "microseconds": 1e-6, "milliseconds": 1e-3,
	"minutes": 60, "hours": 3600, "weeks": 604800,
}

func (g *generator) timedelta(args []hir.Expr, kws []hir.Keyword, slots []string) val {
	t := hir.NamedOf(stdlib.TypeDuration)
	type term struct {
		unit string
		e    hir.Expr
	}
	var terms []term
	for i, a := range args {
		if i < len(slots) {
			terms = append(terms, term{slots[i], a})
		}
	}
	for _, k := range kws {
		terms = append(terms, term{k.Name, k.Value})
	}
	chrono := g.reg.Options().Chrono
	whole, exact := int64(0), true
	var sum []string
	for _, tm := range terms {
		factor := timedeltaSeconds[tm.unit]
		if l, ok := tm.e.(*hir.Lit); ok && l.Kind == hir.LitInt && factor >= 1 {
			whole += l.Int * int64(factor)
		} else {
			exact = false
		}
		sum = append(sum, "("+g.exprAs(tm.e, hir.Float)+" * "+floatLit(factor)+")")
	}
	switch {
	case exact && chrono:
		return val{code: "chrono::Duration::seconds(" + strconv.FormatInt(whole, 10) + ")", t: t}
	case exact:
		return val{code: "std::time::Duration::from_secs(" + strconv.FormatInt(whole, 10) + ")", t: t}
	case chrono:
		return val{code: "chrono::Duration::milliseconds(((" + strings.Join(sum, " + ") + ") * 1000.0) as i64)", t: t}
	}
	return val{code: "std::time::Duration::from_secs_f64(" + strings.Join(sum, " + ") + ")", t: t}
}

// addArgument registers an option on a PyArgParser. Values are kept as
// PyValue and converted where the namespace is read.
func (g *generator) addArgument(parser val, args []hir.Expr, kws []hir.Keyword) val {
	g.helper("PyArgParser")
	var flags []string
	for _, a := range args {
		l, ok := a.(*hir.Lit)
		if !ok || l.Kind != hir.LitStr {
			g.unsupported(a.GetSpan(), "argument names must be string literals")
			continue
		}
		flags = append(flags, rustString(l.Str))
	}
	kind := "str"
	if e := keyword(kws, "type"); e != nil {
		if n, ok := e.(*hir.Name); ok {
			kind = n.ID
		}
	}
	def := "PyValue::None"
	if e := keyword(kws, "default"); e != nil {
		def = g.exprAs(e, hir.Unknown)
	}
	help, action := `""`, `"store"`
	if e := keyword(kws, "help"); e != nil {
		help = g.strView(g.expr(e))
	}
	if e := keyword(kws, "action"); e != nil {
		action = g.strView(g.expr(e))
	}
	required := "false"
	if e := keyword(kws, "required"); e != nil {
		required = g.cond(e)
	}
	code := atomic(parser.code) + ".add_argument(&[" + strings.Join(flags, ", ") + "], " +
		rustString(kind) + ", " + def + ", " + help + ", " + action + ", " + required + ")"
	return val{code: code, t: hir.None}
}
