// Package stdlib is the pattern library that maps Python builtins, stdlib
// module functions and container methods onto Rust rewrite recipes.
package stdlib

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/pyrite-lang/pyrite/internal/hir"
)

// ReceiverKind groups receiver types for method lookup.
type ReceiverKind int

const (
	RecvAny ReceiverKind = iota
	RecvStr
	RecvInt
	RecvFloat
	RecvBool
	RecvList
	RecvDict
	RecvSet
	RecvTuple
	RecvOption
	RecvValue // the generic PyValue sum
	RecvRegex
	RecvMatch
	RecvFile
	RecvDatetime
	RecvDeque
	RecvCounter
	RecvHash
	RecvParser
	RecvNamespace
	RecvBytes
)

var recvNames = map[ReceiverKind]string{
	RecvAny: "any", RecvStr: "str", RecvInt: "int", RecvFloat: "float", RecvBool: "bool",
	RecvList: "list", RecvDict: "dict", RecvSet: "set", RecvTuple: "tuple", RecvOption: "Optional",
	RecvValue: "value", RecvRegex: "re.Pattern", RecvMatch: "re.Match", RecvFile: "file",
	RecvDatetime: "datetime", RecvDeque: "deque", RecvCounter: "Counter", RecvHash: "hash",
	RecvParser: "ArgumentParser", RecvNamespace: "Namespace", RecvBytes: "bytes",
}

func (k ReceiverKind) String() string {
	if s, ok := recvNames[k]; ok {
		return s
	}
	return "ReceiverKind(" + strconv.Itoa(int(k)) + ")"
}

// Named types produced by recipes. Their Rust spelling lives in codegen.
const (
	TypeRegex    = "re.Pattern"
	TypeMatch    = "re.Match"
	TypeFile     = "file"
	TypeDatetime = "datetime"
	TypeDuration = "timedelta"
	TypeDeque    = "deque"
	TypeCounter  = "Counter"
	TypeHash     = "hash"
	TypeParser   = "ArgumentParser"
	TypeArgs     = "Namespace"
	TypeBytes    = "bytes"
	TypeType     = "type"
	TypeIter     = "Iterator"
)

// KindOf classifies a receiver type.
func KindOf(t hir.Type) ReceiverKind {
	switch t.Kind {
	case hir.KindString:
		return RecvStr
	case hir.KindInt:
		return RecvInt
	case hir.KindFloat:
		return RecvFloat
	case hir.KindBool:
		return RecvBool
	case hir.KindList:
		return RecvList
	case hir.KindDict:
		return RecvDict
	case hir.KindSet:
		return RecvSet
	case hir.KindTuple:
		return RecvTuple
	case hir.KindOptional:
		return RecvOption
	case hir.KindUnknown, hir.KindUnion:
		return RecvValue
	case hir.KindNamed:
		switch t.Name {
		case TypeRegex:
			return RecvRegex
		case TypeMatch:
			return RecvMatch
		case TypeFile:
			return RecvFile
		case TypeDatetime:
			return RecvDatetime
		case TypeDeque:
			return RecvDeque
		case TypeCounter:
			return RecvCounter
		case TypeHash:
			return RecvHash
		case TypeParser:
			return RecvParser
		case TypeArgs:
			return RecvNamespace
		case TypeBytes:
			return RecvBytes
		}
	}
	return RecvAny
}

// OnError says how a fallible recipe's failure is handled.
type OnError int

const (
	// Propagate converts the failure to the enclosing function's error
	// type and returns it with `?`.
	Propagate OnError = iota
	// Sentinel substitutes Recipe.Sentinel for the failed value.
	Sentinel
)

// ResultFunc computes a recipe's result type from the receiver and
// argument types. The receiver is Unknown for plain calls.
type ResultFunc func(recv hir.Type, args []hir.Type) hir.Type

// Recipe is one target-side rewrite.
//
// Template placeholders: {recv} and {N} insert the expression as written;
// the suffixes :own, :ref, :str and :pat request an owned value, a
// borrow, a &str view, or a pattern argument (a single-character literal
// becomes a char when the receiver is a String). {args} joins every
// argument in owned form. Braces that do not form a placeholder are
// copied through, so format strings like "{}" are safe.
type Recipe struct {
	Path     string
	On       ReceiverKind
	Template string
	MinArgs  int
	MaxArgs  int // -1 for variadic
	// Keywords names the positional slot each keyword argument fills.
	Keywords []string
	// Defaults supplies code for trailing slots left empty by the call.
	Defaults []string

	Imports []string
	Crates  []string
	// Helpers names generated prelude items the template calls.
	Helpers []string

	Fallible  bool
	ErrorKind string
	OnError   OnError
	Sentinel  string
	// ReturnsOption marks templates that already produce an Option.
	ReturnsOption bool
	// Mutates marks methods that need a mutable receiver.
	Mutates bool
	// Special names a form that codegen lowers by hand (print, sorted,
	// isinstance, ...). The template is then unused.
	Special string
	Result  ResultFunc
	// Params lists expected argument types for checking, when known.
	Params []hir.Type
}

// Accepts reports whether the recipe fits n arguments.
func (r Recipe) Accepts(n int) bool {
	return n >= r.MinArgs && (r.MaxArgs < 0 || n <= r.MaxArgs)
}

// ResultType applies Result, defaulting to Unknown.
func (r Recipe) ResultType(recv hir.Type, args []hir.Type) hir.Type {
	if r.Result == nil {
		return hir.Unknown
	}
	return r.Result(recv, args)
}

// Module is an entry of the module table.
type Module struct {
	Name    string
	Target  string
	Crate   string
	Symbols *set.TreeSet[string]
}

// Options select between recipe families.
type Options struct {
	// Chrono selects the chrono crate for datetime; otherwise std::time.
	Chrono bool
}

type methodKey struct {
	kind ReceiverKind
	name string
}

// Registry holds the module, function, method, constructor and value
// tables. It is built once per translation and is read-only afterwards,
// except for Override.
type Registry struct {
	opts      Options
	modules   map[string]*Module
	funcs     map[string][]Recipe
	methods   map[methodKey][]Recipe
	values    map[string]Recipe
	ctors     *set.TreeSet[string]
	overrides map[string]string
}

// NewRegistry builds the full pattern library.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		opts:      opts,
		modules:   make(map[string]*Module),
		funcs:     make(map[string][]Recipe),
		methods:   make(map[methodKey][]Recipe),
		values:    make(map[string]Recipe),
		ctors:     set.NewTreeSet[string](strings.Compare),
		overrides: make(map[string]string),
	}
	registerBuiltins(r)
	registerStringMethods(r)
	registerListMethods(r)
	registerDictMethods(r)
	registerSetMethods(r)
	registerValueMethods(r)
	registerOS(r)
	registerSys(r)
	registerFile(r)
	registerMath(r)
	registerRegex(r)
	registerJSON(r)
	registerHashlib(r)
	if opts.Chrono {
		registerDatetimeChrono(r)
	} else {
		registerDatetimeStd(r)
	}
	registerTime(r)
	registerRandom(r)
	registerCollections(r)
	registerItertools(r)
	registerArgparse(r)
	registerTyping(r)
	return r
}

// Options returns the options the registry was built with.
func (r *Registry) Options() Options { return r.opts }

func (r *Registry) addModule(name, target, crate string, symbols ...string) {
	m, ok := r.modules[name]
	if !ok {
		m = &Module{Name: name, Target: target, Crate: crate, Symbols: set.NewTreeSet[string](strings.Compare)}
		r.modules[name] = m
	}
	m.Symbols.InsertSlice(symbols)
}

// addFunc registers a builtin or module function. Module symbols are
// recorded in the module table as a side effect.
func (r *Registry) addFunc(rc Recipe) {
	if i := strings.LastIndex(rc.Path, "."); i > 0 {
		if m, ok := r.modules[rc.Path[:i]]; ok {
			m.Symbols.Insert(rc.Path[i+1:])
		}
	}
	r.funcs[rc.Path] = append(r.funcs[rc.Path], rc)
}

func (r *Registry) addCtor(rc Recipe) {
	r.ctors.Insert(rc.Path)
	r.addFunc(rc)
}

func (r *Registry) addMethod(kind ReceiverKind, rc Recipe) {
	rc.On = kind
	key := methodKey{kind, rc.Path}
	r.methods[key] = append(r.methods[key], rc)
}

func (r *Registry) addValue(rc Recipe) {
	if i := strings.LastIndex(rc.Path, "."); i > 0 {
		if m, ok := r.modules[rc.Path[:i]]; ok {
			m.Symbols.Insert(rc.Path[i+1:])
		}
	}
	r.values[rc.Path] = rc
}

// Module looks up the module table.
func (r *Registry) Module(name string) (*Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// ResolveImport maps an imported module or symbol to its target path.
// Known is false when the module is outside the table or the symbol is
// not one the module exports.
func (r *Registry) ResolveImport(module, name string) (target string, known bool) {
	if name == "" {
		m, ok := r.modules[module]
		if !ok {
			return "", false
		}
		return m.Target, true
	}
	if m, ok := r.modules[module]; ok {
		if m.Symbols.Contains(name) {
			if m.Target == "" {
				return "", true
			}
			return m.Target + "::" + name, true
		}
		// "from os import path" imports a submodule.
		if sub, ok := r.modules[module+"."+name]; ok {
			return sub.Target, true
		}
		return "", false
	}
	return "", false
}

// IsModule reports whether path names a known module.
func (r *Registry) IsModule(path string) bool {
	_, ok := r.modules[path]
	return ok
}

// Call finds the recipe for a builtin or qualified call with the given
// argument types. Builtins with several recipes dispatch on the kind of
// their first argument.
func (r *Registry) Call(path string, args []hir.Type) (Recipe, bool) {
	cands := r.funcs[path]
	var first ReceiverKind = RecvAny
	if len(args) > 0 {
		first = KindOf(args[0])
	}
	var fallback *Recipe
	for i := range cands {
		c := cands[i]
		if !c.Accepts(len(args)) {
			continue
		}
		if c.On == first {
			return r.applyOverride(path, c), true
		}
		if c.On == RecvAny && fallback == nil {
			fallback = &cands[i]
		}
	}
	if fallback != nil {
		return r.applyOverride(path, *fallback), true
	}
	return Recipe{}, false
}

// HasFunc reports whether any recipe is registered for path.
func (r *Registry) HasFunc(path string) bool {
	_, ok := r.funcs[path]
	return ok
}

// Method finds the recipe for recv.name(args).
func (r *Registry) Method(recv hir.Type, name string, nargs int) (Recipe, bool) {
	kind := KindOf(recv)
	for _, k := range []ReceiverKind{kind, RecvAny} {
		for _, c := range r.methods[methodKey{k, name}] {
			if c.Accepts(nargs) {
				return r.applyOverride(kind.String()+"."+name, c), true
			}
		}
	}
	return Recipe{}, false
}

// Value finds a module-level value such as math.pi or sys.argv.
func (r *Registry) Value(path string) (Recipe, bool) {
	rc, ok := r.values[path]
	if ok {
		rc = r.applyOverride(path, rc)
	}
	return rc, ok
}

// IsConstructor reports whether calling path builds a type through an
// idiomatic constructor rather than a function call.
func (r *Registry) IsConstructor(path string) bool {
	return r.ctors.Contains(path)
}

// Override replaces the template used for path. Paths are "len",
// "os.path.exists" or "<kind>.<method>" such as "str.startswith".
func (r *Registry) Override(path, template string) {
	r.overrides[path] = template
}

// Overrides returns the active override paths in order.
func (r *Registry) Overrides() []string {
	keys := make([]string, 0, len(r.overrides))
	for k := range r.overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) applyOverride(path string, rc Recipe) Recipe {
	if tpl, ok := r.overrides[path]; ok {
		rc.Template = tpl
		rc.Special = ""
	}
	return rc
}

// MutatingMethods are container methods that require a mutable receiver.
var MutatingMethods = set.From([]string{
	"append", "extend", "insert", "pop", "remove", "clear", "sort", "reverse",
	"update", "setdefault", "popitem", "add", "discard", "appendleft", "popleft",
	"extendleft", "rotate", "intersection_update", "difference_update",
	"symmetric_difference_update", "write", "writelines", "add_argument", "close",
})

// IsMutating reports whether a method call mutates its receiver.
func IsMutating(method string) bool { return MutatingMethods.Contains(method) }
