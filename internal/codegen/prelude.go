package codegen

import (
	"strings"

	"github.com/pyrite-lang/pyrite/internal/rust"
)

// preludeItem is Rust support code appended to a crate that needs it.
type preludeItem struct {
	deps   []string
	crates []string
	text   string
}

// prelude emits the requested helpers in name order. PyError is
// followed by the exception hierarchy of the module.
func (g *generator) prelude() []rust.Item {
	var out []rust.Item
	for _, name := range g.helpers.Slice() {
		h, ok := preludeItems[name]
		if !ok {
			continue
		}
		out = append(out, &rust.RawItem{Text: h.text})
		if name == "PyError" {
			out = append(out, &rust.RawItem{Text: g.excParentFn()})
		}
	}
	return out
}

// excParentFn renders the lookup PyError::is_a walks.
func (g *generator) excParentFn() string {
	var b strings.Builder
	b.WriteString("fn py_exc_parent(kind: &str) -> Option<&'static str> {\n    match kind {\n")
	seen := map[string]bool{}
	for _, p := range g.excParents() {
		if seen[p[0]] || p[0] == p[1] {
			continue
		}
		seen[p[0]] = true
		b.WriteString("        " + rustString(p[0]) + " => Some(" + rustString(p[1]) + "),\n")
	}
	b.WriteString("        _ => None,\n    }\n}\n")
	return b.String()
}

var preludeItems = map[string]preludeItem{
	"PyError": {text: pyError},
	"PyValue": {text: pyValue},
	"PyFile":  {text: pyFile},
	"PyMatch": {text: pyMatch, crates: []string{"regex"}},
	"PyArgParser": {
		deps: []string{"PyValue"},
		text: pyArgParser,
	},
	"py_input":        {text: pyInput},
	"py_char_at":      {text: pyCharAt},
	"py_slice_bounds": {text: pySliceBounds},
	"py_slice":        {deps: []string{"py_slice_bounds"}, text: pySlice},
	"py_str_slice":    {deps: []string{"py_slice_bounds"}, text: pyStrSlice},
	"py_capitalize":   {text: pyCapitalize},
	"py_title":        {text: pyTitle},
	"py_partition":    {text: pyPartition},
	"py_listdir":      {text: pyListdir},
	"py_splitext":     {text: pySplitext},
	"py_expanduser":   {text: pyExpanduser},
	"py_gcd":          {text: pyGcd},
	"py_hex":          {text: pyHex},
	"py_from_json":    {deps: []string{"PyValue"}, crates: []string{"serde_json"}, text: pyFromJSON},
	"py_to_json":      {deps: []string{"PyValue"}, crates: []string{"serde_json"}, text: pyToJSON},
	"py_strftime":     {text: pyStrftime},
	"py_perf_counter": {text: pyPerfCounter},
	"py_random":       {text: pyRandom},
	"py_counter":      {text: pyCounter},
	"py_most_common":  {text: pyMostCommon},
}

const pyError = `#[derive(Debug, Clone, PartialEq)]
pub struct PyError {
    pub kind: String,
    pub message: String,
}

impl PyError {
    pub fn new(kind: &str, message: String) -> Self {
        PyError { kind: kind.to_string(), message }
    }

    pub fn is_a(&self, kind: &str) -> bool {
        let mut k: &str = &self.kind;
        loop {
            if k == kind {
                return true;
            }
            match py_exc_parent(k) {
                Some(p) => k = p,
                None => return false,
            }
        }
    }
}

impl std::fmt::Display for PyError {
    fn fmt(&self, f: &mut std::fmt::Formatter) -> std::fmt::Result {
        write!(f, "{}", self.message)
    }
}

impl std::error::Error for PyError {}
`

const pyValue = `#[derive(Debug, Clone, Default)]
pub enum PyValue {
    #[default]
    None,
    Bool(bool),
    Int(i64),
    Float(f64),
    Str(String),
    List(Vec<PyValue>),
    Dict(std::collections::BTreeMap<String, PyValue>),
}

impl PyValue {
    pub fn type_name(&self) -> &'static str {
        match self {
            PyValue::None => "NoneType",
            PyValue::Bool(_) => "bool",
            PyValue::Int(_) => "int",
            PyValue::Float(_) => "float",
            PyValue::Str(_) => "str",
            PyValue::List(_) => "list",
            PyValue::Dict(_) => "dict",
        }
    }

    pub fn is_none(&self) -> bool {
        matches!(self, PyValue::None)
    }

    pub fn is_number(&self) -> bool {
        matches!(self, PyValue::Bool(_) | PyValue::Int(_) | PyValue::Float(_))
    }

    pub fn is_instance(&self, name: &str) -> bool {
        let t = self.type_name();
        t == name || (t == "bool" && name == "int")
    }

    pub fn truthy(&self) -> bool {
        match self {
            PyValue::None => false,
            PyValue::Bool(b) => *b,
            PyValue::Int(i) => *i != 0,
            PyValue::Float(x) => *x != 0.0,
            PyValue::Str(s) => !s.is_empty(),
            PyValue::List(v) => !v.is_empty(),
            PyValue::Dict(d) => !d.is_empty(),
        }
    }

    pub fn as_int(&self) -> i64 {
        match self {
            PyValue::Bool(b) => *b as i64,
            PyValue::Int(i) => *i,
            PyValue::Float(x) => *x as i64,
            PyValue::Str(s) => s
                .trim()
                .parse()
                .unwrap_or_else(|_| panic!("ValueError: invalid literal for int(): '{}'", s)),
            other => panic!("TypeError: int() argument must be a number, not '{}'", other.type_name()),
        }
    }

    pub fn as_float(&self) -> f64 {
        match self {
            PyValue::Bool(b) => *b as i64 as f64,
            PyValue::Int(i) => *i as f64,
            PyValue::Float(x) => *x,
            PyValue::Str(s) => s
                .trim()
                .parse()
                .unwrap_or_else(|_| panic!("ValueError: could not convert string to float: '{}'", s)),
            other => panic!("TypeError: float() argument must be a number, not '{}'", other.type_name()),
        }
    }

    pub fn len(&self) -> usize {
        match self {
            PyValue::Str(s) => s.chars().count(),
            PyValue::List(v) => v.len(),
            PyValue::Dict(d) => d.len(),
            other => panic!("TypeError: object of type '{}' has no len()", other.type_name()),
        }
    }

    pub fn push(&mut self, item: PyValue) {
        if let PyValue::List(v) = self {
            v.push(item);
            return;
        }
        panic!("AttributeError: '{}' object has no attribute 'append'", self.type_name());
    }

    pub fn to_list(&self) -> Vec<PyValue> {
        match self {
            PyValue::List(v) => v.clone(),
            PyValue::Dict(d) => d.keys().map(|k| PyValue::Str(k.clone())).collect(),
            PyValue::Str(s) => s.chars().map(|c| PyValue::Str(c.to_string())).collect(),
            other => panic!("TypeError: '{}' object is not iterable", other.type_name()),
        }
    }

    pub fn as_dict(&self) -> &std::collections::BTreeMap<String, PyValue> {
        match self {
            PyValue::Dict(d) => d,
            other => panic!("AttributeError: '{}' object is not a dict", other.type_name()),
        }
    }

    pub fn keys(&self) -> Vec<String> {
        self.as_dict().keys().cloned().collect()
    }

    pub fn get_item(&self, key: &str) -> Option<&PyValue> {
        match self {
            PyValue::Dict(d) => d.get(key),
            _ => None,
        }
    }

    pub fn item(&self, key: &PyValue) -> PyValue {
        match self {
            PyValue::List(v) => {
                let n = v.len() as i64;
                let i = key.as_int();
                let j = if i < 0 { i + n } else { i };
                if j < 0 || j >= n {
                    panic!("IndexError: list index out of range");
                }
                v[j as usize].clone()
            }
            PyValue::Str(s) => {
                let n = s.chars().count() as i64;
                let i = key.as_int();
                let j = if i < 0 { i + n } else { i };
                match s.chars().nth(j as usize) {
                    Some(c) if j >= 0 => PyValue::Str(c.to_string()),
                    _ => panic!("IndexError: string index out of range"),
                }
            }
            PyValue::Dict(d) => d
                .get(&key.to_string())
                .cloned()
                .unwrap_or_else(|| panic!("KeyError: {}", key.repr())),
            other => panic!("TypeError: '{}' object is not subscriptable", other.type_name()),
        }
    }

    pub fn set_item(&mut self, key: PyValue, value: PyValue) {
        match self {
            PyValue::List(v) => {
                let n = v.len() as i64;
                let i = key.as_int();
                let j = if i < 0 { i + n } else { i };
                if j < 0 || j >= n {
                    panic!("IndexError: list assignment index out of range");
                }
                v[j as usize] = value;
            }
            PyValue::Dict(d) => {
                d.insert(key.to_string(), value);
            }
            other => panic!("TypeError: '{}' object does not support item assignment", other.type_name()),
        }
    }

    pub fn contains(&self, item: &PyValue) -> bool {
        match self {
            PyValue::List(v) => v.contains(item),
            PyValue::Dict(d) => d.contains_key(&item.to_string()),
            PyValue::Str(s) => s.contains(&item.to_string()),
            other => panic!("TypeError: argument of type '{}' is not iterable", other.type_name()),
        }
    }

    pub fn repr(&self) -> String {
        match self {
            PyValue::None => "None".to_string(),
            PyValue::Bool(true) => "True".to_string(),
            PyValue::Bool(false) => "False".to_string(),
            PyValue::Int(i) => i.to_string(),
            PyValue::Float(x) => format!("{:?}", x),
            PyValue::Str(s) => format!("'{}'", s),
            PyValue::List(v) => format!("[{}]", v.iter().map(|x| x.repr()).collect::<Vec<_>>().join(", ")),
            PyValue::Dict(d) => format!(
                "{{{}}}",
                d.iter().map(|(k, x)| format!("'{}': {}", k, x.repr())).collect::<Vec<_>>().join(", ")
            ),
        }
    }

    pub fn binop(op: &str, a: PyValue, b: PyValue) -> PyValue {
        match (op, &a, &b) {
            ("+", PyValue::Str(x), PyValue::Str(y)) => return PyValue::Str(format!("{}{}", x, y)),
            ("+", PyValue::List(x), PyValue::List(y)) => {
                return PyValue::List(x.iter().chain(y.iter()).cloned().collect())
            }
            ("*", PyValue::Str(s), PyValue::Int(n)) | ("*", PyValue::Int(n), PyValue::Str(s)) => {
                return PyValue::Str(s.repeat((*n).max(0) as usize))
            }
            ("*", PyValue::List(v), PyValue::Int(n)) | ("*", PyValue::Int(n), PyValue::List(v)) => {
                let mut out = Vec::new();
                for _ in 0..(*n).max(0) {
                    out.extend(v.iter().cloned());
                }
                return PyValue::List(out);
            }
            _ => {}
        }
        if !a.is_number() || !b.is_number() {
            panic!(
                "TypeError: unsupported operand type(s) for {}: '{}' and '{}'",
                op,
                a.type_name(),
                b.type_name()
            );
        }
        if matches!(a, PyValue::Float(_)) || matches!(b, PyValue::Float(_)) || op == "/" {
            let (x, y) = (a.as_float(), b.as_float());
            if y == 0.0 && matches!(op, "/" | "//" | "%") {
                panic!("ZeroDivisionError: float division by zero");
            }
            return PyValue::Float(match op {
                "+" => x + y,
                "-" => x - y,
                "*" => x * y,
                "/" => x / y,
                "//" => (x / y).floor(),
                "%" => x - y * (x / y).floor(),
                "**" => x.powf(y),
                _ => panic!("TypeError: unsupported operand type(s) for {}: 'float'", op),
            });
        }
        let (x, y) = (a.as_int(), b.as_int());
        if y == 0 && matches!(op, "//" | "%") {
            panic!("ZeroDivisionError: integer division or modulo by zero");
        }
        PyValue::Int(match op {
            "+" => x + y,
            "-" => x - y,
            "*" => x * y,
            "//" => {
                let q = x / y;
                if x % y != 0 && ((x < 0) != (y < 0)) { q - 1 } else { q }
            }
            "%" => {
                let r = x % y;
                if r != 0 && ((r < 0) != (y < 0)) { r + y } else { r }
            }
            "**" if y < 0 => return PyValue::Float((x as f64).powf(y as f64)),
            "**" => x.pow(y as u32),
            "&" => x & y,
            "|" => x | y,
            "^" => x ^ y,
            "<<" => x << y,
            ">>" => x >> y,
            _ => panic!("TypeError: unsupported operand type(s) for {}: 'int'", op),
        })
    }
}

impl PartialEq for PyValue {
    fn eq(&self, other: &PyValue) -> bool {
        match (self, other) {
            (PyValue::None, PyValue::None) => true,
            (PyValue::Str(a), PyValue::Str(b)) => a == b,
            (PyValue::List(a), PyValue::List(b)) => a == b,
            (PyValue::Dict(a), PyValue::Dict(b)) => a == b,
            (PyValue::Float(_), _) | (_, PyValue::Float(_)) if self.is_number() && other.is_number() => {
                self.as_float() == other.as_float()
            }
            _ if self.is_number() && other.is_number() => self.as_int() == other.as_int(),
            _ => false,
        }
    }
}

impl PartialOrd for PyValue {
    fn partial_cmp(&self, other: &PyValue) -> Option<std::cmp::Ordering> {
        match (self, other) {
            (PyValue::Str(a), PyValue::Str(b)) => a.partial_cmp(b),
            (PyValue::List(a), PyValue::List(b)) => a.partial_cmp(b),
            _ if self.is_number() && other.is_number() => self.as_float().partial_cmp(&other.as_float()),
            _ => None,
        }
    }
}

impl std::fmt::Display for PyValue {
    fn fmt(&self, f: &mut std::fmt::Formatter) -> std::fmt::Result {
        match self {
            PyValue::Str(s) => write!(f, "{}", s),
            other => write!(f, "{}", other.repr()),
        }
    }
}

impl std::ops::Index<&str> for PyValue {
    type Output = PyValue;
    fn index(&self, key: &str) -> &PyValue {
        match self {
            PyValue::Dict(d) => d.get(key).unwrap_or_else(|| panic!("KeyError: '{}'", key)),
            other => panic!("TypeError: '{}' object is not subscriptable", other.type_name()),
        }
    }
}

impl std::ops::IndexMut<&str> for PyValue {
    fn index_mut(&mut self, key: &str) -> &mut PyValue {
        match self {
            PyValue::Dict(d) => d.entry(key.to_string()).or_default(),
            _ => panic!("TypeError: object does not support item assignment"),
        }
    }
}

impl std::ops::Index<i64> for PyValue {
    type Output = PyValue;
    fn index(&self, i: i64) -> &PyValue {
        match self {
            PyValue::List(v) => {
                let j = if i < 0 { i + v.len() as i64 } else { i };
                if j < 0 {
                    panic!("IndexError: list index out of range");
                }
                v.get(j as usize).unwrap_or_else(|| panic!("IndexError: list index out of range"))
            }
            other => panic!("TypeError: '{}' object is not subscriptable", other.type_name()),
        }
    }
}

impl std::ops::IndexMut<i64> for PyValue {
    fn index_mut(&mut self, i: i64) -> &mut PyValue {
        match self {
            PyValue::List(v) => {
                let j = if i < 0 { i + v.len() as i64 } else { i };
                if j < 0 {
                    panic!("IndexError: list assignment index out of range");
                }
                v.get_mut(j as usize).unwrap_or_else(|| panic!("IndexError: list assignment index out of range"))
            }
            _ => panic!("TypeError: object does not support item assignment"),
        }
    }
}

impl From<i64> for PyValue {
    fn from(v: i64) -> Self {
        PyValue::Int(v)
    }
}

impl From<f64> for PyValue {
    fn from(v: f64) -> Self {
        PyValue::Float(v)
    }
}

impl From<bool> for PyValue {
    fn from(v: bool) -> Self {
        PyValue::Bool(v)
    }
}

impl From<String> for PyValue {
    fn from(v: String) -> Self {
        PyValue::Str(v)
    }
}

impl From<&str> for PyValue {
    fn from(v: &str) -> Self {
        PyValue::Str(v.to_string())
    }
}

impl From<()> for PyValue {
    fn from(_: ()) -> Self {
        PyValue::None
    }
}

impl<T: Into<PyValue>> From<Vec<T>> for PyValue {
    fn from(v: Vec<T>) -> Self {
        PyValue::List(v.into_iter().map(Into::into).collect())
    }
}

impl<T: Into<PyValue>> From<Option<T>> for PyValue {
    fn from(v: Option<T>) -> Self {
        match v {
            Some(x) => x.into(),
            None => PyValue::None,
        }
    }
}

impl<K: ToString, V: Into<PyValue>> From<std::collections::HashMap<K, V>> for PyValue {
    fn from(v: std::collections::HashMap<K, V>) -> Self {
        PyValue::Dict(v.into_iter().map(|(k, x)| (k.to_string(), x.into())).collect())
    }
}

impl<A: Into<PyValue>, B: Into<PyValue>> From<(A, B)> for PyValue {
    fn from(v: (A, B)) -> Self {
        PyValue::List(vec![v.0.into(), v.1.into()])
    }
}

pub trait FromPyValue: Sized {
    fn from_py(v: &PyValue) -> Self;
}

impl FromPyValue for PyValue {
    fn from_py(v: &PyValue) -> Self {
        v.clone()
    }
}

impl FromPyValue for i64 {
    fn from_py(v: &PyValue) -> Self {
        v.as_int()
    }
}

impl FromPyValue for f64 {
    fn from_py(v: &PyValue) -> Self {
        v.as_float()
    }
}

impl FromPyValue for bool {
    fn from_py(v: &PyValue) -> Self {
        v.truthy()
    }
}

impl FromPyValue for String {
    fn from_py(v: &PyValue) -> Self {
        v.to_string()
    }
}

impl<T: FromPyValue> FromPyValue for Vec<T> {
    fn from_py(v: &PyValue) -> Self {
        v.to_list().iter().map(T::from_py).collect()
    }
}

impl<T: FromPyValue> FromPyValue for Option<T> {
    fn from_py(v: &PyValue) -> Self {
        if v.is_none() {
            None
        } else {
            Some(T::from_py(v))
        }
    }
}

impl<T: FromPyValue> FromPyValue for std::collections::HashMap<String, T> {
    fn from_py(v: &PyValue) -> Self {
        v.as_dict().iter().map(|(k, x)| (k.clone(), T::from_py(x))).collect()
    }
}

impl<A: FromPyValue, B: FromPyValue> FromPyValue for (A, B) {
    fn from_py(v: &PyValue) -> Self {
        let xs = v.to_list();
        if xs.len() != 2 {
            panic!("ValueError: expected 2 values to unpack, got {}", xs.len());
        }
        (A::from_py(&xs[0]), B::from_py(&xs[1]))
    }
}
`

const pyFile = `pub struct PyFile {
    name: String,
    reader: Option<Box<dyn std::io::BufRead>>,
    writer: Option<Box<dyn std::io::Write>>,
}

impl std::fmt::Debug for PyFile {
    fn fmt(&self, f: &mut std::fmt::Formatter) -> std::fmt::Result {
        write!(f, "<_io.TextIOWrapper name='{}'>", self.name)
    }
}

impl PyFile {
    pub fn open(path: &str, mode: &str) -> std::io::Result<PyFile> {
        let kind = mode.chars().find(|c| "rwax".contains(*c)).unwrap_or('r');
        let plus = mode.contains('+');
        let mut opts = std::fs::OpenOptions::new();
        match kind {
            'w' => opts.write(true).create(true).truncate(true),
            'a' => opts.append(true).create(true),
            'x' => opts.write(true).create_new(true),
            _ => opts.read(true),
        };
        if plus {
            opts.read(true).write(true);
        }
        let file = opts.open(path)?;
        let mut f = PyFile { name: path.to_string(), reader: None, writer: None };
        if kind == 'r' || plus {
            f.reader = Some(Box::new(std::io::BufReader::new(file.try_clone()?)));
        }
        if kind != 'r' || plus {
            f.writer = Some(Box::new(std::io::BufWriter::new(file)));
        }
        Ok(f)
    }

    pub fn stdin() -> PyFile {
        PyFile {
            name: "<stdin>".to_string(),
            reader: Some(Box::new(std::io::BufReader::new(std::io::stdin()))),
            writer: None,
        }
    }

    pub fn stdout() -> PyFile {
        PyFile { name: "<stdout>".to_string(), reader: None, writer: Some(Box::new(std::io::stdout())) }
    }

    pub fn stderr() -> PyFile {
        PyFile { name: "<stderr>".to_string(), reader: None, writer: Some(Box::new(std::io::stderr())) }
    }

    fn input(&mut self) -> std::io::Result<&mut Box<dyn std::io::BufRead>> {
        self.reader
            .as_mut()
            .ok_or_else(|| std::io::Error::new(std::io::ErrorKind::Other, "not readable"))
    }

    pub fn read(&mut self) -> std::io::Result<String> {
        use std::io::Read;
        let mut s = String::new();
        self.input()?.read_to_string(&mut s)?;
        Ok(s)
    }

    pub fn readline(&mut self) -> std::io::Result<String> {
        use std::io::BufRead;
        let mut s = String::new();
        self.input()?.read_line(&mut s)?;
        Ok(s)
    }

    pub fn readlines(&mut self) -> std::io::Result<Vec<String>> {
        let mut out = Vec::new();
        loop {
            let line = self.readline()?;
            if line.is_empty() {
                break;
            }
            out.push(line);
        }
        Ok(out)
    }

    pub fn lines(&mut self) -> std::vec::IntoIter<String> {
        self.readlines().unwrap_or_default().into_iter()
    }

    pub fn write(&mut self, s: &str) -> std::io::Result<i64> {
        use std::io::Write;
        match self.writer.as_mut() {
            Some(w) => {
                w.write_all(s.as_bytes())?;
                Ok(s.chars().count() as i64)
            }
            None => Err(std::io::Error::new(std::io::ErrorKind::Other, "not writable")),
        }
    }

    pub fn writelines(&mut self, lines: &[String]) -> std::io::Result<()> {
        for l in lines {
            self.write(l)?;
        }
        Ok(())
    }

    pub fn flush(&mut self) -> std::io::Result<()> {
        use std::io::Write;
        if let Some(w) = self.writer.as_mut() {
            w.flush()?;
        }
        Ok(())
    }

    pub fn close(&mut self) {
        let _ = self.flush();
        self.reader = None;
        self.writer = None;
    }
}
`

const pyMatch = `#[derive(Debug, Clone)]
pub struct PyMatch {
    pub start: usize,
    pub end: usize,
    groups: Vec<Option<String>>,
}

impl PyMatch {
    pub fn group(&self, n: usize) -> String {
        self.groups.get(n).cloned().flatten().unwrap_or_default()
    }

    pub fn groups(&self) -> Vec<String> {
        self.groups.iter().skip(1).map(|g| g.clone().unwrap_or_default()).collect()
    }
}

fn py_re_match(re: &regex::Regex, text: &str, anchored: bool) -> Option<PyMatch> {
    let caps = re.captures(text)?;
    let whole = caps.get(0)?;
    if anchored && whole.start() != 0 {
        return None;
    }
    Some(PyMatch {
        start: text[..whole.start()].chars().count(),
        end: text[..whole.end()].chars().count(),
        groups: caps.iter().map(|m| m.map(|m| m.as_str().to_string())).collect(),
    })
}
`

const pyArgParser = `#[derive(Debug, Clone)]
struct PyArgSpec {
    flags: Vec<String>,
    dest: String,
    kind: String,
    default: PyValue,
    help: String,
    action: String,
    required: bool,
}

#[derive(Debug, Clone, Default)]
pub struct PyArgParser {
    specs: Vec<PyArgSpec>,
}

#[derive(Debug, Clone, Default)]
pub struct PyArgs {
    values: std::collections::HashMap<String, PyValue>,
}

impl PyArgParser {
    pub fn new() -> Self {
        Self::default()
    }

    pub fn add_argument(&mut self, flags: &[&str], kind: &str, default: PyValue, help: &str, action: &str, required: bool) {
        let name = flags.iter().find(|f| f.starts_with("--")).or(flags.first()).copied().unwrap_or("");
        let dest = name.trim_start_matches('-').replace('-', "_");
        let default = match (action, default) {
            ("store_true", PyValue::None) => PyValue::Bool(false),
            ("store_false", PyValue::None) => PyValue::Bool(true),
            (_, d) => d,
        };
        self.specs.push(PyArgSpec {
            flags: flags.iter().map(|f| f.to_string()).collect(),
            dest,
            kind: kind.to_string(),
            default,
            help: help.to_string(),
            action: action.to_string(),
            required,
        });
    }

    fn usage(&self) -> String {
        let mut out = String::from("usage: [options]\n");
        for s in &self.specs {
            out.push_str(&format!("  {:<24}{}\n", s.flags.join(", "), s.help));
        }
        out
    }

    fn convert(spec: &PyArgSpec, raw: &str) -> Result<PyValue, String> {
        match spec.kind.as_str() {
            "int" => raw
                .parse::<i64>()
                .map(PyValue::Int)
                .map_err(|_| format!("argument {}: invalid int value: '{}'", spec.dest, raw)),
            "float" => raw
                .parse::<f64>()
                .map(PyValue::Float)
                .map_err(|_| format!("argument {}: invalid float value: '{}'", spec.dest, raw)),
            _ => Ok(PyValue::Str(raw.to_string())),
        }
    }

    pub fn parse_args(&self) -> Result<PyArgs, String> {
        let argv: Vec<String> = std::env::args().skip(1).collect();
        let mut values = std::collections::HashMap::new();
        for s in &self.specs {
            values.insert(s.dest.clone(), s.default.clone());
        }
        let positional: Vec<&PyArgSpec> = self.specs.iter().filter(|s| !s.flags.iter().any(|f| f.starts_with('-'))).collect();
        let mut seen = std::collections::HashSet::new();
        let mut next = 0;
        let mut i = 0;
        while i < argv.len() {
            let arg = &argv[i];
            if arg == "-h" || arg == "--help" {
                print!("{}", self.usage());
                std::process::exit(0);
            }
            if arg.starts_with('-') && arg.len() > 1 {
                let (name, inline) = match arg.split_once('=') {
                    Some((n, v)) => (n, Some(v.to_string())),
                    None => (arg.as_str(), None),
                };
                let spec = self
                    .specs
                    .iter()
                    .find(|s| s.flags.iter().any(|f| f == name))
                    .ok_or_else(|| format!("unrecognized arguments: {}", arg))?;
                seen.insert(spec.dest.clone());
                match spec.action.as_str() {
                    "store_true" => {
                        values.insert(spec.dest.clone(), PyValue::Bool(true));
                    }
                    "store_false" => {
                        values.insert(spec.dest.clone(), PyValue::Bool(false));
                    }
                    _ => {
                        let raw = match inline {
                            Some(v) => v,
                            None => {
                                i += 1;
                                argv.get(i).cloned().ok_or_else(|| format!("argument {}: expected one argument", name))?
                            }
                        };
                        values.insert(spec.dest.clone(), Self::convert(spec, &raw)?);
                    }
                }
            } else {
                let spec = positional.get(next).ok_or_else(|| format!("unrecognized arguments: {}", arg))?;
                next += 1;
                seen.insert(spec.dest.clone());
                values.insert(spec.dest.clone(), Self::convert(spec, arg)?);
            }
            i += 1;
        }
        for s in &self.specs {
            let is_positional = !s.flags.iter().any(|f| f.starts_with('-'));
            if (s.required || is_positional) && !seen.contains(&s.dest) {
                return Err(format!("the following arguments are required: {}", s.flags.join("/")));
            }
        }
        Ok(PyArgs { values })
    }
}

impl PyArgs {
    pub fn value(&self, name: &str) -> PyValue {
        self.values.get(name).cloned().unwrap_or_default()
    }

    pub fn get(&self, name: &str) -> String {
        self.value(name).to_string()
    }
}
`

const pyInput = `fn py_input(prompt: &str) -> String {
    use std::io::Write;
    print!("{}", prompt);
    let _ = std::io::stdout().flush();
    let mut line = String::new();
    let _ = std::io::stdin().read_line(&mut line);
    while line.ends_with('\n') || line.ends_with('\r') {
        line.pop();
    }
    line
}
`

const pyCharAt = `fn py_char_at(s: &str, i: i64) -> String {
    let n = s.chars().count() as i64;
    let j = if i < 0 { i + n } else { i };
    if j < 0 || j >= n {
        panic!("IndexError: string index out of range");
    }
    s.chars().nth(j as usize).map(String::from).unwrap_or_default()
}
`

const pySliceBounds = `fn py_slice_bounds(len: i64, lo: Option<i64>, hi: Option<i64>, step: Option<i64>) -> Vec<usize> {
    let step = step.unwrap_or(1);
    if step == 0 {
        panic!("ValueError: slice step cannot be zero");
    }
    let norm = |v: i64| if v < 0 { v + len } else { v };
    let mut out = Vec::new();
    if step > 0 {
        let start = lo.map(norm).unwrap_or(0).clamp(0, len);
        let stop = hi.map(norm).unwrap_or(len).clamp(0, len);
        let mut i = start;
        while i < stop {
            out.push(i as usize);
            i += step;
        }
    } else {
        let start = lo.map(norm).unwrap_or(len - 1).clamp(-1, len - 1);
        let stop = hi.map(norm).unwrap_or(-1).clamp(-1, len - 1);
        let mut i = start;
        while i > stop {
            out.push(i as usize);
            i += step;
        }
    }
    out
}
`

const pySlice = `fn py_slice<T: Clone>(v: &[T], lo: Option<i64>, hi: Option<i64>, step: Option<i64>) -> Vec<T> {
    py_slice_bounds(v.len() as i64, lo, hi, step).into_iter().map(|i| v[i].clone()).collect()
}
`

const pyStrSlice = `fn py_str_slice(s: &str, lo: Option<i64>, hi: Option<i64>, step: Option<i64>) -> String {
    let cs: Vec<char> = s.chars().collect();
    py_slice_bounds(cs.len() as i64, lo, hi, step).into_iter().map(|i| cs[i]).collect()
}
`

const pyCapitalize = `fn py_capitalize(s: &str) -> String {
    let mut cs = s.chars();
    match cs.next() {
        Some(f) => f.to_uppercase().collect::<String>() + &cs.as_str().to_lowercase(),
        None => String::new(),
    }
}
`

const pyTitle = `fn py_title(s: &str) -> String {
    let mut out = String::with_capacity(s.len());
    let mut inside = false;
    for c in s.chars() {
        if c.is_alphabetic() {
            if inside {
                out.extend(c.to_lowercase());
            } else {
                out.extend(c.to_uppercase());
            }
            inside = true;
        } else {
            out.push(c);
            inside = false;
        }
    }
    out
}
`

const pyPartition = `fn py_partition(s: &str, sep: &str) -> (String, String, String) {
    match s.find(sep) {
        Some(i) => (s[..i].to_string(), sep.to_string(), s[i + sep.len()..].to_string()),
        None => (s.to_string(), String::new(), String::new()),
    }
}
`

const pyListdir = `fn py_listdir(path: &str) -> std::io::Result<Vec<String>> {
    let mut out = Vec::new();
    for entry in std::fs::read_dir(path)? {
        out.push(entry?.file_name().to_string_lossy().to_string());
    }
    out.sort();
    Ok(out)
}
`

const pySplitext = `fn py_splitext(path: &str) -> (String, String) {
    let base = path.rfind(std::path::MAIN_SEPARATOR).map(|i| i + 1).unwrap_or(0);
    match path[base..].rfind('.') {
        Some(i) if i > 0 => (path[..base + i].to_string(), path[base + i..].to_string()),
        _ => (path.to_string(), String::new()),
    }
}
`

const pyExpanduser = `fn py_expanduser(path: &str) -> String {
    if path == "~" || path.starts_with("~/") {
        if let Ok(home) = std::env::var("HOME") {
            return format!("{}{}", home, &path[1..]);
        }
    }
    path.to_string()
}
`

const pyGcd = `fn py_gcd(a: i64, b: i64) -> i64 {
    let (mut a, mut b) = (a.abs(), b.abs());
    while b != 0 {
        let t = a % b;
        a = b;
        b = t;
    }
    a
}
`

const pyHex = `fn py_hex(bytes: &[u8]) -> String {
    bytes.iter().map(|b| format!("{:02x}", b)).collect()
}
`

const pyFromJSON = `fn py_from_json(v: &serde_json::Value) -> PyValue {
    match v {
        serde_json::Value::Null => PyValue::None,
        serde_json::Value::Bool(b) => PyValue::Bool(*b),
        serde_json::Value::Number(n) => match n.as_i64() {
            Some(i) => PyValue::Int(i),
            None => PyValue::Float(n.as_f64().unwrap_or(0.0)),
        },
        serde_json::Value::String(s) => PyValue::Str(s.clone()),
        serde_json::Value::Array(a) => PyValue::List(a.iter().map(py_from_json).collect()),
        serde_json::Value::Object(o) => PyValue::Dict(o.iter().map(|(k, x)| (k.clone(), py_from_json(x))).collect()),
    }
}
`

const pyToJSON = `fn py_to_json(v: &PyValue) -> serde_json::Value {
    match v {
        PyValue::None => serde_json::Value::Null,
        PyValue::Bool(b) => serde_json::Value::Bool(*b),
        PyValue::Int(i) => serde_json::Value::from(*i),
        PyValue::Float(x) => serde_json::Value::from(*x),
        PyValue::Str(s) => serde_json::Value::String(s.clone()),
        PyValue::List(xs) => serde_json::Value::Array(xs.iter().map(py_to_json).collect()),
        PyValue::Dict(d) => serde_json::Value::Object(d.iter().map(|(k, x)| (k.clone(), py_to_json(x))).collect()),
    }
}
`

const pyStrftime = `fn py_civil(t: &std::time::SystemTime) -> (i64, i64, i64, i64, i64, i64) {
    let secs = match t.duration_since(std::time::UNIX_EPOCH) {
        Ok(d) => d.as_secs() as i64,
        Err(e) => -(e.duration().as_secs() as i64),
    };
    let days = secs.div_euclid(86400);
    let rem = secs.rem_euclid(86400);
    let z = days + 719468;
    let era = z.div_euclid(146097);
    let doe = z - era * 146097;
    let yoe = (doe - doe / 1460 + doe / 36524 - doe / 146096) / 365;
    let doy = doe - (365 * yoe + yoe / 4 - yoe / 100);
    let mp = (5 * doy + 2) / 153;
    let d = doy - (153 * mp + 2) / 5 + 1;
    let m = if mp < 10 { mp + 3 } else { mp - 9 };
    let y = yoe + era * 400 + if m <= 2 { 1 } else { 0 };
    (y, m, d, rem / 3600, rem % 3600 / 60, rem % 60)
}

fn py_strftime(t: &std::time::SystemTime, fmt: &str) -> String {
    let (y, mo, d, h, mi, s) = py_civil(t);
    let mut out = String::new();
    let mut cs = fmt.chars();
    while let Some(c) = cs.next() {
        if c != '%' {
            out.push(c);
            continue;
        }
        match cs.next() {
            Some('Y') => out.push_str(&format!("{:04}", y)),
            Some('y') => out.push_str(&format!("{:02}", y % 100)),
            Some('m') => out.push_str(&format!("{:02}", mo)),
            Some('d') => out.push_str(&format!("{:02}", d)),
            Some('H') => out.push_str(&format!("{:02}", h)),
            Some('M') => out.push_str(&format!("{:02}", mi)),
            Some('S') => out.push_str(&format!("{:02}", s)),
            Some('%') => out.push('%'),
            Some(other) => {
                out.push('%');
                out.push(other);
            }
            None => out.push('%'),
        }
    }
    out
}
`

const pyPerfCounter = `fn py_perf_counter() -> f64 {
    static START: std::sync::OnceLock<std::time::Instant> = std::sync::OnceLock::new();
    START.get_or_init(std::time::Instant::now).elapsed().as_secs_f64()
}
`

const pyRandom = `thread_local! {
    static PY_RNG: std::cell::Cell<u64> = std::cell::Cell::new(
        std::time::SystemTime::now()
            .duration_since(std::time::UNIX_EPOCH)
            .map(|d| d.as_nanos() as u64)
            .unwrap_or(0x9E37_79B9_7F4A_7C15)
            | 1,
    );
}

fn py_seed(seed: u64) {
    PY_RNG.with(|s| s.set(seed.wrapping_mul(0x9E37_79B9_7F4A_7C15) | 1));
}

fn py_next_u64() -> u64 {
    PY_RNG.with(|s| {
        let mut x = s.get();
        x ^= x << 13;
        x ^= x >> 7;
        x ^= x << 17;
        s.set(x);
        x
    })
}

fn py_random() -> f64 {
    (py_next_u64() >> 11) as f64 / (1u64 << 53) as f64
}

fn py_randint(a: i64, b: i64) -> i64 {
    if b < a {
        panic!("ValueError: empty range for randint({}, {})", a, b);
    }
    a + (py_next_u64() % ((b - a + 1) as u64)) as i64
}

fn py_shuffle<T>(v: &mut Vec<T>) {
    for i in (1..v.len()).rev() {
        let j = (py_next_u64() % (i as u64 + 1)) as usize;
        v.swap(i, j);
    }
}
`

const pyCounter = `fn py_counter<T: std::hash::Hash + Eq, I: Iterator<Item = T>>(items: I) -> std::collections::HashMap<T, i64> {
    let mut out = std::collections::HashMap::new();
    for x in items {
        *out.entry(x).or_insert(0) += 1;
    }
    out
}
`

const pyMostCommon = `fn py_most_common<T: Clone + Ord>(counts: &std::collections::HashMap<T, i64>, n: usize) -> Vec<(T, i64)> {
    let mut v: Vec<(T, i64)> = counts.iter().map(|(k, c)| (k.clone(), *c)).collect();
    v.sort_by(|a, b| b.1.cmp(&a.1).then_with(|| a.0.cmp(&b.0)));
    v.truncate(n);
    v
}
`
