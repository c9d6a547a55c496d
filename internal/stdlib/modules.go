package stdlib

import (
	"github.com/pyrite-lang/pyrite/internal/hir"
)

const pathNew = "std::path::Path::new({0:str})"

func registerOS(r *Registry) {
	r.addModule("os", "std::env", "")
	r.addModule("os.path", "std::path", "")
	none := ret(hir.None)

	r.addFunc(Recipe{Path: "os.getcwd", Template: "std::env::current_dir().map(|p| p.display().to_string())",
		Fallible: true, ErrorKind: "OSError", Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "os.listdir", Template: "py_listdir({0:str})", MinArgs: 0, MaxArgs: 1, Defaults: []string{"\".\""},
		Fallible: true, ErrorKind: "OSError", Helpers: []string{"py_listdir"}, Result: ret(hir.ListOf(hir.Str))})
	r.addFunc(Recipe{Path: "os.getenv", Template: "std::env::var({0:str}).ok()", MinArgs: 1, MaxArgs: 1,
		ReturnsOption: true, Result: ret(hir.OptionalOf(hir.Str))})
	r.addFunc(Recipe{Path: "os.getenv", Template: "std::env::var({0:str}).unwrap_or_else(|_| {1:own})", MinArgs: 2, MaxArgs: 2, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "os.environ.get", Template: "std::env::var({0:str}).ok()", MinArgs: 1, MaxArgs: 1,
		ReturnsOption: true, Result: ret(hir.OptionalOf(hir.Str))})
	r.addFunc(Recipe{Path: "os.environ.get", Template: "std::env::var({0:str}).unwrap_or_else(|_| {1:own})", MinArgs: 2, MaxArgs: 2, Result: ret(hir.Str)})
	r.addValue(Recipe{Path: "os.environ", Template: "std::env::vars().collect::<HashMap<String, String>>()",
		Imports: []string{"std::collections::HashMap"}, Result: ret(hir.DictOf(hir.Str, hir.Str))})
	r.addValue(Recipe{Path: "os.sep", Template: "std::path::MAIN_SEPARATOR.to_string()", Result: ret(hir.Str)})
	r.addValue(Recipe{Path: "os.linesep", Template: "String::from(\"\\n\")", Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "os.makedirs", Template: "std::fs::create_dir_all({0:str})", MinArgs: 1, MaxArgs: 2, Keywords: []string{"name", "exist_ok"},
		Fallible: true, ErrorKind: "OSError", Result: none})
	r.addFunc(Recipe{Path: "os.mkdir", Template: "std::fs::create_dir({0:str})", MinArgs: 1, MaxArgs: 1, Fallible: true, ErrorKind: "OSError", Result: none})
	r.addFunc(Recipe{Path: "os.remove", Template: "std::fs::remove_file({0:str})", MinArgs: 1, MaxArgs: 1, Fallible: true, ErrorKind: "OSError", Result: none})
	r.addFunc(Recipe{Path: "os.unlink", Template: "std::fs::remove_file({0:str})", MinArgs: 1, MaxArgs: 1, Fallible: true, ErrorKind: "OSError", Result: none})
	r.addFunc(Recipe{Path: "os.rmdir", Template: "std::fs::remove_dir({0:str})", MinArgs: 1, MaxArgs: 1, Fallible: true, ErrorKind: "OSError", Result: none})
	r.addFunc(Recipe{Path: "os.rename", Template: "std::fs::rename({0:str}, {1:str})", MinArgs: 2, MaxArgs: 2, Fallible: true, ErrorKind: "OSError", Result: none})
	r.addFunc(Recipe{Path: "os.getpid", Template: "(std::process::id() as i64)", Result: ret(hir.Int)})

	r.addFunc(Recipe{Path: "os.path.exists", Template: pathNew + ".exists()", MinArgs: 1, MaxArgs: 1, Params: []hir.Type{hir.Str}, Result: ret(hir.Bool)})
	r.addFunc(Recipe{Path: "os.path.isfile", Template: pathNew + ".is_file()", MinArgs: 1, MaxArgs: 1, Params: []hir.Type{hir.Str}, Result: ret(hir.Bool)})
	r.addFunc(Recipe{Path: "os.path.isdir", Template: pathNew + ".is_dir()", MinArgs: 1, MaxArgs: 1, Params: []hir.Type{hir.Str}, Result: ret(hir.Bool)})
	r.addFunc(Recipe{Path: "os.path.isabs", Template: pathNew + ".is_absolute()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Bool)})
	r.addFunc(Recipe{Path: "os.path.join", Template: pathNew + ".join({1:str}).display().to_string()", MinArgs: 2, MaxArgs: 2, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "os.path.join", Template: pathNew + ".join({1:str}).join({2:str}).display().to_string()", MinArgs: 3, MaxArgs: 3, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "os.path.basename", Template: pathNew + ".file_name().map(|s| s.to_string_lossy().to_string()).unwrap_or_default()",
		MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "os.path.dirname", Template: pathNew + ".parent().map(|p| p.display().to_string()).unwrap_or_default()",
		MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "os.path.splitext", Template: "py_splitext({0:str})", MinArgs: 1, MaxArgs: 1,
		Helpers: []string{"py_splitext"}, Result: ret(hir.TupleOf(hir.Str, hir.Str))})
	r.addFunc(Recipe{Path: "os.path.abspath", Template: "std::env::current_dir().map(|d| d.join({0:str}).display().to_string()).unwrap_or_default()",
		MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "os.path.getsize", Template: "std::fs::metadata({0:str}).map(|m| m.len() as i64)", MinArgs: 1, MaxArgs: 1,
		Fallible: true, ErrorKind: "OSError", Result: ret(hir.Int)})
	r.addFunc(Recipe{Path: "os.path.expanduser", Template: "py_expanduser({0:str})", MinArgs: 1, MaxArgs: 1,
		Helpers: []string{"py_expanduser"}, Result: ret(hir.Str)})
}

func registerSys(r *Registry) {
	r.addModule("sys", "std::env", "")
	r.addValue(Recipe{Path: "sys.argv", Template: "std::env::args().collect::<Vec<String>>()", Result: ret(hir.ListOf(hir.Str))})
	r.addValue(Recipe{Path: "sys.platform", Template: "std::env::consts::OS.to_string()", Result: ret(hir.Str)})
	r.addValue(Recipe{Path: "sys.maxsize", Template: "i64::MAX", Result: ret(hir.Int)})
	r.addFunc(Recipe{Path: "sys.exit", Template: "std::process::exit({0} as i32)", MinArgs: 0, MaxArgs: 1, Defaults: []string{"0"}, Result: ret(hir.None)})
	r.addValue(Recipe{Path: "sys.stdin", Template: "PyFile::stdin()", Helpers: []string{"PyFile"}, Result: ret(hir.NamedOf(TypeFile))})
	r.addValue(Recipe{Path: "sys.stdout", Template: "PyFile::stdout()", Helpers: []string{"PyFile"}, Result: ret(hir.NamedOf(TypeFile))})
	r.addValue(Recipe{Path: "sys.stderr", Template: "PyFile::stderr()", Helpers: []string{"PyFile"}, Result: ret(hir.NamedOf(TypeFile))})
}

// registerFile covers handles returned by open() and the standard
// streams. Reads and writes go through the PyFile helper, which reports
// I/O failures as OSError.
func registerFile(r *Registry) {
	f := func(rc Recipe) {
		rc.Helpers = []string{"PyFile"}
		r.addMethod(RecvFile, rc)
	}
	none := ret(hir.None)
	f(Recipe{Path: "read", Template: "{recv}.read()", Fallible: true, ErrorKind: "OSError", Result: ret(hir.Str)})
	f(Recipe{Path: "readline", Template: "{recv}.readline()", Fallible: true, ErrorKind: "OSError", Result: ret(hir.Str)})
	f(Recipe{Path: "readlines", Template: "{recv}.readlines()", Fallible: true, ErrorKind: "OSError", Result: ret(hir.ListOf(hir.Str))})
	f(Recipe{Path: "write", Template: "{recv}.write({0:str})", MinArgs: 1, MaxArgs: 1, Mutates: true,
		Fallible: true, ErrorKind: "OSError", Result: ret(hir.Int)})
	f(Recipe{Path: "writelines", Template: "{recv}.writelines(&{0})", MinArgs: 1, MaxArgs: 1, Mutates: true,
		Fallible: true, ErrorKind: "OSError", Result: none})
	f(Recipe{Path: "flush", Template: "{recv}.flush()", Mutates: true, Fallible: true, ErrorKind: "OSError", Result: none})
	f(Recipe{Path: "close", Template: "{recv}.close()", Mutates: true, Result: none})
}

func registerMath(r *Registry) {
	r.addModule("math", "f64", "")
	fl := func(name, tpl string, n int) {
		r.addFunc(Recipe{Path: "math." + name, Template: tpl, MinArgs: n, MaxArgs: n, Result: ret(hir.Float)})
	}
	in := func(name, tpl string, n int) {
		r.addFunc(Recipe{Path: "math." + name, Template: tpl, MinArgs: n, MaxArgs: n, Result: ret(hir.Int)})
	}
	r.addValue(Recipe{Path: "math.pi", Template: "std::f64::consts::PI", Result: ret(hir.Float)})
	r.addValue(Recipe{Path: "math.e", Template: "std::f64::consts::E", Result: ret(hir.Float)})
	r.addValue(Recipe{Path: "math.tau", Template: "std::f64::consts::TAU", Result: ret(hir.Float)})
	r.addValue(Recipe{Path: "math.inf", Template: "f64::INFINITY", Result: ret(hir.Float)})
	r.addValue(Recipe{Path: "math.nan", Template: "f64::NAN", Result: ret(hir.Float)})
	fl("sqrt", "({0} as f64).sqrt()", 1)
	fl("exp", "({0} as f64).exp()", 1)
	fl("log", "({0} as f64).ln()", 1)
	fl("log", "({0} as f64).log({1} as f64)", 2)
	fl("log2", "({0} as f64).log2()", 1)
	fl("log10", "({0} as f64).log10()", 1)
	fl("pow", "({0} as f64).powf({1} as f64)", 2)
	fl("sin", "({0} as f64).sin()", 1)
	fl("cos", "({0} as f64).cos()", 1)
	fl("tan", "({0} as f64).tan()", 1)
	fl("atan", "({0} as f64).atan()", 1)
	fl("atan2", "({0} as f64).atan2({1} as f64)", 2)
	fl("fabs", "({0} as f64).abs()", 1)
	fl("hypot", "({0} as f64).hypot({1} as f64)", 2)
	fl("radians", "({0} as f64).to_radians()", 1)
	fl("degrees", "({0} as f64).to_degrees()", 1)
	in("floor", "(({0} as f64).floor() as i64)", 1)
	in("ceil", "(({0} as f64).ceil() as i64)", 1)
	in("trunc", "(({0} as f64).trunc() as i64)", 1)
	in("gcd", "py_gcd({0}, {1})", 2)
	r.funcs["math.gcd"][0].Helpers = []string{"py_gcd"}
	in("factorial", "(1..={0}).product::<i64>()", 1)
	in("isqrt", "(({0} as f64).sqrt() as i64)", 1)
	r.addFunc(Recipe{Path: "math.isnan", Template: "({0} as f64).is_nan()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Bool)})
	r.addFunc(Recipe{Path: "math.isinf", Template: "({0} as f64).is_infinite()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Bool)})
	r.addFunc(Recipe{Path: "math.isclose", Template: "(({0} as f64) - ({1} as f64)).abs() <= 1e-9 * ({0} as f64).abs().max(({1} as f64).abs())",
		MinArgs: 2, MaxArgs: 2, Result: ret(hir.Bool)})
}

func registerRegex(r *Registry) {
	r.addModule("re", "regex", "regex")
	rx := hir.NamedOf(TypeRegex)
	match := hir.OptionalOf(hir.NamedOf(TypeMatch))
	crates := []string{"regex"}
	helpers := []string{"PyMatch"}
	compiled := "Regex::new({0:str}).expect(\"invalid regular expression\")"
	imp := []string{"regex::Regex"}

	r.addFunc(Recipe{Path: "re.compile", Template: "Regex::new({0:str})", MinArgs: 1, MaxArgs: 2,
		Fallible: true, ErrorKind: "re.error", Imports: imp, Crates: crates, Result: ret(rx)})
	r.addFunc(Recipe{Path: "re.match", Template: "py_re_match(&" + compiled + ", {1:str}, true)", MinArgs: 2, MaxArgs: 2,
		ReturnsOption: true, Imports: imp, Crates: crates, Helpers: helpers, Result: ret(match)})
	r.addFunc(Recipe{Path: "re.search", Template: "py_re_match(&" + compiled + ", {1:str}, false)", MinArgs: 2, MaxArgs: 2,
		ReturnsOption: true, Imports: imp, Crates: crates, Helpers: helpers, Result: ret(match)})
	r.addFunc(Recipe{Path: "re.fullmatch", Template: "py_re_match(&Regex::new(&format!(\"^(?:{})$\", {0:str})).expect(\"invalid regular expression\"), {1:str}, true)",
		MinArgs: 2, MaxArgs: 2, ReturnsOption: true, Imports: imp, Crates: crates, Helpers: helpers, Result: ret(match)})
	r.addFunc(Recipe{Path: "re.findall", Template: compiled + ".find_iter({1:str}).map(|m| m.as_str().to_string()).collect::<Vec<String>>()",
		MinArgs: 2, MaxArgs: 2, Imports: imp, Crates: crates, Result: ret(hir.ListOf(hir.Str))})
	r.addFunc(Recipe{Path: "re.sub", Template: compiled + ".replace_all({2:str}, {1:str}).to_string()",
		MinArgs: 3, MaxArgs: 3, Imports: imp, Crates: crates, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "re.split", Template: compiled + ".split({1:str}).map(String::from).collect::<Vec<String>>()",
		MinArgs: 2, MaxArgs: 2, Imports: imp, Crates: crates, Result: ret(hir.ListOf(hir.Str))})
	r.addFunc(Recipe{Path: "re.escape", Template: "regex::escape({0:str})", MinArgs: 1, MaxArgs: 1, Crates: crates, Result: ret(hir.Str)})
	r.addValue(Recipe{Path: "re.IGNORECASE", Template: "0", Result: ret(hir.Int)})

	pat := func(rc Recipe) {
		rc.Crates = crates
		r.addMethod(RecvRegex, rc)
	}
	pat(Recipe{Path: "match", Template: "py_re_match(&{recv}, {0:str}, true)", MinArgs: 1, MaxArgs: 1, ReturnsOption: true, Helpers: helpers, Result: ret(match)})
	pat(Recipe{Path: "search", Template: "py_re_match(&{recv}, {0:str}, false)", MinArgs: 1, MaxArgs: 1, ReturnsOption: true, Helpers: helpers, Result: ret(match)})
	pat(Recipe{Path: "findall", Template: "{recv}.find_iter({0:str}).map(|m| m.as_str().to_string()).collect::<Vec<String>>()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.ListOf(hir.Str))})
	pat(Recipe{Path: "sub", Template: "{recv}.replace_all({1:str}, {0:str}).to_string()", MinArgs: 2, MaxArgs: 2, Result: ret(hir.Str)})
	pat(Recipe{Path: "split", Template: "{recv}.split({0:str}).map(String::from).collect::<Vec<String>>()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.ListOf(hir.Str))})

	m := func(rc Recipe) {
		rc.Helpers = helpers
		r.addMethod(RecvMatch, rc)
	}
	m(Recipe{Path: "group", Template: "{recv}.group(0)", Result: ret(hir.Str)})
	m(Recipe{Path: "group", Template: "{recv}.group({0} as usize)", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	m(Recipe{Path: "groups", Template: "{recv}.groups()", Result: ret(hir.ListOf(hir.Str))})
	m(Recipe{Path: "start", Template: "({recv}.start as i64)", Result: ret(hir.Int)})
	m(Recipe{Path: "end", Template: "({recv}.end as i64)", Result: ret(hir.Int)})
	m(Recipe{Path: "span", Template: "({recv}.start as i64, {recv}.end as i64)", Result: ret(hir.TupleOf(hir.Int, hir.Int))})
}

func registerJSON(r *Registry) {
	r.addModule("json", "serde_json", "serde_json")
	crates := []string{"serde_json"}
	r.addFunc(Recipe{Path: "json.loads", Template: "serde_json::from_str::<serde_json::Value>({0:str}).map(|v| py_from_json(&v))",
		MinArgs: 1, MaxArgs: 1, Fallible: true, ErrorKind: "ValueError", Crates: crates, Helpers: []string{"PyValue", "py_from_json"}, Result: ret(hir.Unknown)})
	r.addFunc(Recipe{Path: "json.dumps", On: RecvValue, Template: "py_to_json(&{0}).to_string()", MinArgs: 1, MaxArgs: 1,
		Keywords: []string{"obj", "indent"}, Crates: crates, Helpers: []string{"PyValue", "py_to_json"}, Result: ret(hir.Str)})
	r.addFunc(Recipe{Path: "json.dumps", Template: "serde_json::to_string(&{0}).unwrap_or_default()", MinArgs: 1, MaxArgs: 1,
		Keywords: []string{"obj", "indent"}, Crates: crates, Result: ret(hir.Str)})
}

func registerHashlib(r *Registry) {
	r.addModule("hashlib", "sha2", "sha2")
	h := hir.NamedOf(TypeHash)
	r.addFunc(Recipe{Path: "hashlib.sha256", Template: "sha2::Sha256::digest({0:ref}).to_vec()", MinArgs: 1, MaxArgs: 1,
		Imports: []string{"sha2::Digest"}, Crates: []string{"sha2"}, Result: ret(h)})
	r.addFunc(Recipe{Path: "hashlib.sha512", Template: "sha2::Sha512::digest({0:ref}).to_vec()", MinArgs: 1, MaxArgs: 1,
		Imports: []string{"sha2::Digest"}, Crates: []string{"sha2"}, Result: ret(h)})
	r.addFunc(Recipe{Path: "hashlib.md5", Template: "md5::Md5::digest({0:ref}).to_vec()", MinArgs: 1, MaxArgs: 1,
		Imports: []string{"md5::Digest"}, Crates: []string{"md-5"}, Result: ret(h)})
	r.addMethod(RecvHash, Recipe{Path: "hexdigest", Template: "py_hex(&{recv})", Helpers: []string{"py_hex"}, Result: ret(hir.Str)})
	r.addMethod(RecvHash, Recipe{Path: "digest", Template: "{recv}.clone()", Result: ret(hir.NamedOf(TypeBytes))})
}

func registerDatetimeStd(r *Registry) {
	r.addModule("datetime", "std::time", "", "datetime", "date")
	dt := hir.NamedOf(TypeDatetime)
	r.addFunc(Recipe{Path: "datetime.datetime.now", Template: "std::time::SystemTime::now()", Result: ret(dt)})
	r.addFunc(Recipe{Path: "datetime.datetime.utcnow", Template: "std::time::SystemTime::now()", Result: ret(dt)})
	r.addFunc(Recipe{Path: "datetime.datetime.fromtimestamp", Template: "(std::time::UNIX_EPOCH + std::time::Duration::from_secs_f64({0} as f64))",
		MinArgs: 1, MaxArgs: 1, Result: ret(dt)})
	r.addCtor(Recipe{Path: "datetime.timedelta", Special: "timedelta", MinArgs: 0, MaxArgs: 7,
		Keywords: []string{"days", "seconds", "microseconds", "milliseconds", "minutes", "hours", "weeks"},
		Result:   ret(hir.NamedOf(TypeDuration))})
	d := func(rc Recipe) { r.addMethod(RecvDatetime, rc) }
	d(Recipe{Path: "timestamp", Template: "{recv}.duration_since(std::time::UNIX_EPOCH).map(|d| d.as_secs_f64()).unwrap_or(0.0)", Result: ret(hir.Float)})
	d(Recipe{Path: "isoformat", Template: "py_strftime(&{recv}, \"%Y-%m-%dT%H:%M:%S\")", Helpers: []string{"py_strftime"}, Result: ret(hir.Str)})
	d(Recipe{Path: "strftime", Template: "py_strftime(&{recv}, {0:str})", MinArgs: 1, MaxArgs: 1, Helpers: []string{"py_strftime"}, Result: ret(hir.Str)})
	d(Recipe{Path: "@year", Template: "py_civil(&{recv}).0", Helpers: []string{"py_strftime"}, Result: ret(hir.Int)})
	d(Recipe{Path: "@month", Template: "py_civil(&{recv}).1", Helpers: []string{"py_strftime"}, Result: ret(hir.Int)})
	d(Recipe{Path: "@day", Template: "py_civil(&{recv}).2", Helpers: []string{"py_strftime"}, Result: ret(hir.Int)})
}

func registerDatetimeChrono(r *Registry) {
	r.addModule("datetime", "chrono", "chrono", "datetime", "date")
	dt := hir.NamedOf(TypeDatetime)
	crates := []string{"chrono"}
	imp := []string{"chrono::Datelike", "chrono::Timelike"}
	r.addFunc(Recipe{Path: "datetime.datetime.now", Template: "chrono::Local::now().naive_local()", Crates: crates, Result: ret(dt)})
	r.addFunc(Recipe{Path: "datetime.datetime.utcnow", Template: "chrono::Utc::now().naive_utc()", Crates: crates, Result: ret(dt)})
	r.addFunc(Recipe{Path: "datetime.datetime.fromtimestamp", Template: "chrono::DateTime::from_timestamp({0} as i64, 0).map(|d| d.naive_utc()).unwrap_or_default()",
		MinArgs: 1, MaxArgs: 1, Crates: crates, Result: ret(dt)})
	r.addFunc(Recipe{Path: "datetime.datetime.strptime", Template: "chrono::NaiveDateTime::parse_from_str({0:str}, {1:str})",
		MinArgs: 2, MaxArgs: 2, Fallible: true, ErrorKind: "ValueError", Crates: crates, Result: ret(dt)})
	r.addFunc(Recipe{Path: "datetime.date.today", Template: "chrono::Local::now().date_naive().and_hms_opt(0, 0, 0).unwrap_or_default()", Crates: crates, Result: ret(dt)})
	r.addCtor(Recipe{Path: "datetime.timedelta", Special: "timedelta", MinArgs: 0, MaxArgs: 7, Crates: crates,
		Keywords: []string{"days", "seconds", "microseconds", "milliseconds", "minutes", "hours", "weeks"},
		Result:   ret(hir.NamedOf(TypeDuration))})
	d := func(rc Recipe) {
		rc.Crates = crates
		r.addMethod(RecvDatetime, rc)
	}
	d(Recipe{Path: "timestamp", Template: "({recv}.and_utc().timestamp() as f64)", Result: ret(hir.Float)})
	d(Recipe{Path: "isoformat", Template: "{recv}.format(\"%Y-%m-%dT%H:%M:%S\").to_string()", Result: ret(hir.Str)})
	d(Recipe{Path: "strftime", Template: "{recv}.format({0:str}).to_string()", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	d(Recipe{Path: "@year", Template: "({recv}.year() as i64)", Imports: imp, Result: ret(hir.Int)})
	d(Recipe{Path: "@month", Template: "({recv}.month() as i64)", Imports: imp, Result: ret(hir.Int)})
	d(Recipe{Path: "@day", Template: "({recv}.day() as i64)", Imports: imp, Result: ret(hir.Int)})
	d(Recipe{Path: "@hour", Template: "({recv}.hour() as i64)", Imports: imp, Result: ret(hir.Int)})
	d(Recipe{Path: "@minute", Template: "({recv}.minute() as i64)", Imports: imp, Result: ret(hir.Int)})
}

func registerTime(r *Registry) {
	r.addModule("time", "std::time", "")
	r.addFunc(Recipe{Path: "time.time", Template: "std::time::SystemTime::now().duration_since(std::time::UNIX_EPOCH).map(|d| d.as_secs_f64()).unwrap_or(0.0)",
		Result: ret(hir.Float)})
	r.addFunc(Recipe{Path: "time.sleep", Template: "std::thread::sleep(std::time::Duration::from_secs_f64({0} as f64))", MinArgs: 1, MaxArgs: 1, Result: ret(hir.None)})
	r.addFunc(Recipe{Path: "time.perf_counter", Template: "py_perf_counter()", Helpers: []string{"py_perf_counter"}, Result: ret(hir.Float)})
	r.addFunc(Recipe{Path: "time.monotonic", Template: "py_perf_counter()", Helpers: []string{"py_perf_counter"}, Result: ret(hir.Float)})
}

func registerRandom(r *Registry) {
	r.addModule("random", "std", "")
	h := []string{"py_random"}
	r.addFunc(Recipe{Path: "random.seed", Template: "py_seed({0} as u64)", MinArgs: 1, MaxArgs: 1, Helpers: h, Result: ret(hir.None)})
	r.addFunc(Recipe{Path: "random.random", Template: "py_random()", Helpers: h, Result: ret(hir.Float)})
	r.addFunc(Recipe{Path: "random.uniform", Template: "({0} as f64 + py_random() * (({1} as f64) - ({0} as f64)))", MinArgs: 2, MaxArgs: 2, Helpers: h, Result: ret(hir.Float)})
	r.addFunc(Recipe{Path: "random.randint", Template: "py_randint({0}, {1})", MinArgs: 2, MaxArgs: 2, Helpers: h, Result: ret(hir.Int)})
	r.addFunc(Recipe{Path: "random.choice", Template: "{0}[py_randint(0, {0}.len() as i64 - 1) as usize].clone()", MinArgs: 1, MaxArgs: 1, Helpers: h, Result: argElem(0)})
	r.addFunc(Recipe{Path: "random.shuffle", Template: "py_shuffle(&mut {0})", MinArgs: 1, MaxArgs: 1, Helpers: h, Result: ret(hir.None)})
}

func registerCollections(r *Registry) {
	r.addModule("collections", "std::collections", "")
	r.addCtor(Recipe{Path: "collections.defaultdict", Template: "HashMap::new()", MinArgs: 0, MaxArgs: 1,
		Imports: []string{"std::collections::HashMap"},
		Result: func(_ hir.Type, args []hir.Type) hir.Type {
			v := hir.Unknown
			if a := argType(args, 0); a.Kind == hir.KindNamed && a.Name == TypeType && len(a.Elems) == 1 {
				v = a.Elems[0]
			}
			return hir.DictOf(hir.Unknown, v)
		}})
	r.addCtor(Recipe{Path: "collections.OrderedDict", Template: "HashMap::new()", Imports: []string{"std::collections::HashMap"},
		Result: ret(hir.DictOf(hir.Unknown, hir.Unknown))})
	r.addCtor(Recipe{Path: "collections.Counter", Template: "HashMap::new()", Imports: []string{"std::collections::HashMap"},
		Result: ret(hir.DictOf(hir.Unknown, hir.Int))})
	r.addCtor(Recipe{Path: "collections.Counter", Template: "py_counter({0}.iter().cloned())", MinArgs: 1, MaxArgs: 1,
		Imports: []string{"std::collections::HashMap"}, Helpers: []string{"py_counter"},
		Result: func(_ hir.Type, args []hir.Type) hir.Type { return hir.DictOf(ElementOf(argType(args, 0)), hir.Int) }})
	r.addCtor(Recipe{Path: "collections.deque", Template: "VecDeque::new()", Imports: []string{"std::collections::VecDeque"},
		Result: ret(hir.NamedOf(TypeDeque, hir.Unknown))})
	r.addCtor(Recipe{Path: "collections.deque", Template: "{0}.iter().cloned().collect::<VecDeque<_>>()", MinArgs: 1, MaxArgs: 1,
		Imports: []string{"std::collections::VecDeque"},
		Result: func(_ hir.Type, args []hir.Type) hir.Type { return hir.NamedOf(TypeDeque, ElementOf(argType(args, 0))) }})
}

func registerItertools(r *Registry) {
	r.addModule("itertools", "std::iter", "")
	r.addFunc(Recipe{Path: "itertools.chain", Template: "{0}.iter().chain({1}.iter()).cloned().collect::<Vec<_>>()", MinArgs: 2, MaxArgs: 2, Result: listOfArgElem(0)})
	r.addFunc(Recipe{Path: "itertools.repeat", Template: "std::iter::repeat({0:own}).take({1} as usize).collect::<Vec<_>>()", MinArgs: 2, MaxArgs: 2,
		Result: func(_ hir.Type, args []hir.Type) hir.Type { return hir.ListOf(argType(args, 0)) }})
}

func registerArgparse(r *Registry) {
	r.addModule("argparse", "std::env", "")
	h := []string{"PyArgParser"}
	r.addCtor(Recipe{Path: "argparse.ArgumentParser", Template: "PyArgParser::new()", MinArgs: 0, MaxArgs: 1, Keywords: []string{"description"},
		Helpers: h, Result: ret(hir.NamedOf(TypeParser))})
	r.addFunc(Recipe{Path: "argparse.ArgumentTypeError", Template: "{0:own}", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	p := func(rc Recipe) {
		rc.Helpers = h
		r.addMethod(RecvParser, rc)
	}
	p(Recipe{Path: "add_argument", Special: "add_argument", MinArgs: 1, MaxArgs: 2, Keywords: []string{"", "", "type", "default", "help", "action", "required"},
		Mutates: true, Result: ret(hir.None)})
	p(Recipe{Path: "parse_args", Template: "{recv}.parse_args()", Fallible: true, ErrorKind: "SystemExit", Result: ret(hir.NamedOf(TypeArgs))})
	r.addMethod(RecvNamespace, Recipe{Path: "get", Template: "{recv}.get({0:str})", MinArgs: 1, MaxArgs: 1, Helpers: h, Result: ret(hir.Str)})
}

// registerTyping makes the annotation-only modules known so importing
// them does not raise unknown-import diagnostics. They emit no use items.
func registerTyping(r *Registry) {
	r.addModule("typing", "", "", "List", "Dict", "Set", "Tuple", "Optional", "Union", "Callable", "Any",
		"Final", "TypeVar", "Generic", "Protocol", "Iterator", "Iterable", "Sequence", "Mapping", "NamedTuple")
	r.addModule("dataclasses", "", "", "dataclass", "field")
	r.addModule("abc", "", "", "ABC", "abstractmethod")
	r.addModule("__future__", "", "", "annotations")
	r.addModule("functools", "", "", "lru_cache", "cache", "wraps")
}
