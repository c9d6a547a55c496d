package stdlib

import (
	"github.com/pyrite-lang/pyrite/internal/hir"
)

const collectStrings = ".map(String::from).collect::<Vec<String>>()"

func registerStringMethods(r *Registry) {
	str := func(name, tpl string, min, max int, res hir.Type) {
		r.addMethod(RecvStr, Recipe{Path: name, Template: tpl, MinArgs: min, MaxArgs: max, Result: ret(res)})
	}
	strs := hir.ListOf(hir.Str)

	str("upper", "{recv}.to_uppercase()", 0, 0, hir.Str)
	str("lower", "{recv}.to_lowercase()", 0, 0, hir.Str)
	str("casefold", "{recv}.to_lowercase()", 0, 0, hir.Str)
	str("strip", "{recv}.trim().to_string()", 0, 0, hir.Str)
	str("lstrip", "{recv}.trim_start().to_string()", 0, 0, hir.Str)
	str("rstrip", "{recv}.trim_end().to_string()", 0, 0, hir.Str)
	str("strip", "{recv}.trim_matches(|c: char| {0:str}.contains(c)).to_string()", 1, 1, hir.Str)
	str("lstrip", "{recv}.trim_start_matches(|c: char| {0:str}.contains(c)).to_string()", 1, 1, hir.Str)
	str("rstrip", "{recv}.trim_end_matches(|c: char| {0:str}.contains(c)).to_string()", 1, 1, hir.Str)
	str("startswith", "{recv}.starts_with({0:pat})", 1, 1, hir.Bool)
	str("endswith", "{recv}.ends_with({0:pat})", 1, 1, hir.Bool)
	str("find", "{recv}.find({0:pat}).map(|i| i as i64).unwrap_or(-1)", 1, 1, hir.Int)
	str("rfind", "{recv}.rfind({0:pat}).map(|i| i as i64).unwrap_or(-1)", 1, 1, hir.Int)
	str("count", "({recv}.matches({0:pat}).count() as i64)", 1, 1, hir.Int)
	str("replace", "{recv}.replace({0:pat}, {1:str})", 2, 2, hir.Str)
	str("replace", "{recv}.replacen({0:pat}, {1:str}, {2} as usize)", 3, 3, hir.Str)
	str("split", "{recv}.split_whitespace()"+collectStrings, 0, 0, strs)
	str("split", "{recv}.split({0:pat})"+collectStrings, 1, 1, strs)
	str("split", "{recv}.splitn(({1} + 1) as usize, {0:pat})"+collectStrings, 2, 2, strs)
	str("rsplit", "{recv}.rsplit({0:pat})"+collectStrings+".into_iter().rev().collect::<Vec<String>>()", 1, 1, strs)
	str("splitlines", "{recv}.lines()"+collectStrings, 0, 0, strs)
	str("isdigit", "(!{recv}.is_empty() && {recv}.chars().all(|c| c.is_ascii_digit()))", 0, 0, hir.Bool)
	str("isnumeric", "(!{recv}.is_empty() && {recv}.chars().all(|c| c.is_numeric()))", 0, 0, hir.Bool)
	str("isalpha", "(!{recv}.is_empty() && {recv}.chars().all(|c| c.is_alphabetic()))", 0, 0, hir.Bool)
	str("isalnum", "(!{recv}.is_empty() && {recv}.chars().all(|c| c.is_alphanumeric()))", 0, 0, hir.Bool)
	str("isspace", "(!{recv}.is_empty() && {recv}.chars().all(|c| c.is_whitespace()))", 0, 0, hir.Bool)
	str("isupper", "({recv}.chars().any(|c| c.is_alphabetic()) && !{recv}.chars().any(|c| c.is_lowercase()))", 0, 0, hir.Bool)
	str("islower", "({recv}.chars().any(|c| c.is_alphabetic()) && !{recv}.chars().any(|c| c.is_uppercase()))", 0, 0, hir.Bool)
	str("zfill", "format!(\"{:0>width$}\", {recv}, width = {0} as usize)", 1, 1, hir.Str)
	str("ljust", "format!(\"{:<width$}\", {recv}, width = {0} as usize)", 1, 1, hir.Str)
	str("rjust", "format!(\"{:>width$}\", {recv}, width = {0} as usize)", 1, 1, hir.Str)
	str("center", "format!(\"{:^width$}\", {recv}, width = {0} as usize)", 1, 1, hir.Str)
	str("removeprefix", "{recv}.strip_prefix({0:pat}).unwrap_or(&{recv}).to_string()", 1, 1, hir.Str)
	str("removesuffix", "{recv}.strip_suffix({0:pat}).unwrap_or(&{recv}).to_string()", 1, 1, hir.Str)
	str("swapcase", "{recv}.chars().map(|c| if c.is_uppercase() { c.to_lowercase().to_string() } else { c.to_uppercase().to_string() }).collect::<String>()", 0, 0, hir.Str)

	r.addMethod(RecvStr, Recipe{Path: "capitalize", Template: "py_capitalize({recv:str})", Result: ret(hir.Str), Helpers: []string{"py_capitalize"}})
	r.addMethod(RecvStr, Recipe{Path: "title", Template: "py_title({recv:str})", Result: ret(hir.Str), Helpers: []string{"py_title"}})
	r.addMethod(RecvStr, Recipe{Path: "index", Template: "{recv}.find({0:pat}).map(|i| i as i64).ok_or(\"substring not found\")",
		MinArgs: 1, MaxArgs: 1, Fallible: true, ErrorKind: "ValueError", Result: ret(hir.Int)})
	r.addMethod(RecvStr, Recipe{Path: "join", Special: "join", MinArgs: 1, MaxArgs: 1, Result: ret(hir.Str)})
	r.addMethod(RecvStr, Recipe{Path: "format", Special: "str_format", MinArgs: 0, MaxArgs: -1, Result: ret(hir.Str)})
	r.addMethod(RecvStr, Recipe{Path: "encode", Template: "{recv}.as_bytes().to_vec()", MinArgs: 0, MaxArgs: 1, Result: ret(hir.NamedOf(TypeBytes))})
	r.addMethod(RecvStr, Recipe{Path: "partition", Template: "py_partition({recv:str}, {0:str})", MinArgs: 1, MaxArgs: 1,
		Helpers: []string{"py_partition"}, Result: ret(hir.TupleOf(hir.Str, hir.Str, hir.Str))})
	r.addMethod(RecvBytes, Recipe{Path: "decode", Template: "String::from_utf8_lossy(&{recv}).to_string()", MinArgs: 0, MaxArgs: 1, Result: ret(hir.Str)})
}
