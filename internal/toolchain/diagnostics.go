package toolchain

import (
	"regexp"
	"strconv"
	"strings"
)

// Codes for failures that carry no compiler error code.
const (
	CodeTimeout = "TIMEOUT"
	CodeUnknown = "UNKNOWN"
)

// Diagnostic is one structured compiler message.
type Diagnostic struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// shortLine matches --error-format=short / --message-format=short output:
//
//	src/main.rs:3:5: error[E0308]: mismatched types
var shortLine = regexp.MustCompile(`^(.+?):(\d+):(\d+): (error|warning)(?:\[([A-Za-z0-9_-]+)\])?: (.*)$`)

// bareLine matches messages without a location, as in
//
//	error[E0463]: can't find crate for `regex`
var bareLine = regexp.MustCompile(`^(error|warning)(?:\[([A-Za-z0-9_-]+)\])?: (.*)$`)

// summary lines printed after the real diagnostics
var summaryPrefixes = []string{
	"aborting due to",
	"could not compile",
	"For more information about",
	"Some errors have detailed explanations",
}

func isSummary(msg string) bool {
	for _, p := range summaryPrefixes {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return strings.HasSuffix(msg, "warnings emitted") || strings.HasSuffix(msg, "warning emitted")
}

// ParseDiagnostics extracts error and warning lines from compiler output.
// Errors without a code get CodeUnknown.
func ParseDiagnostics(output string) []Diagnostic {
	var out []Diagnostic
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimRight(raw, "\r")
		if m := shortLine.FindStringSubmatch(line); m != nil {
			ln, _ := strconv.Atoi(m[2])
			col, _ := strconv.Atoi(m[3])
			out = append(out, Diagnostic{File: m[1], Line: ln, Column: col, Level: m[4], Code: codeOr(m[5]), Message: m[6]})
			continue
		}
		if m := bareLine.FindStringSubmatch(line); m != nil && !isSummary(m[3]) {
			out = append(out, Diagnostic{Level: m[1], Code: codeOr(m[2]), Message: m[3]})
		}
	}
	return out
}

func codeOr(code string) string {
	if code == "" {
		return CodeUnknown
	}
	return code
}

// Errors keeps only error-level diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.Level == "error" {
			out = append(out, d)
		}
	}
	return out
}

// failureDiagnostics derives the error list of a failed run. When the
// output holds no recognizable error, the whole stderr becomes a single
// UNKNOWN error.
func failureDiagnostics(out Output) []Diagnostic {
	if out.TimedOut {
		return []Diagnostic{{Level: "error", Code: CodeTimeout, Message: "validator timed out after " + out.Took.Round(1e6).String()}}
	}
	errs := Errors(ParseDiagnostics(out.Stderr + "\n" + out.Stdout))
	if len(errs) == 0 {
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = "exit status " + strconv.Itoa(out.ExitCode)
		}
		errs = []Diagnostic{{Level: "error", Code: CodeUnknown, Message: msg}}
	}
	return errs
}
