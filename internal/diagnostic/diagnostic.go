// Diagnostics produced while translating a module.
// Translation never aborts on a diagnostic (except parse errors); they are
// collected and returned alongside the artifact.

package diagnostic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pyrite-lang/pyrite/internal/position"
)

// Level represents the severity of a diagnostic.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Category is the error kind a diagnostic belongs to.
type Category int

const (
	CategoryParse Category = iota
	CategoryUnsupported
	CategoryImport
	CategoryType
	CategoryOwnership
	CategoryCodegen
	CategoryValidator
)

func (c Category) String() string {
	switch c {
	case CategoryParse:
		return "parse"
	case CategoryUnsupported:
		return "unsupported"
	case CategoryImport:
		return "import"
	case CategoryType:
		return "type"
	case CategoryOwnership:
		return "ownership"
	case CategoryCodegen:
		return "codegen"
	case CategoryValidator:
		return "validator"
	default:
		return "unknown"
	}
}

// Diagnostic codes.
const (
	CodeParse           = "E-PARSE"
	CodeUnsupported     = "W-UNSUPPORTED"
	CodeUnknownImport   = "W-IMPORT-UNKNOWN"
	CodeTypeMismatch    = "E-TYPE-MISMATCH"
	CodeUnknownName     = "E-TYPE-UNKNOWN-NAME"
	CodeProtocol        = "W-TYPE-PROTOCOL"
	CodeUnknownType     = "W-TYPE-UNKNOWN"
	CodeOwnershipClone  = "W-OWN-CLONE"
	CodeUnmapped        = "W-GEN-UNMAPPED"
	CodeDuplicate       = "W-GEN-DUPLICATE"
	CodeGenUnsupported  = "E-GEN-UNSUPPORTED"
	CodeValidatorFailed = "E-VALIDATOR"
)

// Diagnostic represents a single diagnostic message.
type Diagnostic struct {
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Suggestions []string      `json:"suggestions,omitempty"`
	Span        position.Span `json:"span"`
	Level       Level         `json:"level"`
	Category    Category      `json:"category"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s[%s]: %s", d.Span, d.Level, d.Code, d.Message)
}

// Builder helps construct diagnostics with a fluent API.
type Builder struct {
	d Diagnostic
}

// New starts a diagnostic with the given code.
func New(code string) *Builder {
	return &Builder{d: Diagnostic{Code: code, Level: LevelError}}
}

func (b *Builder) Error() *Builder {
	b.d.Level = LevelError
	return b
}

func (b *Builder) Warning() *Builder {
	b.d.Level = LevelWarning
	return b
}

func (b *Builder) Info() *Builder {
	b.d.Level = LevelInfo
	return b
}

func (b *Builder) Category(c Category) *Builder {
	b.d.Category = c
	return b
}

func (b *Builder) Span(span position.Span) *Builder {
	b.d.Span = span
	return b
}

func (b *Builder) Message(format string, args ...interface{}) *Builder {
	b.d.Message = fmt.Sprintf(format, args...)
	return b
}

func (b *Builder) Suggest(s string) *Builder {
	b.d.Suggestions = append(b.d.Suggestions, s)
	return b
}

func (b *Builder) Build() Diagnostic {
	return b.d
}

// List is an ordered collection of diagnostics. A non-empty List with
// errors may be returned as an error value.
type List []Diagnostic

// Add appends d to the list.
func (l *List) Add(d Diagnostic) {
	*l = append(*l, d)
}

// Addf appends a diagnostic built from the arguments.
func (l *List) Addf(level Level, cat Category, code string, span position.Span, format string, args ...interface{}) {
	*l = append(*l, Diagnostic{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
		Level:    level,
		Category: cat,
	})
}

// Extend appends all diagnostics in other.
func (l *List) Extend(other List) {
	*l = append(*l, other...)
}

// HasErrors reports whether any diagnostic is at error level.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics at the given level.
func (l List) Count(level Level) int {
	n := 0
	for _, d := range l {
		if d.Level == level {
			n++
		}
	}
	return n
}

// Sort orders diagnostics by position, then code. The sort is stable so
// diagnostics at the same point keep emission order.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		a, b := l[i].Span.Start, l[j].Span.Start
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return l[i].Code < l[j].Code
	})
}

func (l List) Error() string {
	if len(l) == 0 {
		return "no diagnostics"
	}
	if len(l) == 1 {
		return l[0].String()
	}
	return fmt.Sprintf("%s (and %d more)", l[0].String(), len(l)-1)
}

// Format renders every diagnostic, with a source snippet when src is set.
func (l List) Format(src *position.SourceFile) string {
	var b strings.Builder
	for _, d := range l {
		b.WriteString(d.String())
		b.WriteByte('\n')
		if src != nil {
			if snip := src.Snippet(d.Span); snip != "" {
				b.WriteString(snip)
				b.WriteByte('\n')
			}
		}
		for _, s := range d.Suggestions {
			fmt.Fprintf(&b, "  help: %s\n", s)
		}
	}
	errs, warns := l.Count(LevelError), l.Count(LevelWarning)
	if errs+warns > 0 {
		fmt.Fprintf(&b, "%d error(s), %d warning(s)\n", errs, warns)
	}
	return b.String()
}
