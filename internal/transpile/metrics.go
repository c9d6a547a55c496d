package transpile

import (
	"time"

	"github.com/pyrite-lang/pyrite/internal/hir"
	"github.com/pyrite-lang/pyrite/internal/types"
)

// Metrics describes a translated module.
type Metrics struct {
	Duration time.Duration `json:"duration"`
	// Complexity is the summed cyclomatic complexity of every function
	// body plus the top-level statements.
	Complexity    int `json:"complexity"`
	MaxComplexity int `json:"max_complexity"`
	// TypeCoverage is the fraction of checked expressions whose type
	// contains no Unknown, in [0, 1].
	TypeCoverage float64 `json:"type_coverage"`
	Functions    int     `json:"functions"`
	Classes      int     `json:"classes"`
}

func measure(mod *hir.Module, info *types.Info) Metrics {
	var m Metrics
	add := func(body hir.Block) {
		c := Cyclomatic(body)
		m.Complexity += c
		m.MaxComplexity = max(m.MaxComplexity, c)
	}
	for _, f := range mod.Functions {
		m.Functions++
		add(f.Body)
	}
	for _, c := range mod.Classes {
		m.Classes++
		for _, meth := range c.Methods {
			m.Functions++
			add(meth.Body)
		}
	}
	if len(mod.Main) > 0 {
		add(mod.Main)
	}

	m.TypeCoverage = 1
	if info != nil && len(info.Types) > 0 {
		known := 0
		for _, t := range info.Types {
			if !t.ContainsUnknown() {
				known++
			}
		}
		m.TypeCoverage = float64(known) / float64(len(info.Types))
	}
	return m
}

// Cyclomatic returns 1 plus the number of decision points in body.
// Nested function definitions count toward the enclosing body.
func Cyclomatic(body hir.Block) int {
	n := 1
	hir.InspectBlock(body, func(node hir.Node) bool {
		switch x := node.(type) {
		case *hir.If, *hir.While, *hir.For, *hir.IfExpr:
			n++
		case *hir.Try:
			n += len(x.Handlers)
		case *hir.BinOp:
			if x.Op == "and" || x.Op == "or" {
				n++
			}
		case *hir.Comprehension:
			for _, c := range x.Clauses {
				if c.Kind == hir.ClauseIf || c.Cond != nil {
					n++
				}
			}
		}
		return true
	})
	return n
}
