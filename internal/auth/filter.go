package auth

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-bexpr"
)

// filterCache stores compiled go-bexpr evaluators keyed by expression
var filterCache = &sync.Map{}

// Filter is a compiled go-bexpr expression used to narrow list results,
// e.g. `username == "foo"` or `"admin" in roles`.
type Filter struct {
	evaluator *bexpr.Evaluator
}

// CompileFilter parses expr. An empty expression yields a nil Filter that
// matches everything.
func CompileFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	if cached, ok := filterCache.Load(expr); ok {
		return &Filter{evaluator: cached.(*bexpr.Evaluator)}, nil
	}

	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
	}
	filterCache.Store(expr, evaluator)

	return &Filter{evaluator: evaluator}, nil
}

// Match evaluates the filter against datum. Evaluation errors (for example
// a selector naming a missing field) count as no match.
func (f *Filter) Match(datum map[string]any) bool {
	if f == nil {
		return true
	}
	matches, err := f.evaluator.Evaluate(datum)
	if err != nil {
		return false
	}
	return matches
}
