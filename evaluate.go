package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-store/tree"
)

const (
	engineExpr = "expr"
	engineCEL  = "cel"
	engineJS   = "js"
)

// Evaluate runs a one-off expression against s with the store's default
// evaluator. Nothing is cached; reads are not tracked.
func (s *Snapshot) Evaluate(expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("store: expression must not be empty")
	}
	evaluator := s.store.evaluatorFor("")
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	engine := evaluatorEngineName(evaluator)
	ctx := RuleContext{State: s, Metadata: s.store.cfg.metadata}.withDefaults()
	start := time.Now()
	value, err := evaluator.Evaluate(ctx, expr)
	err = wrapEvaluationError("", engine, expr, err)
	s.store.cfg.evalLogger.LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expr,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// evaluatorFor builds the evaluator for engine, sharing the store's program
// cache and function registry. The empty engine selects the evaluator set
// with WithEvaluator, falling back to expr.
func (s *Store) evaluatorFor(engine string) Evaluator {
	cache, registry := s.cfg.programCache, s.cfg.functions
	switch engine {
	case engineExpr:
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(registry))
	case engineCEL:
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(registry))
	case engineJS:
		return NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(registry), JSWithTimeout(s.cfg.jsTimeout))
	case "":
		if s.cfg.evaluator != nil {
			return s.cfg.evaluator
		}
		return s.evaluatorFor(engineExpr)
	default:
		return nil
	}
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*store.exprEvaluator":
		return engineExpr
	case "*store.celEvaluator":
		return engineCEL
	case "*store.jsEvaluator":
		return engineJS
	default:
		return "custom"
	}
}

// touch reads path through state so that a tracked view records it. A
// container at the end of the path is read whole.
func touch(state View, path []string) {
	if state == nil || len(path) == 0 {
		return
	}
	var current tree.Container = state
	for _, segment := range path {
		child, ok := current.Get(segment).(tree.Container)
		if !ok {
			return
		}
		current = child
	}
	if u, ok := current.(tree.Unwrapper); ok {
		u.Unwrap()
	}
}

// exportKeys exports the named top-level keys of state as plain values
// without recording reads.
func exportKeys(state View, keys []string) map[string]any {
	raw := rawContainer(state)
	if raw == nil {
		return nil
	}
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if raw.Has(key) {
			out[key] = tree.Export(raw.Get(key))
		}
	}
	return out
}

func rootKeys(paths [][]string) []string {
	var keys []string
	for _, path := range paths {
		if len(path) > 0 && !slices.Contains(keys, path[0]) {
			keys = append(keys, path[0])
		}
	}
	return keys
}

func sortPaths(paths [][]string) [][]string {
	slices.SortFunc(paths, func(a, b []string) int {
		return strings.Compare(strings.Join(a, "."), strings.Join(b, "."))
	})
	return paths
}
