package store

import (
	"log/slog"
	"maps"
	"time"
)

// WithName labels the store in logs, metrics and activity events.
func WithName(name string) Option {
	return func(cfg *storeConfig) {
		cfg.name = name
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) {
		cfg.logger = logger
	}
}

// WithEvaluator configures the evaluator used by WithRuleComputed.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *storeConfig) {
		cfg.evaluator = e
	}
}

// WithMetadata exposes metadata to expression computeds as `metadata`.
func WithMetadata(metadata map[string]any) Option {
	cloned := maps.Clone(metadata)
	return func(cfg *storeConfig) {
		cfg.metadata = cloned
	}
}

// WithAction registers an action under name.
func WithAction(name string, action Action) Option {
	return func(cfg *storeConfig) {
		cfg.actions = append(cfg.actions, actionDecl{name: name, fn: action})
	}
}

// WithComputed declares a computed value backed by fn.
func WithComputed(name string, fn ComputeFunc) Option {
	return func(cfg *storeConfig) {
		cfg.computeds = append(cfg.computeds, computedDecl{name: name, fn: fn})
	}
}

// WithExprComputed declares a computed value backed by an expr-lang
// expression. Top-level state keys are exposed as variables.
func WithExprComputed(name, expression string) Option {
	return withExpression(name, engineExpr, expression)
}

// WithCELComputed declares a computed value backed by a CEL expression.
func WithCELComputed(name, expression string) Option {
	return withExpression(name, engineCEL, expression)
}

// WithJSComputed declares a computed value backed by a JavaScript
// expression. It requires the js_eval build tag.
func WithJSComputed(name, expression string) Option {
	return withExpression(name, engineJS, expression)
}

// WithJSTimeout bounds how long a JS computed may run. A script still
// running after d is interrupted and the read fails with
// ErrEvaluationTimeout.
func WithJSTimeout(d time.Duration) Option {
	return func(cfg *storeConfig) {
		cfg.jsTimeout = d
	}
}

// WithRuleComputed declares a computed value evaluated by the evaluator set
// with WithEvaluator, or by expr when none is set.
func WithRuleComputed(name, expression string) Option {
	return withExpression(name, "", expression)
}

func withExpression(name, engine, expression string) Option {
	return func(cfg *storeConfig) {
		cfg.computeds = append(cfg.computeds, computedDecl{name: name, engine: engine, expr: expression})
	}
}
