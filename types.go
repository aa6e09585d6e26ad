package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-store/pkg/activity"
	"github.com/goliatone/go-store/tree"
)

// View is the read-only state handed to computeds, selectors and watchers.
// Reads made through a tracked View become dependencies of the function
// receiving it.
type View interface {
	tree.Container
	Computed(name string) (any, error)
}

// ComputeFunc derives a value from state.
type ComputeFunc func(state View) (any, error)

// Action mutates state through tx. Every write made through tx, or through
// nodes reached from tx.State(), belongs to one batch and is published as a
// single snapshot when the outermost action returns.
type Action func(ctx context.Context, tx *Tx, args ...any) (any, error)

// Selector picks the part of state a subscription cares about.
type Selector func(state View) any

// WatchFunc reacts to state changes. state is tracked; prev is not.
type WatchFunc func(state, prev View)

// Subscriber receives every published snapshot.
type Subscriber interface {
	OnPublish(next, prev *Snapshot)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(next, prev *Snapshot)

// OnPublish implements Subscriber.
func (f SubscriberFunc) OnPublish(next, prev *Snapshot) {
	if f != nil {
		f(next, prev)
	}
}

// RuleContext carries inputs needed when evaluating an expression.
type RuleContext struct {
	State    View
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

type Option func(*storeConfig)

type computedDecl struct {
	name   string
	fn     ComputeFunc
	engine string
	expr   string
}

type actionDecl struct {
	name string
	fn   Action
}

type storeConfig struct {
	name          string
	logger        *slog.Logger
	evalLogger    EvaluatorLogger
	evaluator     Evaluator
	programCache  ProgramCache
	functions     *FunctionRegistry
	jsTimeout     time.Duration
	metadata      map[string]any
	activityHooks activity.Hooks
	registerer    prometheus.Registerer
	computeds     []computedDecl
	actions       []actionDecl
	optionErrs    []error
}

func applyOptions(opts []Option) storeConfig {
	cfg := storeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.name == "" {
		cfg.name = "store"
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.evalLogger == nil {
		cfg.evalLogger = noopEvaluatorLogger{}
	}
	if cfg.programCache == nil {
		cfg.programCache = NewProgramCache()
	}
	return cfg
}

func rawContainer(v View) tree.Container {
	switch typed := v.(type) {
	case nil:
		return nil
	case *computedView:
		return typed.raw()
	case *Snapshot:
		return typed.root
	}
	return v
}
