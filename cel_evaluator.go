package store

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/interpreter"
)

// CELEvaluatorOption configures the CEL evaluator.
type CELEvaluatorOption func(*celEvaluator)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return func(e *celEvaluator) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL evaluator.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(e *celEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// celMaxCallArgs bounds the arity of call(name, ...).
const celMaxCallArgs = 6

type celProgram struct {
	program celgo.Program
}

// celEvaluator runs CEL expressions. Expressions are parsed but not type
// checked, so state keys resolve at evaluation time through a tracked
// activation instead of being declared up front.
type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry

	once   sync.Once
	env    *celgo.Env
	envErr error
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	e := &celEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *celEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(engineCEL, fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &celCompiledRule{program: program}, nil
}

func (e *celEvaluator) loadOrCompile(expression string) (*celProgram, error) {
	key := programKey(engineCEL, expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}

	env, err := e.environment()
	if err != nil {
		return nil, wrapEvaluatorError(engineCEL, err)
	}
	ast, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluatorError(engineCEL, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, wrapEvaluatorError(engineCEL, err)
	}

	bundle := &celProgram{program: prg}
	if e.cache != nil {
		e.cache.Set(key, bundle)
	}
	return bundle, nil
}

func (e *celEvaluator) environment() (*celgo.Env, error) {
	e.once.Do(func() {
		var opts []celgo.EnvOption
		if e.registry != nil {
			opts = append(opts, celgo.Function("call", e.callOverloads()...))
		}
		e.env, e.envErr = celgo.NewEnv(opts...)
	})
	return e.env, e.envErr
}

func (e *celEvaluator) callOverloads() []celgo.FunctionOpt {
	var opts []celgo.FunctionOpt
	args := []*celgo.Type{celgo.StringType}
	for arity := 0; arity <= celMaxCallArgs; arity++ {
		opts = append(opts, celgo.Overload(
			fmt.Sprintf("call_string_dyn%d", arity),
			append([]*celgo.Type(nil), args...),
			celgo.DynType,
		))
		args = append(args, celgo.DynType)
	}
	return append(opts, celgo.SingletonFunctionBinding(e.callBinding))
}

func (e *celEvaluator) callBinding(values ...ref.Val) ref.Val {
	if len(values) == 0 {
		return types.NewErr("store: call requires function name")
	}
	name, ok := values[0].Value().(string)
	if !ok {
		return types.NewErr("store: call name must be string")
	}
	args := make([]any, 0, len(values)-1)
	for _, val := range values[1:] {
		args = append(args, celNative(val))
	}
	result, err := e.registry.Call(name, args...)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if result == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(result)
}

type celCompiledRule struct {
	program *celProgram
}

func (r *celCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	out, _, err := r.program.program.Eval(&celActivation{ctx: ctx})
	if err != nil {
		return nil, wrapEvaluatorError(engineCEL, err)
	}
	return celNative(out), nil
}

// celActivation resolves identifiers against state first, then the
// builtins. A state key that holds a container is read whole; a missing
// one is recorded as an existence check.
type celActivation struct {
	ctx RuleContext
}

var _ interpreter.Activation = (*celActivation)(nil)

func (a *celActivation) ResolveName(name string) (any, bool) {
	state := a.ctx.State
	if state != nil && !strings.Contains(name, ".") {
		if rawContainer(state).Has(name) {
			touch(state, []string{name})
			return exportKeys(state, []string{name})[name], true
		}
		// absent keys are a dependency too
		state.Has(name)
	}
	switch name {
	case "now":
		return a.ctx.timestamp(), true
	case "args":
		return a.ctx.Args, true
	case "metadata":
		return a.ctx.Metadata, true
	}
	return nil, false
}

func (a *celActivation) Parent() interpreter.Activation { return nil }

var (
	celMapType  = reflect.TypeOf(map[string]any{})
	celListType = reflect.TypeOf([]any{})
)

// celNative converts a CEL value into plain Go values.
func celNative(val ref.Val) any {
	switch v := val.(type) {
	case nil:
		return nil
	case types.Null:
		return nil
	case traits.Mapper:
		if native, err := v.ConvertToNative(celMapType); err == nil {
			return native
		}
	case traits.Lister:
		if native, err := v.ConvertToNative(celListType); err == nil {
			return native
		}
	}
	return val.Value()
}
