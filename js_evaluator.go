//go:build js_eval

package store

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dop251/goja"

	"github.com/goliatone/go-store/track"
	"github.com/goliatone/go-store/tree"
)

type jsEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
	timeout  time.Duration
}

// NewJSEvaluator constructs an Evaluator backed by goja.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	cfg := applyJSEvaluatorOptions(opts)
	return &jsEvaluator{
		cache:    cfg.cache,
		registry: cfg.registry,
		timeout:  cfg.timeout,
	}
}

func (e *jsEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *jsEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(engineJS, fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &jsCompiledRule{evaluator: e, program: program}, nil
}

func (e *jsEvaluator) loadOrCompile(expression string) (*goja.Program, error) {
	key := programKey(engineJS, expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*goja.Program); ok {
				return program, nil
			}
		}
	}
	program, err := goja.Compile("", wrapJSExpression(expression), false)
	if err != nil {
		return nil, wrapEvaluatorError(engineJS, err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

func (e *jsEvaluator) run(ctx RuleContext, program *goja.Program) (any, error) {
	vm := goja.New()
	e.injectContext(vm, ctx)
	if e.timeout > 0 {
		timer := time.AfterFunc(e.timeout, func() { vm.Interrupt(ErrEvaluationTimeout) })
		defer timer.Stop()
	}
	value, err := vm.RunProgram(program)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil, wrapEvaluatorError(engineJS, fmt.Errorf("%w after %s", ErrEvaluationTimeout, e.timeout))
	}
	if err != nil {
		return nil, wrapEvaluatorError(engineJS, err)
	}
	return jsExport(value), nil
}

// injectContext exposes the builtins, then every state key. Reads made by
// the script go through the tracked state, property by property.
func (e *jsEvaluator) injectContext(vm *goja.Runtime, ctx RuleContext) {
	vm.Set("now", ctx.timestamp())
	vm.Set("args", ctx.Args)
	vm.Set("metadata", ctx.Metadata)
	if e.registry != nil {
		vm.Set("call", func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		})
		for _, name := range e.registry.Names() {
			fn := name
			vm.Set(fn, func(arguments ...any) (any, error) {
				return e.registry.Call(fn, arguments...)
			})
		}
	}
	if ctx.State == nil {
		return
	}
	global := vm.GlobalObject()
	for _, key := range rawContainer(ctx.State).Keys() {
		name := key
		getter := vm.ToValue(func(goja.FunctionCall) goja.Value {
			return jsValue(vm, ctx.State.Get(name))
		})
		_ = global.DefineAccessorProperty(name, getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
}

func wrapJSExpression(expression string) string {
	return fmt.Sprintf("(function(){ return (%s); })()", expression)
}

type jsCompiledRule struct {
	evaluator *jsEvaluator
	program   *goja.Program
}

func (r *jsCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil {
		return nil, wrapEvaluatorError(engineJS, fmt.Errorf("compiled rule missing evaluator"))
	}
	return r.evaluator.run(ctx.withDefaults(), r.program)
}

func jsValue(vm *goja.Runtime, value any) goja.Value {
	node, ok := value.(tree.Container)
	if !ok {
		return vm.ToValue(value)
	}
	if node.Kind() == tree.KindList {
		return vm.NewDynamicArray(&jsList{vm: vm, node: node})
	}
	return vm.NewDynamicObject(&jsObject{vm: vm, node: node})
}

// jsExport converts a script result. Containers handed to the script come
// back as the state node they wrap.
func jsExport(value goja.Value) any {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil
	}
	switch exported := value.Export().(type) {
	case *jsObject:
		return track.Raw(exported.node)
	case *jsList:
		return track.Raw(exported.node)
	default:
		return exported
	}
}

// jsObject presents a state object to scripts. It is read-only.
type jsObject struct {
	vm   *goja.Runtime
	node tree.Container
}

func (o *jsObject) Get(key string) goja.Value {
	if !o.node.Has(key) {
		return nil
	}
	return jsValue(o.vm, o.node.Get(key))
}

func (o *jsObject) Set(string, goja.Value) bool { return false }
func (o *jsObject) Has(key string) bool          { return o.node.Has(key) }
func (o *jsObject) Delete(string) bool           { return false }
func (o *jsObject) Keys() []string               { return o.node.Keys() }

// jsList presents a state list to scripts. It is read-only.
type jsList struct {
	vm   *goja.Runtime
	node tree.Container
}

func (l *jsList) Len() int { return l.node.Len() }

func (l *jsList) Get(idx int) goja.Value {
	if idx < 0 || idx >= l.node.Len() {
		return nil
	}
	return jsValue(l.vm, l.node.Get(strconv.Itoa(idx)))
}

func (l *jsList) Set(int, goja.Value) bool { return false }
func (l *jsList) SetLen(int) bool          { return false }
