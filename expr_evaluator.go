package store

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprEvaluatorOption configures an expr evaluator instance.
type ExprEvaluatorOption func(*exprEvaluator)

// ExprWithProgramCache wires a ProgramCache into the expr evaluator.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		e.cache = cache
	}
}

// ExprWithFunctionRegistry wires a FunctionRegistry into the expr evaluator.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// exprEvaluator executes expressions using github.com/expr-lang/expr.
type exprEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// exprProgram pairs a compiled program with the state paths it reads.
type exprProgram struct {
	program *exprvm.Program
	deps    [][]string
}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	e := &exprEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate compiles and runs expression against ctx.State.
func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

// Compile returns a compiled rule that evaluates expression per invocation.
func (e *exprEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(engineExpr, fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &exprCompiledRule{
		evaluator:  e,
		program:    program,
		expression: expression,
	}, nil
}

func (e *exprEvaluator) loadOrCompile(expression string) (*exprProgram, error) {
	key := programKey(engineExpr, expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*exprProgram); ok {
				return program, nil
			}
		}
	}
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, wrapEvaluatorError(engineExpr, err)
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.registryNames() {
		options = append(options, exprlang.Function(name, e.registryFunction(name)))
	}
	compiled, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapEvaluatorError(engineExpr, err)
	}
	program := &exprProgram{program: compiled, deps: exprDependencies(tree.Node)}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

type exprCompiledRule struct {
	evaluator  *exprEvaluator
	program    *exprProgram
	expression string
}

func (r *exprCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil || r.program == nil {
		return nil, wrapEvaluatorError(engineExpr, fmt.Errorf("compiled rule missing program"))
	}
	ctx = ctx.withDefaults()
	for _, path := range r.program.deps {
		touch(ctx.State, path)
	}
	result, err := exprlang.Run(r.program.program, r.evaluator.environment(ctx, r.program.deps))
	if err != nil {
		return nil, wrapEvaluatorError(engineExpr, err)
	}
	return result, nil
}

// environment exposes the builtins and the top-level state keys the
// program references. State keys shadow builtins of the same name.
func (e *exprEvaluator) environment(ctx RuleContext, deps [][]string) map[string]any {
	env := map[string]any{
		"now":      ctx.timestamp(),
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
	}
	if e.registry != nil {
		env["call"] = func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		}
	}
	for key, value := range exportKeys(ctx.State, rootKeys(deps)) {
		env[key] = value
	}
	return env
}

func (e *exprEvaluator) registryNames() []string {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.Names()
}

func (e *exprEvaluator) registryFunction(name string) func(...any) (any, error) {
	return func(arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
}

// exprDependencies lists the state paths an expression reads. A member
// chain with constant properties yields its full path; a chain broken by a
// computed property yields the prefix before it, which is then read whole.
func exprDependencies(root ast.Node) [][]string {
	if root == nil {
		return nil
	}
	c := &depCollector{paths: map[ast.Node][]string{}, inner: map[ast.Node]bool{}}
	ast.Walk(&root, c)

	var deps [][]string
	for node, path := range c.paths {
		if c.inner[node] {
			continue
		}
		deps = append(deps, path)
	}
	return sortPaths(deps)
}

type depCollector struct {
	paths map[ast.Node][]string
	inner map[ast.Node]bool
}

// Visit runs children first, so a member node can consume the chain its
// operand already produced.
func (c *depCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.paths[n] = []string{n.Value}
	case *ast.ChainNode:
		if path, ok := c.paths[n.Node]; ok {
			c.paths[n] = path
			c.inner[n.Node] = true
		}
	case *ast.MemberNode:
		base, ok := c.paths[n.Node]
		if !ok {
			return
		}
		segment, constant := memberSegment(n.Property)
		if !constant || n.Method {
			return
		}
		c.paths[n] = append(append([]string(nil), base...), segment)
		c.inner[n.Node] = true
	case *ast.CallNode:
		// a bare callee names a function, not state
		if _, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.inner[n.Callee] = true
		}
	}
}

func memberSegment(property ast.Node) (string, bool) {
	switch p := property.(type) {
	case *ast.StringNode:
		return p.Value, true
	case *ast.IntegerNode:
		return fmt.Sprint(p.Value), true
	}
	return "", false
}
