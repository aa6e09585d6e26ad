package store

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError captures computed metadata alongside the originating error.
type EvaluationError struct {
	Name   string
	Engine string
	Expr   string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	engine := e.Engine
	if engine == "" {
		engine = "func"
	}
	return fmt.Sprintf("store: computed %q %s evaluator %s: %v", e.Name, engine, describeExpression(e.Expr), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<none>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "store:") {
		return err
	}
	return fmt.Errorf("store: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(name, engine, expr string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrComputedCycle) || errors.Is(err, ErrUnknownComputed) {
		return err
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Name == "" {
			evalErr.Name = name
		}
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		return evalErr
	}

	return &EvaluationError{
		Name:   name,
		Engine: engine,
		Expr:   expr,
		Err:    err,
	}
}
