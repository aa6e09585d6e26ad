package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSEvaluatorOptions(t *testing.T) {
	registry := NewFunctionRegistry()
	require.NoError(t, registry.Register("shout", func(args ...any) (any, error) { return args[0], nil }))

	cfg := applyJSEvaluatorOptions([]JSEvaluatorOption{
		nil,
		JSWithFunctionRegistry(registry),
		JSWithTimeout(50 * time.Millisecond),
		JSWithTimeout(0),
		JSWithFunctionRegistry(nil),
	})

	assert.Equal(t, 50*time.Millisecond, cfg.timeout, "zero keeps the earlier limit")
	require.NotNil(t, cfg.registry)
	assert.NotSame(t, registry, cfg.registry)
	assert.Equal(t, []string{"shout"}, cfg.registry.Names())

	require.NoError(t, registry.Register("later", func(...any) (any, error) { return nil, nil }))
	assert.Equal(t, []string{"shout"}, cfg.registry.Names(), "the evaluator keeps its own copy")
}
