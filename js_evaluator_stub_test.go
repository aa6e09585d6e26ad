//go:build !js_eval

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSComputedNeedsBuildTag(t *testing.T) {
	_, err := New(map[string]any{}, WithJSComputed("greeting", `"hi"`))
	assert.ErrorIs(t, err, ErrNoEvaluator)
	assert.Nil(t, NewJSEvaluator())
}
