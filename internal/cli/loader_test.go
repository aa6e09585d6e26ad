package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/goliatone/go-store"
	"github.com/goliatone/go-store/tree"
)

func TestParseDocumentAcceptsJSON(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"name":"counter","state":{"count":1},"computed":{"doubled":{"expr":"count * 2"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "counter", doc.Name)
	assert.Equal(t, map[string]any{"count": 1}, doc.State)
	assert.Equal(t, ComputedSpec{Expr: "count * 2"}, doc.Computed["doubled"])
}

func TestNewStoreRejectsUnknownEngine(t *testing.T) {
	doc := &Document{Computed: map[string]ComputedSpec{"x": {Engine: "lua", Expr: "1"}}}
	_, err := NewStore(doc, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown engine "lua"`)
}

func TestParseAssignmentKeepsYAMLTypes(t *testing.T) {
	cases := map[string]any{
		"a=1":       1,
		"a=true":    true,
		"a=ada":     "ada",
		"a=[1, 2]":  []any{1, 2},
		"a={b: 1}":  map[string]any{"b": 1},
		"a=":        nil,
		"a.b.c=1.5": 1.5,
	}
	for flag, want := range cases {
		t.Run(flag, func(t *testing.T) {
			a, err := ParseAssignment(flag)
			require.NoError(t, err)
			assert.Equal(t, want, a.Value)
		})
	}
}

func TestApplyPublishesOnce(t *testing.T) {
	st, err := store.New(map[string]any{"user": map[string]any{"name": "ada"}})
	require.NoError(t, err)

	publishes := 0
	_, err = st.Subscribe(store.SubscriberFunc(func(_, _ *store.Snapshot) { publishes++ }))
	require.NoError(t, err)

	var assignments []Assignment
	for _, flag := range []string{"user.name=grace", "user.age=36", "tags=[a]"} {
		a, err := ParseAssignment(flag)
		require.NoError(t, err)
		assignments = append(assignments, a)
	}
	require.NoError(t, Apply(context.Background(), st, assignments))

	assert.Equal(t, 1, publishes)
	assert.Equal(t, map[string]any{
		"user": map[string]any{"name": "grace", "age": 36},
		"tags": []any{"a"},
	}, st.Get().Export())
}

func TestApplyRejectsScalarParent(t *testing.T) {
	st, err := store.New(map[string]any{"count": 1})
	require.NoError(t, err)

	a, err := ParseAssignment("count.value=2")
	require.NoError(t, err)
	err = Apply(context.Background(), st, []Assignment{a})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count is not a container")
}

func TestApplyRejectedWrite(t *testing.T) {
	root, err := tree.FreezeObject(map[string]any{"id": "x"})
	require.NoError(t, err)
	st, err := store.New(root.Seal("id"))
	require.NoError(t, err)

	a, err := ParseAssignment("id=y")
	require.NoError(t, err)
	err = Apply(context.Background(), st, []Assignment{a})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "x", st.Get().Get("id"))
}
