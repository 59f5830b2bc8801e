package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arionlabs/arion/pkg/models"
)

func testScope() *models.Scope {
	return &models.Scope{
		TriggerInput: map[string]any{
			"amount": 400.0,
			"requester": map[string]any{
				"email": "ana@example.com",
			},
		},
		Variables: map[string]any{
			"review": map[string]any{
				"status": "approved",
				"tags":   []any{"urgent", "finance"},
			},
		},
		Context: map[string]any{
			"user_id": "user-1",
			"org_id":  "org-9",
		},
	}
}

func TestResolve_SingleReference(t *testing.T) {
	r := NewResolver()

	val, err := r.Resolve("{{ trigger_input.amount }}", testScope())
	require.NoError(t, err)
	assert.Equal(t, 400.0, val)

	val, err = r.Resolve("{{ variables.review.status }}", testScope())
	require.NoError(t, err)
	assert.Equal(t, "approved", val)

	val, err = r.Resolve("{{ context.user_id }}", testScope())
	require.NoError(t, err)
	assert.Equal(t, "user-1", val)
}

func TestResolve_ListIndex(t *testing.T) {
	r := NewResolver()

	val, err := r.Resolve("{{ variables.review.tags.1 }}", testScope())
	require.NoError(t, err)
	assert.Equal(t, "finance", val)
}

func TestResolve_LiteralPassthrough(t *testing.T) {
	r := NewResolver()

	val, err := r.Resolve("plain literal", testScope())
	require.NoError(t, err)
	assert.Equal(t, "plain literal", val)
}

func TestResolve_UnboundPath(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve("{{ trigger_input.missing.deep }}", testScope())
	require.Error(t, err)
	assert.True(t, IsUnbound(err))
}

func TestResolve_InvalidRoot(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve("{{ secrets.api_key }}", testScope())
	require.Error(t, err)
	assert.True(t, IsUnbound(err))
}

func TestResolve_PrecedenceOnCollision(t *testing.T) {
	r := NewResolver()
	scope := testScope()

	// Same unqualified name in variables and trigger_input: variables wins.
	scope.Variables["amount"] = 900.0

	val, err := r.Resolve("{{ amount }}", scope)
	require.NoError(t, err)
	assert.Equal(t, 900.0, val)
}

func TestResolve_LoopBindings(t *testing.T) {
	r := NewResolver()
	scope := testScope()
	scope.PushFrame(&models.LoopFrame{
		NodeID: "loop-1",
		Items:  []any{"a", "b"},
		Index:  1,
		Item:   map[string]any{"name": "b"},
	})

	val, err := r.Resolve("{{ item.name }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "b", val)

	val, err = r.Resolve("{{ index }}", scope)
	require.NoError(t, err)
	assert.Equal(t, 1, val)
}

func TestResolve_LoopBindingOutsideLoop(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve("{{ item }}", testScope())
	require.Error(t, err)
	assert.True(t, IsUnbound(err))
}

func TestResolve_InnermostFrameWins(t *testing.T) {
	r := NewResolver()
	scope := testScope()
	scope.PushFrame(&models.LoopFrame{NodeID: "outer", Item: "outer-item"})
	scope.PushFrame(&models.LoopFrame{NodeID: "inner", Item: "inner-item", Index: 3})

	val, err := r.Resolve("{{ item }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "inner-item", val)
}

func TestInterpolate(t *testing.T) {
	r := NewResolver()

	out, err := r.Interpolate(
		"Request from {{ trigger_input.requester.email }} for {{ trigger_input.amount }}",
		testScope())
	require.NoError(t, err)
	assert.Equal(t, "Request from ana@example.com for 400", out)
}

func TestInterpolate_UnclosedToken(t *testing.T) {
	r := NewResolver()

	_, err := r.Interpolate("broken {{ trigger_input.amount", testScope())
	require.Error(t, err)
}

func TestEvaluateBool(t *testing.T) {
	r := NewResolver()

	ok, err := r.EvaluateBool("trigger_input.amount < 500", testScope())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.EvaluateBool("trigger_input.amount > 500", testScope())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateBool_TypeMismatch(t *testing.T) {
	r := NewResolver()

	_, err := r.EvaluateBool("trigger_input.amount", testScope())
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))
}

func TestEvaluateList(t *testing.T) {
	r := NewResolver()

	items, err := r.EvaluateList("variables.review.tags", testScope())
	require.NoError(t, err)
	assert.Equal(t, []any{"urgent", "finance"}, items)
}

func TestEvaluate_NoSideEffects(t *testing.T) {
	r := NewResolver()
	scope := testScope()

	_, err := r.EvaluateBool("trigger_input.amount < 500", scope)
	require.NoError(t, err)

	// Evaluation must not mutate the scope.
	assert.Equal(t, 400.0, scope.TriggerInput["amount"])
	assert.Len(t, scope.Variables, 1)
}

func TestEvaluate_ProgramCacheIsReused(t *testing.T) {
	r := NewResolver()

	for range 3 {
		_, err := r.EvaluateBool("trigger_input.amount < 500", testScope())
		require.NoError(t, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	assert.Len(t, r.cache, 1)
}
