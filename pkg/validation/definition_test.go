package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arionlabs/arion/pkg/models"
)

func linearDefinition() *models.ProcessDefinition {
	return &models.ProcessDefinition{
		ID: "def-1",
		Nodes: []*models.Node{
			{ID: "start", Kind: models.KindStart, Enabled: true},
			{ID: "check", Kind: models.KindCondition, Enabled: true,
				Config: map[string]any{"expression": "trigger_input.amount < 500"}},
			{ID: "notify", Kind: models.KindNotification, Enabled: true,
				Config: map[string]any{"recipients": []any{"requester"}, "message": "done"}},
			{ID: "end", Kind: models.KindEnd, Enabled: true},
		},
		Edges: []*models.Edge{
			{From: "start", To: "check"},
			{From: "check", To: "notify", Label: models.EdgeYes},
			{From: "check", To: "end", Label: models.EdgeNo},
			{From: "notify", To: "end"},
		},
	}
}

func TestValidateDefinition_Valid(t *testing.T) {
	require.NoError(t, ValidateDefinition(linearDefinition()))
}

func TestValidateDefinition_NoNodes(t *testing.T) {
	err := ValidateDefinition(&models.ProcessDefinition{ID: "def-x"})
	require.Error(t, err)
}

func TestValidateDefinition_MissingEnd(t *testing.T) {
	def := linearDefinition()
	def.Nodes = def.Nodes[:3]
	def.Edges = def.Edges[:2]

	err := ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "End")
}

func TestValidateDefinition_TwoStartNodes(t *testing.T) {
	def := linearDefinition()
	def.Nodes = append(def.Nodes, &models.Node{ID: "start2", Kind: models.KindStart})
	def.Edges = append(def.Edges, &models.Edge{From: "start2", To: "end"})

	err := ValidateDefinition(def)
	require.Error(t, err)
}

func TestValidateDefinition_ConditionEdgeCount(t *testing.T) {
	def := linearDefinition()
	def.Edges = append(def.Edges, &models.Edge{From: "check", To: "end", Label: "maybe"})

	err := ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yes/no")
}

func TestValidateDefinition_DeadEndNode(t *testing.T) {
	def := linearDefinition()
	def.Nodes = append(def.Nodes, &models.Node{ID: "orphan", Kind: models.KindNotification,
		Config: map[string]any{"recipients": []any{"requester"}, "message": "x"}})

	err := ValidateDefinition(def)
	require.Error(t, err)
}

func TestValidateDefinition_CycleWithoutLoop(t *testing.T) {
	def := linearDefinition()
	def.Edges = append(def.Edges, &models.Edge{From: "notify", To: "check"})

	err := ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateDefinition_LoopCycleAllowed(t *testing.T) {
	def := &models.ProcessDefinition{
		ID: "def-loop",
		Nodes: []*models.Node{
			{ID: "start", Kind: models.KindStart},
			{ID: "each", Kind: models.KindLoop,
				Config: map[string]any{"collection": "variables.items"}},
			{ID: "work", Kind: models.KindNotification,
				Config: map[string]any{"recipients": []any{"requester"}, "message": "x"}},
			{ID: "end", Kind: models.KindEnd},
		},
		Edges: []*models.Edge{
			{From: "start", To: "each"},
			{From: "each", To: "work", Label: models.EdgeLoopBody},
			{From: "each", To: "end", Label: models.EdgeLoopExit},
			{From: "work", To: "each"},
		},
	}

	require.NoError(t, ValidateDefinition(def))
}

func TestValidateDefinition_ParallelNeedsJoin(t *testing.T) {
	def := &models.ProcessDefinition{
		ID: "def-par",
		Nodes: []*models.Node{
			{ID: "start", Kind: models.KindStart},
			{ID: "fork", Kind: models.KindParallel, Config: map[string]any{}},
			{ID: "a", Kind: models.KindNotification,
				Config: map[string]any{"recipients": []any{"requester"}, "message": "a"}},
			{ID: "b", Kind: models.KindNotification,
				Config: map[string]any{"recipients": []any{"requester"}, "message": "b"}},
			{ID: "join", Kind: models.KindNotification,
				Config: map[string]any{"recipients": []any{"requester"}, "message": "j"}},
			{ID: "end", Kind: models.KindEnd},
		},
		Edges: []*models.Edge{
			{From: "start", To: "fork"},
			{From: "fork", To: "a", Label: "0"},
			{From: "fork", To: "b", Label: "1"},
			{From: "a", To: "join"},
			{From: "b", To: "join"},
			{From: "join", To: "end"},
		},
	}

	err := ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join")

	def.NodeByID("fork").Config["join"] = "join"
	require.NoError(t, ValidateDefinition(def))
}

func TestValidateDefinition_ParallelBranchOutputCollision(t *testing.T) {
	def := &models.ProcessDefinition{
		ID: "def-par2",
		Nodes: []*models.Node{
			{ID: "start", Kind: models.KindStart},
			{ID: "fork", Kind: models.KindParallel, Config: map[string]any{"join": "join"}},
			{ID: "a", Kind: models.KindTool, OutputVariable: "result",
				Config: map[string]any{"tool": "t1"}},
			{ID: "b", Kind: models.KindTool, OutputVariable: "result",
				Config: map[string]any{"tool": "t2"}},
			{ID: "join", Kind: models.KindNotification,
				Config: map[string]any{"recipients": []any{"requester"}, "message": "j"}},
			{ID: "end", Kind: models.KindEnd},
		},
		Edges: []*models.Edge{
			{From: "start", To: "fork"},
			{From: "fork", To: "a", Label: "0"},
			{From: "fork", To: "b", Label: "1"},
			{From: "a", To: "join"},
			{From: "b", To: "join"},
			{From: "join", To: "end"},
		},
	}

	err := ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output variable")
}

func TestValidateDefinition_ParallelBranchMustFunnelThroughJoin(t *testing.T) {
	// A condition inside a branch routing straight to End would complete
	// the instance while the sibling branch is still live.
	def := &models.ProcessDefinition{
		ID: "def-par3",
		Nodes: []*models.Node{
			{ID: "start", Kind: models.KindStart},
			{ID: "fork", Kind: models.KindParallel, Config: map[string]any{"join": "join"}},
			{ID: "check", Kind: models.KindCondition,
				Config: map[string]any{"expression": "trigger_input.skip"}},
			{ID: "notify", Kind: models.KindNotification,
				Config: map[string]any{"recipients": []any{"requester"}, "message": "n"}},
			{ID: "join", Kind: models.KindNotification,
				Config: map[string]any{"recipients": []any{"requester"}, "message": "j"}},
			{ID: "end", Kind: models.KindEnd},
		},
		Edges: []*models.Edge{
			{From: "start", To: "fork"},
			{From: "fork", To: "check", Label: "0"},
			{From: "fork", To: "notify", Label: "1"},
			{From: "check", To: "end", Label: models.EdgeYes},
			{From: "check", To: "join", Label: models.EdgeNo},
			{From: "notify", To: "join"},
			{From: "join", To: "end"},
		},
	}

	err := ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bypassing join")

	// Rerouting the escape edge through the join makes it valid.
	def.Edges[3].To = "join"
	require.NoError(t, ValidateDefinition(def))
}

func TestValidateNodeConfig(t *testing.T) {
	require.NoError(t, ValidateNodeConfig(models.KindCondition,
		map[string]any{"expression": "true"}))

	err := ValidateNodeConfig(models.KindCondition, map[string]any{})
	require.Error(t, err)

	err = ValidateNodeConfig(models.KindDelay,
		map[string]any{"duration": 5.0, "unit": "fortnights"})
	require.Error(t, err)

	require.NoError(t, ValidateNodeConfig(models.KindDelay,
		map[string]any{"duration": 5.0, "unit": "minutes"}))
}
