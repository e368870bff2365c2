package planner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePlanArgs_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		wantCode string
	}{
		{"no steps", map[string]any{}, dataplan.ErrCodePlanning},
		{"empty steps", map[string]any{"steps": []any{}}, dataplan.ErrCodePlanning},
		{"extra top-level key", map[string]any{
			"steps": []any{map[string]any{"tool": "filter_df", "args": map[string]any{}}},
			"limit": 3,
		}, dataplan.ErrCodePlanning},
		{"extra step key", map[string]any{
			"steps": []any{map[string]any{"tool": "filter_df", "args": map[string]any{}, "note": "x"}},
		}, dataplan.ErrCodePlanning},
		{"step without args", map[string]any{
			"steps": []any{map[string]any{"tool": "filter_df"}},
		}, dataplan.ErrCodePlanning},
		{"unknown tool", map[string]any{
			"steps": []any{map[string]any{"tool": "drop_table", "args": map[string]any{}}},
		}, dataplan.ErrCodeUnknownTool},
		{"load for another dataset", map[string]any{
			"steps": []any{map[string]any{"tool": "load_other", "args": map[string]any{}}},
		}, dataplan.ErrCodeUnknownTool},
		{"missing why", map[string]any{
			"steps":       []any{map[string]any{"tool": "load_biwenger_player_stats", "args": map[string]any{}}},
			"assumptions": []any{},
		}, dataplan.ErrCodePlanning},
		{"why too long", map[string]any{
			"steps":       []any{map[string]any{"tool": "load_biwenger_player_stats", "args": map[string]any{}}},
			"why":         strings.Repeat("x", 121),
			"assumptions": []any{},
		}, dataplan.ErrCodePlanning},
		{"too many assumptions", map[string]any{
			"steps":       []any{map[string]any{"tool": "load_biwenger_player_stats", "args": map[string]any{}}},
			"why":         "all players",
			"assumptions": []any{"a", "b", "c", "d"},
		}, dataplan.ErrCodePlanning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePlanArgs(tt.args, dataset)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, dataplan.CodeOf(err))
		})
	}
}

func TestDecodePlanArgs_KeepsWhyAndAssumptions(t *testing.T) {
	plan, err := DecodePlanArgs(map[string]any{
		"steps": []any{
			map[string]any{"tool": "load_biwenger_player_stats", "args": map[string]any{}},
			map[string]any{"tool": "translate_to_pandas", "args": map[string]any{"query": "top 5 by points"}},
		},
		"why":         "ranking needs code",
		"assumptions": []any{"current season"},
	}, dataset)
	require.NoError(t, err)
	assert.Equal(t, "ranking needs code", plan.Why)
	assert.Equal(t, []string{"current season"}, plan.Assumptions)
	assert.Equal(t, "top 5 by points", plan.Steps[1].Args["query"])
}

func TestPlanFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	plan := &dataplan.Plan{
		Dataset: dataset,
		Steps: []dataplan.Step{
			{Tool: "load_biwenger_player_stats", Args: map[string]any{}},
			{Tool: "filter_df", Args: map[string]any{"filters": []any{
				map[string]any{"col": "points", "op": ">", "val": 100},
			}}},
		},
		Why: "high scorers",
	}

	for _, name := range []string{"plan.yaml", "plan.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, SavePlanFile(path, plan))

		loaded, err := LoadPlanFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, dataset, loaded.Dataset)
		assert.Equal(t, "high scorers", loaded.Why)
		require.Len(t, loaded.Steps, 2)
		filters := loaded.Steps[1].Args["filters"].([]any)
		assert.Equal(t, float64(100), filters[0].(map[string]any)["val"])
	}
}

func TestLoadPlanFile_RequiresDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - tool: filter_df\n    args: {}\n"), 0o644))

	_, err := LoadPlanFile(path)
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeInvalidInput))
}

func TestParsePlanDocument_UnsupportedFormat(t *testing.T) {
	_, err := ParsePlanDocument([]byte("{}"), "toml")
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeInvalidInput))
}
