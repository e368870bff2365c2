package dataplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTool(t *testing.T) {
	tests := []struct {
		name        string
		wantKind    ToolKind
		wantDataset string
		wantErr     bool
	}{
		{"load_biwenger_player_stats", ToolLoad, "biwenger_player_stats", false},
		{"filter_df", ToolFilter, "", false},
		{"translate_to_pandas", ToolTranslate, "", false},
		{"load_", ToolUnknown, "", true},
		{"make_plan", ToolUnknown, "", true},
		{"exec_python", ToolUnknown, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ds, err := ResolveTool(tt.name)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantDataset, ds)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrCodeUnknownTool, CodeOf(err))
				assert.Contains(t, err.Error(), tt.name)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpClassification(t *testing.T) {
	for _, op := range SupportedOps {
		assert.True(t, op.Valid(), op)
	}
	assert.Len(t, SupportedOps, 9)
	assert.False(t, Op("like").Valid())
	assert.True(t, OpIn.RequiresSequence())
	assert.True(t, OpNotIn.RequiresSequence())
	assert.False(t, OpContains.RequiresSequence())
	assert.True(t, OpGe.Ordering())
	assert.False(t, OpEq.Ordering())
}

func TestFilterString(t *testing.T) {
	assert.Equal(t, "team == 'Real Madrid'", Filter{Col: "team", Op: OpEq, Val: "Real Madrid"}.String())
	assert.Equal(t, "points > 10", Filter{Col: "points", Op: OpGt, Val: 10}.String())
	assert.Equal(t, "position in ['Goalkeeper', 'Defender']",
		Filter{Col: "position", Op: OpIn, Val: []any{"Goalkeeper", "Defender"}}.String())
	assert.Equal(t, "status != null", Filter{Col: "status", Op: OpNe}.String())
}

func TestResult(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.IsCode())
	assert.True(t, CodeResult("df_out = df_in").IsCode())

	tbl := NewTable([]string{"a"}, []Row{{"a": 1}})
	r := TableResult(tbl)
	assert.False(t, r.IsCode())
	assert.Equal(t, 1, r.Table.Len())
}

func TestPlanClone(t *testing.T) {
	p := &Plan{
		Dataset: "d",
		Why:     "w",
		Steps: []Step{
			{Tool: "load_d", Args: map[string]any{}},
			{Tool: "filter_df", Args: map[string]any{"filters": []any{
				map[string]any{"col": "team", "op": "in", "val": []any{"Betis"}},
			}}},
		},
		Assumptions: []string{"a"},
	}
	c := p.Clone()
	require.Equal(t, p, c)

	c.Steps[0].Tool = "load_x"
	c.Steps[1].Args["filters"].([]any)[0].(map[string]any)["val"].([]any)[0] = "Sevilla"
	c.Assumptions[0] = "b"

	assert.Equal(t, "load_d", p.Steps[0].Tool)
	assert.Equal(t, "Betis", p.Steps[1].Args["filters"].([]any)[0].(map[string]any)["val"].([]any)[0])
	assert.Equal(t, "a", p.Assumptions[0])
	assert.Nil(t, (*Plan)(nil).Clone())
}
