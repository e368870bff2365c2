package planner

import (
	"testing"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Chain(t *testing.T) {
	tests := []struct {
		name       string
		resp       *dataplan.ModelResponse
		wantTool   string
		wantConf   float64
		wantErrors bool
	}{
		{
			name:     "tool invocation wins over text",
			resp:     &dataplan.ModelResponse{ToolCalls: []dataplan.ModelToolCall{{Name: "make_plan", Arguments: `{}`}}, Text: `{"tool_name":"other"}`},
			wantTool: "make_plan",
			wantConf: 0.75,
		},
		{
			name:     "invalid invocation arguments fall through to text",
			resp:     &dataplan.ModelResponse{ToolCalls: []dataplan.ModelToolCall{{Name: "make_plan", Arguments: `{bad`}}, Text: `{"tool_name":"filter_df","args":{}}`},
			wantTool: "filter_df",
			wantConf: 0.5,
		},
		{
			name:     "fenced json",
			resp:     &dataplan.ModelResponse{Text: "Here you go:\n```json\n{\"tool_name\": \"make_plan\", \"args\": {}, \"confidence\": 0.3}\n```"},
			wantTool: "make_plan",
			wantConf: 0.3,
		},
		{
			name:     "brace span with nested braces and strings",
			resp:     &dataplan.ModelResponse{Text: `Sure. {"tool_name": "make_plan", "args": {"why": "a } in text"}} trailing`},
			wantTool: "make_plan",
			wantConf: 0.5,
		},
		{
			name:       "confidence out of range",
			resp:       &dataplan.ModelResponse{Text: `{"tool_name": "make_plan", "confidence": 3}`},
			wantErrors: true,
		},
		{
			name:       "missing tool name",
			resp:       &dataplan.ModelResponse{Text: `{"args": {}}`},
			wantErrors: true,
		},
		{
			name:       "args not an object",
			resp:       &dataplan.ModelResponse{Text: `{"tool_name": "make_plan", "args": [1]}`},
			wantErrors: true,
		},
		{
			name:       "nothing usable",
			resp:       &dataplan.ModelResponse{Text: "no json { here"},
			wantErrors: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := Extract(tt.resp)
			if tt.wantErrors {
				require.Error(t, err)
				assert.True(t, dataplan.HasCode(err, dataplan.ErrCodePlanning))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTool, call.ToolName)
			assert.Equal(t, tt.wantConf, call.Confidence)
		})
	}
}

func TestFirstBalancedObject(t *testing.T) {
	span, ok := firstBalancedObject(`x {"a": {"b": "\"}"}} y {"c": 1}`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": "\"}"}}`, span)

	_, ok = firstBalancedObject(`{"a": 1`)
	assert.False(t, ok)
}
