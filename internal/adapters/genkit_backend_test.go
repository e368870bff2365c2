package adapters

import (
	"testing"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest(choice dataplan.ToolChoice) *dataplan.ModelRequest {
	return &dataplan.ModelRequest{
		Messages: []dataplan.Message{
			{Role: dataplan.RoleSystem, Content: "plan things"},
			{Role: dataplan.RoleUser, Content: "players over 10 points"},
		},
		Tools: []dataplan.ToolSpec{
			{Name: "make_plan", Description: "emit a plan", Parameters: map[string]any{"type": "object"}},
			{Name: "other", Description: "unused", Parameters: map[string]any{"type": "object"}},
		},
		ToolChoice: choice,
	}
}

func TestToGenkitRequest_ForcedToolNarrowsTools(t *testing.T) {
	out := toGenkitRequest(sampleRequest(dataplan.ToolChoice{Mode: dataplan.ToolChoiceRequired, Name: "make_plan"}))

	require.Len(t, out.Messages, 2)
	assert.Equal(t, ai.RoleSystem, out.Messages[0].Role)
	assert.Equal(t, ai.RoleUser, out.Messages[1].Role)
	require.Len(t, out.Tools, 1)
	assert.Equal(t, "make_plan", out.Tools[0].Name)
	assert.Equal(t, "object", out.Tools[0].InputSchema["type"])
	assert.Equal(t, ai.ToolChoiceRequired, out.ToolChoice)
}

func TestToGenkitRequest_AutoKeepsAllTools(t *testing.T) {
	out := toGenkitRequest(sampleRequest(dataplan.ToolChoice{Mode: dataplan.ToolChoiceAuto}))
	assert.Len(t, out.Tools, 2)
	assert.Equal(t, ai.ToolChoiceAuto, out.ToolChoice)
}

func TestToGenkitRequest_NoToolsNoChoice(t *testing.T) {
	req := &dataplan.ModelRequest{Messages: []dataplan.Message{{Role: dataplan.RoleUser, Content: "hi"}}}
	out := toGenkitRequest(req)
	assert.Empty(t, out.Tools)
	assert.Equal(t, ai.ToolChoice(""), out.ToolChoice)
}

func TestFromGenkitResponse(t *testing.T) {
	resp := &ai.ModelResponse{
		Message: &ai.Message{
			Role: ai.RoleModel,
			Content: []*ai.Part{
				ai.NewToolRequestPart(&ai.ToolRequest{
					Name:  "make_plan",
					Input: map[string]any{"steps": []any{map[string]any{"tool": "load_x", "args": map[string]any{}}}},
				}),
			},
		},
	}
	out, err := fromGenkitResponse(resp)
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "make_plan", out.ToolCalls[0].Name)
	assert.JSONEq(t, `{"steps":[{"tool":"load_x","args":{}}]}`, out.ToolCalls[0].Arguments)

	_, err = fromGenkitResponse(nil)
	assert.Error(t, err)
}

func TestMarshalToolInput(t *testing.T) {
	s, err := marshalToolInput(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", s)

	s, err = marshalToolInput(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, s)

	s, err = marshalToolInput(map[string]any{"b": true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":true}`, s)

	_, err = marshalToolInput(map[string]any{"c": make(chan int)})
	assert.Error(t, err)
}

func TestNewGenkitBackend_RequiresModel(t *testing.T) {
	_, err := NewGenkitBackend(nil)
	assert.Error(t, err)
}
