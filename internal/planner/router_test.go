package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const dataset = "biwenger_player_stats"

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Complete(ctx context.Context, req *dataplan.ModelRequest) (*dataplan.ModelResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*dataplan.ModelResponse)
	return resp, args.Error(1)
}

func planSpecs() []dataplan.ToolSpec {
	return tools.NewRegistry().PlannerSpecs(dataset)
}

func TestRouterPlan_ForcedToolInvocation(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Complete", mock.Anything, mock.MatchedBy(func(req *dataplan.ModelRequest) bool {
		return req.ToolChoice.Mode == dataplan.ToolChoiceRequired &&
			req.ToolChoice.Name == dataplan.MakePlanToolName &&
			len(req.Messages) == 3 &&
			req.Messages[1].Content == "Schema context:\n{}"
	})).Return(&dataplan.ModelResponse{
		ToolCalls: []dataplan.ModelToolCall{{
			Name:      dataplan.MakePlanToolName,
			Arguments: `{"steps":[{"tool":"load_biwenger_player_stats","args":{}}]}`,
		}},
	}, nil).Once()

	call, err := NewRouter(backend).Plan(context.Background(), dataplan.PlanRequest{
		UserText:      "all players",
		Specs:         planSpecs(),
		SchemaContext: "{}",
		ForcedTool:    dataplan.MakePlanToolName,
	})
	require.NoError(t, err)
	assert.Equal(t, dataplan.MakePlanToolName, call.ToolName)
	assert.Equal(t, 0.75, call.Confidence)
	assert.Len(t, call.Args["steps"], 1)
	backend.AssertExpectations(t)
}

func TestRouterPlan_AutoChoiceWithoutForcedTool(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Complete", mock.Anything, mock.MatchedBy(func(req *dataplan.ModelRequest) bool {
		return req.ToolChoice.Mode == dataplan.ToolChoiceAuto && len(req.Messages) == 2
	})).Return(&dataplan.ModelResponse{
		Text: `{"tool_name": "make_plan", "args": {"steps": []}, "confidence": 0.9}`,
	}, nil).Once()

	call, err := NewRouter(backend).Plan(context.Background(), dataplan.PlanRequest{UserText: "x", Specs: planSpecs()})
	require.NoError(t, err)
	assert.Equal(t, 0.9, call.Confidence)
}

func TestRouterPlan_SystemPromptSelection(t *testing.T) {
	other := []dataplan.ToolSpec{{Name: "lookup", Parameters: map[string]any{"type": "object"}}}
	tests := []struct {
		name   string
		specs  []dataplan.ToolSpec
		prompt string
		want   string
	}{
		{"planning round", planSpecs(), "", PlanningSystemPrompt},
		{"generic round", other, "", RouterSystemPrompt},
		{"request override", planSpecs(), "custom", "custom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{}
			backend.On("Complete", mock.Anything, mock.MatchedBy(func(req *dataplan.ModelRequest) bool {
				return req.Messages[0].Role == dataplan.RoleSystem && req.Messages[0].Content == tt.want
			})).Return(&dataplan.ModelResponse{Text: `{"tool_name":"lookup","args":{}}`}, nil).Once()

			_, err := NewRouter(backend).Plan(context.Background(), dataplan.PlanRequest{
				UserText:     "anything",
				Specs:        tt.specs,
				SystemPrompt: tt.prompt,
			})
			require.NoError(t, err)
			backend.AssertExpectations(t)
		})
	}
}

func TestRouterPlan_InvalidInput(t *testing.T) {
	backend := &mockBackend{}
	r := NewRouter(backend)

	_, err := r.Plan(context.Background(), dataplan.PlanRequest{UserText: " ", Specs: planSpecs()})
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeInvalidInput))

	_, err = r.Plan(context.Background(), dataplan.PlanRequest{UserText: "x"})
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeInvalidInput))

	_, err = r.Plan(context.Background(), dataplan.PlanRequest{UserText: "x", Specs: planSpecs(), ForcedTool: "other"})
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeInvalidInput))

	backend.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestRouterPlan_NoDecision(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Complete", mock.Anything, mock.Anything).Return(&dataplan.ModelResponse{Text: "I cannot help with that."}, nil).Once()

	_, err := NewRouter(backend).Plan(context.Background(), dataplan.PlanRequest{UserText: "x", Specs: planSpecs()})
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodePlanning))
	backend.AssertNumberOfCalls(t, "Complete", 1)
}

func TestRouterPlan_BackendError(t *testing.T) {
	backend := &mockBackend{}
	cause := errors.New("timeout")
	backend.On("Complete", mock.Anything, mock.Anything).Return(nil, cause).Once()

	_, err := NewRouter(backend).Plan(context.Background(), dataplan.PlanRequest{UserText: "x", Specs: planSpecs()})
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeBackend))
	assert.ErrorIs(t, err, cause)
}

func TestRouterDecodePlan(t *testing.T) {
	r := NewRouter(&mockBackend{})

	plan, err := r.DecodePlan(&dataplan.ToolCall{
		ToolName: dataplan.MakePlanToolName,
		Args: map[string]any{
			"steps": []any{
				map[string]any{"tool": "load_biwenger_player_stats", "args": map[string]any{}},
				map[string]any{"tool": "filter_df", "args": map[string]any{"filters": []any{
					map[string]any{"col": "team", "op": "==", "val": "Real Madrid"},
				}}},
			},
			"assumptions": []any{"current season"},
		},
		Why: "players of one team",
	}, dataset)
	require.NoError(t, err)
	assert.Equal(t, dataset, plan.Dataset)
	assert.Equal(t, "players of one team", plan.Why)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "filter_df", plan.Steps[1].Tool)

	assert.Equal(t, []string{"current season"}, plan.Assumptions)

	_, err = r.DecodePlan(&dataplan.ToolCall{ToolName: "filter_df"}, dataset)
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodePlanning))

	_, err = r.DecodePlan(&dataplan.ToolCall{
		ToolName: dataplan.MakePlanToolName,
		Args: map[string]any{"steps": []any{
			map[string]any{"tool": "load_biwenger_player_stats", "args": map[string]any{}},
		}},
	}, dataset)
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodePlanning), "why and assumptions are required")
}
