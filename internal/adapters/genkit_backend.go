package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/firebase/genkit/go/ai"
)

// GenkitBackend implements dataplan.ModelBackend over a Genkit model.
type GenkitBackend struct {
	model  ai.Model
	logger *slog.Logger
}

// GenkitOption configures a GenkitBackend.
type GenkitOption func(*GenkitBackend)

// WithGenkitLogger sets the logger.
func WithGenkitLogger(logger *slog.Logger) GenkitOption {
	return func(b *GenkitBackend) {
		b.logger = logger
	}
}

// NewGenkitBackend wraps model, typically resolved through a Genkit plugin
// such as googleai.
func NewGenkitBackend(model ai.Model, options ...GenkitOption) (*GenkitBackend, error) {
	if model == nil {
		return nil, errors.New("genkit model is required")
	}
	b := &GenkitBackend{
		model:  model,
		logger: slog.Default(),
	}
	for _, option := range options {
		option(b)
	}
	b.logger = b.logger.With("component", "genkit_backend")
	return b, nil
}

// Complete implements dataplan.ModelBackend.
func (b *GenkitBackend) Complete(ctx context.Context, req *dataplan.ModelRequest) (*dataplan.ModelResponse, error) {
	if req == nil {
		return nil, errors.New("model request is nil")
	}
	start := time.Now()
	resp, err := b.model.Generate(ctx, toGenkitRequest(req), nil)
	if err != nil {
		return nil, fmt.Errorf("genkit generate failed: %w", err)
	}
	out, err := fromGenkitResponse(resp)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("genkit completion finished",
		"tool_calls", len(out.ToolCalls),
		"text_length", len(out.Text),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// toGenkitRequest converts a request. Genkit tool choice has no named form,
// so a forced tool is expressed by offering only that tool as required.
func toGenkitRequest(req *dataplan.ModelRequest) *ai.ModelRequest {
	out := &ai.ModelRequest{}
	for _, msg := range req.Messages {
		switch msg.Role {
		case dataplan.RoleSystem:
			out.Messages = append(out.Messages, ai.NewSystemTextMessage(msg.Content))
		case dataplan.RoleAssistant:
			out.Messages = append(out.Messages, ai.NewModelTextMessage(msg.Content))
		default:
			out.Messages = append(out.Messages, ai.NewUserTextMessage(msg.Content))
		}
	}

	forced := req.ToolChoice.Mode == dataplan.ToolChoiceRequired && req.ToolChoice.Name != ""
	for _, spec := range req.Tools {
		if forced && spec.Name != req.ToolChoice.Name {
			continue
		}
		out.Tools = append(out.Tools, &ai.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.Parameters,
		})
	}

	if len(out.Tools) > 0 {
		switch req.ToolChoice.Mode {
		case dataplan.ToolChoiceRequired:
			out.ToolChoice = ai.ToolChoiceRequired
		case dataplan.ToolChoiceNone:
			out.ToolChoice = ai.ToolChoiceNone
		default:
			out.ToolChoice = ai.ToolChoiceAuto
		}
	}
	return out
}

func fromGenkitResponse(resp *ai.ModelResponse) (*dataplan.ModelResponse, error) {
	if resp == nil {
		return nil, errors.New("genkit returned no response")
	}
	out := &dataplan.ModelResponse{Text: resp.Text()}
	for _, tr := range resp.ToolRequests() {
		if tr == nil {
			continue
		}
		args, err := marshalToolInput(tr.Input)
		if err != nil {
			return nil, fmt.Errorf("tool request %q: %w", tr.Name, err)
		}
		out.ToolCalls = append(out.ToolCalls, dataplan.ModelToolCall{Name: tr.Name, Arguments: args})
	}
	return out, nil
}

// marshalToolInput renders tool input as JSON text. Inputs that already are
// strings are passed through untouched.
func marshalToolInput(input any) (string, error) {
	switch v := input.(type) {
	case nil:
		return "{}", nil
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
