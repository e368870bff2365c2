package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIBackend implements dataplan.ModelBackend against an OpenAI compatible
// chat completions endpoint.
type OpenAIBackend struct {
	client        openai.Client
	model         string
	clientOptions []option.RequestOption
	logger        *slog.Logger
}

// OpenAIOption configures an OpenAIBackend.
type OpenAIOption func(*OpenAIBackend)

// WithOpenAIModel sets the model name.
func WithOpenAIModel(model string) OpenAIOption {
	return func(b *OpenAIBackend) {
		if model != "" {
			b.model = model
		}
	}
}

// WithOpenAIAPIKey sets the API key.
func WithOpenAIAPIKey(apiKey string) OpenAIOption {
	return func(b *OpenAIBackend) {
		if apiKey != "" {
			b.clientOptions = append(b.clientOptions, option.WithAPIKey(apiKey))
		}
	}
}

// WithOpenAIBaseURL points the client at a proxy or compatible server.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(b *OpenAIBackend) {
		if url != "" {
			b.clientOptions = append(b.clientOptions, option.WithBaseURL(url))
		}
	}
}

// WithOpenAIRequestOptions appends raw client options.
func WithOpenAIRequestOptions(opts ...option.RequestOption) OpenAIOption {
	return func(b *OpenAIBackend) {
		b.clientOptions = append(b.clientOptions, opts...)
	}
}

// WithOpenAILogger sets the logger.
func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(b *OpenAIBackend) {
		b.logger = logger
	}
}

// NewOpenAIBackend creates a backend. Without WithOpenAIAPIKey the client
// reads OPENAI_API_KEY from the environment.
func NewOpenAIBackend(options ...OpenAIOption) *OpenAIBackend {
	b := &OpenAIBackend{
		model:  DefaultOpenAIModel,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(b)
	}
	b.client = openai.NewClient(b.clientOptions...)
	b.logger = b.logger.With("component", "openai_backend", "model", b.model)
	return b
}

// Complete implements dataplan.ModelBackend.
func (b *OpenAIBackend) Complete(ctx context.Context, req *dataplan.ModelRequest) (*dataplan.ModelResponse, error) {
	if req == nil {
		return nil, errors.New("model request is nil")
	}
	params, err := b.buildParams(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	out := convertCompletion(completion)
	b.logger.Debug("openai completion finished",
		"tool_calls", len(out.ToolCalls),
		"text_length", len(out.Text),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (b *OpenAIBackend) buildParams(req *dataplan.ModelRequest) (openai.ChatCompletionNewParams, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case dataplan.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case dataplan.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    b.model,
		Messages: messages,
	}
	if len(req.Tools) == 0 {
		return params, nil
	}

	tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
	for _, spec := range req.Tools {
		tool, err := convertToolSpec(spec)
		if err != nil {
			return params, err
		}
		tools = append(tools, tool)
	}
	params.Tools = tools

	switch {
	case req.ToolChoice.Mode == dataplan.ToolChoiceRequired && req.ToolChoice.Name != "":
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: req.ToolChoice.Name},
			},
		}
	case req.ToolChoice.Mode != "":
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(req.ToolChoice.Mode)),
		}
	}
	return params, nil
}

// convertToolSpec renders a spec in the {"type":"function"} tool shape.
func convertToolSpec(spec dataplan.ToolSpec) (openai.ChatCompletionToolParam, error) {
	var params openai.FunctionParameters
	if spec.Parameters != nil {
		raw, err := json.Marshal(spec.Parameters)
		if err != nil {
			return openai.ChatCompletionToolParam{}, fmt.Errorf("tool %q parameters: %w", spec.Name, err)
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return openai.ChatCompletionToolParam{}, fmt.Errorf("tool %q parameters: %w", spec.Name, err)
		}
	}
	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  params,
		},
	}, nil
}

func convertCompletion(completion *openai.ChatCompletion) *dataplan.ModelResponse {
	out := &dataplan.ModelResponse{}
	if completion == nil || len(completion.Choices) == 0 {
		return out
	}
	msg := completion.Choices[0].Message
	out.Text = msg.Content
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, dataplan.ModelToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}
