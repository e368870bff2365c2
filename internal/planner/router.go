// Package planner asks a model for a tool decision and turns make_plan
// decisions into Plan IRs.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RouterSystemPrompt is the default instruction for a planning round.
const RouterSystemPrompt = "You are a tool router. Choose exactly one function from the provided tools " +
	"and fill its arguments from the user's request. If you cannot call the function directly, " +
	"output STRICT JSON only: {\"tool_name\": \"...\", \"args\": {...}, \"confidence\": 0.0-1.0}."

// PlanningSystemPrompt is used when make_plan is among the offered tools.
const PlanningSystemPrompt = "You plan data lookups over a single table. Call make_plan with the shortest " +
	"sequence of steps that answers the request: load the dataset first, then filter with the listed " +
	"columns and canonical values, and translate to pandas only for computation filters cannot express. " +
	"Compare dates with ISO strings (YYYY-MM-DD). Record interpretation choices in assumptions. " +
	"If you cannot call the function directly, output STRICT JSON only: " +
	"{\"tool_name\": \"make_plan\", \"args\": {...}, \"confidence\": 0.0-1.0}."

// Router performs one model round-trip per planning request. It keeps no
// state between calls.
type Router struct {
	backend        dataplan.ModelBackend
	systemPrompt   string
	planningPrompt string
	logger         *slog.Logger
	tracer         trace.Tracer
}

// Option configures a Router.
type Option func(*Router)

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(r *Router) {
		r.systemPrompt = prompt
	}
}

// WithPlanningPrompt replaces the prompt used for make_plan rounds.
func WithPlanningPrompt(prompt string) Option {
	return func(r *Router) {
		r.planningPrompt = prompt
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Router) {
		r.tracer = tracer
	}
}

// NewRouter creates a router over backend.
func NewRouter(backend dataplan.ModelBackend, options ...Option) *Router {
	r := &Router{
		backend:        backend,
		systemPrompt:   RouterSystemPrompt,
		planningPrompt: PlanningSystemPrompt,
		logger:         slog.Default(),
		tracer:         otel.Tracer("dataplan/planner"),
	}
	for _, option := range options {
		option(r)
	}
	r.logger = r.logger.With("component", "planner")
	return r
}

// Plan implements dataplan.Planner.
func (r *Router) Plan(ctx context.Context, req dataplan.PlanRequest) (*dataplan.ToolCall, error) {
	if strings.TrimSpace(req.UserText) == "" {
		return nil, dataplan.NewInvalidInputError(dataplan.StagePlanning, "user text must be non-empty")
	}
	if len(req.Specs) == 0 {
		return nil, dataplan.NewInvalidInputError(dataplan.StagePlanning, "at least one tool spec is required")
	}
	choice := dataplan.ToolChoice{Mode: dataplan.ToolChoiceAuto}
	if req.ForcedTool != "" {
		if !hasSpec(req.Specs, req.ForcedTool) {
			return nil, dataplan.NewInvalidInputError(dataplan.StagePlanning,
				fmt.Sprintf("forced tool '%s' is not among the offered specs", req.ForcedTool))
		}
		choice = dataplan.ToolChoice{Mode: dataplan.ToolChoiceRequired, Name: req.ForcedTool}
	}

	ctx, span := r.tracer.Start(ctx, "Planner.Plan",
		trace.WithAttributes(
			attribute.Int("specs", len(req.Specs)),
			attribute.String("forced_tool", req.ForcedTool),
		))
	defer span.End()

	system := r.systemPrompt
	if hasSpec(req.Specs, dataplan.MakePlanToolName) {
		system = r.planningPrompt
	}
	if req.SystemPrompt != "" {
		system = req.SystemPrompt
	}
	messages := []dataplan.Message{{Role: dataplan.RoleSystem, Content: system}}
	if req.SchemaContext != "" {
		messages = append(messages, dataplan.Message{
			Role:    dataplan.RoleSystem,
			Content: "Schema context:\n" + req.SchemaContext,
		})
	}
	messages = append(messages, dataplan.Message{
		Role:    dataplan.RoleUser,
		Content: fmt.Sprintf("User: %q\nRespond with a tool call or STRICT JSON only.", req.UserText),
	})

	r.logger.Debug("planning request", "user_text", req.UserText, "forced_tool", req.ForcedTool)
	resp, err := r.backend.Complete(ctx, &dataplan.ModelRequest{
		Messages:   messages,
		Tools:      req.Specs,
		ToolChoice: choice,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend request failed")
		return nil, dataplan.NewBackendError(dataplan.StagePlanning, err)
	}

	call, err := Extract(resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no decision")
		return nil, err
	}
	span.SetAttributes(attribute.String("tool_name", call.ToolName), attribute.Float64("confidence", call.Confidence))
	r.logger.Info("planning complete", "tool_name", call.ToolName, "confidence", call.Confidence)
	return call, nil
}

// Extract runs the extraction chain over a model response.
func Extract(resp *dataplan.ModelResponse) (*dataplan.ToolCall, error) {
	if resp == nil {
		return nil, dataplan.NewPlanningError("empty model response", nil)
	}
	for _, extract := range extractionChain {
		if doc, ok := extract(resp); ok {
			return toToolCall(doc)
		}
	}
	return nil, dataplan.NewPlanningError("model response contains no tool call or JSON decision", nil)
}

// DecodePlan implements dataplan.Planner.
func (r *Router) DecodePlan(call *dataplan.ToolCall, dataset string) (*dataplan.Plan, error) {
	if call == nil {
		return nil, dataplan.NewPlanningError("no tool call to decode", nil)
	}
	if call.ToolName != dataplan.MakePlanToolName {
		return nil, dataplan.NewPlanningError(
			fmt.Sprintf("expected a %s call, got '%s'", dataplan.MakePlanToolName, call.ToolName), nil)
	}
	plan, err := DecodePlanArgs(withDecisionText(call), dataset)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("plan decoded", "dataset", dataset, "steps", len(plan.Steps))
	return plan, nil
}

// withDecisionText fills why and assumptions from the tool call envelope
// when the plan arguments leave them out. call.Args is not modified.
func withDecisionText(call *dataplan.ToolCall) map[string]any {
	args := make(map[string]any, len(call.Args)+2)
	for k, v := range call.Args {
		args[k] = v
	}
	if _, ok := args["why"]; !ok && call.Why != "" {
		args["why"] = call.Why
	}
	if _, ok := args["assumptions"]; !ok && call.Assumptions != nil {
		list := make([]any, len(call.Assumptions))
		for i, a := range call.Assumptions {
			list[i] = a
		}
		args["assumptions"] = list
	}
	return args
}

func hasSpec(specs []dataplan.ToolSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}
