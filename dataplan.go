// Package dataplan turns natural language data requests into validated plans
// of whitelisted table operations and executes them deterministically.
package dataplan

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit/internal/eventbus"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DataPlan is the orchestration entry point. It ties a Planner to an
// Executor and keeps no state between requests.
type DataPlan struct {
	planner  Planner
	executor Executor
	schemas  SchemaProvider
	tools    ToolCatalog
	eventBus eventbus.EventBus
	ownsBus  bool

	config Config
	logger *slog.Logger
	tracer trace.Tracer
}

// Config holds orchestration settings.
type Config struct {
	// PlannerSystemPrompt replaces the planner's default system prompt when set.
	PlannerSystemPrompt string

	// ForcePlanTool compels the model to call make_plan.
	ForcePlanTool bool

	// RequestTimeout bounds a whole Ask call. Zero means no deadline.
	RequestTimeout time.Duration

	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ForcePlanTool:       true,
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 2,
	}
}

// Option configures a DataPlan.
type Option func(*DataPlan)

// WithConfig sets the configuration.
func WithConfig(config Config) Option {
	return func(d *DataPlan) {
		d.config = config
	}
}

// WithPlanner sets the planner.
func WithPlanner(planner Planner) Option {
	return func(d *DataPlan) {
		d.planner = planner
	}
}

// WithExecutor sets the executor.
func WithExecutor(executor Executor) Option {
	return func(d *DataPlan) {
		d.executor = executor
	}
}

// WithSchemaProvider sets the schema catalog.
func WithSchemaProvider(schemas SchemaProvider) Option {
	return func(d *DataPlan) {
		d.schemas = schemas
	}
}

// WithToolCatalog sets the source of planner-visible tool specs.
func WithToolCatalog(tools ToolCatalog) Option {
	return func(d *DataPlan) {
		d.tools = tools
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DataPlan) {
		d.logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *DataPlan) {
		d.tracer = tracer
	}
}

// New creates a DataPlan. Planner, executor, schema provider and tool
// catalog are required.
func New(options ...Option) (*DataPlan, error) {
	d := &DataPlan{
		config: DefaultConfig(),
		logger: slog.Default(),
		tracer: otel.Tracer("dataplan"),
	}
	for _, option := range options {
		option(d)
	}

	switch {
	case d.planner == nil:
		return nil, NewConfigurationError("planner is required", nil)
	case d.executor == nil:
		return nil, NewConfigurationError("executor is required", nil)
	case d.schemas == nil:
		return nil, NewConfigurationError("schema provider is required", nil)
	case d.tools == nil:
		return nil, NewConfigurationError("tool catalog is required", nil)
	}

	d.logger = d.logger.With("component", "dataplan")
	if d.config.EnableEventBus && d.eventBus == nil {
		d.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(d.config.EventBusBufferSize),
			eventbus.WithWorkerCount(d.config.EventBusWorkerCount),
			eventbus.WithLogger(d.logger),
		)
		d.ownsBus = true
		d.logger.Debug("initialized default channel event bus")
	}
	return d, nil
}

// EventBus returns the bus lifecycle events are published on, or nil.
func (d *DataPlan) EventBus() eventbus.EventBus {
	if !d.config.EnableEventBus {
		return nil
	}
	return d.eventBus
}

// Close releases the event bus if DataPlan created it.
func (d *DataPlan) Close() error {
	if d.ownsBus && d.eventBus != nil {
		return d.eventBus.Close()
	}
	return nil
}

// PlanOutcome is the result of a planning round.
type PlanOutcome struct {
	ToolCall *ToolCall
	Plan     *Plan
	Summary  string
}

// Outcome is the result of an Ask request.
type Outcome struct {
	RequestID string
	ToolCall  *ToolCall
	Plan      *Plan
	Summary   string
	Result    *Result
	States    []ProcessState
	Duration  time.Duration
}

// PlanRequest runs one planning round for dataset and decodes the answer
// into a Plan. Nothing is executed.
func (d *DataPlan) PlanRequest(ctx context.Context, text, dataset string) (out *PlanOutcome, err error) {
	ctx, span := d.tracer.Start(ctx, "DataPlan.PlanRequest",
		trace.WithAttributes(attribute.String("dataset", dataset)))
	defer span.End()
	defer func() { recordSpanError(span, err) }()

	if strings.TrimSpace(text) == "" {
		return nil, NewInvalidInputError(StagePlanning, "user text must be non-empty")
	}
	schemaContext, err := d.schemas.PlannerContext(dataset)
	if err != nil {
		return nil, err
	}

	req := PlanRequest{
		UserText:      text,
		Specs:         d.tools.PlannerSpecs(dataset),
		SchemaContext: schemaContext,
		SystemPrompt:  d.config.PlannerSystemPrompt,
	}
	if d.config.ForcePlanTool {
		req.ForcedTool = MakePlanToolName
	}

	call, err := d.planner.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	plan, err := d.planner.DecodePlan(call, dataset)
	if err != nil {
		return &PlanOutcome{ToolCall: call}, err
	}
	span.SetAttributes(attribute.Int("plan.steps", len(plan.Steps)))
	return &PlanOutcome{ToolCall: call, Plan: plan, Summary: SummarizePlan(plan)}, nil
}

// Execute runs plan with the configured executor.
func (d *DataPlan) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	if plan == nil {
		return nil, NewEmptyPlanError()
	}
	return d.executor.ExecutePlan(ctx, plan)
}

// Ask plans and executes one request. The returned Outcome is non-nil even
// when err is set so callers can show the plan that failed.
func (d *DataPlan) Ask(ctx context.Context, text, dataset string) (*Outcome, error) {
	if d.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.RequestTimeout)
		defer cancel()
	}

	pCtx := NewProcessContext(uuid.NewString(), text, dataset)
	ctx, span := d.tracer.Start(ctx, "DataPlan.Ask",
		trace.WithAttributes(
			attribute.String("request.id", pCtx.RequestID),
			attribute.String("dataset", dataset),
		))
	defer span.End()

	logger := d.logger.With("request_id", pCtx.RequestID, "dataset", dataset)
	logger.Info("request started")

	err := d.newStateMachine(logger).Execute(ctx, pCtx)
	recordSpanError(span, err)

	out := &Outcome{
		RequestID: pCtx.RequestID,
		ToolCall:  pCtx.ToolCall,
		Plan:      pCtx.Plan,
		Result:    pCtx.Result,
		States:    pCtx.Path(),
		Duration:  pCtx.TotalDuration(),
	}
	if pCtx.Plan != nil {
		out.Summary = SummarizePlan(pCtx.Plan)
	}

	if err != nil {
		logger.Warn("request failed",
			"state", pCtx.ErrorStage, "code", CodeOf(err), "error", err, "duration", out.Duration)
		return out, err
	}
	logger.Info("request complete", "code_result", out.Result.IsCode(), "duration", out.Duration)
	return out, nil
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	code := CodeOf(err)
	if code == "" {
		code = err.Error()
	}
	span.SetStatus(codes.Error, code)
}
