// Package executor runs Plan IRs step by step.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/filter"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/tools"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// execState is the executor's position while walking a plan.
type execState int

const (
	stateEmpty execState = iota
	stateLoaded
	stateFiltered
	stateCodeReturned
)

func (s execState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateLoaded:
		return "loaded"
	case stateFiltered:
		return "filtered"
	case stateCodeReturned:
		return "code_returned"
	}
	return "unknown"
}

// resolvedStep is a step whose tool name has been mapped to a kind.
type resolvedStep struct {
	kind    dataplan.ToolKind
	dataset string
}

// PlanExecutor walks a plan sequentially. It keeps no state between plans
// apart from metrics, so one instance may serve concurrent requests.
type PlanExecutor struct {
	loader     dataplan.TableLoader
	schemas    dataplan.SchemaProvider
	translator dataplan.Translator
	engine     *filter.Engine

	logger      *slog.Logger
	tracer      trace.Tracer
	stepCounter metric.Int64Counter
	planCounter metric.Int64Counter

	metrics ExecutorMetrics
}

// ExecutorOption represents an option for configuring the PlanExecutor.
type ExecutorOption func(*PlanExecutor)

// WithTranslator sets the translator used by translate steps.
func WithTranslator(t dataplan.Translator) ExecutorOption {
	return func(e *PlanExecutor) {
		e.translator = t
	}
}

// WithFilterEngine replaces the shared filter engine.
func WithFilterEngine(engine *filter.Engine) ExecutorOption {
	return func(e *PlanExecutor) {
		e.engine = engine
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *PlanExecutor) {
		e.logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *PlanExecutor) {
		e.tracer = tracer
	}
}

// WithMeter sets the meter used for step and plan counters.
func WithMeter(meter metric.Meter) ExecutorOption {
	return func(e *PlanExecutor) {
		var err error
		e.stepCounter, err = meter.Int64Counter("dataplan.executor.steps",
			metric.WithDescription("Plan steps executed"))
		if err != nil {
			e.stepCounter = noop.Int64Counter{}
		}
		e.planCounter, err = meter.Int64Counter("dataplan.executor.plans",
			metric.WithDescription("Plans executed by outcome"))
		if err != nil {
			e.planCounter = noop.Int64Counter{}
		}
	}
}

// NewExecutor creates an executor. loader and schemas are required.
func NewExecutor(loader dataplan.TableLoader, schemas dataplan.SchemaProvider, options ...ExecutorOption) (*PlanExecutor, error) {
	if loader == nil {
		return nil, dataplan.NewConfigurationError("executor requires a table loader", nil)
	}
	if schemas == nil {
		return nil, dataplan.NewConfigurationError("executor requires a schema provider", nil)
	}
	e := &PlanExecutor{
		loader:  loader,
		schemas: schemas,
		engine:  filter.Default(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("dataplan/executor"),
	}
	WithMeter(otel.Meter("dataplan/executor"))(e)
	for _, option := range options {
		option(e)
	}
	e.logger = e.logger.With("component", "executor")
	return e, nil
}

// Metrics returns a snapshot of the execution statistics.
func (e *PlanExecutor) Metrics() ExecutorMetrics {
	return e.metrics.Copy()
}

// ExecutePlan implements dataplan.Executor. A translate step ends execution
// immediately with a code result; otherwise the last table is returned.
func (e *PlanExecutor) ExecutePlan(ctx context.Context, plan *dataplan.Plan) (result *dataplan.Result, err error) {
	startTime := time.Now()
	skipped := 0
	defer func() {
		d := time.Since(startTime)
		e.metrics.recordPlan(d, err, result.IsCode(), skipped)
		outcome := "table"
		switch {
		case err != nil:
			outcome = "error"
		case result.IsCode():
			outcome = "code"
		}
		e.planCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	if plan == nil || len(plan.Steps) == 0 {
		return nil, dataplan.NewEmptyPlanError()
	}

	ctx, span := e.tracer.Start(ctx, "Executor.ExecutePlan",
		trace.WithAttributes(
			attribute.String("dataset", plan.Dataset),
			attribute.Int("steps", len(plan.Steps)),
		))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dataplan.CodeOf(err))
		}
	}()

	resolved, err := preflight(plan)
	if err != nil {
		return nil, err
	}

	e.logger.Info("starting plan execution", "dataset", plan.Dataset, "steps", len(plan.Steps))

	state := stateEmpty
	dataset := plan.Dataset
	var table *dataplan.Table

	for i, rs := range resolved {
		if ctx.Err() != nil {
			return nil, dataplan.NewCancelledError(dataplan.StageExecution, ctx.Err()).AtStep(i)
		}
		step := plan.Steps[i]
		stepStart := time.Now()
		stepCtx, stepSpan := e.tracer.Start(ctx, "Executor.Step",
			trace.WithAttributes(
				attribute.Int("step.index", i),
				attribute.String("step.tool", step.Tool),
			))
		rowsIn := table.Len()

		switch rs.kind {
		case dataplan.ToolLoad:
			table, err = e.load(stepCtx, rs.dataset)
			if err == nil {
				state = stateLoaded
				dataset = rs.dataset
				e.metrics.recordStep(table.Len())
			}

		case dataplan.ToolFilter:
			if state == stateEmpty {
				err = dataplan.NewSequencingError(fmt.Sprintf("%s requires a loaded table", step.Tool))
				break
			}
			table, err = e.filter(dataset, table, step.Args)
			if err == nil {
				state = stateFiltered
				e.metrics.recordStep(0)
			}

		case dataplan.ToolTranslate:
			var code string
			code, err = e.translate(stepCtx, dataset, step.Args)
			if err == nil {
				state = stateCodeReturned
				skipped = len(plan.Steps) - i - 1
				e.metrics.recordStep(0)
				e.stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", rs.kind.String())))
				stepSpan.SetAttributes(attribute.Int("steps.skipped", skipped))
				stepSpan.End()
				e.logger.Info("plan returned code",
					"step", i, "skipped_steps", skipped, "state", state.String(),
					"duration", time.Since(stepStart))
				dataplan.ReportStep(ctx, dataplan.StepReport{
					Index: i, Tool: step.Tool, Kind: rs.kind, RowsIn: rowsIn,
					Code: true, Skipped: skipped, Duration: time.Since(stepStart),
				})
				return dataplan.CodeResult(code), nil
			}

		default:
			err = dataplan.NewUnknownToolError(step.Tool)
		}

		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, dataplan.CodeOf(err))
			stepSpan.End()
			e.logger.Warn("step failed", "step", i, "tool", step.Tool, "error", err)
			return nil, stepError(i, err)
		}

		stepSpan.SetAttributes(attribute.Int("rows.in", rowsIn), attribute.Int("rows.out", table.Len()))
		stepSpan.End()
		e.stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", rs.kind.String())))
		e.logger.Info("step complete",
			"step", i, "tool", step.Tool, "state", state.String(),
			"rows_in", rowsIn, "rows_out", table.Len(), "duration", time.Since(stepStart))
		dataplan.ReportStep(ctx, dataplan.StepReport{
			Index: i, Tool: step.Tool, Kind: rs.kind, RowsIn: rowsIn,
			RowsOut: table.Len(), Duration: time.Since(stepStart),
		})
	}

	if state == stateEmpty {
		return nil, dataplan.NewNoDataProducedError()
	}

	e.logger.Info("plan execution complete",
		"rows", table.Len(), "duration", time.Since(startTime))
	return dataplan.TableResult(table), nil
}

// preflight resolves tool kinds and checks arguments of every step that can
// run, i.e. up to and including the first translate step. Nothing executes
// if any of them is invalid.
func preflight(plan *dataplan.Plan) ([]resolvedStep, error) {
	resolved := make([]resolvedStep, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		kind, dataset, err := step.Kind()
		if err != nil {
			return nil, stepError(i, err)
		}
		if err := tools.ValidateArgs(kind, step.Tool, step.Args); err != nil {
			return nil, stepError(i, err)
		}
		resolved = append(resolved, resolvedStep{kind: kind, dataset: dataset})
		if kind == dataplan.ToolTranslate {
			break
		}
	}
	return resolved, nil
}

func (e *PlanExecutor) load(ctx context.Context, dataset string) (*dataplan.Table, error) {
	if _, err := e.schemas.GetSchema(dataset); err != nil {
		return nil, err
	}
	table, err := e.loader.Load(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, dataplan.NewDataSourceError(dataset, errors.New("loader returned no table"))
	}
	return table, nil
}

func (e *PlanExecutor) filter(dataset string, table *dataplan.Table, args map[string]any) (*dataplan.Table, error) {
	filters, err := filter.Compile(args["filters"], table.Columns)
	if err != nil {
		return nil, err
	}
	doc, err := e.schemas.GetSchema(dataset)
	if err != nil {
		return nil, err
	}
	if err := filter.CheckValueHints(filters, doc.ValueHints); err != nil {
		return nil, err
	}
	return e.engine.Apply(table, filters)
}

func (e *PlanExecutor) translate(ctx context.Context, dataset string, args map[string]any) (string, error) {
	if e.translator == nil {
		return "", dataplan.NewConfigurationError("no translator configured", nil)
	}
	doc, err := e.schemas.GetSchema(dataset)
	if err != nil {
		return "", err
	}
	query, _ := args["query"].(string)
	return e.translator.GenerateCode(ctx, query, doc)
}

// stepError binds err to step i.
func stepError(i int, err error) error {
	var dpErr *dataplan.DataPlanError
	if errors.As(err, &dpErr) {
		return dpErr.AtStep(i)
	}
	return dataplan.NewError(dataplan.ErrCodeDataSource, dataplan.StageExecution, "step failed", err).AtStep(i)
}
