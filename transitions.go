package dataplan

import (
	"context"
	"log/slog"

	"github.com/ZanzyTHEbar/dataplan-genkit/internal/eventbus"
)

// newStateMachine wires the Ask workflow:
// init -> planning -> execution -> complete, with error and cancelled as
// the other terminal states.
func (d *DataPlan) newStateMachine(logger *slog.Logger) *StateMachine {
	p := &publisher{bus: d.EventBus(), logger: logger}
	sm := NewStateMachine(p.bus)

	sm.RegisterTransition(StateInit, d.initTransition(p))
	sm.RegisterTransition(StatePlanning, d.planningTransition(p))
	sm.RegisterTransition(StateExecution, d.executionTransition(p))

	sm.RegisterTerminal(StateComplete, func(ctx context.Context, _ eventbus.EventBus, pCtx *ProcessContext) {
		p.publish(ctx, eventbus.EventRequestSuccess, pCtx, "StateMachine.Complete", pCtx.Result, map[string]any{
			"duration_ms": pCtx.TotalDuration().Milliseconds(),
			"code_result": pCtx.Result.IsCode(),
		})
	})
	sm.RegisterTerminal(StateError, func(ctx context.Context, _ eventbus.EventBus, pCtx *ProcessContext) {
		p.publish(ctx, eventbus.EventRequestFailure, pCtx, "StateMachine.Error", pCtx.LastError.Error(), map[string]any{
			"stage":       string(pCtx.ErrorStage),
			"code":        CodeOf(pCtx.LastError),
			"duration_ms": pCtx.TotalDuration().Milliseconds(),
		})
	})
	sm.RegisterTerminal(StateCancelled, func(ctx context.Context, _ eventbus.EventBus, pCtx *ProcessContext) {
		p.publish(ctx, eventbus.EventRequestCancelled, pCtx, "StateMachine.Cancelled", pCtx.LastError.Error(), map[string]any{
			"stage": string(pCtx.ErrorStage),
		})
	})
	return sm
}

func (d *DataPlan) initTransition(p *publisher) StateTransition {
	return func(ctx context.Context, _ eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		p.publish(ctx, eventbus.EventRequestStarted, pCtx, "StateMachine.Init", pCtx.Query, nil)
		if _, err := d.schemas.GetSchema(pCtx.Dataset); err != nil {
			return StateError, err
		}
		return StatePlanning, nil
	}
}

func (d *DataPlan) planningTransition(p *publisher) StateTransition {
	return func(ctx context.Context, _ eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		p.publish(ctx, eventbus.EventPlanningStarted, pCtx, "StateMachine.Planning", pCtx.Query, nil)

		out, err := d.PlanRequest(ctx, pCtx.Query, pCtx.Dataset)
		if out != nil {
			pCtx.ToolCall = out.ToolCall
			pCtx.Plan = out.Plan
		}
		if err != nil {
			p.publish(ctx, eventbus.EventPlanningFailure, pCtx, "StateMachine.Planning", err.Error(), map[string]any{
				"code": CodeOf(err),
			})
			return StateError, err
		}

		p.publish(ctx, eventbus.EventPlanningSuccess, pCtx, "StateMachine.Planning", out.Plan.Clone(), map[string]any{
			"steps":   len(out.Plan.Steps),
			"summary": out.Summary,
		})
		return StateExecution, nil
	}
}

func (d *DataPlan) executionTransition(p *publisher) StateTransition {
	return func(ctx context.Context, _ eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		if pCtx.Plan == nil {
			return StateError, NewPlanningError("planning produced no plan", nil)
		}
		p.publish(ctx, eventbus.EventExecutionStarted, pCtx, "StateMachine.Execution", pCtx.Plan.Clone(), map[string]any{
			"steps": len(pCtx.Plan.Steps),
		})

		execCtx := ContextWithStepObserver(ctx, func(ctx context.Context, r StepReport) {
			p.publish(ctx, eventbus.EventStepCompleted, pCtx, "Executor", r, map[string]any{
				"step":     r.Index,
				"tool":     r.Tool,
				"rows_out": r.RowsOut,
			})
		})
		result, err := d.Execute(execCtx, pCtx.Plan)
		if err != nil {
			p.publish(ctx, eventbus.EventExecutionFailure, pCtx, "StateMachine.Execution", err.Error(), map[string]any{
				"code": CodeOf(err),
			})
			return StateError, err
		}
		pCtx.Result = result

		meta := map[string]any{"code_result": result.IsCode()}
		if !result.IsCode() {
			meta["rows"] = result.Table.Len()
		}
		p.publish(ctx, eventbus.EventExecutionSuccess, pCtx, "StateMachine.Execution", result, meta)
		if result.IsCode() {
			p.publish(ctx, eventbus.EventCodeReturned, pCtx, "StateMachine.Execution", result.Code, nil)
		}
		return StateComplete, nil
	}
}

// publisher sends events when a bus is configured. Publish failures are
// logged and never fail the request.
type publisher struct {
	bus    eventbus.EventBus
	logger *slog.Logger
}

func (p *publisher) publish(ctx context.Context, t eventbus.EventType, pCtx *ProcessContext, source string, payload any, meta map[string]any) {
	if p.bus == nil {
		return
	}
	evt := eventbus.NewEvent(t, pCtx.RequestID, source, payload, meta).
		WithMetadata("dataset", pCtx.Dataset).
		WithMetadata("state", string(pCtx.CurrentState))
	if err := p.bus.Publish(ctx, evt); err != nil {
		p.logger.Debug("event not published", "event_type", t, "error", err)
	}
}
