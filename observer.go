package dataplan

import (
	"context"
	"time"
)

// StepReport describes one executed plan step.
type StepReport struct {
	Index    int
	Tool     string
	Kind     ToolKind
	RowsIn   int
	RowsOut  int
	Code     bool
	Skipped  int
	Duration time.Duration
}

// StepObserver is notified after each successful step. It must not block.
type StepObserver func(ctx context.Context, report StepReport)

type stepObserverKey struct{}

// ContextWithStepObserver attaches obs to ctx for the duration of one
// execution.
func ContextWithStepObserver(ctx context.Context, obs StepObserver) context.Context {
	return context.WithValue(ctx, stepObserverKey{}, obs)
}

// ReportStep forwards report to the observer attached to ctx, if any.
func ReportStep(ctx context.Context, report StepReport) {
	if obs, ok := ctx.Value(stepObserverKey{}).(StepObserver); ok && obs != nil {
		obs(ctx, report)
	}
}
