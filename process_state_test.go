package dataplan

import (
	"context"
	"errors"
	"testing"

	"github.com/ZanzyTHEbar/dataplan-genkit/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(next ProcessState) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		return next, nil
	}
}

func TestStateMachine_Execute_Success(t *testing.T) {
	sm := NewStateMachine(nil)
	sm.RegisterTransition(StateInit, step(StatePlanning))
	sm.RegisterTransition(StatePlanning, step(StateExecution))
	sm.RegisterTransition(StateExecution, step(StateComplete))

	var terminalRan bool
	sm.RegisterTerminal(StateComplete, func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) {
		terminalRan = true
	})

	pCtx := NewProcessContext("req", "query", "players")
	require.NoError(t, sm.Execute(context.Background(), pCtx))
	assert.True(t, terminalRan)
	assert.Equal(t, []ProcessState{StateInit, StatePlanning, StateExecution, StateComplete}, pCtx.Path())
	assert.True(t, pCtx.IsTerminal())
	assert.False(t, pCtx.EndTime.IsZero())
	assert.GreaterOrEqual(t, pCtx.TotalDuration(), pCtx.StateDuration(StatePlanning))
}

func TestStateMachine_Execute_Error(t *testing.T) {
	boom := NewPlanningError("no plan", nil)
	sm := NewStateMachine(nil)
	sm.RegisterTransition(StateInit, step(StatePlanning))
	sm.RegisterTransition(StatePlanning, func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		return StateError, boom
	})
	sm.RegisterTransition(StateExecution, func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		t.Fatal("execution must not run after a planning failure")
		return StateComplete, nil
	})

	var failed error
	sm.RegisterTerminal(StateError, func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) {
		failed = pCtx.LastError
	})

	pCtx := NewProcessContext("req", "query", "players")
	err := sm.Execute(context.Background(), pCtx)
	assert.Same(t, boom, err)
	assert.Same(t, boom, failed)
	assert.Equal(t, StateError, pCtx.CurrentState)
	assert.Equal(t, StatePlanning, pCtx.ErrorStage)
}

func TestStateMachine_Execute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sm := NewStateMachine(nil)
	sm.RegisterTransition(StateInit, func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		cancel()
		return StatePlanning, nil
	})
	sm.RegisterTransition(StatePlanning, func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		t.Fatal("planning must not run after cancellation")
		return StateExecution, nil
	})

	pCtx := NewProcessContext("req", "query", "players")
	err := sm.Execute(ctx, pCtx)
	require.Error(t, err)
	assert.Equal(t, ErrCodeCancelled, CodeOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateCancelled, pCtx.CurrentState)
	assert.Equal(t, StatePlanning, pCtx.ErrorStage)
}

func TestStateMachine_Execute_TransitionReturnsCancellation(t *testing.T) {
	sm := NewStateMachine(nil)
	sm.RegisterTransition(StateInit, func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		return StateError, NewBackendError(StagePlanning, context.DeadlineExceeded)
	})

	pCtx := NewProcessContext("req", "query", "players")
	err := sm.Execute(context.Background(), pCtx)
	assert.Equal(t, ErrCodeBackend, CodeOf(err))
	assert.Equal(t, StateCancelled, pCtx.CurrentState)
}

func TestStateMachine_Execute_MissingTransition(t *testing.T) {
	sm := NewStateMachine(nil)
	sm.RegisterTransition(StateInit, step(StatePlanning))

	pCtx := NewProcessContext("req", "query", "players")
	err := sm.Execute(context.Background(), pCtx)
	assert.Equal(t, ErrCodeConfiguration, CodeOf(err))
	assert.Equal(t, StateError, pCtx.CurrentState)
}
