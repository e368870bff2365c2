package dataplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit/internal/eventbus"
)

// ProcessState is a stage of one Ask request.
type ProcessState string

const (
	StateInit      ProcessState = "init"
	StatePlanning  ProcessState = "planning"
	StateExecution ProcessState = "execution"
	StateError     ProcessState = "error"
	StateComplete  ProcessState = "complete"
	StateCancelled ProcessState = "cancelled"
)

// ProcessContext carries the data of a single request through the state
// machine. It is created per request and never shared between requests.
type ProcessContext struct {
	RequestID string
	Query     string
	Dataset   string

	ToolCall *ToolCall
	Plan     *Plan
	Result   *Result

	LastError  error
	ErrorStage ProcessState

	CurrentState ProcessState
	History      []ProcessState

	StartTime       time.Time
	EndTime         time.Time
	StateStartTimes map[ProcessState]time.Time
	StateDurations  map[ProcessState]time.Duration
}

// NewProcessContext creates a context in StateInit.
func NewProcessContext(requestID, query, dataset string) *ProcessContext {
	now := time.Now()
	return &ProcessContext{
		RequestID:       requestID,
		Query:           query,
		Dataset:         dataset,
		CurrentState:    StateInit,
		StartTime:       now,
		StateStartTimes: map[ProcessState]time.Time{StateInit: now},
		StateDurations:  make(map[ProcessState]time.Duration),
	}
}

// enter records the time spent in the current state and moves to next.
func (pc *ProcessContext) enter(next ProcessState) {
	now := time.Now()
	if start, ok := pc.StateStartTimes[pc.CurrentState]; ok {
		pc.StateDurations[pc.CurrentState] += now.Sub(start)
	}
	pc.History = append(pc.History, pc.CurrentState)
	pc.CurrentState = next
	pc.StateStartTimes[next] = now
	if pc.IsTerminal() {
		pc.EndTime = now
	}
}

// IsTerminal reports whether the request has finished.
func (pc *ProcessContext) IsTerminal() bool {
	switch pc.CurrentState {
	case StateComplete, StateError, StateCancelled:
		return true
	}
	return false
}

// SetError records err and moves to StateError.
func (pc *ProcessContext) SetError(err error) {
	pc.LastError = err
	pc.ErrorStage = pc.CurrentState
	pc.enter(StateError)
}

// SetCancelled records err and moves to StateCancelled.
func (pc *ProcessContext) SetCancelled(err error) {
	pc.LastError = err
	pc.ErrorStage = pc.CurrentState
	pc.enter(StateCancelled)
}

// Path returns every state visited, ending with the current one.
func (pc *ProcessContext) Path() []ProcessState {
	path := make([]ProcessState, 0, len(pc.History)+1)
	path = append(path, pc.History...)
	return append(path, pc.CurrentState)
}

// StateDuration returns the time spent in state. The current state is
// measured up to now.
func (pc *ProcessContext) StateDuration(state ProcessState) time.Duration {
	d := pc.StateDurations[state]
	if state == pc.CurrentState && !pc.IsTerminal() {
		if start, ok := pc.StateStartTimes[state]; ok {
			d += time.Since(start)
		}
	}
	return d
}

// TotalDuration returns the request duration so far.
func (pc *ProcessContext) TotalDuration() time.Duration {
	if pc.IsTerminal() {
		return pc.EndTime.Sub(pc.StartTime)
	}
	return time.Since(pc.StartTime)
}

// StateTransition runs the work of one state and names the next one.
type StateTransition func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error)

// TerminalHandler runs once when the machine stops in its state.
type TerminalHandler func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext)

// StateMachine drives a ProcessContext from StateInit to a terminal state.
type StateMachine struct {
	transitions map[ProcessState]StateTransition
	terminal    map[ProcessState]TerminalHandler
	eventBus    eventbus.EventBus
}

// NewStateMachine creates an empty machine. eventBus may be nil.
func NewStateMachine(eventBus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[ProcessState]StateTransition),
		terminal:    make(map[ProcessState]TerminalHandler),
		eventBus:    eventBus,
	}
}

// RegisterTransition sets the transition for a non-terminal state.
func (sm *StateMachine) RegisterTransition(state ProcessState, transition StateTransition) {
	sm.transitions[state] = transition
}

// RegisterTerminal sets the handler run when the machine stops in state.
func (sm *StateMachine) RegisterTerminal(state ProcessState, handler TerminalHandler) {
	sm.terminal[state] = handler
}

// Execute runs transitions until a terminal state is reached and returns
// the recorded error, if any.
func (sm *StateMachine) Execute(ctx context.Context, pCtx *ProcessContext) error {
	for !pCtx.IsTerminal() {
		if err := ctx.Err(); err != nil {
			pCtx.SetCancelled(NewCancelledError(string(pCtx.CurrentState), err))
			break
		}

		transition, ok := sm.transitions[pCtx.CurrentState]
		if !ok {
			pCtx.SetError(NewConfigurationError(
				fmt.Sprintf("no transition defined for state %q", pCtx.CurrentState), nil))
			break
		}

		next, err := transition(ctx, sm.eventBus, pCtx)
		if err != nil {
			if isCancellation(err) {
				pCtx.SetCancelled(err)
			} else {
				pCtx.SetError(err)
			}
			break
		}
		pCtx.enter(next)
	}

	if handler, ok := sm.terminal[pCtx.CurrentState]; ok {
		handler(ctx, sm.eventBus, pCtx)
	}
	return pCtx.LastError
}

func isCancellation(err error) bool {
	return HasCode(err, ErrCodeCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
