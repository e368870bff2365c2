package eventbus

import (
	"context"
	"time"
)

// EventType names a lifecycle event.
type EventType string

const (
	// Request lifecycle
	EventRequestStarted   EventType = "request_started"
	EventRequestSuccess   EventType = "request_success"
	EventRequestFailure   EventType = "request_failure"
	EventRequestCancelled EventType = "request_cancelled"

	// Planning
	EventPlanningStarted EventType = "planning_started"
	EventPlanningSuccess EventType = "planning_success"
	EventPlanningFailure EventType = "planning_failure"

	// Plan execution
	EventExecutionStarted EventType = "execution_started"
	EventExecutionSuccess EventType = "execution_success"
	EventExecutionFailure EventType = "execution_failure"
	EventStepCompleted    EventType = "step_completed"
	EventCodeReturned     EventType = "code_returned"

	// Cache
	EventCacheWarmed EventType = "cache_warmed"

	// System
	EventSystemError   EventType = "system_error"
	EventSystemWarning EventType = "system_warning"
	EventSystemInfo    EventType = "system_info"
)

// EventHandler handles one event. A non-nil error triggers a retry.
type EventHandler func(context.Context, Event) error

// Event is something that happened while serving a request.
type Event interface {
	Type() EventType
	Payload() any
	Metadata() map[string]any
	Timestamp() time.Time
	// Source names the component that emitted the event.
	Source() string
	// RequestID correlates the event with one orchestrator request. It may
	// be empty for system events.
	RequestID() string
}

// EventBus dispatches events to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe registers handler for the given types and returns a
	// subscription ID.
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)
	SubscribeAll(handler EventHandler) (string, error)
	Unsubscribe(subscriptionID string) error
	Close() error
}

// BaseEvent is the default Event implementation.
type BaseEvent struct {
	eventType EventType
	payload   any
	metadata  map[string]any
	timestamp time.Time
	source    string
	requestID string
}

// NewEvent creates an event. A nil metadata map is replaced by an empty one.
func NewEvent(eventType EventType, requestID, source string, payload any, metadata map[string]any) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &BaseEvent{
		eventType: eventType,
		payload:   payload,
		metadata:  metadata,
		timestamp: time.Now(),
		source:    source,
		requestID: requestID,
	}
}

func (e *BaseEvent) Type() EventType          { return e.eventType }
func (e *BaseEvent) Payload() any             { return e.payload }
func (e *BaseEvent) Metadata() map[string]any { return e.metadata }
func (e *BaseEvent) Timestamp() time.Time     { return e.timestamp }
func (e *BaseEvent) Source() string           { return e.source }
func (e *BaseEvent) RequestID() string        { return e.requestID }

// WithMetadata sets one metadata entry and returns the event for chaining.
func (e *BaseEvent) WithMetadata(key string, value any) *BaseEvent {
	e.metadata[key] = value
	return e
}
