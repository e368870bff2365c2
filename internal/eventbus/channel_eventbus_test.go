package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestBus(retries int) *ChannelEventBus {
	return NewChannelEventBus(
		WithBufferSize(4),
		WithWorkerCount(1),
		WithRetries(retries, 5*time.Millisecond),
	)
}

func TestChannelEventBus_PublishAndSubscribe(t *testing.T) {
	eb := newTestBus(1)
	defer eb.Close()

	received := make(chan Event, 1)
	_, err := eb.Subscribe([]EventType{EventStepCompleted}, func(ctx context.Context, event Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	evt := NewEvent(EventStepCompleted, "req-1", "test", 3, map[string]any{"step": 0})
	if err := eb.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type() != EventStepCompleted {
			t.Errorf("expected %v, got %v", EventStepCompleted, got.Type())
		}
		if got.RequestID() != "req-1" {
			t.Errorf("expected request id req-1, got %q", got.RequestID())
		}
		if got.Metadata()["step"] != 0 {
			t.Errorf("unexpected metadata %v", got.Metadata())
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event handler")
	}
}

func TestChannelEventBus_OnlyMatchingTypes(t *testing.T) {
	eb := newTestBus(0)

	var mu sync.Mutex
	var typed, all []EventType
	if _, err := eb.Subscribe([]EventType{EventPlanningSuccess}, func(ctx context.Context, e Event) error {
		mu.Lock()
		typed = append(typed, e.Type())
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := eb.SubscribeAll(func(ctx context.Context, e Event) error {
		mu.Lock()
		all = append(all, e.Type())
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	_ = eb.Publish(context.Background(), NewEvent(EventPlanningStarted, "r", "test", nil, nil))
	_ = eb.Publish(context.Background(), NewEvent(EventPlanningSuccess, "r", "test", nil, nil))
	if err := eb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(typed) != 1 || typed[0] != EventPlanningSuccess {
		t.Errorf("typed subscriber got %v", typed)
	}
	if len(all) != 2 {
		t.Errorf("catch-all subscriber got %v", all)
	}
}

func TestChannelEventBus_HandlerRetry(t *testing.T) {
	eb := newTestBus(2)

	var mu sync.Mutex
	calls := 0
	_, err := eb.Subscribe([]EventType{EventExecutionFailure}, func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := eb.Publish(context.Background(), NewEvent(EventExecutionFailure, "", "test", nil, nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	_ = eb.Close()

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if s := eb.Stats(); s.Delivered != 1 || s.Failed != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestChannelEventBus_HandlerGivesUp(t *testing.T) {
	eb := newTestBus(1)
	_, _ = eb.SubscribeAll(func(ctx context.Context, event Event) error {
		return errors.New("always")
	})
	_ = eb.Publish(context.Background(), NewEvent(EventSystemError, "", "test", nil, nil))
	_ = eb.Close()

	if s := eb.Stats(); s.Failed != 1 {
		t.Errorf("expected one failed delivery, got %+v", s)
	}
}

func TestChannelEventBus_CancelledContextStillDelivers(t *testing.T) {
	eb := newTestBus(0)
	defer eb.Close()

	received := make(chan error, 1)
	_, err := eb.Subscribe([]EventType{EventRequestCancelled}, func(ctx context.Context, event Event) error {
		received <- ctx.Err()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := eb.Publish(ctx, NewEvent(EventRequestCancelled, "r", "test", nil, nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case ctxErr := <-received:
		if ctxErr != nil {
			t.Errorf("handler context should be detached, got %v", ctxErr)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation event was not delivered")
	}
}

func TestChannelEventBus_Closed(t *testing.T) {
	eb := newTestBus(0)
	if err := eb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := eb.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := eb.Publish(context.Background(), NewEvent(EventSystemInfo, "", "test", nil, nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := eb.SubscribeAll(func(context.Context, Event) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestChannelEventBus_SubscribeValidation(t *testing.T) {
	eb := newTestBus(0)
	defer eb.Close()

	if _, err := eb.Subscribe(nil, func(context.Context, Event) error { return nil }); err == nil {
		t.Error("expected error for empty event types")
	}
	if _, err := eb.Subscribe([]EventType{EventSystemInfo}, nil); err == nil {
		t.Error("expected error for nil handler")
	}

	id, err := eb.Subscribe([]EventType{EventSystemInfo}, func(context.Context, Event) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := eb.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := eb.Unsubscribe("missing"); err != nil {
		t.Fatalf("Unsubscribe of unknown id failed: %v", err)
	}
}
