package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/bus"
	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
)

func testBus(t *testing.T) *bus.Bus {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	b := bus.New(logger)
	b.SetPollInterval(5 * time.Millisecond)
	b.SetBackoff(func(int) time.Duration { return time.Millisecond })
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newTestAgent(t *testing.T, b *bus.Bus, handler EventHandler) *BaseAgent {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	a := NewBaseAgent(domain.AgentTypeCandidate, "test_agent",
		[]domain.EventType{domain.EventCandidateApplied}, b, logger)
	a.handle = handler
	return a
}

func TestBaseAgent_InitializeRequiresHandler(t *testing.T) {
	b := testBus(t)
	logger, _ := zap.NewDevelopment()
	a := NewBaseAgent(domain.AgentTypeCandidate, "bare", nil, b, logger)

	if err := a.Initialize(context.Background()); err == nil {
		t.Fatal("expected error initializing agent without a handler")
	}
}

func TestBaseAgent_LifecycleIdempotent(t *testing.T) {
	b := testBus(t)
	a := newTestAgent(t, b, func(context.Context, *domain.Event) (any, error) {
		return nil, nil
	})

	ctx := context.Background()
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if got := a.State().Status(); got != domain.StatusIdle {
		t.Fatalf("status after shutdown = %s, want %s", got, domain.StatusIdle)
	}
}

func TestBaseAgent_ProcessEventSuccess(t *testing.T) {
	b := testBus(t)
	a := newTestAgent(t, b, func(_ context.Context, event *domain.Event) (any, error) {
		return event.Payload["answer"], nil
	})

	event := domain.NewEvent(domain.EventCandidateApplied, domain.Payload{
		"answer":     42,
		"session_id": "sess-1",
	}, 5)
	res := a.ProcessEvent(context.Background(), event)

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Result != 42 {
		t.Fatalf("result = %v, want 42", res.Result)
	}
	if res.AgentID != a.ID() {
		t.Fatalf("result agent id = %s, want %s", res.AgentID, a.ID())
	}
	if got := a.State().Status(); got != domain.StatusIdle {
		t.Fatalf("status = %s, want idle after success", got)
	}
	if got := a.State().Context().SessionID; got != "sess-1" {
		t.Fatalf("session id = %q, want folded from payload", got)
	}
	if m := a.State().Metrics(); m["events_processed"] != 1 {
		t.Fatalf("events_processed = %v, want 1", m["events_processed"])
	}
}

func TestBaseAgent_ProcessEventFailure(t *testing.T) {
	b := testBus(t)
	boom := errors.New("llm unavailable")
	a := newTestAgent(t, b, func(context.Context, *domain.Event) (any, error) {
		return nil, boom
	})

	res := a.ProcessEvent(context.Background(), domain.NewEvent(domain.EventCandidateApplied, domain.Payload{}, 5))
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.Error != boom.Error() {
		t.Fatalf("error = %q, want %q", res.Error, boom.Error())
	}
	if got := a.State().Status(); got != domain.StatusError {
		t.Fatalf("status = %s, want error", got)
	}
	if !a.IsHealthy() {
		t.Fatal("one failure should leave the agent healthy, retries remain")
	}
}

func TestBaseAgent_ProcessEventRecoversPanic(t *testing.T) {
	b := testBus(t)
	a := newTestAgent(t, b, func(context.Context, *domain.Event) (any, error) {
		panic("nil map write")
	})

	res := a.ProcessEvent(context.Background(), domain.NewEvent(domain.EventCandidateApplied, domain.Payload{}, 5))
	if res.Success {
		t.Fatal("expected failure result from panicking handler")
	}
	if res.Error == "" {
		t.Fatal("expected panic to be surfaced in the result error")
	}
}

func TestBaseAgent_UnhealthyAfterRetriesExhausted(t *testing.T) {
	b := testBus(t)
	a := newTestAgent(t, b, func(context.Context, *domain.Event) (any, error) {
		return nil, errors.New("persistent failure")
	})

	event := domain.NewEvent(domain.EventCandidateApplied, domain.Payload{}, 5)
	for i := 0; i < 3; i++ {
		a.ProcessEvent(context.Background(), event)
	}
	if a.IsHealthy() {
		t.Fatal("agent should be unhealthy after exhausting its retry budget")
	}

	// Initialize clears the error status, so a restart alone makes the
	// agent eligible for work again.
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer a.Shutdown(context.Background())
	if got := a.State().Status(); got != domain.StatusIdle {
		t.Fatalf("status after restart = %s, want idle", got)
	}
	if !a.IsHealthy() {
		t.Fatal("restarted agent should report healthy")
	}
}

func TestBaseAgent_BusDeliveryReachesHandler(t *testing.T) {
	b := testBus(t)
	var mu sync.Mutex
	var seen []string
	a := newTestAgent(t, b, func(_ context.Context, event *domain.Event) (any, error) {
		mu.Lock()
		seen = append(seen, string(event.Type))
		mu.Unlock()
		return nil, nil
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer a.Shutdown(context.Background())

	b.Publish(domain.NewEvent(domain.EventCandidateApplied, domain.Payload{}, 5))
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})
}

func TestBaseAgent_HealthCheckEmission(t *testing.T) {
	b := testBus(t)
	a := newTestAgent(t, b, func(context.Context, *domain.Event) (any, error) {
		return nil, nil
	})
	a.SetHealthCheckInterval(10 * time.Millisecond)

	var mu sync.Mutex
	var checks int
	b.Subscribe(uuid.New(), []domain.EventType{domain.EventAgentHealthCheck},
		func(_ context.Context, event *domain.Event) (any, error) {
			if name, _ := event.Payload.GetString("agent_name"); name != "test_agent" {
				t.Errorf("health check agent_name = %q", name)
			}
			mu.Lock()
			checks++
			mu.Unlock()
			return nil, nil
		})

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer a.Shutdown(context.Background())

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return checks >= 2
	})
}

func TestBaseAgent_Metrics(t *testing.T) {
	b := testBus(t)
	a := newTestAgent(t, b, func(context.Context, *domain.Event) (any, error) {
		return "ok", nil
	})
	a.ProcessEvent(context.Background(), domain.NewEvent(domain.EventCandidateApplied, domain.Payload{}, 5))

	m := a.Metrics()
	if m["agent_type"] != string(domain.AgentTypeCandidate) {
		t.Fatalf("agent_type = %v", m["agent_type"])
	}
	if m["status"] != string(domain.StatusIdle) {
		t.Fatalf("status = %v, want idle", m["status"])
	}
	snap := a.StateSnapshot()
	if snap["agent_id"] != a.ID().String() {
		t.Fatalf("snapshot agent_id = %v", snap["agent_id"])
	}
}
