package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
)

func testBus() *Bus {
	logger, _ := zap.NewDevelopment()
	b := New(logger)
	b.SetPollInterval(5 * time.Millisecond)
	b.SetBackoff(func(int) time.Duration { return time.Millisecond })
	return b
}

// waitFor polls cond until it holds or the deadline passes.
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

// recordingHandler collects delivered events in order.
type recordingHandler struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (h *recordingHandler) handle(_ context.Context, e *domain.Event) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil, nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *recordingHandler) types() []domain.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.EventType, len(h.events))
	for i, e := range h.events {
		out[i] = e.Type
	}
	return out
}

func TestBus_PriorityOrdering(t *testing.T) {
	b := testBus()
	h := &recordingHandler{}
	agentID := uuid.New()

	b.Subscribe(agentID, []domain.EventType{domain.EventCandidateApplied, domain.EventAgentHealthCheck}, h.handle)

	// Publish before Start so both events sit in the queue together.
	b.Publish(domain.NewEvent(domain.EventAgentHealthCheck, nil, 0))
	b.Publish(domain.NewEvent(domain.EventCandidateApplied, nil, 5))

	b.Start()
	defer b.Stop()

	waitFor(t, time.Second, func() bool { return h.count() == 2 })

	got := h.types()
	if got[0] != domain.EventCandidateApplied {
		t.Fatalf("expected high-priority candidate_applied first, got %v", got)
	}
	if got[1] != domain.EventAgentHealthCheck {
		t.Fatalf("expected agent_health_check second, got %v", got)
	}
}

func TestBus_FIFOWithinPriorityTier(t *testing.T) {
	b := testBus()
	h := &recordingHandler{}
	agentID := uuid.New()

	b.Subscribe(agentID, []domain.EventType{domain.EventCandidateApplied}, h.handle)

	first := domain.NewEvent(domain.EventCandidateApplied, domain.Payload{"n": "1"}, 3)
	second := domain.NewEvent(domain.EventCandidateApplied, domain.Payload{"n": "2"}, 3)
	second.Timestamp = first.Timestamp.Add(time.Microsecond)
	b.Publish(first)
	b.Publish(second)

	b.Start()
	defer b.Stop()

	waitFor(t, time.Second, func() bool { return h.count() == 2 })

	h.mu.Lock()
	defer h.mu.Unlock()
	if n, _ := h.events[0].Payload.GetString("n"); n != "1" {
		t.Fatalf("expected first-published event first within the tier, got %q", n)
	}
}

func TestBus_RetryExhaustion(t *testing.T) {
	b := testBus()
	agentID := uuid.New()

	var mu sync.Mutex
	attempts := 0
	b.Subscribe(agentID, []domain.EventType{domain.EventCandidateApplied}, func(_ context.Context, _ *domain.Event) (any, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil, errors.New("boom")
	})

	event := domain.NewEvent(domain.EventCandidateApplied, nil, 1)
	event.MaxRetries = 2

	b.Start()
	defer b.Stop()
	b.Publish(event)

	waitFor(t, 2*time.Second, func() bool { return len(b.DeadLetterQueue()) == 1 })

	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 3 {
		t.Fatalf("expected maxRetries+1 = 3 delivery attempts, got %d", got)
	}

	dlq := b.DeadLetterQueue()
	if len(dlq) != 1 {
		t.Fatalf("expected exactly 1 DLQ entry, got %d", len(dlq))
	}
	if dlq[0].ID != event.ID {
		t.Fatalf("DLQ holds wrong event: %s", dlq[0].ID)
	}
	if dlq[0].RetryCount > dlq[0].MaxRetries {
		t.Fatalf("retry count %d exceeds max %d", dlq[0].RetryCount, dlq[0].MaxRetries)
	}

	// The exhausted event must never be delivered again.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := attempts
	mu.Unlock()
	if after != got {
		t.Fatalf("event delivered again after DLQ placement: %d -> %d", got, after)
	}

	b.ClearDeadLetterQueue()
	if len(b.DeadLetterQueue()) != 0 {
		t.Fatal("expected empty DLQ after clear")
	}
}

func TestBus_IdempotentSubscribe(t *testing.T) {
	b := testBus()
	h := &recordingHandler{}
	agentID := uuid.New()

	b.Subscribe(agentID, []domain.EventType{domain.EventCandidateApplied}, h.handle)
	b.Subscribe(agentID, []domain.EventType{domain.EventCandidateApplied}, h.handle)

	b.Start()
	defer b.Stop()
	b.Publish(domain.NewEvent(domain.EventCandidateApplied, nil, 1))

	waitFor(t, time.Second, func() bool { return h.count() >= 1 })
	time.Sleep(20 * time.Millisecond)

	if h.count() != 1 {
		t.Fatalf("expected exactly one delivery for a doubly-subscribed agent, got %d", h.count())
	}
}

func TestBus_FailureIsolation(t *testing.T) {
	b := testBus()
	good := &recordingHandler{}
	badID, goodID := uuid.New(), uuid.New()

	b.Subscribe(badID, []domain.EventType{domain.EventCandidateApplied}, func(_ context.Context, _ *domain.Event) (any, error) {
		return nil, errors.New("always fails")
	})
	b.Subscribe(goodID, []domain.EventType{domain.EventCandidateApplied}, good.handle)

	event := domain.NewEvent(domain.EventCandidateApplied, nil, 1)
	event.MaxRetries = 0

	b.Start()
	defer b.Stop()
	b.Publish(event)

	waitFor(t, time.Second, func() bool { return good.count() >= 1 })
}

func TestBus_PanicRecovered(t *testing.T) {
	b := testBus()
	h := &recordingHandler{}
	panicID, okID := uuid.New(), uuid.New()

	b.Subscribe(panicID, []domain.EventType{domain.EventCandidateApplied}, func(_ context.Context, _ *domain.Event) (any, error) {
		panic("handler crashed")
	})
	b.Subscribe(okID, []domain.EventType{domain.EventCandidateApplied, domain.EventCandidateResponded}, h.handle)

	event := domain.NewEvent(domain.EventCandidateApplied, nil, 1)
	event.MaxRetries = 0

	b.Start()
	defer b.Stop()
	b.Publish(event)

	// Dispatch loop must survive the panic and keep delivering.
	waitFor(t, time.Second, func() bool { return len(b.DeadLetterQueue()) == 1 })

	b.Publish(domain.NewEvent(domain.EventCandidateResponded, nil, 1))
	waitFor(t, time.Second, func() bool {
		for _, et := range h.types() {
			if et == domain.EventCandidateResponded {
				return true
			}
		}
		return false
	})
}

func TestBus_TargetedDelivery(t *testing.T) {
	b := testBus()
	target := &recordingHandler{}
	other := &recordingHandler{}
	targetID, otherID := uuid.New(), uuid.New()

	b.Subscribe(targetID, []domain.EventType{domain.EventEmployerChatRequested}, target.handle)
	b.Subscribe(otherID, []domain.EventType{domain.EventEmployerChatRequested}, other.handle)

	event := domain.NewEvent(domain.EventEmployerChatRequested, nil, 2)
	event.TargetAgentID = targetID

	b.Start()
	defer b.Stop()
	b.Publish(event)

	waitFor(t, time.Second, func() bool { return target.count() == 1 })
	time.Sleep(20 * time.Millisecond)

	if other.count() != 0 {
		t.Fatalf("targeted event leaked to another subscriber: %d deliveries", other.count())
	}
}

func TestBus_TargetedDeliveryUnsubscribedTargetDropped(t *testing.T) {
	b := testBus()
	h := &recordingHandler{}
	subID := uuid.New()

	b.Subscribe(subID, []domain.EventType{domain.EventEmployerChatRequested}, h.handle)

	event := domain.NewEvent(domain.EventEmployerChatRequested, nil, 2)
	event.TargetAgentID = uuid.New() // never subscribed

	b.Start()
	defer b.Stop()
	b.Publish(event)

	waitFor(t, time.Second, func() bool { return b.GetMetrics().EventsProcessed >= 1 })
	if h.count() != 0 {
		t.Fatalf("event for an unsubscribed target was delivered %d times", h.count())
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := testBus()
	h := &recordingHandler{}
	agentID := uuid.New()

	types := []domain.EventType{domain.EventCandidateApplied, domain.EventCandidateResponded}
	b.Subscribe(agentID, types, h.handle)
	b.Unsubscribe(agentID, []domain.EventType{domain.EventCandidateApplied})

	metrics := b.GetMetrics()
	if _, ok := metrics.Subscribers[string(domain.EventCandidateApplied)]; ok {
		t.Fatal("expected candidate_applied subscription removed")
	}
	if len(metrics.Subscribers[string(domain.EventCandidateResponded)]) != 1 {
		t.Fatal("expected candidate_responded subscription kept")
	}

	// Handler survives while one subscription remains.
	b.Start()
	defer b.Stop()
	b.Publish(domain.NewEvent(domain.EventCandidateResponded, nil, 1))
	waitFor(t, time.Second, func() bool { return h.count() == 1 })

	b.Unsubscribe(agentID, []domain.EventType{domain.EventCandidateResponded})
	b.mu.Lock()
	_, handlerKept := b.handlers[agentID]
	b.mu.Unlock()
	if handlerKept {
		t.Fatal("expected handler dropped once no subscriptions remain")
	}
}

func TestBus_StopIdempotent(t *testing.T) {
	b := testBus()
	b.Start()
	b.Stop()
	b.Stop() // must not panic or block

	// And a never-started bus tolerates Stop too.
	b2 := testBus()
	b2.Stop()
}

func TestBus_StartIdempotent(t *testing.T) {
	b := testBus()
	h := &recordingHandler{}
	agentID := uuid.New()
	b.Subscribe(agentID, []domain.EventType{domain.EventCandidateApplied}, h.handle)

	b.Start()
	b.Start() // no second dispatch loop
	defer b.Stop()

	b.Publish(domain.NewEvent(domain.EventCandidateApplied, nil, 1))
	waitFor(t, time.Second, func() bool { return h.count() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if h.count() != 1 {
		t.Fatalf("double Start caused duplicate delivery: %d", h.count())
	}
}

func TestBus_Metrics(t *testing.T) {
	b := testBus()
	agentID := uuid.New()

	var fail atomic.Bool
	fail.Store(true)
	b.Subscribe(agentID, []domain.EventType{domain.EventCandidateApplied}, func(_ context.Context, _ *domain.Event) (any, error) {
		if fail.Load() {
			return nil, errors.New("nope")
		}
		return "ok", nil
	})

	event := domain.NewEvent(domain.EventCandidateApplied, nil, 1)
	event.MaxRetries = 1

	b.Start()
	defer b.Stop()
	b.Publish(event)

	waitFor(t, 2*time.Second, func() bool { return b.GetMetrics().EventsDeadLettered == 1 })

	m := b.GetMetrics()
	if m.EventsFailed != 2 {
		t.Fatalf("expected 2 failed deliveries, got %d", m.EventsFailed)
	}
	if m.EventsRetried != 1 {
		t.Fatalf("expected 1 retry, got %d", m.EventsRetried)
	}
	if m.DLQSize != 1 {
		t.Fatalf("expected DLQ size 1, got %d", m.DLQSize)
	}
	if len(m.Subscribers[string(domain.EventCandidateApplied)]) != 1 {
		t.Fatalf("expected subscriber map to list the agent")
	}

	fail.Store(false)
	b.Publish(domain.NewEvent(domain.EventCandidateApplied, nil, 1))
	waitFor(t, time.Second, func() bool { return b.GetMetrics().EventsProcessed >= 3 })
}

func TestBus_PublishSimple(t *testing.T) {
	b := testBus()
	h := &recordingHandler{}
	agentID := uuid.New()
	source := uuid.New()

	b.Subscribe(agentID, []domain.EventType{domain.EventCandidateApplied}, h.handle)
	b.Start()
	defer b.Stop()

	event := b.PublishSimple(domain.EventCandidateApplied, domain.Payload{"vacancy_id": "v1"}, source, uuid.Nil, 5, "corr-1")
	if event.ID == uuid.Nil {
		t.Fatal("expected generated event id")
	}
	if event.MaxRetries != domain.DefaultMaxRetries {
		t.Fatalf("expected default retry budget, got %d", event.MaxRetries)
	}

	waitFor(t, time.Second, func() bool { return h.count() == 1 })

	h.mu.Lock()
	got := h.events[0]
	h.mu.Unlock()
	if got.SourceAgentID != source || got.CorrelationID != "corr-1" {
		t.Fatalf("event lost source or correlation id: %+v", got)
	}
	if v, _ := got.Payload.GetString("vacancy_id"); v != "v1" {
		t.Fatalf("payload not carried: %+v", got.Payload)
	}
}

func TestBus_ConfigurableRetryBudget(t *testing.T) {
	b := testBus()
	b.SetDefaultMaxRetries(7)
	b.SetDefaultMaxRetries(0) // ignored

	event := b.PublishSimple(domain.EventCandidateApplied, nil, uuid.Nil, uuid.Nil, 1, "")
	if event.MaxRetries != 7 {
		t.Fatalf("expected configured retry budget 7, got %d", event.MaxRetries)
	}
}
