package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
)

// fakeAgent is a hand-rolled Agent with scriptable health and failure modes.
type fakeAgent struct {
	id        uuid.UUID
	agentType domain.AgentType
	name      string

	mu            sync.Mutex
	healthy       bool
	failInit      bool
	failShutdown  bool
	panicOnHealth bool
	initCount     int
	shutdownCount int
	processed     []*domain.Event
	failProcess   bool
}

func newFakeAgent(agentType domain.AgentType, name string) *fakeAgent {
	return &fakeAgent{id: uuid.New(), agentType: agentType, name: name, healthy: true}
}

func (f *fakeAgent) ID() uuid.UUID          { return f.id }
func (f *fakeAgent) Type() domain.AgentType { return f.agentType }
func (f *fakeAgent) Name() string           { return f.name }

func (f *fakeAgent) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInit {
		return errors.New("init refused")
	}
	f.initCount++
	f.healthy = true
	return nil
}

func (f *fakeAgent) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failShutdown {
		return errors.New("shutdown refused")
	}
	f.shutdownCount++
	return nil
}

func (f *fakeAgent) ProcessEvent(_ context.Context, event *domain.Event) *domain.EventResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, event)
	if f.failProcess {
		return &domain.EventResult{Success: false, AgentID: f.id, Error: "processing refused"}
	}
	return &domain.EventResult{Success: true, AgentID: f.id}
}

func (f *fakeAgent) IsHealthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnHealth {
		panic("health probe exploded")
	}
	return f.healthy
}

func (f *fakeAgent) setHealthy(v bool) {
	f.mu.Lock()
	f.healthy = v
	f.mu.Unlock()
}

func (f *fakeAgent) counts() (inits, shutdowns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCount, f.shutdownCount
}

func (f *fakeAgent) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}

func (f *fakeAgent) Metrics() map[string]any       { return map[string]any{"agent_id": f.id.String()} }
func (f *fakeAgent) StateSnapshot() map[string]any { return map[string]any{} }

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	r := NewRegistry(logger)
	r.Start()
	t.Cleanup(func() { r.Stop(context.Background()) })
	return r
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	cand := newFakeAgent(domain.AgentTypeCandidate, "cand-1")
	emp := newFakeAgent(domain.AgentTypeEmployer, "emp-1")

	id, err := r.RegisterAgent(ctx, cand)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id != cand.id {
		t.Fatalf("returned id %s, want the agent's own id %s", id, cand.id)
	}
	if _, err := r.RegisterAgent(ctx, emp); err != nil {
		t.Fatalf("register employer: %v", err)
	}

	if inits, _ := cand.counts(); inits != 1 {
		t.Fatalf("initialize called %d times, want 1", inits)
	}
	if got, ok := r.GetAgent(cand.id); !ok || got.ID() != cand.id {
		t.Fatal("registered agent not found by id")
	}
	if n := r.AgentCount(); n != 2 {
		t.Fatalf("agent count = %d, want 2", n)
	}
	if n := r.AgentCountByType(domain.AgentTypeCandidate); n != 1 {
		t.Fatalf("candidate count = %d, want 1", n)
	}
	byType := r.GetAgentsByType(domain.AgentTypeEmployer)
	if len(byType) != 1 || byType[0].ID() != emp.id {
		t.Fatal("type index does not match registered employer agent")
	}
}

func TestRegistry_RegisterInitFailure(t *testing.T) {
	r := testRegistry(t)
	broken := newFakeAgent(domain.AgentTypeCandidate, "broken")
	broken.failInit = true

	if _, err := r.RegisterAgent(context.Background(), broken); err == nil {
		t.Fatal("expected registration to fail when initialize fails")
	}
	if n := r.AgentCount(); n != 0 {
		t.Fatalf("failed registration left %d agents in the registry", n)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	a := newFakeAgent(domain.AgentTypeCandidate, "cand-1")
	if _, err := r.RegisterAgent(ctx, a); err != nil {
		t.Fatalf("register: %v", err)
	}

	if !r.UnregisterAgent(ctx, a.id) {
		t.Fatal("unregister of a known agent returned false")
	}
	if _, shutdowns := a.counts(); shutdowns != 1 {
		t.Fatal("unregister did not shut the agent down")
	}
	if _, ok := r.GetAgent(a.id); ok {
		t.Fatal("agent still resolvable after unregister")
	}
	if n := r.AgentCountByType(domain.AgentTypeCandidate); n != 0 {
		t.Fatalf("type index still holds %d entries after unregister", n)
	}

	if r.UnregisterAgent(ctx, uuid.New()) {
		t.Fatal("unregister of an unknown id returned true")
	}
}

func TestRegistry_BroadcastIsolation(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	ok1 := newFakeAgent(domain.AgentTypeCandidate, "ok-1")
	bad := newFakeAgent(domain.AgentTypeEmployer, "bad")
	bad.failProcess = true
	ok2 := newFakeAgent(domain.AgentTypeEmployer, "ok-2")
	for _, a := range []*fakeAgent{ok1, bad, ok2} {
		if _, err := r.RegisterAgent(ctx, a); err != nil {
			t.Fatalf("register %s: %v", a.name, err)
		}
	}

	r.BroadcastEvent(ctx, domain.NewEvent(domain.EventSystemShutdown, domain.Payload{}, 0))
	for _, a := range []*fakeAgent{ok1, bad, ok2} {
		if a.processedCount() != 1 {
			t.Fatalf("agent %s saw %d broadcast events, want 1", a.name, a.processedCount())
		}
	}

	r.BroadcastToType(ctx, domain.NewEvent(domain.EventSystemStartup, domain.Payload{}, 0), domain.AgentTypeEmployer)
	if ok1.processedCount() != 1 {
		t.Fatal("typed broadcast leaked to a candidate agent")
	}
	if bad.processedCount() != 2 || ok2.processedCount() != 2 {
		t.Fatal("typed broadcast did not reach every employer agent")
	}
}

func TestRegistry_HealthCheckAll(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	healthy := newFakeAgent(domain.AgentTypeCandidate, "healthy")
	sick := newFakeAgent(domain.AgentTypeCandidate, "sick")
	explosive := newFakeAgent(domain.AgentTypeEmployer, "explosive")
	explosive.panicOnHealth = true
	for _, a := range []*fakeAgent{healthy, sick, explosive} {
		if _, err := r.RegisterAgent(ctx, a); err != nil {
			t.Fatalf("register %s: %v", a.name, err)
		}
	}
	// After registration: Initialize restores health, so degrade it now.
	sick.setHealthy(false)

	status := r.HealthCheckAll()
	if !status[healthy.id] {
		t.Fatal("healthy agent reported unhealthy")
	}
	if status[sick.id] {
		t.Fatal("sick agent reported healthy")
	}
	if status[explosive.id] {
		t.Fatal("panicking health probe must count as unhealthy")
	}
}

func TestRegistry_RestartUnhealthyAgents(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	healthy := newFakeAgent(domain.AgentTypeCandidate, "healthy")
	sick := newFakeAgent(domain.AgentTypeCandidate, "sick")
	stuck := newFakeAgent(domain.AgentTypeEmployer, "stuck")
	stuck.failShutdown = true
	for _, a := range []*fakeAgent{healthy, sick, stuck} {
		if _, err := r.RegisterAgent(ctx, a); err != nil {
			t.Fatalf("register %s: %v", a.name, err)
		}
	}
	sick.setHealthy(false)
	stuck.setHealthy(false)
	sickID := sick.id

	if n := r.RestartUnhealthyAgents(ctx); n != 1 {
		t.Fatalf("restarted %d agents, want exactly 1", n)
	}

	inits, shutdowns := sick.counts()
	if shutdowns != 1 || inits != 2 {
		t.Fatalf("sick agent saw %d shutdowns and %d inits, want 1 and 2", shutdowns, inits)
	}
	if got, ok := r.GetAgent(sickID); !ok || got.ID() != sickID {
		t.Fatal("restart must keep the agent registered under the same id")
	}
	if inits, _ := healthy.counts(); inits != 1 {
		t.Fatal("healthy agent was restarted")
	}

	// A second sweep finds nothing: the restart restored health and the
	// stuck agent still cannot shut down.
	if n := r.RestartUnhealthyAgents(ctx); n != 0 {
		t.Fatalf("second sweep restarted %d agents, want 0", n)
	}
}

func TestRegistry_Metrics(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	cand := newFakeAgent(domain.AgentTypeCandidate, "cand")
	emp := newFakeAgent(domain.AgentTypeEmployer, "emp")
	for _, a := range []*fakeAgent{cand, emp} {
		if _, err := r.RegisterAgent(ctx, a); err != nil {
			t.Fatalf("register %s: %v", a.name, err)
		}
	}
	emp.setHealthy(false)

	m := r.Metrics()
	if m.TotalAgents != 2 || m.HealthyAgents != 1 || m.UnhealthyAgents != 1 {
		t.Fatalf("metrics = %+v, want 2 total / 1 healthy / 1 unhealthy", m)
	}
	if !m.Running {
		t.Fatal("metrics should report the registry as running")
	}
	if tm := m.AgentTypes[string(domain.AgentTypeCandidate)]; tm.Count != 1 || tm.Healthy != 1 {
		t.Fatalf("candidate type metrics = %+v", tm)
	}
}

func TestRegistry_StopShutsDownAll(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	r := NewRegistry(logger)
	r.Start()

	ctx := context.Background()
	a := newFakeAgent(domain.AgentTypeCandidate, "cand")
	b := newFakeAgent(domain.AgentTypeEmployer, "emp")
	b.failShutdown = true
	if _, err := r.RegisterAgent(ctx, a); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.RegisterAgent(ctx, b); err != nil {
		t.Fatalf("register: %v", err)
	}

	r.Stop(ctx)
	if _, shutdowns := a.counts(); shutdowns != 1 {
		t.Fatal("stop did not shut down the first agent despite the second failing")
	}
	if n := r.AgentCount(); n != 0 {
		t.Fatalf("registry still holds %d agents after stop", n)
	}
	// Stop is idempotent.
	r.Stop(ctx)
}
