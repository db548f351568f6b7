package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
)

// TypeMetrics breaks one agent type down by health and status.
type TypeMetrics struct {
	Count    int            `json:"count"`
	Healthy  int            `json:"healthy"`
	Statuses map[string]int `json:"statuses"`
}

// RegistryMetrics is a snapshot of the whole registry.
type RegistryMetrics struct {
	TotalAgents     int                    `json:"total_agents"`
	HealthyAgents   int                    `json:"healthy_agents"`
	UnhealthyAgents int                    `json:"unhealthy_agents"`
	AgentTypes      map[string]TypeMetrics `json:"agent_types"`
	Running         bool                   `json:"is_running"`
	Timestamp       time.Time              `json:"timestamp"`
}

// Registry owns the set of live agents, indexed by id and by type, and keeps
// them healthy.
type Registry struct {
	logger *zap.Logger

	mu      sync.RWMutex
	agents  map[uuid.UUID]Agent
	byType  map[domain.AgentType][]uuid.UUID
	running bool
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		agents: make(map[uuid.UUID]Agent),
		byType: make(map[domain.AgentType][]uuid.UUID),
	}
}

func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.logger.Info("agent registry started")
}

// Stop shuts down every registered agent, tolerating individual failures,
// and clears both indices.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	agents := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.agents = make(map[uuid.UUID]Agent)
	r.byType = make(map[domain.AgentType][]uuid.UUID)
	r.mu.Unlock()

	for _, a := range agents {
		if err := a.Shutdown(ctx); err != nil {
			r.logger.Error("agent shutdown failed",
				zap.String("agent_id", a.ID().String()),
				zap.Error(err))
		}
	}
	r.logger.Info("agent registry stopped", zap.Int("agents_shut_down", len(agents)))
}

// RegisterAgent initializes the agent and, on success, stores it under its
// id and type. An Initialize failure leaves the registry untouched.
func (r *Registry) RegisterAgent(ctx context.Context, a Agent) (uuid.UUID, error) {
	if err := a.Initialize(ctx); err != nil {
		r.logger.Error("agent registration failed",
			zap.String("agent_name", a.Name()),
			zap.Error(err))
		return uuid.Nil, fmt.Errorf("initialize agent %s: %w", a.Name(), err)
	}

	r.mu.Lock()
	r.agents[a.ID()] = a
	r.byType[a.Type()] = append(r.byType[a.Type()], a.ID())
	r.mu.Unlock()

	r.logger.Info("agent registered",
		zap.String("agent_name", a.Name()),
		zap.String("agent_id", a.ID().String()),
		zap.String("agent_type", string(a.Type())))
	return a.ID(), nil
}

// UnregisterAgent shuts the agent down and removes it from both indices.
// Returns false, not an error, when the id is unknown.
func (r *Registry) UnregisterAgent(ctx context.Context, agentID uuid.UUID) bool {
	r.mu.Lock()
	a, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("unregister of unknown agent", zap.String("agent_id", agentID.String()))
		return false
	}
	delete(r.agents, agentID)
	ids := r.byType[a.Type()]
	for i, id := range ids {
		if id == agentID {
			r.byType[a.Type()] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if err := a.Shutdown(ctx); err != nil {
		r.logger.Error("agent shutdown during unregister failed",
			zap.String("agent_id", agentID.String()),
			zap.Error(err))
	}

	r.logger.Info("agent unregistered",
		zap.String("agent_name", a.Name()),
		zap.String("agent_id", agentID.String()))
	return true
}

func (r *Registry) GetAgent(agentID uuid.UUID) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	return a, ok
}

func (r *Registry) GetAgentsByType(agentType domain.AgentType) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byType[agentType]
	out := make([]Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) GetAllAgents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

func (r *Registry) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) AgentCountByType(agentType domain.AgentType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[agentType])
}

// BroadcastEvent delivers an event directly to every agent, bypassing the
// bus. Per-agent failures are logged and do not stop the broadcast.
func (r *Registry) BroadcastEvent(ctx context.Context, event *domain.Event) {
	for _, a := range r.GetAllAgents() {
		r.deliverDirect(ctx, a, event)
	}
}

// BroadcastToType delivers an event directly to every agent of one type.
func (r *Registry) BroadcastToType(ctx context.Context, event *domain.Event, agentType domain.AgentType) {
	for _, a := range r.GetAgentsByType(agentType) {
		r.deliverDirect(ctx, a, event)
	}
}

func (r *Registry) deliverDirect(ctx context.Context, a Agent, event *domain.Event) {
	res := a.ProcessEvent(ctx, event)
	if !res.Success {
		r.logger.Error("broadcast delivery failed",
			zap.String("agent_id", a.ID().String()),
			zap.String("event_id", event.ID.String()),
			zap.String("error", res.Error))
	}
}

// HealthCheckAll polls each agent's health predicate. A panicking predicate
// marks that one agent unhealthy instead of failing the sweep.
func (r *Registry) HealthCheckAll() map[uuid.UUID]bool {
	status := make(map[uuid.UUID]bool)
	for _, a := range r.GetAllAgents() {
		status[a.ID()] = r.checkOne(a)
	}
	return status
}

func (r *Registry) checkOne(a Agent) (healthy bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("health check panicked",
				zap.String("agent_id", a.ID().String()),
				zap.Any("panic", rec))
			healthy = false
		}
	}()
	return a.IsHealthy()
}

// RestartUnhealthyAgents shuts down and re-initializes every unhealthy agent
// in place, keeping its id and type. Returns how many restarts succeeded; a
// failed restart is logged and the sweep continues.
func (r *Registry) RestartUnhealthyAgents(ctx context.Context) int {
	restarted := 0
	for _, a := range r.GetAllAgents() {
		if r.checkOne(a) {
			continue
		}
		r.logger.Info("restarting unhealthy agent",
			zap.String("agent_id", a.ID().String()),
			zap.String("agent_name", a.Name()))

		if err := a.Shutdown(ctx); err != nil {
			r.logger.Error("restart shutdown failed",
				zap.String("agent_id", a.ID().String()), zap.Error(err))
			continue
		}
		if err := a.Initialize(ctx); err != nil {
			r.logger.Error("restart initialize failed",
				zap.String("agent_id", a.ID().String()), zap.Error(err))
			continue
		}
		restarted++
	}
	return restarted
}

// Metrics returns registry-wide counts broken down by type and status.
func (r *Registry) Metrics() RegistryMetrics {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()

	all := r.GetAllAgents()
	healthy := 0
	for _, a := range all {
		if r.checkOne(a) {
			healthy++
		}
	}

	types := make(map[string]TypeMetrics, len(domain.AgentTypes))
	for _, at := range domain.AgentTypes {
		agents := r.GetAgentsByType(at)
		tm := TypeMetrics{Count: len(agents), Statuses: make(map[string]int, len(domain.AgentStatuses))}
		for _, st := range domain.AgentStatuses {
			tm.Statuses[string(st)] = 0
		}
		for _, a := range agents {
			if r.checkOne(a) {
				tm.Healthy++
			}
			if snap, ok := a.(interface{ State() *State }); ok {
				tm.Statuses[string(snap.State().Status())]++
			}
		}
		types[string(at)] = tm
	}

	return RegistryMetrics{
		TotalAgents:     len(all),
		HealthyAgents:   healthy,
		UnhealthyAgents: len(all) - healthy,
		AgentTypes:      types,
		Running:         running,
		Timestamp:       time.Now().UTC(),
	}
}

// AgentMetrics returns one agent's metrics, or nil when unknown.
func (r *Registry) AgentMetrics(agentID uuid.UUID) map[string]any {
	a, ok := r.GetAgent(agentID)
	if !ok {
		return nil
	}
	return a.Metrics()
}

// AllAgentMetrics returns every agent's metrics keyed by id.
func (r *Registry) AllAgentMetrics() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, a := range r.GetAllAgents() {
		out[a.ID().String()] = a.Metrics()
	}
	return out
}
