package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/bus"
	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
)

const defaultMonitorInterval = 30 * time.Second

var (
	ErrUnknownRequestType = errors.New("unknown employer request type")
	ErrAnalysisNotFound   = errors.New("analysis not found")
	ErrAgentNotFound      = errors.New("agent not found")
)

// EmployerRequestType names the employer actions the orchestrator accepts.
type EmployerRequestType string

const (
	RequestViewCandidate   EmployerRequestType = "view_candidate"
	RequestVacancyAnalysis EmployerRequestType = "request_analysis"
	RequestChat            EmployerRequestType = "chat_request"
)

var employerEventFor = map[EmployerRequestType]domain.EventType{
	RequestViewCandidate:   domain.EventEmployerViewedCandidate,
	RequestVacancyAnalysis: domain.EventEmployerRequestedAnalysis,
	RequestChat:            domain.EventEmployerChatRequested,
}

// Deps are the external capabilities the orchestrator hands its agents.
type Deps struct {
	LLM        domain.LLMClient
	Retrieval  domain.RetrievalClient
	Vacancies  domain.VacancyStore
	Candidates domain.CandidateStore
	Responses  domain.ResponseStore
}

// Orchestrator is the single entry point for the agent system: it owns the
// bus and the registry, spawns the candidate and employer agents, exposes
// the request API and keeps a monitoring loop that restarts dead agents.
type Orchestrator struct {
	logger   *zap.Logger
	eventBus *bus.Bus
	registry *Registry
	deps     Deps

	monitorInterval     time.Duration
	healthCheckInterval time.Duration

	// monitorID subscribes the orchestrator itself to notification events
	// (health checks, feedback/insight readiness) so they always have a
	// consumer on the bus.
	monitorID uuid.UUID

	healthMu    sync.Mutex
	lastHealth  map[string]time.Time
	eventCounts map[domain.EventType]int64

	applicationsAccepted atomic.Int64
	employerRequests     atomic.Int64

	runMu     sync.Mutex
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	startedAt time.Time
}

var monitorEventTypes = []domain.EventType{
	domain.EventSystemStartup,
	domain.EventSystemShutdown,
	domain.EventAgentHealthCheck,
	domain.EventCandidateFeedbackReady,
	domain.EventEmployerAnalysisReady,
}

func NewOrchestrator(logger *zap.Logger, deps Deps) *Orchestrator {
	return &Orchestrator{
		logger:          logger,
		eventBus:        bus.New(logger),
		registry:        NewRegistry(logger),
		deps:            deps,
		monitorInterval: defaultMonitorInterval,
		monitorID:       uuid.New(),
		lastHealth:      make(map[string]time.Time),
		eventCounts:     make(map[domain.EventType]int64),
	}
}

// SetMonitorInterval overrides the health-monitoring cadence.
func (o *Orchestrator) SetMonitorInterval(d time.Duration) {
	o.monitorInterval = d
}

// SetHealthCheckInterval sets the health-check emission cadence applied to
// agents created by Start. Zero keeps the agents' default.
func (o *Orchestrator) SetHealthCheckInterval(d time.Duration) {
	o.healthCheckInterval = d
}

func (o *Orchestrator) Bus() *bus.Bus       { return o.eventBus }
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Start brings up the bus, the registry and one agent per type, announces
// system startup on the bus and begins health monitoring.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.running {
		return nil
	}

	o.eventBus.Start()
	o.registry.Start()
	o.eventBus.Subscribe(o.monitorID, monitorEventTypes, o.handleMonitorEvent)

	candidate := NewCandidateAgent(o.eventBus, o.logger, o.deps.LLM, o.deps.Retrieval, o.deps.Vacancies, o.deps.Candidates, o.deps.Responses)
	employer := NewEmployerAgent(o.eventBus, o.logger, o.deps.LLM, o.deps.Retrieval, o.deps.Vacancies, o.deps.Responses)

	if o.healthCheckInterval > 0 {
		candidate.SetHealthCheckInterval(o.healthCheckInterval)
		employer.SetHealthCheckInterval(o.healthCheckInterval)
	}

	if _, err := o.registry.RegisterAgent(ctx, candidate); err != nil {
		o.abortStart(ctx)
		return fmt.Errorf("register candidate agent: %w", err)
	}
	if _, err := o.registry.RegisterAgent(ctx, employer); err != nil {
		o.abortStart(ctx)
		return fmt.Errorf("register employer agent: %w", err)
	}

	o.eventBus.PublishSimple(domain.EventSystemStartup, domain.Payload{
		"agent_count": o.registry.AgentCount(),
	}, uuid.Nil, uuid.Nil, 0, "")

	o.running = true
	o.startedAt = time.Now().UTC()
	o.stopCh = make(chan struct{})
	o.wg.Add(1)
	go o.monitorLoop(o.stopCh)

	o.logger.Info("orchestrator started",
		zap.Int("agents", o.registry.AgentCount()),
		zap.Duration("monitor_interval", o.monitorInterval))
	return nil
}

// abortStart unwinds a partially started orchestrator: any agent that did
// register is shut down with the registry, then the bus stops.
func (o *Orchestrator) abortStart(ctx context.Context) {
	o.registry.Stop(ctx)
	o.eventBus.Unsubscribe(o.monitorID, monitorEventTypes)
	o.eventBus.Stop()
}

// Stop announces shutdown, stops monitoring, then tears down agents and the
// bus in that order so in-flight events drain through live agents first.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if !o.running {
		return
	}
	o.running = false

	o.registry.BroadcastEvent(ctx, domain.NewEvent(domain.EventSystemShutdown, domain.Payload{}, 0))

	close(o.stopCh)
	o.wg.Wait()

	o.registry.Stop(ctx)
	o.eventBus.Unsubscribe(o.monitorID, monitorEventTypes)
	o.eventBus.Stop()
	o.logger.Info("orchestrator stopped")
}

// handleMonitorEvent consumes notification events. Health checks update the
// last-seen map; everything else is just counted.
func (o *Orchestrator) handleMonitorEvent(_ context.Context, event *domain.Event) (any, error) {
	o.healthMu.Lock()
	defer o.healthMu.Unlock()
	o.eventCounts[event.Type]++
	if event.Type == domain.EventAgentHealthCheck {
		if id, ok := event.Payload.GetString("agent_id"); ok {
			o.lastHealth[id] = event.Timestamp
		}
	}
	return map[string]any{"observed": true}, nil
}

func (o *Orchestrator) monitorLoop(stopCh <-chan struct{}) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			restarted := o.registry.RestartUnhealthyAgents(context.Background())
			metrics := o.eventBus.GetMetrics()
			if restarted > 0 || metrics.DLQSize > 0 {
				o.logger.Warn("system monitor",
					zap.Int("agents_restarted", restarted),
					zap.Int("dlq_size", metrics.DLQSize),
					zap.Int("queue_size", metrics.QueueSize))
			}
		}
	}
}

// ProcessCandidateApplication kicks off screening for one candidate
// response. The event carries high priority so applications are analyzed
// ahead of employer-side traffic.
func (o *Orchestrator) ProcessCandidateApplication(responseID, vacancyID, candidateID uuid.UUID, language string) *domain.Event {
	correlationID := uuid.NewString()
	event := o.eventBus.PublishSimple(domain.EventCandidateApplied, domain.Payload{
		"response_id":  responseID.String(),
		"vacancy_id":   vacancyID.String(),
		"candidate_id": candidateID.String(),
		"language":     language,
	}, uuid.Nil, uuid.Nil, 5, correlationID)

	o.applicationsAccepted.Add(1)
	o.logger.Info("candidate application accepted",
		zap.String("response_id", responseID.String()),
		zap.String("correlation_id", correlationID))
	return event
}

// ProcessEmployerRequest translates an employer action into its event and
// publishes it at standard priority. Unknown request types fail fast.
func (o *Orchestrator) ProcessEmployerRequest(requestType EmployerRequestType, payload domain.Payload) (*domain.Event, error) {
	eventType, ok := employerEventFor[requestType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequestType, requestType)
	}
	if payload == nil {
		payload = domain.Payload{}
	}
	event := o.eventBus.PublishSimple(eventType, payload, uuid.Nil, uuid.Nil, 3, uuid.NewString())
	o.employerRequests.Add(1)
	return event, nil
}

// GetCandidateAnalysis returns the cached analysis for one response, looked
// up in the candidate agents' working memory.
func (o *Orchestrator) GetCandidateAnalysis(responseID uuid.UUID) (map[string]any, error) {
	return o.lookupAnalysis(domain.AgentTypeCandidate, "analysis_"+responseID.String())
}

// GetEmployerInsights returns the cached vacancy insights, looked up in the
// employer agents' working memory.
func (o *Orchestrator) GetEmployerInsights(vacancyID uuid.UUID) (map[string]any, error) {
	return o.lookupAnalysis(domain.AgentTypeEmployer, "insights_"+vacancyID.String())
}

func (o *Orchestrator) lookupAnalysis(agentType domain.AgentType, key string) (map[string]any, error) {
	for _, a := range o.registry.GetAgentsByType(agentType) {
		ba, ok := a.(interface{ State() *State })
		if !ok {
			continue
		}
		if result, found := ba.State().AnalysisResult(key); found {
			m, ok := result.(map[string]any)
			if !ok {
				return map[string]any{"result": result}, nil
			}
			return m, nil
		}
	}
	return nil, ErrAnalysisNotFound
}

// RestartAgent force-restarts one agent regardless of its health.
func (o *Orchestrator) RestartAgent(ctx context.Context, agentID uuid.UUID) error {
	a, ok := o.registry.GetAgent(agentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if err := a.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown agent %s: %w", agentID, err)
	}
	if err := a.Initialize(ctx); err != nil {
		return fmt.Errorf("reinitialize agent %s: %w", agentID, err)
	}
	o.logger.Info("agent restarted", zap.String("agent_id", agentID.String()))
	return nil
}

// AgentMetrics returns one agent's metrics.
func (o *Orchestrator) AgentMetrics(agentID uuid.UUID) (map[string]any, error) {
	m := o.registry.AgentMetrics(agentID)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return m, nil
}

// AllAgentMetrics returns every agent's metrics keyed by agent id.
func (o *Orchestrator) AllAgentMetrics() map[string]map[string]any {
	return o.registry.AllAgentMetrics()
}

// SystemMetrics aggregates bus, registry and uptime into one snapshot.
func (o *Orchestrator) SystemMetrics() map[string]any {
	o.runMu.Lock()
	running := o.running
	startedAt := o.startedAt
	o.runMu.Unlock()

	uptime := time.Duration(0)
	if running {
		uptime = time.Since(startedAt)
	}

	o.healthMu.Lock()
	lastHealth := make(map[string]time.Time, len(o.lastHealth))
	for k, v := range o.lastHealth {
		lastHealth[k] = v
	}
	observed := make(map[string]int64, len(o.eventCounts))
	for k, v := range o.eventCounts {
		observed[string(k)] = v
	}
	o.healthMu.Unlock()

	return map[string]any{
		"is_running":            running,
		"uptime_seconds":        uptime.Seconds(),
		"applications_accepted": o.applicationsAccepted.Load(),
		"employer_requests":     o.employerRequests.Load(),
		"event_bus":             o.eventBus.GetMetrics(),
		"registry":              o.registry.Metrics(),
		"last_health_reports":   lastHealth,
		"observed_events":       observed,
		"timestamp":             time.Now().UTC(),
	}
}
