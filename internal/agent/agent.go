package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/bus"
	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
)

const defaultHealthCheckInterval = 30 * time.Second

// Agent is a long-lived unit of processing managed uniformly by the registry
// and the bus. Implementations embed BaseAgent and supply the event handler.
type Agent interface {
	ID() uuid.UUID
	Type() domain.AgentType
	Name() string

	// Initialize performs one-time setup and must succeed before the agent
	// is considered live. Safe to call again after Shutdown.
	Initialize(ctx context.Context) error
	// Shutdown releases resources. Calling it on an already-stopped agent is
	// a no-op.
	Shutdown(ctx context.Context) error

	// ProcessEvent runs one event through the agent and always returns a
	// structured result; it never panics past this boundary.
	ProcessEvent(ctx context.Context, event *domain.Event) *domain.EventResult

	IsHealthy() bool
	Metrics() map[string]any
	StateSnapshot() map[string]any
}

// EventHandler is the agent-specific business logic behind ProcessEvent.
type EventHandler func(ctx context.Context, event *domain.Event) (any, error)

// BaseAgent carries the lifecycle, state and health-check plumbing shared by
// every concrete agent.
type BaseAgent struct {
	id        uuid.UUID
	agentType domain.AgentType
	name      string

	eventBus *bus.Bus
	logger   *zap.Logger
	state    *State

	subscriptions []domain.EventType
	handle        EventHandler

	healthInterval time.Duration

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewBaseAgent(agentType domain.AgentType, name string, subscriptions []domain.EventType, eventBus *bus.Bus, logger *zap.Logger) *BaseAgent {
	id := uuid.New()
	return &BaseAgent{
		id:             id,
		agentType:      agentType,
		name:           name,
		eventBus:       eventBus,
		logger:         logger.With(zap.String("agent", name), zap.String("agent_id", id.String())),
		state:          NewState(id, agentType),
		subscriptions:  subscriptions,
		healthInterval: defaultHealthCheckInterval,
	}
}

func (a *BaseAgent) ID() uuid.UUID          { return a.id }
func (a *BaseAgent) Type() domain.AgentType { return a.agentType }
func (a *BaseAgent) Name() string           { return a.name }
func (a *BaseAgent) State() *State          { return a.state }

// SetHealthCheckInterval overrides the cadence of the agent's own
// health-check event emission.
func (a *BaseAgent) SetHealthCheckInterval(d time.Duration) {
	a.healthInterval = d
}

// Initialize subscribes the agent to its event types and starts its periodic
// health-check emission. A second Initialize on a running agent is a no-op.
func (a *BaseAgent) Initialize(_ context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	if a.handle == nil {
		return fmt.Errorf("agent %s: no event handler configured", a.name)
	}

	a.eventBus.Subscribe(a.id, a.subscriptions, func(ctx context.Context, event *domain.Event) (any, error) {
		// ProcessEvent absorbs business failures; the bus only retries when
		// a handler genuinely blows up.
		return a.ProcessEvent(ctx, event), nil
	})

	a.running = true
	a.stopCh = make(chan struct{})
	a.wg.Add(1)
	go a.healthCheckLoop(a.stopCh)

	a.state.ClearError()
	a.logger.Info("agent initialized")
	return nil
}

// Shutdown stops the health-check loop and unsubscribes from the bus.
func (a *BaseAgent) Shutdown(_ context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	close(a.stopCh)
	a.wg.Wait()

	a.eventBus.Unsubscribe(a.id, a.subscriptions)
	a.state.SetStatus(domain.StatusIdle)
	a.logger.Info("agent shut down")
	return nil
}

// ProcessEvent is the uniform entry point for event delivery: it tracks
// status transitions, folds the payload into the agent context, delegates to
// the concrete handler and converts any failure (including panics) into a
// structured unsuccessful result.
func (a *BaseAgent) ProcessEvent(ctx context.Context, event *domain.Event) *domain.EventResult {
	a.state.SetStatus(domain.StatusProcessing)
	a.state.SetTask(fmt.Sprintf("processing %s", event.Type))
	a.state.UpdateFromPayload(event.Payload)

	result, err := a.invokeHandler(ctx, event)
	now := time.Now().UTC()

	if err != nil {
		a.logger.Error("event processing failed",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		a.state.SetError(err.Error())
		a.state.IncrementMetric("errors", 1)
		return &domain.EventResult{
			Success:   false,
			AgentID:   a.id,
			Error:     err.Error(),
			Timestamp: now,
		}
	}

	a.state.SetTask("")
	a.state.ResetError()
	a.state.IncrementMetric("events_processed", 1)

	return &domain.EventResult{
		Success:   true,
		AgentID:   a.id,
		Result:    result,
		Timestamp: now,
	}
}

func (a *BaseAgent) invokeHandler(ctx context.Context, event *domain.Event) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return a.handle(ctx, event)
}

// IsHealthy is true unless the agent sits in Error status with its retry
// budget spent.
func (a *BaseAgent) IsHealthy() bool {
	return a.state.Status() != domain.StatusError || a.state.CanRetry()
}

func (a *BaseAgent) Metrics() map[string]any {
	return map[string]any{
		"agent_id":            a.id.String(),
		"agent_name":          a.name,
		"agent_type":          string(a.agentType),
		"status":              string(a.state.Status()),
		"session_metrics":     a.state.Metrics(),
		"conversation_length": a.state.ConversationLength(),
		"error_count":         a.state.RetryCount(),
	}
}

func (a *BaseAgent) StateSnapshot() map[string]any {
	return a.state.Snapshot()
}

func (a *BaseAgent) healthCheckLoop(stopCh <-chan struct{}) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			a.emitHealthCheck()
		}
	}
}

func (a *BaseAgent) emitHealthCheck() {
	if a.state.Status() == domain.StatusError && !a.state.CanRetry() {
		a.logger.Warn("agent in error state with retries exhausted")
		return
	}

	a.eventBus.PublishSimple(domain.EventAgentHealthCheck, domain.Payload{
		"agent_id":   a.id.String(),
		"agent_name": a.name,
		"status":     string(a.state.Status()),
		"metrics":    a.state.Metrics(),
	}, a.id, uuid.Nil, 0, "")
}
