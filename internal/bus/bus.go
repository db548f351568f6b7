package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	maxRetryBackoff     = 60 * time.Second
)

// HandlerFunc receives one event and returns the handler's result. A
// returned error (or a panic, which the bus recovers) counts as a delivery
// failure and triggers the retry path.
type HandlerFunc func(ctx context.Context, event *domain.Event) (any, error)

// Metrics is a point-in-time snapshot of bus counters and queue depths.
type Metrics struct {
	EventsProcessed    int64                  `json:"events_processed"`
	EventsFailed       int64                  `json:"events_failed"`
	EventsRetried      int64                  `json:"events_retried"`
	EventsDeadLettered int64                  `json:"events_dlq"`
	QueueSize          int                    `json:"queue_size"`
	DLQSize            int                    `json:"dlq_size"`
	Subscribers        map[string][]uuid.UUID `json:"subscribers"`
}

// Bus routes events to subscribed agents in priority order within a single
// process. Delivery to the subscribers of one event runs concurrently and is
// awaited before the next event is popped; failed deliveries are retried
// with exponential backoff and dead-lettered once the retry budget is spent.
type Bus struct {
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[domain.EventType]map[uuid.UUID]struct{}
	handlers    map[uuid.UUID]HandlerFunc
	queue       *eventQueue
	dlq         []domain.Event

	eventsProcessed    int64
	eventsFailed       int64
	eventsRetried      int64
	eventsDeadLettered int64

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	wake    chan struct{}

	pollInterval time.Duration
	backoff      func(retry int) time.Duration
	maxRetries   int
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		logger:       logger,
		subscribers:  make(map[domain.EventType]map[uuid.UUID]struct{}),
		handlers:     make(map[uuid.UUID]HandlerFunc),
		queue:        newEventQueue(),
		wake:         make(chan struct{}, 1),
		pollInterval: defaultPollInterval,
		backoff:      defaultBackoff,
		maxRetries:   domain.DefaultMaxRetries,
	}
}

// defaultBackoff returns min(2^retry, 60s).
func defaultBackoff(retry int) time.Duration {
	if retry > 5 {
		return maxRetryBackoff
	}
	d := time.Duration(1<<uint(retry)) * time.Second
	if d > maxRetryBackoff {
		d = maxRetryBackoff
	}
	return d
}

// SetBackoff overrides the retry backoff schedule.
func (b *Bus) SetBackoff(f func(retry int) time.Duration) {
	b.backoff = f
}

// SetPollInterval overrides how long the dispatch loop waits on an empty
// queue before re-checking for a stop signal.
func (b *Bus) SetPollInterval(d time.Duration) {
	b.pollInterval = d
}

// SetDefaultMaxRetries sets the retry budget applied to events built by
// PublishSimple. Values below 1 are ignored.
func (b *Bus) SetDefaultMaxRetries(n int) {
	if n < 1 {
		return
	}
	b.maxRetries = n
}

// Start begins the dispatch loop. Calling Start on a running bus is a no-op.
func (b *Bus) Start() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.wg.Add(1)
	go b.dispatchLoop(b.stopCh)
	b.logger.Info("event bus started")
}

// Stop cancels the dispatch loop and waits for the in-flight delivery to
// finish. Safe to call repeatedly and on a never-started bus.
func (b *Bus) Stop() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	close(b.stopCh)
	b.wg.Wait()
	b.logger.Info("event bus stopped")
}

// Subscribe registers handler to receive every event of the listed types.
// Re-subscribing an existing (agent, type) pair is a no-op; the handler is
// replaced either way.
func (b *Bus) Subscribe(agentID uuid.UUID, eventTypes []domain.EventType, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, et := range eventTypes {
		if b.subscribers[et] == nil {
			b.subscribers[et] = make(map[uuid.UUID]struct{})
		}
		b.subscribers[et][agentID] = struct{}{}
	}
	b.handlers[agentID] = handler

	b.logger.Info("agent subscribed",
		zap.String("agent_id", agentID.String()),
		zap.Any("event_types", eventTypes))
}

// Unsubscribe removes the agent from the listed event types. The handler is
// dropped once the agent holds no subscription of any type.
func (b *Bus) Unsubscribe(agentID uuid.UUID, eventTypes []domain.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, et := range eventTypes {
		if subs := b.subscribers[et]; subs != nil {
			delete(subs, agentID)
			if len(subs) == 0 {
				delete(b.subscribers, et)
			}
		}
	}

	for _, subs := range b.subscribers {
		if _, ok := subs[agentID]; ok {
			return
		}
	}
	delete(b.handlers, agentID)

	b.logger.Info("agent unsubscribed",
		zap.String("agent_id", agentID.String()),
		zap.Any("event_types", eventTypes))
}

// Publish enqueues the event and returns immediately. Publishing works even
// while the bus is stopped; the event waits for the next Start.
func (b *Bus) Publish(event *domain.Event) {
	b.mu.Lock()
	b.queue.push(event)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}

	b.logger.Debug("event published",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.Int("priority", event.Priority))
}

// PublishSimple builds an event from parts and publishes it.
func (b *Bus) PublishSimple(eventType domain.EventType, payload domain.Payload, sourceAgentID, targetAgentID uuid.UUID, priority int, correlationID string) *domain.Event {
	event := domain.NewEvent(eventType, payload, priority)
	event.MaxRetries = b.maxRetries
	event.SourceAgentID = sourceAgentID
	event.TargetAgentID = targetAgentID
	event.CorrelationID = correlationID
	b.Publish(event)
	return event
}

func (b *Bus) dispatchLoop(stopCh <-chan struct{}) {
	defer b.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		b.mu.Lock()
		event := b.queue.pop()
		b.mu.Unlock()

		if event == nil {
			select {
			case <-stopCh:
				return
			case <-b.wake:
			case <-time.After(b.pollInterval):
			}
			continue
		}

		b.dispatch(event)

		b.mu.Lock()
		b.eventsProcessed++
		b.mu.Unlock()
	}
}

// dispatch delivers one popped event to its subscribers and runs failure
// handling when any delivery errs.
func (b *Bus) dispatch(event *domain.Event) {
	b.mu.Lock()
	subs := b.subscribers[event.Type]
	targets := make([]uuid.UUID, 0, len(subs))
	for id := range subs {
		targets = append(targets, id)
	}
	_, targetSubscribed := subs[event.TargetAgentID]
	b.mu.Unlock()

	if len(targets) == 0 {
		b.logger.Warn("no subscribers for event type",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID.String()))
		return
	}

	if event.Targeted() {
		if !targetSubscribed {
			b.logger.Warn("target agent not subscribed to event type",
				zap.String("target_agent_id", event.TargetAgentID.String()),
				zap.String("event_type", string(event.Type)))
			return
		}
		if err := b.deliver(event, event.TargetAgentID); err != nil {
			b.handleFailure(event, err)
		}
		return
	}

	// Fan out to every subscriber and wait for all of them. A failure in one
	// delivery does not cancel the others; any failure puts the event on the
	// retry path exactly once.
	g := new(errgroup.Group)
	for _, agentID := range targets {
		agentID := agentID
		g.Go(func() error {
			return b.deliver(event, agentID)
		})
	}
	if err := g.Wait(); err != nil {
		b.handleFailure(event, err)
	}
}

// deliver invokes one subscriber's handler, converting panics into errors so
// a crashing handler cannot take down the dispatch loop.
func (b *Bus) deliver(event *domain.Event, agentID uuid.UUID) (err error) {
	b.mu.Lock()
	handler := b.handlers[agentID]
	b.mu.Unlock()

	if handler == nil {
		b.logger.Warn("no handler registered for agent", zap.String("agent_id", agentID.String()))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	if _, err = handler(context.Background(), event); err != nil {
		b.logger.Error("event delivery failed",
			zap.String("event_id", event.ID.String()),
			zap.String("agent_id", agentID.String()),
			zap.Error(err))
		return err
	}

	b.logger.Debug("event delivered",
		zap.String("event_id", event.ID.String()),
		zap.String("agent_id", agentID.String()))
	return nil
}

// handleFailure schedules a retry or dead-letters the event once the budget
// is spent. The backoff sleep happens on a timer, not in the dispatch loop,
// so a slow retry never stalls other events; the retried event simply
// competes again by priority and timestamp.
func (b *Bus) handleFailure(event *domain.Event, cause error) {
	b.mu.Lock()
	b.eventsFailed++

	if event.RetryCount < event.MaxRetries {
		event.RetryCount++
		b.eventsRetried++
		delay := b.backoff(event.RetryCount)
		b.mu.Unlock()

		b.logger.Info("retrying event",
			zap.String("event_id", event.ID.String()),
			zap.Int("attempt", event.RetryCount),
			zap.Duration("backoff", delay),
			zap.Error(cause))

		time.AfterFunc(delay, func() { b.Publish(event) })
		return
	}

	b.dlq = append(b.dlq, *event)
	b.eventsDeadLettered++
	b.mu.Unlock()

	b.logger.Error("event moved to dead letter queue",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.Int("max_retries", event.MaxRetries),
		zap.Error(cause))
}

// GetMetrics returns a snapshot of bus counters, depths and subscriptions.
func (b *Bus) GetMetrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := make(map[string][]uuid.UUID, len(b.subscribers))
	for et, agents := range b.subscribers {
		ids := make([]uuid.UUID, 0, len(agents))
		for id := range agents {
			ids = append(ids, id)
		}
		subs[string(et)] = ids
	}

	return Metrics{
		EventsProcessed:    b.eventsProcessed,
		EventsFailed:       b.eventsFailed,
		EventsRetried:      b.eventsRetried,
		EventsDeadLettered: b.eventsDeadLettered,
		QueueSize:          b.queue.Len(),
		DLQSize:            len(b.dlq),
		Subscribers:        subs,
	}
}

// DeadLetterQueue returns a copy of the dead-lettered events in arrival
// order.
func (b *Bus) DeadLetterQueue() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Event, len(b.dlq))
	copy(out, b.dlq)
	return out
}

// ClearDeadLetterQueue drops all dead-lettered events and reports how many
// were dropped.
func (b *Bus) ClearDeadLetterQueue() int {
	b.mu.Lock()
	n := len(b.dlq)
	b.dlq = nil
	b.mu.Unlock()
	b.logger.Info("dead letter queue cleared", zap.Int("dropped", n))
	return n
}
