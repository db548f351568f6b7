package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/domain"
)

const defaultAgentMaxRetries = 3

// Context carries the domain coordinates of the work an agent is currently
// doing, filled in from event payloads.
type Context struct {
	SessionID   string         `json:"session_id"`
	UserID      string         `json:"user_id,omitempty"`
	VacancyID   string         `json:"vacancy_id,omitempty"`
	CandidateID string         `json:"candidate_id,omitempty"`
	ResponseID  string         `json:"response_id,omitempty"`
	Language    string         `json:"language"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// State is an agent's mutable runtime state: status, working context,
// conversation memory, cached analysis results and metric counters. It is
// mutated only by its owning agent; the mutex exists so the registry and the
// API layer can read snapshots concurrently.
type State struct {
	mu sync.RWMutex

	agentID   uuid.UUID
	agentType domain.AgentType
	status    domain.AgentStatus
	context   Context

	conversation    []domain.ConversationMessage
	analysisResults map[string]any
	metrics         map[string]float64

	currentTask  string
	errorMessage string
	retryCount   int
	maxRetries   int

	createdAt    time.Time
	updatedAt    time.Time
	lastActivity time.Time
}

func NewState(agentID uuid.UUID, agentType domain.AgentType) *State {
	now := time.Now().UTC()
	return &State{
		agentID:   agentID,
		agentType: agentType,
		status:    domain.StatusIdle,
		context: Context{
			SessionID: uuid.NewString(),
			Language:  "en",
			Metadata:  map[string]any{},
			CreatedAt: now,
			UpdatedAt: now,
		},
		analysisResults: make(map[string]any),
		metrics:         make(map[string]float64),
		maxRetries:      defaultAgentMaxRetries,
		createdAt:       now,
		updatedAt:       now,
		lastActivity:    now,
	}
}

func (s *State) touchLocked() {
	now := time.Now().UTC()
	s.updatedAt = now
	s.lastActivity = now
}

func (s *State) Status() domain.AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *State) SetStatus(status domain.AgentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.touchLocked()
}

func (s *State) SetTask(task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTask = task
	s.touchLocked()
}

// UpdateFromPayload folds the well-known context keys of an event payload
// into the agent's working context. Metadata merges rather than replaces.
func (s *State) UpdateFromPayload(p domain.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := p.GetString("session_id"); ok {
		s.context.SessionID = v
	}
	if v, ok := p.GetString("user_id"); ok {
		s.context.UserID = v
	}
	if v, ok := p.GetString("vacancy_id"); ok {
		s.context.VacancyID = v
	}
	if v, ok := p.GetString("candidate_id"); ok {
		s.context.CandidateID = v
	}
	if v, ok := p.GetString("response_id"); ok {
		s.context.ResponseID = v
	}
	if v, ok := p.GetString("language"); ok {
		s.context.Language = v
	}
	if md, ok := p.GetMap("metadata"); ok {
		for k, v := range md {
			s.context.Metadata[k] = v
		}
	}
	s.context.UpdatedAt = time.Now().UTC()
	s.touchLocked()
}

func (s *State) Context() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.context
	c.Metadata = copyMap(s.context.Metadata)
	return c
}

func (s *State) AddToConversation(role, content string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation, domain.ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
	s.touchLocked()
}

func (s *State) ConversationLength() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversation)
}

func (s *State) Conversation() []domain.ConversationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ConversationMessage, len(s.conversation))
	copy(out, s.conversation)
	return out
}

func (s *State) SetAnalysisResult(key string, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysisResults[key] = result
	s.touchLocked()
}

func (s *State) AnalysisResult(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.analysisResults[key]
	return v, ok
}

func (s *State) IncrementMetric(name string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[name] += delta
	s.touchLocked()
}

func (s *State) Metrics() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = v
	}
	return out
}

// SetError moves the agent into Error status and burns one of its own
// retries. Distinct from event-level retry bookkeeping on the bus.
func (s *State) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = domain.StatusError
	s.errorMessage = msg
	s.retryCount++
	s.touchLocked()
}

// ResetError returns the agent to Idle and restores its retry budget.
func (s *State) ResetError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = domain.StatusIdle
	s.errorMessage = ""
	s.retryCount = 0
	s.touchLocked()
}

// ClearError drops the stored error without restoring the retry budget.
// Used on restart so a flapping agent doesn't get an infinite budget.
func (s *State) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = domain.StatusIdle
	s.errorMessage = ""
	s.touchLocked()
}

func (s *State) CanRetry() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retryCount < s.maxRetries
}

func (s *State) RetryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retryCount
}

// Snapshot returns a JSON-friendly copy of the full state for the
// observability surface.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversation := make([]domain.ConversationMessage, len(s.conversation))
	copy(conversation, s.conversation)

	return map[string]any{
		"agent_id":   s.agentID.String(),
		"agent_type": string(s.agentType),
		"status":     string(s.status),
		"context": map[string]any{
			"session_id":   s.context.SessionID,
			"user_id":      s.context.UserID,
			"vacancy_id":   s.context.VacancyID,
			"candidate_id": s.context.CandidateID,
			"response_id":  s.context.ResponseID,
			"language":     s.context.Language,
			"metadata":     copyMap(s.context.Metadata),
			"created_at":   s.context.CreatedAt,
			"updated_at":   s.context.UpdatedAt,
		},
		"memory": map[string]any{
			"conversation_history": conversation,
			"analysis_results":     copyMap(s.analysisResults),
			"session_metrics":      s.metricsLocked(),
			"last_activity":        s.lastActivity,
		},
		"current_task":  s.currentTask,
		"error_message": s.errorMessage,
		"retry_count":   s.retryCount,
		"max_retries":   s.maxRetries,
		"created_at":    s.createdAt,
		"updated_at":    s.updatedAt,
	}
}

func (s *State) metricsLocked() map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = v
	}
	return out
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
