package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// Candidate events
	EventCandidateApplied        EventType = "candidate_applied"
	EventCandidateResponded      EventType = "candidate_responded"
	EventCandidateAnalysisNeeded EventType = "candidate_analysis_needed"
	EventCandidateFeedbackReady  EventType = "candidate_feedback_ready"

	// Employer events
	EventEmployerViewedCandidate   EventType = "employer_viewed_candidate"
	EventEmployerRequestedAnalysis EventType = "employer_requested_analysis"
	EventEmployerAnalysisReady     EventType = "employer_analysis_ready"
	EventEmployerChatRequested     EventType = "employer_chat_requested"

	// System events
	EventSystemStartup    EventType = "system_startup"
	EventSystemShutdown   EventType = "system_shutdown"
	EventAgentHealthCheck EventType = "agent_health_check"
)

func ValidEventType(t string) bool {
	switch EventType(t) {
	case EventCandidateApplied, EventCandidateResponded, EventCandidateAnalysisNeeded,
		EventCandidateFeedbackReady, EventEmployerViewedCandidate, EventEmployerRequestedAnalysis,
		EventEmployerAnalysisReady, EventEmployerChatRequested, EventSystemStartup,
		EventSystemShutdown, EventAgentHealthCheck:
		return true
	}
	return false
}

// DefaultMaxRetries is the delivery retry budget for events that don't set
// their own.
const DefaultMaxRetries = 3

// Payload carries the open key-value data of an event (vacancy id, candidate
// id, free-form metadata). Values are JSON-compatible.
type Payload map[string]any

// GetString returns the payload value under key if it is a non-empty string.
func (p Payload) GetString(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok && v != ""
}

// GetMap returns the payload value under key if it is a nested map.
func (p Payload) GetMap(key string) (map[string]any, bool) {
	v, ok := p[key].(map[string]any)
	return v, ok
}

// Event is an immutable description of a domain occurrence, routed by type
// and priority. RetryCount is the only field the bus mutates.
type Event struct {
	ID            uuid.UUID `json:"event_id"`
	Type          EventType `json:"event_type"`
	SourceAgentID uuid.UUID `json:"source_agent_id,omitempty"`
	TargetAgentID uuid.UUID `json:"target_agent_id,omitempty"`
	Payload       Payload   `json:"payload"`
	Timestamp     time.Time `json:"timestamp"`
	Priority      int       `json:"priority"`
	RetryCount    int       `json:"retry_count"`
	MaxRetries    int       `json:"max_retries"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewEvent builds an event with a fresh id and timestamp and the default
// retry budget.
func NewEvent(eventType EventType, payload Payload, priority int) *Event {
	if payload == nil {
		payload = Payload{}
	}
	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
		Priority:   priority,
		MaxRetries: DefaultMaxRetries,
	}
}

// Targeted reports whether delivery is restricted to a single agent.
func (e *Event) Targeted() bool {
	return e.TargetAgentID != uuid.Nil
}
