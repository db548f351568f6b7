package domain

import (
	"time"

	"github.com/google/uuid"
)

type AgentType string

const (
	AgentTypeCandidate AgentType = "candidate"
	AgentTypeEmployer  AgentType = "employer"
)

// AgentTypes lists every known agent type, for per-type metric breakdowns.
var AgentTypes = []AgentType{AgentTypeCandidate, AgentTypeEmployer}

type AgentStatus string

const (
	StatusIdle            AgentStatus = "idle"
	StatusProcessing      AgentStatus = "processing"
	StatusWaitingForInput AgentStatus = "waiting_for_input"
	StatusError           AgentStatus = "error"
	StatusCompleted       AgentStatus = "completed"
)

// AgentStatuses lists every status value, for per-status metric breakdowns.
var AgentStatuses = []AgentStatus{
	StatusIdle, StatusProcessing, StatusWaitingForInput, StatusError, StatusCompleted,
}

// EventResult is the uniform outcome of processing one event through an
// agent. ProcessEvent always returns one, success or not.
type EventResult struct {
	Success   bool      `json:"success"`
	AgentID   uuid.UUID `json:"agent_id"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationMessage is one entry of an agent's conversation history.
type ConversationMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
