package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vacancy is an employer's open position.
type Vacancy struct {
	ID           uuid.UUID      `json:"id"`
	EmployerID   string         `json:"employer_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Requirements string         `json:"requirements,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Candidate is an applicant profile with extracted resume text.
type Candidate struct {
	ID         uuid.UUID      `json:"id"`
	ExternalID string         `json:"external_id,omitempty"`
	Name       string         `json:"name"`
	ResumeText string         `json:"resume_text,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type ResponseStatus string

const (
	ResponseStatusPending  ResponseStatus = "pending"
	ResponseStatusAnalyzed ResponseStatus = "analyzed"
	ResponseStatusFailed   ResponseStatus = "failed"
)

// Response is one candidate's application to one vacancy. The candidate
// agent writes the analysis result and score back onto the row once its
// screening pass completes.
type Response struct {
	ID          uuid.UUID      `json:"id"`
	VacancyID   uuid.UUID      `json:"vacancy_id"`
	CandidateID uuid.UUID      `json:"candidate_id"`
	Status      ResponseStatus `json:"status"`
	Analysis    map[string]any `json:"analysis,omitempty"`
	Score       *float32       `json:"score,omitempty"`
	Language    string         `json:"language,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
