package domain

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type VacancyStore interface {
	Create(ctx context.Context, v *Vacancy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Vacancy, error)
	List(ctx context.Context, employerID string, limit int) ([]Vacancy, error)
}

type CandidateStore interface {
	Create(ctx context.Context, c *Candidate) error
	GetByID(ctx context.Context, id uuid.UUID) (*Candidate, error)
}

type ResponseStore interface {
	Create(ctx context.Context, r *Response) error
	GetByID(ctx context.Context, id uuid.UUID) (*Response, error)
	ListByVacancy(ctx context.Context, vacancyID uuid.UUID, limit int) ([]Response, error)
	UpdateAnalysis(ctx context.Context, id uuid.UUID, status ResponseStatus, analysis map[string]any, score *float32) error
}

type DocumentStore interface {
	Create(ctx context.Context, d *Document) error
	Search(ctx context.Context, embedding []float32, docType DocumentType, limit int) ([]DocumentWithScore, error)
	Count(ctx context.Context, docType DocumentType) (int, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LLMClient is the opaque structured-generation capability agents call.
// GenerateStructured must return JSON conforming to the given schema.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema json.RawMessage) (json.RawMessage, error)
}

// RetrievalClient is the vector-similarity retrieval capability agents call.
type RetrievalClient interface {
	Retrieve(ctx context.Context, query string, contextType DocumentType, limit int) ([]DocumentWithScore, error)
}
