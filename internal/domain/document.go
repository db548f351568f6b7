package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType scopes knowledge-base retrieval to one corpus.
type DocumentType string

const (
	DocumentTypeAll         DocumentType = "all"
	DocumentTypeJob         DocumentType = "job"
	DocumentTypeCV          DocumentType = "cv"
	DocumentTypeHRKnowledge DocumentType = "hr_knowledge"
)

func ValidDocumentType(t string) bool {
	switch DocumentType(t) {
	case DocumentTypeAll, DocumentTypeJob, DocumentTypeCV, DocumentTypeHRKnowledge:
		return true
	}
	return false
}

// Document is one entry of the retrieval knowledge base.
type Document struct {
	ID        uuid.UUID      `json:"id"`
	Type      DocumentType   `json:"type"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

type DocumentWithScore struct {
	Document
	Score float32 `json:"score"`
}
