package service

import (
	"context"
	"fmt"

	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultRetrievalLimit = 10
	// MinRelevanceScore filters out matches whose cosine similarity is too
	// low to be useful grounding material.
	MinRelevanceScore = 0.2
)

// RetrievalService embeds queries and searches the document knowledge base.
// It backs both agent grounding and the knowledge-base HTTP API.
type RetrievalService struct {
	embedder domain.EmbeddingClient
	docs     domain.DocumentStore
	logger   *zap.Logger
}

func NewRetrievalService(embedder domain.EmbeddingClient, docs domain.DocumentStore, logger *zap.Logger) *RetrievalService {
	return &RetrievalService{
		embedder: embedder,
		docs:     docs,
		logger:   logger,
	}
}

var _ domain.RetrievalClient = (*RetrievalService)(nil)

// Retrieve returns the documents most similar to the query, scoped to one
// document type. Matches below the relevance floor are dropped.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, contextType domain.DocumentType, limit int) ([]domain.DocumentWithScore, error) {
	if limit <= 0 {
		limit = DefaultRetrievalLimit
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.docs.Search(ctx, embedding, contextType, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Score >= MinRelevanceScore {
			filtered = append(filtered, r)
		}
	}

	s.logger.Debug("retrieval completed",
		zap.String("context_type", string(contextType)),
		zap.Int("matches", len(filtered)))
	return filtered, nil
}

// AddDocument embeds the text and stores it in the knowledge base.
func (s *RetrievalService) AddDocument(ctx context.Context, docType domain.DocumentType, text string, metadata map[string]any) (*domain.Document, error) {
	if text == "" {
		return nil, fmt.Errorf("document text is empty")
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed document: %w", err)
	}

	doc := &domain.Document{
		Type:      docType,
		Text:      text,
		Metadata:  metadata,
		Embedding: embedding,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	s.logger.Info("document added",
		zap.String("document_id", doc.ID.String()),
		zap.String("doc_type", string(docType)))
	return doc, nil
}

// Stats reports document counts per type.
func (s *RetrievalService) Stats(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, dt := range []domain.DocumentType{domain.DocumentTypeJob, domain.DocumentTypeCV, domain.DocumentTypeHRKnowledge} {
		n, err := s.docs.Count(ctx, dt)
		if err != nil {
			return nil, fmt.Errorf("count %s documents: %w", dt, err)
		}
		out[string(dt)] = n
	}
	total, err := s.docs.Count(ctx, domain.DocumentTypeAll)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	out["total"] = total
	return out, nil
}
