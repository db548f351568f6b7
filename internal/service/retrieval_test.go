package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
)

// mockDocumentStore implements domain.DocumentStore for testing.
type mockDocumentStore struct {
	docs    map[uuid.UUID]*domain.Document
	results []domain.DocumentWithScore
	err     error
}

func newMockDocumentStore() *mockDocumentStore {
	return &mockDocumentStore{docs: make(map[uuid.UUID]*domain.Document)}
}

func (m *mockDocumentStore) Create(_ context.Context, d *domain.Document) error {
	if m.err != nil {
		return m.err
	}
	d.ID = uuid.New()
	m.docs[d.ID] = d
	return nil
}

func (m *mockDocumentStore) Search(_ context.Context, _ []float32, docType domain.DocumentType, limit int) ([]domain.DocumentWithScore, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.DocumentWithScore
	for _, r := range m.results {
		if docType != "" && docType != domain.DocumentTypeAll && r.Type != docType {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockDocumentStore) Count(_ context.Context, docType domain.DocumentType) (int, error) {
	if docType == "" || docType == domain.DocumentTypeAll {
		return len(m.docs), nil
	}
	n := 0
	for _, d := range m.docs {
		if d.Type == docType {
			n++
		}
	}
	return n, nil
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

func newTestRetrieval(docs *mockDocumentStore, embedder *mockEmbedder) *RetrievalService {
	return NewRetrievalService(embedder, docs, zap.NewNop())
}

func TestRetrieve_FiltersLowScores(t *testing.T) {
	docs := newMockDocumentStore()
	docs.results = []domain.DocumentWithScore{
		{Document: domain.Document{Type: domain.DocumentTypeHRKnowledge, Text: "relevant"}, Score: 0.9},
		{Document: domain.Document{Type: domain.DocumentTypeHRKnowledge, Text: "noise"}, Score: 0.05},
	}
	svc := newTestRetrieval(docs, &mockEmbedder{vec: []float32{0.1, 0.2}})

	out, err := svc.Retrieve(context.Background(), "screening rubric", domain.DocumentTypeHRKnowledge, 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(out) != 1 || out[0].Text != "relevant" {
		t.Fatalf("got %d results, want only the relevant one", len(out))
	}
}

func TestRetrieve_ScopesByType(t *testing.T) {
	docs := newMockDocumentStore()
	docs.results = []domain.DocumentWithScore{
		{Document: domain.Document{Type: domain.DocumentTypeJob, Text: "job posting"}, Score: 0.8},
		{Document: domain.Document{Type: domain.DocumentTypeCV, Text: "resume"}, Score: 0.8},
	}
	svc := newTestRetrieval(docs, &mockEmbedder{vec: []float32{0.1}})

	out, err := svc.Retrieve(context.Background(), "golang", domain.DocumentTypeJob, 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(out) != 1 || out[0].Type != domain.DocumentTypeJob {
		t.Fatalf("expected only job documents, got %+v", out)
	}
}

func TestRetrieve_EmbedderFailure(t *testing.T) {
	svc := newTestRetrieval(newMockDocumentStore(), &mockEmbedder{err: errors.New("quota exceeded")})

	if _, err := svc.Retrieve(context.Background(), "anything", domain.DocumentTypeAll, 5); err == nil {
		t.Fatal("expected error when the embedder fails")
	}
}

func TestAddDocument(t *testing.T) {
	docs := newMockDocumentStore()
	svc := newTestRetrieval(docs, &mockEmbedder{vec: []float32{0.3, 0.4}})

	doc, err := svc.AddDocument(context.Background(), domain.DocumentTypeHRKnowledge, "Interview rubric.", map[string]any{"source": "handbook"})
	if err != nil {
		t.Fatalf("add document: %v", err)
	}
	if doc.ID == uuid.Nil {
		t.Fatal("stored document has no id")
	}
	if len(doc.Embedding) != 2 {
		t.Fatalf("stored embedding has %d dims, want the embedder's output", len(doc.Embedding))
	}

	if _, err := svc.AddDocument(context.Background(), domain.DocumentTypeHRKnowledge, "", nil); err == nil {
		t.Fatal("expected error for empty document text")
	}
}

func TestStats(t *testing.T) {
	docs := newMockDocumentStore()
	svc := newTestRetrieval(docs, &mockEmbedder{vec: []float32{0.1}})

	for _, dt := range []domain.DocumentType{domain.DocumentTypeJob, domain.DocumentTypeJob, domain.DocumentTypeCV} {
		if _, err := svc.AddDocument(context.Background(), dt, "text", nil); err != nil {
			t.Fatalf("add document: %v", err)
		}
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["job"] != 2 || stats["cv"] != 1 || stats["total"] != 3 {
		t.Fatalf("stats = %v", stats)
	}
}
