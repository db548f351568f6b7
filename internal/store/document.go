package store

import (
	"context"
	"fmt"

	"github.com/hirescreen/hirescreen/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type DocumentStore struct {
	db *pgxpool.Pool
}

func NewDocumentStore(db *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{db: db}
}

var _ domain.DocumentStore = (*DocumentStore)(nil)

func (s *DocumentStore) Create(ctx context.Context, d *domain.Document) error {
	var embedding *pgvector.Vector
	if len(d.Embedding) > 0 {
		v := pgvector.NewVector(d.Embedding)
		embedding = &v
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO documents (doc_type, text, embedding, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		d.Type, d.Text, embedding, d.Metadata,
	).Scan(&d.ID, &d.CreatedAt)
}

// Search returns documents ranked by cosine similarity to the query
// embedding. DocumentTypeAll searches across every document type.
func (s *DocumentStore) Search(ctx context.Context, embedding []float32, docType domain.DocumentType, limit int) ([]domain.DocumentWithScore, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(embedding)

	query := `SELECT id, doc_type, text, metadata, created_at,
	                 1 - (embedding <=> $1) AS score
	          FROM documents
	          WHERE embedding IS NOT NULL`
	args := []any{vec}
	if docType != "" && docType != domain.DocumentTypeAll {
		query += fmt.Sprintf(" AND doc_type = $%d", len(args)+1)
		args = append(args, docType)
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DocumentWithScore
	for rows.Next() {
		var d domain.DocumentWithScore
		if err := rows.Scan(&d.ID, &d.Type, &d.Text, &d.Metadata, &d.CreatedAt, &d.Score); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DocumentStore) Count(ctx context.Context, docType domain.DocumentType) (int, error) {
	query := `SELECT COUNT(*) FROM documents`
	args := []any{}
	if docType != "" && docType != domain.DocumentTypeAll {
		query += ` WHERE doc_type = $1`
		args = append(args, docType)
	}

	var n int
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
