package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CandidateStore struct {
	db *pgxpool.Pool
}

func NewCandidateStore(db *pgxpool.Pool) *CandidateStore {
	return &CandidateStore{db: db}
}

var _ domain.CandidateStore = (*CandidateStore)(nil)

func (s *CandidateStore) Create(ctx context.Context, c *domain.Candidate) error {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO candidates (external_id, name, resume_text, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		c.ExternalID, c.Name, c.ResumeText, c.Metadata,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *CandidateStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Candidate, error) {
	c := &domain.Candidate{}
	err := s.db.QueryRow(ctx,
		`SELECT id, external_id, name, resume_text, metadata, created_at, updated_at
		 FROM candidates WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.ExternalID, &c.Name, &c.ResumeText, &c.Metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}
