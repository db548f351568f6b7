package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ResponseStore struct {
	db *pgxpool.Pool
}

func NewResponseStore(db *pgxpool.Pool) *ResponseStore {
	return &ResponseStore{db: db}
}

var _ domain.ResponseStore = (*ResponseStore)(nil)

func (s *ResponseStore) Create(ctx context.Context, r *domain.Response) error {
	if r.Status == "" {
		r.Status = domain.ResponseStatusPending
	}
	if r.Language == "" {
		r.Language = "en"
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO responses (vacancy_id, candidate_id, status, language)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		r.VacancyID, r.CandidateID, r.Status, r.Language,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
}

func (s *ResponseStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Response, error) {
	r := &domain.Response{}
	err := s.db.QueryRow(ctx,
		`SELECT id, vacancy_id, candidate_id, status, analysis, score, language, created_at, updated_at
		 FROM responses WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.VacancyID, &r.CandidateID, &r.Status, &r.Analysis, &r.Score, &r.Language, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *ResponseStore) ListByVacancy(ctx context.Context, vacancyID uuid.UUID, limit int) ([]domain.Response, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, vacancy_id, candidate_id, status, analysis, score, language, created_at, updated_at
		 FROM responses WHERE vacancy_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		vacancyID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Response
	for rows.Next() {
		var r domain.Response
		if err := rows.Scan(&r.ID, &r.VacancyID, &r.CandidateID, &r.Status, &r.Analysis, &r.Score, &r.Language, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ResponseStore) UpdateAnalysis(ctx context.Context, id uuid.UUID, status domain.ResponseStatus, analysis map[string]any, score *float32) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE responses SET status = $2, analysis = $3, score = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, status, analysis, score,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
