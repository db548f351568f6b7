package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VacancyStore struct {
	db *pgxpool.Pool
}

func NewVacancyStore(db *pgxpool.Pool) *VacancyStore {
	return &VacancyStore{db: db}
}

var _ domain.VacancyStore = (*VacancyStore)(nil)

func (s *VacancyStore) Create(ctx context.Context, v *domain.Vacancy) error {
	if v.Metadata == nil {
		v.Metadata = map[string]any{}
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO vacancies (employer_id, title, description, requirements, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		v.EmployerID, v.Title, v.Description, v.Requirements, v.Metadata,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

func (s *VacancyStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Vacancy, error) {
	v := &domain.Vacancy{}
	err := s.db.QueryRow(ctx,
		`SELECT id, employer_id, title, description, requirements, metadata, created_at, updated_at
		 FROM vacancies WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.EmployerID, &v.Title, &v.Description, &v.Requirements, &v.Metadata, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (s *VacancyStore) List(ctx context.Context, employerID string, limit int) ([]domain.Vacancy, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, employer_id, title, description, requirements, metadata, created_at, updated_at
	          FROM vacancies`
	args := []any{}
	if employerID != "" {
		query += ` WHERE employer_id = $1`
		args = append(args, employerID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Vacancy
	for rows.Next() {
		var v domain.Vacancy
		if err := rows.Scan(&v.ID, &v.EmployerID, &v.Title, &v.Description, &v.Requirements, &v.Metadata, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
