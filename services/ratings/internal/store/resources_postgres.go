package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresResourceStore persists resources in Postgres.
type PostgresResourceStore struct {
	pool *pgxpool.Pool
}

// NewPostgresResourceStore creates a store backed by Postgres.
func NewPostgresResourceStore(pool *pgxpool.Pool) *PostgresResourceStore {
	return &PostgresResourceStore{pool: pool}
}

func (s *PostgresResourceStore) Create(ctx context.Context, p ResourceCreateParams) (Resource, error) {
	const q = `
INSERT INTO resources (uploader_id, title, description, file_key)
VALUES ($1, $2, $3, $4)
RETURNING id::text, uploader_id, title, description, file_key,
  average_rating, total_ratings, summary_version, created_at;
`
	var r Resource
	err := s.pool.QueryRow(ctx, q, p.UploaderID, p.Title, p.Description, p.FileKey).Scan(
		&r.ID, &r.UploaderID, &r.Title, &r.Description, &r.FileKey,
		&r.Summary.AverageRating, &r.Summary.TotalRatings, &r.SummaryVersion, &r.CreatedAt)
	if err != nil {
		return Resource{}, mapPgError(err)
	}
	return r, nil
}

func (s *PostgresResourceStore) Get(ctx context.Context, id string) (Resource, error) {
	const q = `
SELECT id::text, uploader_id, title, description, file_key,
  average_rating, total_ratings, summary_version, created_at
FROM resources WHERE id = $1;
`
	var r Resource
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&r.ID, &r.UploaderID, &r.Title, &r.Description, &r.FileKey,
		&r.Summary.AverageRating, &r.Summary.TotalRatings, &r.SummaryVersion, &r.CreatedAt)
	if err != nil {
		return Resource{}, mapPgError(err)
	}
	return r, nil
}

func (s *PostgresResourceStore) UpdateSummary(ctx context.Context, id string, sum ResourceSummary, expectedVersion int64) error {
	const q = `
UPDATE resources SET
  average_rating = $2,
  total_ratings = $3,
  summary_version = summary_version + 1
WHERE id = $1 AND summary_version = $4;
`
	ct, err := s.pool.Exec(ctx, q, id, sum.AverageRating, sum.TotalRatings, expectedVersion)
	if err != nil {
		return mapPgError(err)
	}
	if ct.RowsAffected() == 0 {
		// Distinguish a lost race from a missing resource.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}
