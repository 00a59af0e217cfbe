package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRatingStore persists ratings in Postgres.
type PostgresRatingStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRatingStore creates a store backed by Postgres.
func NewPostgresRatingStore(pool *pgxpool.Pool) *PostgresRatingStore {
	return &PostgresRatingStore{pool: pool}
}

const ratingColumns = `id::text, resource_id::text, user_id, value, feedback,
	helpful_count, status, created_at, updated_at`

func (s *PostgresRatingStore) Upsert(ctx context.Context, p UpsertParams) (Rating, bool, error) {
	if err := p.validate(); err != nil {
		return Rating{}, false, err
	}

	const q = `
INSERT INTO ratings (resource_id, user_id, value, feedback)
VALUES ($1, $2, $3, $4)
ON CONFLICT (resource_id, user_id) DO UPDATE SET
  value = EXCLUDED.value,
  feedback = EXCLUDED.feedback,
  updated_at = now()
RETURNING ` + ratingColumns + `, (xmax = 0) AS inserted;
`
	var r Rating
	var inserted bool
	err := s.pool.QueryRow(ctx, q, p.ResourceID, p.UserID, p.Value, p.Feedback).Scan(
		&r.ID, &r.ResourceID, &r.UserID, &r.Value, &r.Feedback,
		&r.HelpfulCount, &r.Status, &r.CreatedAt, &r.UpdatedAt, &inserted)
	if err != nil {
		return Rating{}, false, mapPgError(err)
	}
	return r, inserted, nil
}

func (s *PostgresRatingStore) ToggleHelpful(ctx context.Context, ratingID, userID string) (Rating, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Rating{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Record-level lock for the read-modify-write on the vote set.
	var id string
	if err := tx.QueryRow(ctx, `SELECT id::text FROM ratings WHERE id = $1 FOR UPDATE`, ratingID).Scan(&id); err != nil {
		return Rating{}, mapPgError(err)
	}

	ct, err := tx.Exec(ctx, `DELETE FROM rating_helpful_votes WHERE rating_id = $1 AND user_id = $2`, ratingID, userID)
	if err != nil {
		return Rating{}, err
	}
	if ct.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx, `INSERT INTO rating_helpful_votes (rating_id, user_id) VALUES ($1, $2)`, ratingID, userID); err != nil {
			return Rating{}, err
		}
	}

	// helpful_count is always re-derived from the vote set, never incremented.
	const recount = `
UPDATE ratings SET helpful_count =
  (SELECT count(*) FROM rating_helpful_votes WHERE rating_id = $1)
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, recount, ratingID); err != nil {
		return Rating{}, err
	}

	r, err := findRatingTx(ctx, tx, ratingID)
	if err != nil {
		return Rating{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Rating{}, err
	}
	return r, nil
}

func (s *PostgresRatingStore) Report(ctx context.Context, ratingID, userID, reason string) (Rating, bool, error) {
	if reason == "" {
		reason = DefaultReportReason
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Rating{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status RatingStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM ratings WHERE id = $1 FOR UPDATE`, ratingID).Scan(&status); err != nil {
		return Rating{}, false, mapPgError(err)
	}

	ct, err := tx.Exec(ctx, `
INSERT INTO rating_reports (rating_id, user_id, reason)
VALUES ($1, $2, $3)
ON CONFLICT (rating_id, user_id) DO NOTHING;
`, ratingID, userID, reason)
	if err != nil {
		return Rating{}, false, err
	}

	hiddenNow := false
	if ct.RowsAffected() > 0 {
		var reports int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM rating_reports WHERE rating_id = $1`, ratingID).Scan(&reports); err != nil {
			return Rating{}, false, err
		}
		if status == StatusActive && reports >= ReportThreshold {
			if _, err := tx.Exec(ctx, `UPDATE ratings SET status = $2 WHERE id = $1`, ratingID, StatusHidden); err != nil {
				return Rating{}, false, err
			}
			hiddenNow = true
		}
	}

	r, err := findRatingTx(ctx, tx, ratingID)
	if err != nil {
		return Rating{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Rating{}, false, err
	}
	return r, hiddenNow, nil
}

func (s *PostgresRatingStore) FindByID(ctx context.Context, ratingID string) (Rating, error) {
	const q = `SELECT ` + ratingColumns + ` FROM ratings WHERE id = $1`
	rows, err := s.pool.Query(ctx, q, ratingID)
	if err != nil {
		return Rating{}, mapPgError(err)
	}
	ratings, err := collectRatings(rows)
	if err != nil {
		return Rating{}, mapPgError(err)
	}
	if len(ratings) == 0 {
		return Rating{}, ErrNotFound
	}
	if err := s.attach(ctx, ratings); err != nil {
		return Rating{}, err
	}
	return ratings[0], nil
}

func (s *PostgresRatingStore) FindByResource(ctx context.Context, resourceID string) ([]Rating, error) {
	const q = `SELECT ` + ratingColumns + ` FROM ratings WHERE resource_id = $1 ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, q, resourceID)
	if err != nil {
		return nil, mapPgError(err)
	}
	ratings, err := collectRatings(rows)
	if err != nil {
		return nil, mapPgError(err)
	}
	if err := s.attach(ctx, ratings); err != nil {
		return nil, err
	}
	return ratings, nil
}

// attach loads helpful votes and reports for the given ratings in two
// batched queries.
func (s *PostgresRatingStore) attach(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	ids := make([]string, len(ratings))
	index := make(map[string]*Rating, len(ratings))
	for i := range ratings {
		ids[i] = ratings[i].ID
		index[ratings[i].ID] = &ratings[i]
	}

	voteRows, err := s.pool.Query(ctx, `
SELECT rating_id::text, user_id, created_at
FROM rating_helpful_votes
WHERE rating_id = ANY($1)
ORDER BY created_at;
`, ids)
	if err != nil {
		return err
	}
	defer voteRows.Close()
	for voteRows.Next() {
		var rid string
		var v HelpfulVote
		if err := voteRows.Scan(&rid, &v.UserID, &v.CreatedAt); err != nil {
			return err
		}
		if r := index[rid]; r != nil {
			r.HelpfulVotes = append(r.HelpfulVotes, v)
		}
	}
	if err := voteRows.Err(); err != nil {
		return err
	}

	reportRows, err := s.pool.Query(ctx, `
SELECT rating_id::text, user_id, reason, created_at
FROM rating_reports
WHERE rating_id = ANY($1)
ORDER BY created_at;
`, ids)
	if err != nil {
		return err
	}
	defer reportRows.Close()
	for reportRows.Next() {
		var rid string
		var rep Report
		if err := reportRows.Scan(&rid, &rep.UserID, &rep.Reason, &rep.CreatedAt); err != nil {
			return err
		}
		if r := index[rid]; r != nil {
			r.Reports = append(r.Reports, rep)
		}
	}
	return reportRows.Err()
}

func findRatingTx(ctx context.Context, tx pgx.Tx, ratingID string) (Rating, error) {
	const q = `SELECT ` + ratingColumns + ` FROM ratings WHERE id = $1`
	var r Rating
	err := tx.QueryRow(ctx, q, ratingID).Scan(
		&r.ID, &r.ResourceID, &r.UserID, &r.Value, &r.Feedback,
		&r.HelpfulCount, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Rating{}, mapPgError(err)
	}

	voteRows, err := tx.Query(ctx, `
SELECT user_id, created_at FROM rating_helpful_votes
WHERE rating_id = $1 ORDER BY created_at;
`, ratingID)
	if err != nil {
		return Rating{}, err
	}
	defer voteRows.Close()
	for voteRows.Next() {
		var v HelpfulVote
		if err := voteRows.Scan(&v.UserID, &v.CreatedAt); err != nil {
			return Rating{}, err
		}
		r.HelpfulVotes = append(r.HelpfulVotes, v)
	}
	if err := voteRows.Err(); err != nil {
		return Rating{}, err
	}

	reportRows, err := tx.Query(ctx, `
SELECT user_id, reason, created_at FROM rating_reports
WHERE rating_id = $1 ORDER BY created_at;
`, ratingID)
	if err != nil {
		return Rating{}, err
	}
	defer reportRows.Close()
	for reportRows.Next() {
		var rep Report
		if err := reportRows.Scan(&rep.UserID, &rep.Reason, &rep.CreatedAt); err != nil {
			return Rating{}, err
		}
		r.Reports = append(r.Reports, rep)
	}
	return r, reportRows.Err()
}

func collectRatings(rows pgx.Rows) ([]Rating, error) {
	defer rows.Close()
	ratings := []Rating{}
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.ID, &r.ResourceID, &r.UserID, &r.Value, &r.Feedback,
			&r.HelpfulCount, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// mapPgError converts driver errors into store sentinels: no rows and
// references to nonexistent or malformed ids all surface as ErrNotFound.
func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return ErrNotFound
		case "22P02": // invalid_text_representation (malformed uuid)
			return ErrNotFound
		}
	}
	return err
}
