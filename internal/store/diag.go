package store

import (
	"context"
	"time"
)

// DiagRow is one diagnostics entry.
type DiagRow struct {
	TS    time.Time
	Level string
	Where string
	Msg   string
	Meta  string
}

// AppendDiag inserts a diagnostics row.
func (s *Store) AppendDiag(ctx context.Context, row DiagRow) error {
	query := `INSERT INTO diag (ts, level, where_at, msg, meta) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, query, row.TS, row.Level, row.Where, row.Msg, row.Meta)
	return err
}

// DiagCount returns the total number of diagnostics rows.
func (s *Store) DiagCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diag`).Scan(&n)
	return n, err
}

// DiagCountToday returns the number of rows dated today (UTC).
func (s *Store) DiagCountToday(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM diag WHERE ts >= date_trunc('day', now() AT TIME ZONE 'utc')`).Scan(&n)
	return n, err
}

// PruneDiagOldest deletes the n oldest diagnostics rows.
func (s *Store) PruneDiagOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM diag WHERE seq IN (SELECT seq FROM diag ORDER BY seq LIMIT $1)`, n)
	return err
}

// PruneDiagTodayOldest deletes the n oldest rows dated today (UTC).
func (s *Store) PruneDiagTodayOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM diag WHERE seq IN (
			SELECT seq FROM diag
			WHERE ts >= date_trunc('day', now() AT TIME ZONE 'utc')
			ORDER BY seq LIMIT $1)`, n)
	return err
}
