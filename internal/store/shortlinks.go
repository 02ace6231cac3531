package store

import (
	"context"
	"database/sql"
	"time"
)

// ShortlinkRow is an immutable shortlink record. Tokens are 128-bit UUIDs
// and globally unique, so lookup needs no tenant qualifier.
type ShortlinkRow struct {
	Token     string
	TargetURL string
	EventID   string
	SponsorID string
	Surface   string
	CreatedAt time.Time
	TenantID  string
}

// AppendShortlink inserts a shortlink. Shortlinks are never updated.
func (s *Store) AppendShortlink(ctx context.Context, row ShortlinkRow) error {
	query := `INSERT INTO shortlinks (token, target_url, event_id, sponsor_id, surface, created_at, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, query, row.Token, row.TargetURL, row.EventID,
		row.SponsorID, row.Surface, row.CreatedAt, row.TenantID)
	return err
}

// GetShortlink retrieves a shortlink by token. Returns (nil, nil) when the
// token is unknown.
func (s *Store) GetShortlink(ctx context.Context, token string) (*ShortlinkRow, error) {
	query := `SELECT token, target_url, event_id, sponsor_id, surface, created_at, tenant_id
		FROM shortlinks WHERE token = $1`

	row := &ShortlinkRow{}
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&row.Token, &row.TargetURL, &row.EventID, &row.SponsorID,
		&row.Surface, &row.CreatedAt, &row.TenantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}
