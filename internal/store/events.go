package store

import (
	"context"
	"database/sql"
	"time"
)

// EventRow is the persisted shape of an event: identity columns plus the
// canonical contract serialized as JSON. Derived fields (links, QR) are
// never stored.
type EventRow struct {
	ID         string
	TenantID   string
	TemplateID string
	DataJSON   string
	CreatedAt  time.Time
	Slug       string
}

// AppendEvent inserts a new event row.
func (s *Store) AppendEvent(ctx context.Context, row EventRow) error {
	query := `INSERT INTO events (id, tenant_id, template_id, data_json, created_at, slug)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query, row.ID, row.TenantID, row.TemplateID,
		row.DataJSON, row.CreatedAt, row.Slug)
	return err
}

// GetEvent retrieves an event by (id, tenant). Returns (nil, nil) when no
// row matches — including when the id exists under another tenant.
func (s *Store) GetEvent(ctx context.Context, tenantID, id string) (*EventRow, error) {
	query := `SELECT id, tenant_id, template_id, data_json, created_at, slug
		FROM events WHERE id = $1 AND tenant_id = $2`

	row := &EventRow{}
	err := s.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&row.ID, &row.TenantID, &row.TemplateID, &row.DataJSON, &row.CreatedAt, &row.Slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ListEvents returns a page of the tenant's events, newest first, plus the
// total count for the pagination envelope.
func (s *Store) ListEvents(ctx context.Context, tenantID string, limit, offset int) ([]EventRow, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, tenant_id, template_id, data_json, created_at, slug
		FROM events WHERE tenant_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var row EventRow
		if err := rows.Scan(&row.ID, &row.TenantID, &row.TemplateID,
			&row.DataJSON, &row.CreatedAt, &row.Slug); err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// ListSlugs returns every slug the tenant currently uses. Called under the
// event write lock during the collision scan.
func (s *Store) ListSlugs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slug FROM events WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// UpdateEventData rewrites the stored JSON for an event. Identity columns
// never change after create.
func (s *Store) UpdateEventData(ctx context.Context, tenantID, id, dataJSON string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET data_json = $1 WHERE id = $2 AND tenant_id = $3`,
		dataJSON, id, tenantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountShortlinksForEvent reports how many shortlinks reference the event.
// Used by the admin bundle diagnostics.
func (s *Store) CountShortlinksForEvent(ctx context.Context, eventID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shortlinks WHERE event_id = $1`, eventID).Scan(&n)
	return n, err
}
