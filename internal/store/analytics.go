package store

import (
	"context"
	"strconv"
	"time"
)

// AnalyticsRow is one append-only analytics record: exactly the ten columns
// of the ANALYTICS sheet. Rows are never updated or deleted from the ingest
// path.
type AnalyticsRow struct {
	TS                time.Time
	EventID           string
	Surface           string
	Metric            string
	SponsorID         string
	Value             float64
	Token             string
	UserAgent         string
	SessionID         string
	VisibleSponsorIDs string
}

// AppendAnalytics inserts a batch of analytics rows in one transaction.
func (s *Store) AppendAnalytics(ctx context.Context, rows []AnalyticsRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO analytics (ts, event_id, surface, metric, sponsor_id, value, token, user_agent, session_id, visible_sponsor_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.TS, row.EventID, row.Surface, row.Metric,
			row.SponsorID, row.Value, row.Token, row.UserAgent, row.SessionID,
			row.VisibleSponsorIDs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ScanAnalytics returns every analytics row for an event, in append order.
func (s *Store) ScanAnalytics(ctx context.Context, eventID string) ([]AnalyticsRow, error) {
	query := `SELECT ts, event_id, surface, metric, sponsor_id, value, token, user_agent, session_id, visible_sponsor_ids
		FROM analytics WHERE event_id = $1 ORDER BY ts`

	rows, err := s.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalyticsRow
	for rows.Next() {
		var row AnalyticsRow
		if err := rows.Scan(&row.TS, &row.EventID, &row.Surface, &row.Metric,
			&row.SponsorID, &row.Value, &row.Token, &row.UserAgent,
			&row.SessionID, &row.VisibleSponsorIDs); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ScanSponsorAnalytics returns every analytics row attributed to a sponsor,
// optionally bounded by [from, to).
func (s *Store) ScanSponsorAnalytics(ctx context.Context, sponsorID string, from, to time.Time) ([]AnalyticsRow, error) {
	query := `SELECT ts, event_id, surface, metric, sponsor_id, value, token, user_agent, session_id, visible_sponsor_ids
		FROM analytics WHERE sponsor_id = $1`
	args := []interface{}{sponsorID}
	if !from.IsZero() {
		query += ` AND ts >= $` + strconv.Itoa(len(args)+1)
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND ts < $` + strconv.Itoa(len(args)+1)
		args = append(args, to)
	}
	query += ` ORDER BY ts`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalyticsRow
	for rows.Next() {
		var row AnalyticsRow
		if err := rows.Scan(&row.TS, &row.EventID, &row.Surface, &row.Metric,
			&row.SponsorID, &row.Value, &row.Token, &row.UserAgent,
			&row.SessionID, &row.VisibleSponsorIDs); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
