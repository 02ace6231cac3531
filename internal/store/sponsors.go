package store

import "context"

// SponsorRow is a configured sponsor for a tenant.
type SponsorRow struct {
	ID       string
	TenantID string
	Name     string
	Tier     string
	LogoURL  string
	LinkURL  string
}

// ListSponsors returns every sponsor for a tenant, ordered by name.
func (s *Store) ListSponsors(ctx context.Context, tenantID string) ([]SponsorRow, error) {
	query := `SELECT id, tenant_id, name, tier, logo_url, link_url
		FROM sponsors WHERE tenant_id = $1 ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SponsorRow
	for rows.Next() {
		var row SponsorRow
		if err := rows.Scan(&row.ID, &row.TenantID, &row.Name, &row.Tier,
			&row.LogoURL, &row.LinkURL); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetSponsors resolves a set of sponsor IDs for a tenant. Unknown IDs are
// silently dropped; hydration tolerates stale references.
func (s *Store) GetSponsors(ctx context.Context, tenantID string, ids []string) ([]SponsorRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	all, err := s.ListSponsors(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []SponsorRow
	for _, row := range all {
		if want[row.ID] {
			out = append(out, row)
		}
	}
	return out, nil
}
