package bundle

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bracketline/eventserve/internal/analytics"
	"github.com/bracketline/eventserve/internal/cache"
	"github.com/bracketline/eventserve/internal/config"
	"github.com/bracketline/eventserve/internal/event"
	"github.com/bracketline/eventserve/internal/pkg/distlock"
	"github.com/bracketline/eventserve/internal/qr"
	"github.com/bracketline/eventserve/internal/store"
)

const testEventID = "a3bb189e-8bf9-4888-9912-ace4e6543002"

type noopLock struct{}

func (noopLock) Acquire(context.Context) (bool, error) { return true, nil }
func (noopLock) Release(context.Context) error         { return nil }

func testBundles(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		BaseURL: "https://ev.example.com/",
		QR:      config.QRConfig{BaseURL: "https://api.qrserver.com/v1/create-qr-code/"},
		Tenants: []config.Tenant{
			{ID: "root", Name: "Root League", Hostnames: []string{"localhost"},
				ScopesAllowed: []string{"events"}, Type: "parent", ChildBrands: []string{"acme"}},
		},
		Templates: []config.Template{
			{ID: "custom", Name: "Custom", Fields: []config.TemplateField{
				{ID: "description", Type: "string"},
			}},
			{ID: "tournament", Name: "Tournament", Fields: []config.TemplateField{
				{ID: "streamUrl", Type: "url"},
			}},
		},
		Display: config.DisplayConfig{
			RotationMs:   8000,
			SponsorSlots: 3,
			Layout:       config.LayoutConfig{Emphasis: "scores"},
			Overrides: map[string]config.LayoutConfig{
				"tournament": {HasSidePane: true, Emphasis: "sponsors"},
			},
		},
	}

	st := store.New(db)
	reg := config.NewRegistry(cfg)
	locks := func(string, time.Duration) distlock.DistLock { return noopLock{} }
	events := event.NewService(st, reg, cache.NewMemory(), locks, qr.Null{})

	return New(events, analytics.NewReporter(st), reg), mock
}

func testTenant() config.Tenant {
	return config.Tenant{ID: "root", Name: "Root League", Hostnames: []string{"localhost"},
		ScopesAllowed: []string{"events"}, Type: "parent", ChildBrands: []string{"acme"}}
}

func eventRows(templateID, dataJSON string) *sqlmock.Rows {
	return sqlmock.NewRows(
		[]string{"id", "tenant_id", "template_id", "data_json", "created_at", "slug"}).
		AddRow(testEventID, "root", templateID, dataJSON,
			time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC), "summer-open")
}

func expectGetEvent(mock sqlmock.Sqlmock, templateID, dataJSON string) {
	mock.ExpectQuery("SELECT id, tenant_id, template_id").
		WithArgs(testEventID, "root").
		WillReturnRows(eventRows(templateID, dataJSON))
}

func analyticsCols() []string {
	return []string{"ts", "event_id", "surface", "metric", "sponsor_id",
		"value", "token", "user_agent", "session_id", "visible_sponsor_ids"}
}

func expectEmptyAnalytics(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM analytics WHERE event_id").
		WithArgs(testEventID).
		WillReturnRows(sqlmock.NewRows(analyticsCols()))
}

const basicDoc = `{"name":"Summer Open","startDateISO":"2025-08-15","venue":"Riverside Park"}`

func TestPublic(t *testing.T) {
	svc, mock := testBundles(t)
	expectGetEvent(mock, "custom", basicDoc)

	b, etag, err := svc.Public(context.Background(), testTenant(), testEventID)
	if err != nil {
		t.Fatalf("Public: %v", err)
	}
	if b.Event.Name != "Summer Open" {
		t.Errorf("event name = %q", b.Event.Name)
	}
	if b.Config.BrandID != "root" || b.Config.AppTitle != "Root League" {
		t.Errorf("config = %+v", b.Config)
	}
	if etag != event.ETag(b) {
		t.Error("etag mismatch")
	}
}

func TestDisplay_LayoutOverride(t *testing.T) {
	svc, mock := testBundles(t)
	expectGetEvent(mock, "tournament", basicDoc)

	b, _, err := svc.Display(context.Background(), testTenant(), testEventID)
	if err != nil {
		t.Fatalf("Display: %v", err)
	}
	if b.Rotation.SponsorSlots != 3 || b.Rotation.RotationMs != 8000 {
		t.Errorf("rotation = %+v", b.Rotation)
	}
	if !b.Layout.HasSidePane || b.Layout.Emphasis != "sponsors" {
		t.Errorf("layout = %+v", b.Layout)
	}
}

func TestDisplay_DefaultLayout(t *testing.T) {
	svc, mock := testBundles(t)
	expectGetEvent(mock, "custom", basicDoc)

	b, _, err := svc.Display(context.Background(), testTenant(), testEventID)
	if err != nil {
		t.Fatalf("Display: %v", err)
	}
	if b.Layout.HasSidePane || b.Layout.Emphasis != "scores" {
		t.Errorf("layout = %+v", b.Layout)
	}
}

func TestPoster(t *testing.T) {
	svc, mock := testBundles(t)
	expectGetEvent(mock, "custom", basicDoc)

	b, _, err := svc.Poster(context.Background(), testTenant(), testEventID)
	if err != nil {
		t.Fatalf("Poster: %v", err)
	}
	if b.Print.DateLine != "Friday, August 15, 2025" {
		t.Errorf("dateLine = %q", b.Print.DateLine)
	}
	if b.Print.VenueLine != "Riverside Park" {
		t.Errorf("venueLine = %q", b.Print.VenueLine)
	}
	wantPrefix := "https://api.qrserver.com/v1/create-qr-code/?size=300x300&format=png&data="
	if len(b.QRCodes.Public) <= len(wantPrefix) || b.QRCodes.Public[:len(wantPrefix)] != wantPrefix {
		t.Errorf("qr public = %q", b.QRCodes.Public)
	}
}

func TestFormatDateLine_Fallback(t *testing.T) {
	if got := formatDateLine("not-a-date"); got != "not-a-date" {
		t.Errorf("fallback = %q", got)
	}
}

func TestSponsor(t *testing.T) {
	svc, mock := testBundles(t)

	doc := `{"name":"Summer Open","startDateISO":"2025-08-15","venue":"Park","sponsorIds":["sp-1"]}`
	expectGetEvent(mock, "custom", doc)
	mock.ExpectQuery("FROM sponsors WHERE tenant_id").
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "tenant_id", "name", "tier", "logo_url", "link_url"}).
			AddRow("sp-1", "root", "Acme Sports", "gold", "", ""))

	rows := sqlmock.NewRows(analyticsCols())
	rows.AddRow(time.Now(), testEventID, "public", "impression", "sp-1", 1.0, "", "", "", "")
	rows.AddRow(time.Now(), testEventID, "public", "click", "sp-1", 1.0, "", "", "", "")
	mock.ExpectQuery("FROM analytics WHERE event_id").
		WithArgs(testEventID).
		WillReturnRows(rows)

	b, _, err := svc.Sponsor(context.Background(), testTenant(), testEventID)
	if err != nil {
		t.Fatalf("Sponsor: %v", err)
	}
	if b.Event.Name != "Summer Open" || b.Event.Location != "Park" || b.Event.BrandID != "root" {
		t.Errorf("thin event = %+v", b.Event)
	}
	if len(b.Sponsors) != 1 {
		t.Fatalf("sponsors = %+v", b.Sponsors)
	}
	sp := b.Sponsors[0]
	if sp.Name != "Acme Sports" || sp.Tier != "gold" ||
		sp.Impressions != 1 || sp.Clicks != 1 || sp.CTR != 1 {
		t.Errorf("stats = %+v", sp)
	}
}

func TestSharedReport(t *testing.T) {
	svc, mock := testBundles(t)
	expectGetEvent(mock, "custom", basicDoc)
	expectEmptyAnalytics(mock)

	b, _, err := svc.SharedReport(context.Background(), testTenant(), testEventID)
	if err != nil {
		t.Fatalf("SharedReport: %v", err)
	}
	if b.Metrics == nil {
		t.Fatal("missing metrics")
	}
	want := "https://ev.example.com?page=report&brand=root&id=" + testEventID
	if b.ReportURL != want {
		t.Errorf("reportUrl = %q", b.ReportURL)
	}
}

func TestAdmin_Wizard(t *testing.T) {
	svc, mock := testBundles(t)
	expectGetEvent(mock, "custom", basicDoc)

	b, _, err := svc.Admin(context.Background(), testTenant(), testEventID, "")
	if err != nil {
		t.Fatalf("Admin: %v", err)
	}
	if b.Mode != "wizard" {
		t.Errorf("mode = %q", b.Mode)
	}
	if b.Diagnostics != nil || b.AllSponsors != nil {
		t.Error("wizard mode must not load diagnostics or the sponsor roster")
	}
	if b.BrandConfig.Type != "parent" || len(b.BrandConfig.ChildBrands) != 1 {
		t.Errorf("brandConfig = %+v", b.BrandConfig)
	}
	if len(b.Templates) != 2 {
		t.Errorf("templates = %+v", b.Templates)
	}
}

func TestAdmin_Advanced(t *testing.T) {
	svc, mock := testBundles(t)

	doc := `{"name":"Summer Open","startDateISO":"2025-08-15","venue":"Park",` +
		`"updatedAtISO":"2025-08-02T10:00:00Z",` +
		`"externalData":{"formUrl":"https://forms.example.com/f/1"}}`
	expectGetEvent(mock, "custom", doc)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM shortlinks").
		WithArgs(testEventID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("FROM sponsors WHERE tenant_id").
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "tenant_id", "name", "tier", "logo_url", "link_url"}).
			AddRow("sp-1", "root", "Acme Sports", "gold", "", ""))

	b, _, err := svc.Admin(context.Background(), testTenant(), testEventID, "advanced")
	if err != nil {
		t.Fatalf("Admin: %v", err)
	}
	if b.Mode != "advanced" {
		t.Errorf("mode = %q", b.Mode)
	}
	if b.Diagnostics == nil {
		t.Fatal("missing diagnostics")
	}
	if !b.Diagnostics.HasForm || !b.Diagnostics.HasShortlinks {
		t.Errorf("diagnostics = %+v", b.Diagnostics)
	}
	if b.Diagnostics.LastPublishedAt != "2025-08-02T10:00:00Z" {
		t.Errorf("lastPublishedAt = %q", b.Diagnostics.LastPublishedAt)
	}
	if len(b.AllSponsors) != 1 || b.AllSponsors[0].Name != "Acme Sports" {
		t.Errorf("allSponsors = %+v", b.AllSponsors)
	}
}
