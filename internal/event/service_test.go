package event

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/cache"
	"github.com/bracketline/eventserve/internal/config"
	"github.com/bracketline/eventserve/internal/pkg/distlock"
	"github.com/bracketline/eventserve/internal/qr"
	"github.com/bracketline/eventserve/internal/store"
)

const testEventID = "a3bb189e-8bf9-4888-9912-ace4e6543002"

type noopLock struct{}

func (noopLock) Acquire(context.Context) (bool, error) { return true, nil }
func (noopLock) Release(context.Context) error         { return nil }

func testService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		BaseURL: "https://ev.example.com/",
		Tenants: []config.Tenant{
			{ID: "root", Name: "Root", ScopesAllowed: []string{"events", "tournaments"}},
		},
		Templates: []config.Template{
			{ID: "custom", Name: "Custom", Fields: []config.TemplateField{
				{ID: "description", Type: "string"},
				{ID: "heroImageUrl", Type: "url"},
			}},
		},
	}

	locks := func(string, time.Duration) distlock.DistLock { return noopLock{} }
	svc := NewService(store.New(db), config.NewRegistry(cfg), cache.NewMemory(), locks, qr.Null{})
	svc.SetClock(func() time.Time {
		return time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	})
	return svc, mock
}

func testTenant() config.Tenant {
	return config.Tenant{ID: "root", ScopesAllowed: []string{"events", "tournaments"}}
}

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestCreate(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectQuery("SELECT slug FROM events").
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows([]string{"slug"}))
	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	e, err := svc.Create(context.Background(), testTenant(), CreateInput{
		Name:         "Summer Open",
		StartDateISO: "2025-08-15",
		Venue:        "Riverside Park",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Slug != "summer-open" {
		t.Errorf("slug = %q", e.Slug)
	}
	if e.ID == "" || e.TemplateID != "custom" {
		t.Errorf("identity: id=%q template=%q", e.ID, e.TemplateID)
	}
	if e.Links.PublicURL != "https://ev.example.com?page=events&brand=root&id="+e.ID {
		t.Errorf("publicUrl = %q", e.Links.PublicURL)
	}
	if e.CreatedAtISO != "2025-08-01T09:00:00Z" {
		t.Errorf("createdAtISO = %q", e.CreatedAtISO)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreate_SlugCollision(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectQuery("SELECT slug FROM events").
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows([]string{"slug"}).
			AddRow("summer-open").AddRow("summer-open-2"))
	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	e, err := svc.Create(context.Background(), testTenant(), CreateInput{
		Name:         "Summer Open",
		StartDateISO: "2025-08-15",
		Venue:        "Park",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Slug != "summer-open-3" {
		t.Errorf("slug = %q, want summer-open-3", e.Slug)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		in      CreateInput
		wantMsg string
	}{
		{
			"missing name",
			CreateInput{StartDateISO: "2025-08-15", Venue: "Park"},
			"Missing required field: name",
		},
		{
			"name all markup",
			CreateInput{Name: `<>"'`, StartDateISO: "2025-08-15", Venue: "Park"},
			"Missing required field: name",
		},
		{
			"bad date",
			CreateInput{Name: "X", StartDateISO: "15/08/2025", Venue: "Park"},
			"Invalid startDateISO",
		},
		{
			"missing venue",
			CreateInput{Name: "X", StartDateISO: "2025-08-15"},
			"Missing required field: venue",
		},
		{
			"bad id",
			CreateInput{ID: "not-a-uuid", Name: "X", StartDateISO: "2025-08-15", Venue: "Park"},
			"Invalid event id",
		},
		{
			"scope not allowed",
			CreateInput{Scope: "meetups", Name: "X", StartDateISO: "2025-08-15", Venue: "Park"},
			"Scope not allowed: meetups",
		},
	}

	svc, _ := testService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), testTenant(), tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if apperr.KindOf(err) != apperr.BadInput {
				t.Errorf("kind = %v", apperr.KindOf(err))
			}
			if got := apperr.PublicMessage(err); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestCreate_Idempotency(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectQuery("SELECT slug FROM events").
		WillReturnRows(sqlmock.NewRows([]string{"slug"}))
	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	in := CreateInput{
		Name:         "Summer Open",
		StartDateISO: "2025-08-15",
		Venue:        "Park",
		IdemKey:      "req-42",
	}
	if _, err := svc.Create(context.Background(), testTenant(), in); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.Create(context.Background(), testTenant(), in)
	if err == nil || apperr.PublicMessage(err) != "Duplicate create" {
		t.Errorf("replay err = %v, want Duplicate create", err)
	}
}

// =============================================================================
// GET TESTS
// =============================================================================

func TestGet_NotFound(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectQuery("SELECT id, tenant_id, template_id").
		WithArgs(testEventID, "root").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "tenant_id", "template_id", "data_json", "created_at", "slug"}))

	_, _, err := svc.Get(context.Background(), "root", testEventID)
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestGet(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectQuery("SELECT id, tenant_id, template_id").
		WithArgs(testEventID, "root").
		WillReturnRows(eventRows(`{"name":"Summer Open","startDateISO":"2025-08-15","venue":"Park"}`))

	e, etag, err := svc.Get(context.Background(), "root", testEventID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Name != "Summer Open" {
		t.Errorf("name = %q", e.Name)
	}
	if etag == "" || etag != ETag(e) {
		t.Errorf("etag = %q", etag)
	}
}

func eventRows(dataJSON string) *sqlmock.Rows {
	return sqlmock.NewRows(
		[]string{"id", "tenant_id", "template_id", "data_json", "created_at", "slug"}).
		AddRow(testEventID, "root", "custom", dataJSON,
			time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC), "summer-open")
}

// =============================================================================
// LIST TESTS
// =============================================================================

func TestList_Pagination(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery("SELECT id, tenant_id, template_id").
		WithArgs("root", 5, 0).
		WillReturnRows(eventRows(`{"name":"Summer Open"}`))

	result, etag, err := svc.List(context.Background(), "root", 5, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Pagination.Total != 7 || !result.Pagination.HasMore {
		t.Errorf("pagination = %+v", result.Pagination)
	}
	if len(result.Items) != 1 || result.Items[0].Name != "Summer Open" {
		t.Errorf("items = %+v", result.Items)
	}
	if etag == "" {
		t.Error("missing etag")
	}
}

// =============================================================================
// UPDATE TESTS
// =============================================================================

func TestUpdate(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectQuery("SELECT id, tenant_id, template_id").
		WithArgs(testEventID, "root").
		WillReturnRows(eventRows(`{"name":"Summer Open","startDateISO":"2025-08-15","venue":"Park"}`))
	mock.ExpectExec("UPDATE events SET data_json").
		WillReturnResult(sqlmock.NewResult(0, 1))

	e, etag, err := svc.Update(context.Background(), testTenant(), UpdateInput{
		ID:   testEventID,
		Data: map[string]interface{}{"description": "A fine <b>day</b> out"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if etag != ETag(e) {
		t.Error("etag mismatch")
	}
	if e.UpdatedAtISO != "2025-08-01T09:00:00Z" {
		t.Errorf("updatedAtISO = %q", e.UpdatedAtISO)
	}
}

func TestUpdate_FieldRules(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]interface{}
		wantMsg string
	}{
		{
			"unknown field",
			map[string]interface{}{"hackField": "x"},
			"Unknown field: hackField",
		},
		{
			"invalid url field",
			map[string]interface{}{"heroImageUrl": "javascript:alert(1)"},
			"Invalid URL for field: heroImageUrl",
		},
		{
			"private url field",
			map[string]interface{}{"heroImageUrl": "http://169.254.169.254/x"},
			"Invalid URL for field: heroImageUrl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := testService(t)
			mock.ExpectQuery("SELECT id, tenant_id, template_id").
				WillReturnRows(eventRows(`{"name":"Summer Open"}`))

			_, _, err := svc.Update(context.Background(), testTenant(), UpdateInput{
				ID:   testEventID,
				Data: tt.data,
			})
			if err == nil || apperr.PublicMessage(err) != tt.wantMsg {
				t.Errorf("err = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestUpdate_RowVanished(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectQuery("SELECT id, tenant_id, template_id").
		WillReturnRows(eventRows(`{"name":"Summer Open"}`))
	mock.ExpectExec("UPDATE events SET data_json").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, _, err := svc.Update(context.Background(), testTenant(), UpdateInput{
		ID:   testEventID,
		Data: map[string]interface{}{"description": "x"},
	})
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

// =============================================================================
// EXTERNAL DATA TESTS
// =============================================================================

func TestSetExternalData(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectQuery("SELECT id, tenant_id, template_id").
		WillReturnRows(eventRows(`{"name":"Summer Open"}`))
	mock.ExpectExec("UPDATE events SET data_json").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.SetExternalData(context.Background(), "root", testEventID,
		"formUrl", "https://forms.example.com/f/1")
	if err != nil {
		t.Fatalf("SetExternalData: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
