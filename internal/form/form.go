// Package form defines the external signup-form integration boundary. The
// runtime never talks to an office/forms API directly; it depends on a
// Provider and ships an Unconfigured stub for deployments without one.
package form

import (
	"context"

	"github.com/bracketline/eventserve/internal/apperr"
)

// FormTemplate describes one reusable signup-form template.
type FormTemplate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreatedForm is the result of instantiating a template for an event.
type CreatedForm struct {
	FormID  string `json:"formId"`
	FormURL string `json:"formUrl"`
	EditURL string `json:"editUrl,omitempty"`
}

// Provider is the external forms integration.
type Provider interface {
	// ListTemplates returns the templates available to a tenant.
	ListTemplates(ctx context.Context, tenantID string) ([]FormTemplate, error)

	// CreateFromTemplate instantiates a template for an event and returns
	// the live form.
	CreateFromTemplate(ctx context.Context, tenantID, templateID, eventID, title string) (*CreatedForm, error)
}

// Unconfigured is the stub used when no provider is wired. Every call
// answers CONTRACT so callers can distinguish "not set up" from a failure.
type Unconfigured struct{}

func (Unconfigured) ListTemplates(context.Context, string) ([]FormTemplate, error) {
	return nil, apperr.New(apperr.Contract, "Form provider is not configured")
}

func (Unconfigured) CreateFromTemplate(context.Context, string, string, string, string) (*CreatedForm, error) {
	return nil, apperr.New(apperr.Contract, "Form provider is not configured")
}
