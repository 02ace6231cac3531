// Package auth resolves request credentials against a tenant. Three methods
// are tried in order — shared admin key, bearer JWT, API key — and the first
// success wins. All secret comparisons are constant-time.
package auth

import (
	"crypto/hmac"
	"net/url"
	"strings"
	"time"

	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/config"
)

// ErrInvalidCredentials is the uniform failure message; it deliberately does
// not say which method failed.
const ErrInvalidCredentials = "Invalid authentication credentials"

// Credentials carries everything a request presented for authentication.
type Credentials struct {
	AdminKey string // body or query adminKey
	Bearer   string // Authorization: Bearer <token>, token only
	APIKey   string // X-API-Key header
}

// HasAny reports whether any credential was presented at all.
func (c Credentials) HasAny() bool {
	return c.AdminKey != "" || c.Bearer != "" || c.APIKey != ""
}

// Resolve authenticates credentials for a tenant. On success it returns the
// method that matched ("adminKey", "jwt", "apiKey"). Failures are BAD_INPUT;
// when a bearer token fails but a later method succeeds the request still
// passes, and the JWT-specific message survives only when nothing else
// matched — so callers can tell an algorithm-substitution attempt from a
// stale key.
func Resolve(snap *config.Snapshot, tenantID string, creds Credentials, now time.Time) (string, error) {
	secret := snap.AdminSecret(tenantID)

	if creds.AdminKey != "" && secret != "" {
		if hmac.Equal([]byte(creds.AdminKey), []byte(secret)) {
			return "adminKey", nil
		}
	}

	var jwtErr error
	if creds.Bearer != "" {
		if secret == "" {
			jwtErr = apperr.New(apperr.BadInput, ErrInvalidCredentials)
		} else if _, err := VerifyJWT(creds.Bearer, secret, tenantID, now); err != nil {
			jwtErr = err
		} else {
			return "jwt", nil
		}
	}

	if creds.APIKey != "" && secret != "" {
		if hmac.Equal([]byte(creds.APIKey), []byte(secret)) {
			return "apiKey", nil
		}
	}

	if jwtErr != nil {
		return "", jwtErr
	}
	return "", apperr.New(apperr.BadInput, ErrInvalidCredentials)
}

// CheckOrigin enforces the POST origin policy: a present Origin header must
// resolve to localhost, a configured tenant hostname, or a known provider
// host. An absent Origin is only acceptable when the request carries an
// Authorization or X-API-Key header (non-browser client).
func CheckOrigin(snap *config.Snapshot, origin string, hasAuthHeader bool) error {
	if origin == "" {
		if hasAuthHeader {
			return nil
		}
		return apperr.New(apperr.BadInput, "Missing request origin")
	}

	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return apperr.New(apperr.BadInput, "Invalid request origin")
	}
	host := strings.ToLower(u.Hostname())

	if host == "localhost" || host == "127.0.0.1" {
		return nil
	}
	if snap.IsTenantHost(host) {
		return nil
	}
	for _, p := range snap.ProviderHosts() {
		if strings.EqualFold(p, host) {
			return nil
		}
	}
	return apperr.New(apperr.BadInput, "Invalid request origin")
}
