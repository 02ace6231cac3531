package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/bracketline/eventserve/internal/apperr"
)

// Claims is the JWT payload this service understands. Brand must equal the
// tenant being accessed; Exp/Nbf are unix seconds.
type Claims struct {
	Brand string `json:"brand"`
	Sub   string `json:"sub,omitempty"`
	Exp   int64  `json:"exp"`
	Nbf   int64  `json:"nbf,omitempty"`
	Iat   int64  `json:"iat,omitempty"`
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
}

func b64url(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// SignJWT mints an HS256 token for the given claims. Used by tooling and
// tests; the server itself only verifies.
func SignJWT(secret string, claims Claims) (string, error) {
	header, err := json.Marshal(jwtHeader{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signing := b64url(header) + "." + b64url(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signing))
	return signing + "." + b64url(mac.Sum(nil)), nil
}

// VerifyJWT validates an HS256 token against the tenant's secret. The alg
// header is pinned to HS256 — "none" and every other value are rejected
// before any signature work. Comparison is constant-time.
func VerifyJWT(token, secret, tenantID string, now time.Time) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, apperr.New(apperr.BadInput, "Malformed JWT")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, apperr.New(apperr.BadInput, "Malformed JWT")
	}
	var header jwtHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, apperr.New(apperr.BadInput, "Malformed JWT")
	}
	if header.Alg != "HS256" {
		return nil, apperr.New(apperr.BadInput, "Invalid JWT algorithm")
	}

	signing := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signing))
	want := b64url(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(parts[2])) {
		return nil, apperr.New(apperr.BadInput, "Invalid JWT signature")
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, apperr.New(apperr.BadInput, "Malformed JWT")
	}
	var claims Claims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return nil, apperr.New(apperr.BadInput, "Malformed JWT")
	}

	if claims.Brand != tenantID {
		return nil, apperr.New(apperr.BadInput, "Token brand mismatch")
	}
	if claims.Exp <= now.Unix() {
		return nil, apperr.New(apperr.BadInput, "Token expired")
	}
	if claims.Nbf > now.Unix() {
		return nil, apperr.New(apperr.BadInput, "Token not yet valid")
	}
	return &claims, nil
}
