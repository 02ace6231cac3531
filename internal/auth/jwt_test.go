package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-secret"

func mintToken(t *testing.T, brand string, expOffset, nbfOffset time.Duration, now time.Time) string {
	t.Helper()
	token, err := SignJWT(testSecret, Claims{
		Brand: brand,
		Sub:   "tester",
		Exp:   now.Add(expOffset).Unix(),
		Nbf:   now.Add(nbfOffset).Unix(),
		Iat:   now.Unix(),
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	return token
}

func TestVerifyJWT_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := mintToken(t, "acme", time.Hour, -time.Minute, now)

	claims, err := VerifyJWT(token, testSecret, "acme", now)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if claims.Brand != "acme" || claims.Sub != "tester" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyJWT_Failures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   func() string
		wantMsg string
	}{
		{
			"malformed",
			func() string { return "only.two" },
			"Malformed JWT",
		},
		{
			"alg none",
			func() string {
				header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
				payload, _ := json.Marshal(Claims{Brand: "acme", Exp: now.Add(time.Hour).Unix()})
				return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
			},
			"Invalid JWT algorithm",
		},
		{
			"alg rs256",
			func() string {
				header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
				payload, _ := json.Marshal(Claims{Brand: "acme", Exp: now.Add(time.Hour).Unix()})
				return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
			},
			"Invalid JWT algorithm",
		},
		{
			"tampered signature",
			func() string {
				token := mintToken(t, "acme", time.Hour, -time.Minute, now)
				parts := strings.Split(token, ".")
				sig := []byte(parts[2])
				if sig[0] == 'A' {
					sig[0] = 'B'
				} else {
					sig[0] = 'A'
				}
				return parts[0] + "." + parts[1] + "." + string(sig)
			},
			"Invalid JWT signature",
		},
		{
			"wrong secret",
			func() string {
				token, _ := SignJWT("other-secret", Claims{Brand: "acme", Exp: now.Add(time.Hour).Unix()})
				return token
			},
			"Invalid JWT signature",
		},
		{
			"brand mismatch",
			func() string { return mintToken(t, "root", time.Hour, -time.Minute, now) },
			"Token brand mismatch",
		},
		{
			"expired",
			func() string { return mintToken(t, "acme", -time.Minute, -time.Hour, now) },
			"Token expired",
		},
		{
			"not yet valid",
			func() string { return mintToken(t, "acme", time.Hour, time.Minute, now) },
			"Token not yet valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyJWT(tt.token(), testSecret, "acme", now)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
