package auth

import (
	"testing"
	"time"

	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/config"
)

func testSnapshot() *config.Snapshot {
	cfg := &config.Config{
		Tenants: []config.Tenant{
			{ID: "root", Name: "Root", Hostnames: []string{"localhost"}},
			{ID: "acme", Name: "Acme", Hostnames: []string{"events.acme.example"}},
		},
		Origins:      config.OriginConfig{ProviderHosts: []string{"forms.example.com"}},
		AdminSecrets: map[string]string{"acme": testSecret},
	}
	return config.NewRegistry(cfg).Snapshot()
}

func TestResolve(t *testing.T) {
	snap := testSnapshot()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("admin key", func(t *testing.T) {
		method, err := Resolve(snap, "acme", Credentials{AdminKey: testSecret}, now)
		if err != nil || method != "adminKey" {
			t.Errorf("method=%q err=%v", method, err)
		}
	})

	t.Run("wrong admin key", func(t *testing.T) {
		_, err := Resolve(snap, "acme", Credentials{AdminKey: "nope"}, now)
		if err == nil || apperr.PublicMessage(err) != ErrInvalidCredentials {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("jwt", func(t *testing.T) {
		token, _ := SignJWT(testSecret, Claims{Brand: "acme", Exp: now.Add(time.Hour).Unix()})
		method, err := Resolve(snap, "acme", Credentials{Bearer: token}, now)
		if err != nil || method != "jwt" {
			t.Errorf("method=%q err=%v", method, err)
		}
	})

	t.Run("jwt keeps specific message", func(t *testing.T) {
		token, _ := SignJWT(testSecret, Claims{Brand: "root", Exp: now.Add(time.Hour).Unix()})
		_, err := Resolve(snap, "acme", Credentials{Bearer: token}, now)
		if err == nil || apperr.PublicMessage(err) != "Token brand mismatch" {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("stale jwt falls through to api key", func(t *testing.T) {
		token, _ := SignJWT(testSecret, Claims{Brand: "acme", Exp: now.Add(-time.Hour).Unix()})
		method, err := Resolve(snap, "acme", Credentials{Bearer: token, APIKey: testSecret}, now)
		if err != nil || method != "apiKey" {
			t.Errorf("method=%q err=%v", method, err)
		}
	})

	t.Run("stale jwt with wrong api key keeps jwt message", func(t *testing.T) {
		token, _ := SignJWT(testSecret, Claims{Brand: "acme", Exp: now.Add(-time.Hour).Unix()})
		_, err := Resolve(snap, "acme", Credentials{Bearer: token, APIKey: "nope"}, now)
		if err == nil || apperr.PublicMessage(err) != "Token expired" {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("api key", func(t *testing.T) {
		method, err := Resolve(snap, "acme", Credentials{APIKey: testSecret}, now)
		if err != nil || method != "apiKey" {
			t.Errorf("method=%q err=%v", method, err)
		}
	})

	t.Run("no secret configured", func(t *testing.T) {
		_, err := Resolve(snap, "root", Credentials{AdminKey: "anything"}, now)
		if err == nil {
			t.Error("tenant without secret must reject everything")
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		_, err := Resolve(snap, "acme", Credentials{}, now)
		if err == nil || apperr.PublicMessage(err) != ErrInvalidCredentials {
			t.Errorf("err = %v", err)
		}
	})
}

func TestCheckOrigin(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		name    string
		origin  string
		hasAuth bool
		wantErr bool
	}{
		{"localhost", "http://localhost:5173", false, false},
		{"loopback", "http://127.0.0.1:8080", false, false},
		{"tenant host", "https://events.acme.example", false, false},
		{"provider host", "https://forms.example.com", false, false},
		{"unknown host", "https://evil.example", false, true},
		{"absent with auth header", "", true, false},
		{"absent without auth header", "", false, true},
		{"garbage", "not a url", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOrigin(snap, tt.origin, tt.hasAuth)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckOrigin(%q) err = %v, wantErr %v", tt.origin, err, tt.wantErr)
			}
		})
	}
}
