package security

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// =============================================================================
// SECURITY KIT
// Input sanitization, URL/SSRF validation, spreadsheet-value escaping, ID
// validation and sensitive-field redaction. Everything here is pure; callers
// decide what to do with rejected input.
// =============================================================================

const (
	// DefaultMaxLen bounds sanitized strings when the caller does not care.
	DefaultMaxLen = 1000

	// MaxURLLen is the hard cap on any URL accepted by the system.
	MaxURLLen = 2048
)

var (
	idPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)
	uuidV4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	slugPattern   = regexp.MustCompile(`^[a-z0-9-]{1,50}$`)
	datePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	idemPattern   = regexp.MustCompile(`^[A-Za-z0-9-]{1,128}$`)

	controlChars   = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	zeroWidthChars = regexp.MustCompile(`[\x{200B}-\x{200D}\x{2060}\x{FEFF}]`)
	eventHandlers  = regexp.MustCompile(`(?i)on\w+\s*=`)
	escapeLeaders  = regexp.MustCompile(`(?i)&(#x?[0-9a-f]+|[a-z]+);?|\\x[0-9a-f]{2}|\\u[0-9a-f]{4}`)
	schemeInjects  = regexp.MustCompile(`(?i)(javascript|vbscript|data)\s*:`)
)

// Sanitize strips control characters, zero-width characters, HTML-significant
// punctuation and script-injection leaders from s, trims whitespace and
// truncates to maxLen runes. maxLen <= 0 uses DefaultMaxLen.
func Sanitize(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	s = controlChars.ReplaceAllString(s, "")
	s = zeroWidthChars.ReplaceAllString(s, "")
	s = schemeInjects.ReplaceAllString(s, "")
	s = eventHandlers.ReplaceAllString(s, "")
	s = escapeLeaders.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'', '`', '&':
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > maxLen {
		s = string(runes[:maxLen])
	}
	return s
}

// ValidID reports whether s is a safe identifier (^[A-Za-z0-9_-]{1,100}$).
func ValidID(s string) bool { return idPattern.MatchString(s) }

// ValidUUIDv4 reports whether s is a lowercase UUID v4.
func ValidUUIDv4(s string) bool { return uuidV4Pattern.MatchString(strings.ToLower(s)) }

// ValidSlug reports whether s is a URL slug (^[a-z0-9-]{1,50}$).
func ValidSlug(s string) bool { return slugPattern.MatchString(s) }

// ValidDateISO reports whether s looks like YYYY-MM-DD.
func ValidDateISO(s string) bool { return datePattern.MatchString(s) }

// ValidIdemKey reports whether s is an acceptable idempotency key.
func ValidIdemKey(s string) bool { return idemPattern.MatchString(s) }

// EscapeCell defends against spreadsheet formula injection: any value whose
// string form begins with = + - @ is prefixed with a single quote.
func EscapeCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@':
		return "'" + v
	}
	return v
}

// IsURL validates a candidate URL: parseable, http/https only, at most
// MaxURLLen bytes, no embedded script schemes, and the host must not be a
// private or loopback address (SSRF denylist).
func IsURL(raw string) bool {
	if raw == "" || len(raw) > MaxURLLen {
		return false
	}
	lower := strings.ToLower(raw)
	for _, bad := range []string{"javascript:", "data:", "vbscript:", "file:"} {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Hostname() == "" {
		return false
	}
	return !DeniedHost(u.Hostname())
}

// ssrfBlocks are the private/loopback/link-local ranges that outbound targets
// must never resolve into.
var ssrfBlocks = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"192.168.0.0/16",
	"172.16.0.0/12",
	"169.254.0.0/16",
}

// DeniedHost reports whether host is on the SSRF denylist.
func DeniedHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	for _, block := range ssrfBlocks {
		_, cidr, err := net.ParseCIDR(block)
		if err != nil {
			continue
		}
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// sensitiveKeyParts flags metadata keys whose values must never be persisted
// or logged in the clear.
var sensitiveKeyParts = []string{
	"adminkey", "token", "password", "secret", "authorization", "bearer", "csrf",
}

// IsSensitiveKey reports whether the (case-insensitive) key names a credential.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// RedactMeta returns a copy of meta with every sensitive value replaced by
// [REDACTED]. The input map is not modified.
func RedactMeta(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		if IsSensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}
