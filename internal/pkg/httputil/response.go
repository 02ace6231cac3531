package httputil

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/bracketline/eventserve/internal/apperr"
)

// Envelope is the single wire shape for every response, success or failure.
type Envelope struct {
	OK          bool         `json:"ok"`
	Value       interface{}  `json:"value,omitempty"`
	ETag        string       `json:"etag,omitempty"`
	NotModified bool         `json:"notModified,omitempty"`
	Code        apperr.Kind  `json:"code,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// statusFor maps error kinds to HTTP status codes. The envelope carries the
// authoritative code; the status is a transport convenience.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.BadInput:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.RateLimited:
		return http.StatusTooManyRequests
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Printf("[httputil] envelope encode error: %v", err)
	}
}

// OK writes {ok:true, value} with an optional ETag.
func OK(w http.ResponseWriter, value interface{}, etag string) {
	write(w, http.StatusOK, Envelope{OK: true, Value: value, ETag: etag})
}

// NotModified writes {ok:true, notModified:true, etag} with no value.
func NotModified(w http.ResponseWriter, etag string) {
	write(w, http.StatusOK, Envelope{OK: true, NotModified: true, ETag: etag})
}

// Err writes {ok:false, code, message}. Internal causes are logged, never
// serialized.
func Err(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apperr.Error); ok && ae.Cause != nil {
		log.Printf("[httputil] %s: %s: %v", ae.Kind, ae.Message, ae.Cause)
	}
	kind := apperr.KindOf(err)
	write(w, statusFor(kind), Envelope{OK: false, Code: kind, Message: apperr.PublicMessage(err)})
}

// ErrKind writes an error envelope from a kind and message directly.
func ErrKind(w http.ResponseWriter, kind apperr.Kind, msg string) {
	write(w, statusFor(kind), Envelope{OK: false, Code: kind, Message: msg})
}
