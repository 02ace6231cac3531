// Package diag is the persistent diagnostic log: a bounded append-only table
// of structured entries with credential redaction. Every failure inside the
// logger is swallowed to the fallback console; writing a diagnostic entry
// never aborts the caller.
package diag

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/bracketline/eventserve/internal/cache"
	"github.com/bracketline/eventserve/internal/security"
	"github.com/bracketline/eventserve/internal/store"
)

const (
	hardCap    = 3000
	perDayCap  = 800
	pruneEvery = 50

	counterKey = "diag:cleanup:counter"
	counterTTL = time.Hour
)

// Logger appends diagnostic rows and keeps the table bounded.
type Logger struct {
	store *store.Store
	cache cache.Cache
	now   func() time.Time
}

func New(st *store.Store, c cache.Cache) *Logger {
	return &Logger{store: st, cache: c, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (l *Logger) SetClock(now func() time.Time) { l.now = now }

// Log appends one entry. Meta values under sensitive keys are redacted
// before serialization.
func (l *Logger) Log(ctx context.Context, level, where, msg string, meta map[string]interface{}) {
	metaJSON := "{}"
	if meta != nil {
		b, err := json.Marshal(security.RedactMeta(meta))
		if err == nil {
			metaJSON = string(b)
		}
	}

	row := store.DiagRow{
		TS:    l.now().UTC(),
		Level: level,
		Where: where,
		Msg:   security.Sanitize(msg, 500),
		Meta:  metaJSON,
	}

	if err := l.store.AppendDiag(ctx, row); err != nil {
		log.Printf("diag append failed: %v", err)
		return
	}

	l.enforceCaps(ctx)
}

// enforceCaps trims the table after a write. The hard cap is checked every
// time; the per-day cap only on every 50th entry, tracked through the shared
// cache counter so concurrent writers converge on one schedule.
func (l *Logger) enforceCaps(ctx context.Context) {
	count, err := l.store.DiagCount(ctx)
	if err != nil {
		log.Printf("diag count failed: %v", err)
		return
	}
	if count > hardCap {
		if err := l.store.PruneDiagOldest(ctx, count-hardCap); err != nil {
			log.Printf("diag prune failed: %v", err)
		}
	}

	n, err := l.cache.Incr(ctx, counterKey, counterTTL)
	if err != nil {
		return
	}
	if n%pruneEvery != 0 {
		return
	}

	today, err := l.store.DiagCountToday(ctx)
	if err != nil {
		log.Printf("diag daily count failed: %v", err)
		return
	}
	if today > perDayCap {
		if err := l.store.PruneDiagTodayOldest(ctx, today-perDayCap); err != nil {
			log.Printf("diag daily prune failed: %v", err)
		}
	}
}
