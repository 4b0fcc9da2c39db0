package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Mirror granularities for the same logical event.
const (
	GranularityRaw     = "raw"
	GranularitySummary = "summary"
	GranularityLesson  = "lesson"
)

// Granularities lists the valid values in tier order.
var Granularities = []string{GranularityRaw, GranularitySummary, GranularityLesson}

// MirrorLink cross-references one granularity of a logical event to a
// content unit. At most one path per (event_key, granularity).
type MirrorLink struct {
	ID          int64
	EventKey    string
	Granularity string
	Path        string
	LineStart   int
	LineEnd     int
	CreatedAt   int64
}

// UpsertLink creates or overwrites the link for (eventKey, granularity).
// Last write wins; this is documented behavior, not a race to fix.
func (db *DB) UpsertLink(l *MirrorLink) error {
	if l.CreatedAt == 0 {
		l.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO mirror_links (event_key, granularity, path, line_start, line_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_key, granularity) DO UPDATE SET
			path = excluded.path,
			line_start = excluded.line_start,
			line_end = excluded.line_end,
			created_at = excluded.created_at
	`, l.EventKey, l.Granularity, l.Path, l.LineStart, l.LineEnd, l.CreatedAt)
	return storeErr("upsert link", err)
}

// LinksForEvent returns every granularity linked to an event key.
func (db *DB) LinksForEvent(eventKey string) ([]MirrorLink, error) {
	rows, err := db.Query(`
		SELECT id, event_key, granularity, path, line_start, line_end, created_at
		FROM mirror_links WHERE event_key = ?
		ORDER BY CASE granularity WHEN 'raw' THEN 1 WHEN 'summary' THEN 2 ELSE 3 END
	`, eventKey)
	if err != nil {
		return nil, storeErr("links for event", err)
	}
	defer rows.Close()
	return collectLinks(rows)
}

// EventKeyForPath returns the event key owning a linked path, or "" if the
// path is not linked under any granularity.
func (db *DB) EventKeyForPath(path string) (string, error) {
	var key string
	err := db.QueryRow(`SELECT event_key FROM mirror_links WHERE path = ? LIMIT 1`, path).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storeErr("event key for path", err)
	}
	return key, nil
}

// AllLinks returns every mirror link grouped by event key.
func (db *DB) AllLinks() ([]MirrorLink, error) {
	rows, err := db.Query(`
		SELECT id, event_key, granularity, path, line_start, line_end, created_at
		FROM mirror_links ORDER BY event_key, granularity
	`)
	if err != nil {
		return nil, storeErr("all links", err)
	}
	defer rows.Close()
	return collectLinks(rows)
}

// HasLink reports whether (eventKey, granularity) is already linked.
func (db *DB) HasLink(eventKey, granularity string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM mirror_links
		WHERE event_key = ? AND granularity = ?`, eventKey, granularity).Scan(&n)
	if err != nil {
		return false, storeErr("has link", err)
	}
	return n > 0, nil
}

func collectLinks(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]MirrorLink, error) {
	var links []MirrorLink
	for rows.Next() {
		var l MirrorLink
		if err := rows.Scan(&l.ID, &l.EventKey, &l.Granularity, &l.Path,
			&l.LineStart, &l.LineEnd, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
