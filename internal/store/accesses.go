package store

import (
	"fmt"
)

// Access is one append-only access event. Duplicates are expected; the
// log doubles as a frequency signal.
type Access struct {
	ID         int64
	Path       string
	LineStart  int
	LineEnd    int
	AccessedAt int64
	Query      string
	Score      float64
}

// AddAccess appends one access event.
func (db *DB) AddAccess(a *Access) error {
	result, err := db.Exec(`
		INSERT INTO accesses (path, line_start, line_end, accessed_at, query, score)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.Path, a.LineStart, a.LineEnd, a.AccessedAt, a.Query, a.Score)
	if err != nil {
		return storeErr("add access", err)
	}
	a.ID, _ = result.LastInsertId()
	return nil
}

// AccessesForPath returns the most recent access events for a path.
func (db *DB) AccessesForPath(path string, limit int) ([]Access, error) {
	rows, err := db.Query(`
		SELECT id, path, line_start, line_end, accessed_at, query, score
		FROM accesses WHERE path = ? ORDER BY accessed_at DESC LIMIT ?
	`, path, limit)
	if err != nil {
		return nil, storeErr("accesses for path", err)
	}
	defer rows.Close()

	var events []Access
	for rows.Next() {
		var a Access
		if err := rows.Scan(&a.ID, &a.Path, &a.LineStart, &a.LineEnd,
			&a.AccessedAt, &a.Query, &a.Score); err != nil {
			return nil, fmt.Errorf("scan access: %w", err)
		}
		events = append(events, a)
	}
	return events, rows.Err()
}

// CountAccesses returns the total number of recorded access events.
func (db *DB) CountAccesses() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM accesses").Scan(&n)
	if err != nil {
		return 0, storeErr("count accesses", err)
	}
	return n, nil
}
