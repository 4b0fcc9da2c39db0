package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Chamber tiers. A record only advances tier1 -> tier2 -> tier3;
// regression requires an explicit administrative reset.
const (
	Tier1 = "tier1"
	Tier2 = "tier2"
	Tier3 = "tier3"
)

// tierRank orders chambers for the never-regress rule.
var tierRank = map[string]int{Tier1: 1, Tier2: 2, Tier3: 3}

// TierRank returns the ordering rank of a chamber (0 for unknown).
func TierRank(chamber string) int { return tierRank[chamber] }

// Record is one importance record: a tracked content unit identified by
// (path, line_start, line_end). line_start = line_end = 0 means whole file.
type Record struct {
	ID                 int64
	Path               string
	LineStart          int
	LineEnd            int
	AccessCount        int
	ReferenceCount     int
	ExplicitImportance float64
	Tags               []string
	ContextTags        []string
	CreatedAt          int64
	LastWrittenAt      *int64
	LastAccessedAt     *int64
	Chamber            string
	PromotedAt         *int64
	SupersededBy       string
	SourceChunk        string
}

const recordCols = `id, path, line_start, line_end, access_count, reference_count,
	explicit_importance, tags, context_tags, created_at, last_written_at,
	last_accessed_at, chamber, promoted_at, superseded_by, source_chunk`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var r Record
	var tags, contextTags string
	var lastWritten, lastAccessed, promotedAt sql.NullInt64
	var supersededBy sql.NullString
	err := row.Scan(&r.ID, &r.Path, &r.LineStart, &r.LineEnd,
		&r.AccessCount, &r.ReferenceCount, &r.ExplicitImportance,
		&tags, &contextTags, &r.CreatedAt,
		&lastWritten, &lastAccessed, &r.Chamber, &promotedAt,
		&supersededBy, &r.SourceChunk)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(tags), &r.Tags)
	json.Unmarshal([]byte(contextTags), &r.ContextTags)
	if lastWritten.Valid {
		r.LastWrittenAt = &lastWritten.Int64
	}
	if lastAccessed.Valid {
		r.LastAccessedAt = &lastAccessed.Int64
	}
	if promotedAt.Valid {
		r.PromotedAt = &promotedAt.Int64
	}
	r.SupersededBy = supersededBy.String
	return &r, nil
}

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

// GetRecord returns the record for an identity, or nil if untracked.
func (db *DB) GetRecord(path string, lineStart, lineEnd int) (*Record, error) {
	row := db.QueryRow(`SELECT `+recordCols+` FROM importance
		WHERE path = ? AND line_start = ? AND line_end = ?`,
		path, lineStart, lineEnd)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get record", err)
	}
	return r, nil
}

// CreateRecord inserts a new importance record.
func (db *DB) CreateRecord(r *Record) error {
	now := time.Now().UnixMilli()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	if r.Chamber == "" {
		r.Chamber = Tier1
	}
	result, err := db.Exec(`
		INSERT INTO importance (path, line_start, line_end, access_count, reference_count,
			explicit_importance, tags, context_tags, created_at, last_written_at,
			last_accessed_at, chamber, promoted_at, superseded_by, source_chunk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)
	`, r.Path, r.LineStart, r.LineEnd, r.AccessCount, r.ReferenceCount,
		r.ExplicitImportance, marshalTags(r.Tags), marshalTags(r.ContextTags),
		r.CreatedAt, r.LastWrittenAt, r.LastAccessedAt, r.Chamber, r.PromotedAt,
		r.SupersededBy, r.SourceChunk)
	if err != nil {
		return storeErr("create record", err)
	}
	r.ID, _ = result.LastInsertId()
	return nil
}

// ListRecords returns every importance record.
func (db *DB) ListRecords() ([]Record, error) {
	rows, err := db.Query(`SELECT ` + recordCols + ` FROM importance ORDER BY path, line_start`)
	if err != nil {
		return nil, storeErr("list records", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListByChamber returns records in a given chamber, oldest creation first.
func (db *DB) ListByChamber(chamber string) ([]Record, error) {
	rows, err := db.Query(`SELECT `+recordCols+` FROM importance
		WHERE chamber = ? ORDER BY created_at`, chamber)
	if err != nil {
		return nil, storeErr("list by chamber", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// TouchAccess upserts a record for an access: creates it with
// access_count=1 if absent, else increments atomically (no lost updates
// under concurrent callers).
func (db *DB) TouchAccess(path string, lineStart, lineEnd int, at int64) error {
	_, err := db.Exec(`
		INSERT INTO importance (path, line_start, line_end, access_count, created_at, last_accessed_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (path, line_start, line_end) DO UPDATE SET
			access_count = access_count + 1,
			last_accessed_at = excluded.last_accessed_at
	`, path, lineStart, lineEnd, at, at)
	return storeErr("touch access", err)
}

// TouchWrite upserts the whole-file record and sets last_written_at.
// access_count is untouched.
func (db *DB) TouchWrite(path string, at int64) error {
	_, err := db.Exec(`
		INSERT INTO importance (path, line_start, line_end, created_at, last_written_at)
		VALUES (?, 0, 0, ?, ?)
		ON CONFLICT (path, line_start, line_end) DO UPDATE SET
			last_written_at = excluded.last_written_at
	`, path, at, at)
	return storeErr("touch write", err)
}

// AddExplicitImportance adjusts explicit_importance by delta, creating the
// record if absent. Validation of the resulting value is the caller's job.
func (db *DB) AddExplicitImportance(path string, lineStart, lineEnd int, delta float64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO importance (path, line_start, line_end, explicit_importance, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path, line_start, line_end) DO UPDATE SET
			explicit_importance = explicit_importance + ?
	`, path, lineStart, lineEnd, delta, now, delta)
	return storeErr("add explicit importance", err)
}

// AddReference increments reference_count, creating the record if absent.
func (db *DB) AddReference(path string, lineStart, lineEnd int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO importance (path, line_start, line_end, reference_count, created_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (path, line_start, line_end) DO UPDATE SET
			reference_count = reference_count + 1
	`, path, lineStart, lineEnd, now)
	return storeErr("add reference", err)
}

// SetSuperseded marks a record as replaced by another path.
func (db *DB) SetSuperseded(path string, lineStart, lineEnd int, by string) error {
	_, err := db.Exec(`UPDATE importance SET superseded_by = ?
		WHERE path = ? AND line_start = ? AND line_end = ?`,
		by, path, lineStart, lineEnd)
	return storeErr("set superseded", err)
}

// SetChamber advances a record's chamber and stamps promoted_at.
// The never-regress rule is enforced in SQL.
func (db *DB) SetChamber(path string, lineStart, lineEnd int, chamber string, at int64) error {
	rank := tierRank[chamber]
	_, err := db.Exec(`UPDATE importance SET chamber = ?, promoted_at = ?
		WHERE path = ? AND line_start = ? AND line_end = ?
		AND CASE chamber WHEN 'tier1' THEN 1 WHEN 'tier2' THEN 2 ELSE 3 END < ?`,
		chamber, at, path, lineStart, lineEnd, rank)
	return storeErr("set chamber", err)
}

// ResetChamber administratively forces a record back to a chamber,
// clearing promoted_at. The only sanctioned way to regress a tier.
func (db *DB) ResetChamber(path string, lineStart, lineEnd int, chamber string) error {
	_, err := db.Exec(`UPDATE importance SET chamber = ?, promoted_at = NULL
		WHERE path = ? AND line_start = ? AND line_end = ?`,
		chamber, path, lineStart, lineEnd)
	return storeErr("reset chamber", err)
}

// SetContextTags replaces a record's context_tags.
func (db *DB) SetContextTags(path string, lineStart, lineEnd int, tags []string) error {
	_, err := db.Exec(`UPDATE importance SET context_tags = ?
		WHERE path = ? AND line_start = ? AND line_end = ?`,
		marshalTags(tags), path, lineStart, lineEnd)
	return storeErr("set context tags", err)
}

// SetTags replaces a record's free-form tags.
func (db *DB) SetTags(path string, lineStart, lineEnd int, tags []string) error {
	_, err := db.Exec(`UPDATE importance SET tags = ?
		WHERE path = ? AND line_start = ? AND line_end = ?`,
		marshalTags(tags), path, lineStart, lineEnd)
	return storeErr("set tags", err)
}

// CountByChamber returns the record distribution across chambers.
func (db *DB) CountByChamber() (map[string]int, error) {
	rows, err := db.Query(`SELECT chamber, COUNT(*) FROM importance GROUP BY chamber`)
	if err != nil {
		return nil, storeErr("count by chamber", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var chamber string
		var n int
		if err := rows.Scan(&chamber, &n); err != nil {
			return nil, fmt.Errorf("scan chamber count: %w", err)
		}
		counts[chamber] = n
	}
	return counts, rows.Err()
}

// RecentTransitions returns the most recently promoted records.
func (db *DB) RecentTransitions(limit int) ([]Record, error) {
	rows, err := db.Query(`SELECT `+recordCols+` FROM importance
		WHERE promoted_at IS NOT NULL ORDER BY promoted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storeErr("recent transitions", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// PurgeSuperseded removes superseded records older than the cutoff.
// This is the only deletion path; nothing is removed automatically.
func (db *DB) PurgeSuperseded(olderThan int64) (int, error) {
	result, err := db.Exec(`DELETE FROM importance
		WHERE superseded_by IS NOT NULL AND created_at < ?`, olderThan)
	if err != nil {
		return 0, storeErr("purge superseded", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
