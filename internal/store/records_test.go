package store

import (
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateGetRecord(t *testing.T) {
	db := testDB(t)

	written := int64(5000)
	rec := &Record{
		Path:               "notes/2026-08-12-voice.md",
		AccessCount:        3,
		ReferenceCount:     1,
		ExplicitImportance: 2.5,
		Tags:               []string{"keep"},
		ContextTags:        []string{"projects"},
		CreatedAt:          1000,
		LastWrittenAt:      &written,
		SourceChunk:        "notes/raw.md",
	}
	if err := db.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if rec.ID == 0 {
		t.Error("ID not set")
	}

	got, err := db.GetRecord(rec.Path, 0, 0)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got == nil {
		t.Fatal("record not found")
	}
	if got.AccessCount != 3 || got.ReferenceCount != 1 || got.ExplicitImportance != 2.5 {
		t.Errorf("signals = %d/%d/%.1f, want 3/1/2.5",
			got.AccessCount, got.ReferenceCount, got.ExplicitImportance)
	}
	if got.Chamber != Tier1 {
		t.Errorf("Chamber = %q, want default tier1", got.Chamber)
	}
	if len(got.ContextTags) != 1 || got.ContextTags[0] != "projects" {
		t.Errorf("ContextTags = %v", got.ContextTags)
	}
	if got.LastWrittenAt == nil || *got.LastWrittenAt != 5000 {
		t.Errorf("LastWrittenAt = %v, want 5000", got.LastWrittenAt)
	}
	if got.SourceChunk != "notes/raw.md" {
		t.Errorf("SourceChunk = %q", got.SourceChunk)
	}
}

func TestGetRecordMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.GetRecord("nope.md", 0, 0)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for untracked record, got %+v", got)
	}
}

func TestTouchAccessUpsert(t *testing.T) {
	db := testDB(t)

	if err := db.TouchAccess("notes/a.md", 0, 0, 1000); err != nil {
		t.Fatalf("first TouchAccess: %v", err)
	}
	if err := db.TouchAccess("notes/a.md", 0, 0, 2000); err != nil {
		t.Fatalf("second TouchAccess: %v", err)
	}

	rec, err := db.GetRecord("notes/a.md", 0, 0)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", rec.AccessCount)
	}
	if rec.LastAccessedAt == nil || *rec.LastAccessedAt != 2000 {
		t.Errorf("LastAccessedAt = %v, want 2000", rec.LastAccessedAt)
	}

	// Line-range identity is separate from the whole-file record
	if err := db.TouchAccess("notes/a.md", 10, 20, 3000); err != nil {
		t.Fatalf("range TouchAccess: %v", err)
	}
	rangeRec, err := db.GetRecord("notes/a.md", 10, 20)
	if err != nil {
		t.Fatalf("GetRecord range: %v", err)
	}
	if rangeRec.AccessCount != 1 {
		t.Errorf("range AccessCount = %d, want 1", rangeRec.AccessCount)
	}
}

func TestTouchWriteLeavesAccessCount(t *testing.T) {
	db := testDB(t)

	if err := db.TouchAccess("notes/a.md", 0, 0, 1000); err != nil {
		t.Fatalf("TouchAccess: %v", err)
	}
	if err := db.TouchWrite("notes/a.md", 2000); err != nil {
		t.Fatalf("TouchWrite: %v", err)
	}

	rec, _ := db.GetRecord("notes/a.md", 0, 0)
	if rec.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1 (write must not touch it)", rec.AccessCount)
	}
	if rec.LastWrittenAt == nil || *rec.LastWrittenAt != 2000 {
		t.Errorf("LastWrittenAt = %v, want 2000", rec.LastWrittenAt)
	}
}

func TestSetChamberNeverRegresses(t *testing.T) {
	db := testDB(t)

	if err := db.TouchAccess("notes/a.md", 0, 0, 1000); err != nil {
		t.Fatalf("TouchAccess: %v", err)
	}
	if err := db.SetChamber("notes/a.md", 0, 0, Tier3, 2000); err != nil {
		t.Fatalf("SetChamber to tier3: %v", err)
	}
	// Attempting to move back to tier2 must be a silent no-op
	if err := db.SetChamber("notes/a.md", 0, 0, Tier2, 3000); err != nil {
		t.Fatalf("SetChamber to tier2: %v", err)
	}

	rec, _ := db.GetRecord("notes/a.md", 0, 0)
	if rec.Chamber != Tier3 {
		t.Errorf("Chamber = %q, want tier3 (no regression)", rec.Chamber)
	}
	if rec.PromotedAt == nil || *rec.PromotedAt != 2000 {
		t.Errorf("PromotedAt = %v, want 2000", rec.PromotedAt)
	}

	// Administrative reset is the only regression path
	if err := db.ResetChamber("notes/a.md", 0, 0, Tier1); err != nil {
		t.Fatalf("ResetChamber: %v", err)
	}
	rec, _ = db.GetRecord("notes/a.md", 0, 0)
	if rec.Chamber != Tier1 {
		t.Errorf("Chamber after reset = %q, want tier1", rec.Chamber)
	}
	if rec.PromotedAt != nil {
		t.Errorf("PromotedAt after reset = %v, want nil", rec.PromotedAt)
	}
}

func TestCountByChamber(t *testing.T) {
	db := testDB(t)

	for i, chamber := range []string{Tier1, Tier1, Tier2, Tier3} {
		rec := &Record{Path: "notes/" + string(rune('a'+i)) + ".md", Chamber: chamber, CreatedAt: 1000}
		if err := db.CreateRecord(rec); err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
	}

	counts, err := db.CountByChamber()
	if err != nil {
		t.Fatalf("CountByChamber: %v", err)
	}
	if counts[Tier1] != 2 || counts[Tier2] != 1 || counts[Tier3] != 1 {
		t.Errorf("counts = %v, want 2/1/1", counts)
	}
}

func TestPurgeSuperseded(t *testing.T) {
	db := testDB(t)

	old := &Record{Path: "notes/old.md", CreatedAt: 1000, SupersededBy: "notes/new.md"}
	if err := db.CreateRecord(old); err != nil {
		t.Fatalf("CreateRecord old: %v", err)
	}
	fresh := &Record{Path: "notes/new.md", CreatedAt: time.Now().UnixMilli()}
	if err := db.CreateRecord(fresh); err != nil {
		t.Fatalf("CreateRecord new: %v", err)
	}

	n, err := db.PurgeSuperseded(5000)
	if err != nil {
		t.Fatalf("PurgeSuperseded: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}

	// The replacement survives
	rec, _ := db.GetRecord("notes/new.md", 0, 0)
	if rec == nil {
		t.Error("replacement record was purged")
	}
}
