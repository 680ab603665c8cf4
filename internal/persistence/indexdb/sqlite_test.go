package indexdb

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"schemconv/internal/batch"
)

func TestSQLiteIndex_RecordRunAndOutcomes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	idx.RecordRun("run-1", started, 2, 4)
	idx.RecordOutcome("run-1", batch.Outcome{
		Job:      batch.Job{Source: "/in/a.schem", Dest: "/out/a.nbt"},
		Blocks:   12,
		Palette:  3,
		Entities: 1,
		Bytes:    345,
		Digest:   "abcd",
	})
	idx.RecordOutcome("run-1", batch.Outcome{
		Job: batch.Job{Source: "/in/b.schem", Dest: "/out/b.nbt"},
		Err: errors.New("convert: boom"),
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		startedAt string
		sources   int
		workers   int
	)
	if err := db.QueryRow(`SELECT started_at,sources,workers FROM runs WHERE run_id='run-1'`).Scan(&startedAt, &sources, &workers); err != nil {
		t.Fatalf("Scan run: %v", err)
	}
	if startedAt != "2026-03-01T12:00:00Z" || sources != 2 || workers != 4 {
		t.Fatalf("run mismatch: started=%q sources=%d workers=%d", startedAt, sources, workers)
	}

	var (
		status string
		blocks int
		bytes  int64
		digest string
	)
	if err := db.QueryRow(`SELECT status,blocks,bytes,digest FROM conversions WHERE source='/in/a.schem'`).Scan(&status, &blocks, &bytes, &digest); err != nil {
		t.Fatalf("Scan ok conversion: %v", err)
	}
	if status != "ok" || blocks != 12 || bytes != 345 || digest != "abcd" {
		t.Fatalf("ok row mismatch: status=%q blocks=%d bytes=%d digest=%q", status, blocks, bytes, digest)
	}

	var msg string
	if err := db.QueryRow(`SELECT status,error FROM conversions WHERE source='/in/b.schem'`).Scan(&status, &msg); err != nil {
		t.Fatalf("Scan failed conversion: %v", err)
	}
	if status != "failed" || msg != "convert: boom" {
		t.Fatalf("failed row mismatch: status=%q error=%q", status, msg)
	}
}

func TestSQLiteIndex_QueueDrop(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.RecordRun("r", time.Now(), 1, 1)
	s.RecordOutcome("r", batch.Outcome{Job: batch.Job{Source: "x"}})
	s.RecordOutcome("r", batch.Outcome{Job: batch.Job{Source: "y"}})

	if got := s.Dropped(); got != 2 {
		t.Fatalf("Dropped=%d want=2", got)
	}
}

func TestSQLiteIndex_RejectsEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
