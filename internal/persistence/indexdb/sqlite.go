package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"schemconv/internal/batch"
)

// SQLiteIndex records runs and per-source conversions. Writes are queued
// and applied by a single goroutine.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqConversion
)

type req struct {
	kind reqKind

	run        runRow
	conversion conversionRow
}

type runRow struct {
	RunID     string
	StartedAt string
	Sources   int
	Workers   int
}

type conversionRow struct {
	RunID      string
	Source     string
	Dest       string
	Status     string
	Blocks     int
	Palette    int
	Entities   int
	Warnings   int
	Bytes      int64
	Digest     string
	Error      string
	FinishedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			sources INTEGER NOT NULL,
			workers INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversions (
			run_id TEXT NOT NULL,
			source TEXT NOT NULL,
			dest TEXT NOT NULL,
			status TEXT NOT NULL,
			blocks INTEGER NOT NULL,
			palette INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			warnings INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			digest TEXT,
			error TEXT,
			finished_at TEXT NOT NULL,
			PRIMARY KEY (run_id, source)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_source ON conversions(source, finished_at);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped is the number of writes discarded because the queue was full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// The JSONL run log remains the source of truth.
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) RecordRun(runID string, started time.Time, sources, workers int) {
	s.enqueue(req{kind: reqRun, run: runRow{
		RunID:     runID,
		StartedAt: started.UTC().Format(time.RFC3339Nano),
		Sources:   sources,
		Workers:   workers,
	}})
}

func (s *SQLiteIndex) RecordOutcome(runID string, o batch.Outcome) {
	r := conversionRow{
		RunID:      runID,
		Source:     o.Source,
		Dest:       o.Dest,
		Status:     "ok",
		Blocks:     o.Blocks,
		Palette:    o.Palette,
		Entities:   o.Entities,
		Warnings:   o.Warnings,
		Bytes:      o.Bytes,
		Digest:     o.Digest,
		FinishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if o.Err != nil {
		r.Status = "failed"
		r.Error = o.Err.Error()
	}
	s.enqueue(req{kind: reqConversion, conversion: r})
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,started_at,sources,workers) VALUES(?,?,?,?)`)
	insertConversion, _ := s.db.Prepare(`INSERT OR REPLACE INTO conversions(run_id,source,dest,status,blocks,palette,entities,warnings,bytes,digest,error,finished_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertRun != nil {
			_ = insertRun.Close()
		}
		if insertConversion != nil {
			_ = insertConversion.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			if insertRun == nil {
				continue
			}
			ru := r.run
			if _, err := tx.Stmt(insertRun).Exec(ru.RunID, ru.StartedAt, ru.Sources, ru.Workers); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqConversion:
			if insertConversion == nil {
				continue
			}
			c := r.conversion
			if _, err := tx.Stmt(insertConversion).Exec(
				c.RunID,
				c.Source,
				c.Dest,
				c.Status,
				c.Blocks,
				c.Palette,
				c.Entities,
				c.Warnings,
				c.Bytes,
				c.Digest,
				c.Error,
				c.FinishedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
