package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"schemconv/internal/batch"
)

// JSONLZstdWriter appends JSON lines to hourly zstd-compressed files.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// RunEntry is one line of the run log.
type RunEntry struct {
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
	Dest       string `json:"dest"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	Blocks     int    `json:"blocks"`
	Palette    int    `json:"palette"`
	Entities   int    `json:"entities"`
	Warnings   int    `json:"warnings"`
	Bytes      int64  `json:"bytes,omitempty"`
	Digest     string `json:"digest,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	FinishedAt string `json:"finished_at"`
}

func EntryFor(runID string, o batch.Outcome) RunEntry {
	e := RunEntry{
		RunID:      runID,
		Source:     o.Source,
		Dest:       o.Dest,
		OK:         o.OK(),
		Blocks:     o.Blocks,
		Palette:    o.Palette,
		Entities:   o.Entities,
		Warnings:   o.Warnings,
		Bytes:      o.Bytes,
		Digest:     o.Digest,
		DurationMs: o.Duration.Milliseconds(),
		FinishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

// RunLogger writes one compressed JSONL entry per converted source.
type RunLogger struct{ w *JSONLZstdWriter }

func NewRunLogger(dir string) *RunLogger {
	return &RunLogger{w: NewJSONLZstdWriter(dir, "runs")}
}

func (l *RunLogger) WriteOutcome(runID string, o batch.Outcome) error {
	return l.w.Write(EntryFor(runID, o))
}

func (l *RunLogger) Close() error { return l.w.Close() }
