// Package batch converts many schematic files, optionally in parallel, and
// aggregates progress across workers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"schemconv/internal/convert"
	"schemconv/internal/convert/blockid"
	"schemconv/internal/persistence/schem"
	"schemconv/internal/persistence/structure"
)

// ErrDuplicateDest marks a job whose destination is already written by an
// earlier job of the same run.
var ErrDuplicateDest = errors.New("duplicate destination")

// Job is one source file and the path its structure is written to.
type Job struct {
	Source string
	Dest   string
}

// Counter is the progress count shared by all workers.
type Counter struct{ n atomic.Int64 }

func (c *Counter) Add(n int) { c.n.Add(int64(n)) }

func (c *Counter) Load() int64 { return c.n.Load() }

// Outcome is the result of converting one Job. Err is nil on success.
type Outcome struct {
	Job

	Blocks   int
	Palette  int
	Entities int
	Warnings int

	Bytes  int64
	Digest string

	Err      error
	Duration time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

type Options struct {
	// RunID identifies the run in logs and the index. Generated when empty.
	RunID string

	Workers     int
	DataVersion int
	Author      string
	WriteJSON   bool

	// Progress receives one unit per converted block. Optional.
	Progress *Counter
	// Warn is called from worker goroutines for recoverable problems.
	Warn func(Job, convert.Warning)
	// OnDone is called once per job, serially, as jobs finish.
	OnDone func(Outcome)
}

// Report collects the outcomes of a run in job order.
type Report struct {
	RunID    string
	Started  time.Time
	Outcomes []Outcome
}

func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

func (r Report) Blocks() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n += o.Blocks
		}
	}
	return n
}

// Run converts every job. A failing job never stops the others. When ctx is
// cancelled, jobs not yet started are reported with ctx.Err().
func Run(ctx context.Context, jobs []Job, opts Options) Report {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	rep := Report{
		RunID:    runID,
		Started:  time.Now().UTC(),
		Outcomes: make([]Outcome, len(jobs)),
	}
	if len(jobs) == 0 {
		return rep
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	shadowed := duplicates(jobs)

	type result struct {
		idx int
		out Outcome
	}
	inCh := make(chan int)
	outCh := make(chan result, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range inCh {
				if first, dup := shadowed[i]; dup {
					err := fmt.Errorf("%w: %s is also written by %s", ErrDuplicateDest, jobs[i].Dest, jobs[first].Source)
					outCh <- result{idx: i, out: Outcome{Job: jobs[i], Err: err}}
					continue
				}
				outCh <- result{idx: i, out: ConvertFile(jobs[i], opts)}
			}
		}()
	}

	go func() {
		defer close(inCh)
		for i := range jobs {
			select {
			case <-ctx.Done():
				for j := i; j < len(jobs); j++ {
					outCh <- result{idx: j, out: Outcome{Job: jobs[j], Err: ctx.Err()}}
				}
				return
			case inCh <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outCh)
	}()

	for r := range outCh {
		rep.Outcomes[r.idx] = r.out
		if opts.OnDone != nil {
			opts.OnDone(r.out)
		}
	}
	return rep
}

// ConvertFile runs the full pipeline for one job: read, convert, write.
func ConvertFile(job Job, opts Options) (out Outcome) {
	out.Job = job
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			out.Err = fmt.Errorf("panic: %v\n%s", p, strings.TrimSpace(string(debug.Stack())))
		}
		out.Duration = time.Since(start)
	}()

	c, err := schem.Read(job.Source)
	if err != nil {
		out.Err = fmt.Errorf("read: %w", err)
		return out
	}

	copts := convert.Options{
		DataVersion: opts.DataVersion,
		Author:      opts.Author,
	}
	if opts.Progress != nil {
		copts.Progress = opts.Progress
	}
	if opts.Warn != nil {
		copts.Warn = func(w convert.Warning) { opts.Warn(job, w) }
	}

	res, err := convert.Convert(c, copts)
	if err != nil {
		out.Err = fmt.Errorf("convert: %w", err)
		return out
	}
	out.Blocks = len(res.Blocks)
	out.Palette = len(res.Palette)
	out.Entities = res.Entities
	out.Warnings = res.Warnings

	w, err := structure.Write(job.Dest, res)
	if err != nil {
		out.Err = fmt.Errorf("write: %w", err)
		return out
	}
	out.Bytes = w.Bytes
	out.Digest = w.Digest

	if opts.WriteJSON {
		if err := structure.WriteJSON(job.Dest+".json", res); err != nil {
			out.Err = fmt.Errorf("write json: %w", err)
			return out
		}
	}
	return out
}

// Total sums the block counts of all sources. Unreadable sources count as
// zero; they fail later with a proper outcome.
func Total(jobs []Job) int64 {
	shadowed := duplicates(jobs)
	var total int64
	for i, j := range jobs {
		if _, dup := shadowed[i]; dup {
			continue
		}
		n, err := schem.BlockCount(j.Source)
		if err != nil {
			continue
		}
		total += int64(n)
	}
	return total
}

// duplicates maps the index of every job whose destination was already
// claimed by an earlier job to the index of that earlier job.
func duplicates(jobs []Job) map[int]int {
	claimed := make(map[string]int, len(jobs))
	out := make(map[int]int)
	for i, j := range jobs {
		dest := filepath.Clean(j.Dest)
		if first, ok := claimed[dest]; ok {
			out[i] = first
			continue
		}
		claimed[dest] = i
	}
	return out
}

// IsParseFailure reports whether o failed because of a malformed block id.
func IsParseFailure(o Outcome) bool {
	var pe *blockid.ParseError
	return errors.As(o.Err, &pe)
}
