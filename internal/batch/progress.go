package batch

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	Done          int64 `json:"done"`
	Total         int64 `json:"total"`
	SourcesDone   int64 `json:"sources_done"`
	SourcesFailed int64 `json:"sources_failed"`
	Sources       int64 `json:"sources"`
}

// Progress aggregates block and source counts from concurrent workers.
type Progress struct {
	Blocks Counter

	total   atomic.Int64
	sources atomic.Int64
	done    atomic.Int64
	failed  atomic.Int64
}

func (p *Progress) SetTotal(blocks int64, sources int) {
	p.total.Store(blocks)
	p.sources.Store(int64(sources))
}

// Record counts a finished job.
func (p *Progress) Record(o Outcome) {
	p.done.Add(1)
	if !o.OK() {
		p.failed.Add(1)
	}
}

func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		Done:          p.Blocks.Load(),
		Total:         p.total.Load(),
		SourcesDone:   p.done.Load(),
		SourcesFailed: p.failed.Load(),
		Sources:       p.sources.Load(),
	}
}

// Watch calls fn with a fresh snapshot every interval until the returned
// stop function is called. stop delivers one final snapshot and waits for
// the watcher to exit.
func Watch(p *Progress, every time.Duration, fn func(Snapshot)) (stop func()) {
	if every <= 0 {
		every = 500 * time.Millisecond
	}
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-quit:
				fn(p.Snapshot())
				return
			case <-t.C:
				fn(p.Snapshot())
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			wg.Wait()
		})
	}
}
