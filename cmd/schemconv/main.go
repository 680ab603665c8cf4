package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"schemconv/internal/batch"
	"schemconv/internal/convert"
	"schemconv/internal/persistence/indexdb"
	persistlog "schemconv/internal/persistence/log"
	"schemconv/internal/transport/progress"
	"schemconv/internal/tuning"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	summaryHead = "converted %d/%d sources (%s blocks)"
)

func main() {
	ctx, cancel := signalContext()
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout))
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("schemconv", flag.ContinueOnError)
	fs.SetOutput(stdout)
	var (
		input      = fs.String("input", "", "schematic file, or directory with -folder")
		output     = fs.String("output", "", "output file, or directory with -folder (default: next to input)")
		folder     = fs.Bool("folder", false, "convert every file in the input directory")
		workers    = fs.Int("workers", 0, "parallel workers (default: config or number of CPUs)")
		configPath = fs.String("config", "", "path to schemconv.yaml (optional)")
		writeJSON  = fs.Bool("json", false, "also write <dest>.json")

		logDir       = fs.String("log_dir", "", "directory for the compressed run log (empty to disable)")
		indexDB      = fs.String("index_db", "", "sqlite run index path (empty to disable)")
		progressAddr = fs.String("progress_addr", "", "websocket progress listen address, e.g. 127.0.0.1:8091 (empty to disable)")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	logger := log.New(stdout, "[schemconv] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*configPath)
	if err != nil {
		logger.Printf("load config: %v", err)
		return exitUsage
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			tune.Workers = *workers
		case "json":
			tune.WriteJSON = *writeJSON
		case "log_dir":
			tune.LogDir = *logDir
		case "index_db":
			tune.IndexDB = *indexDB
		case "progress_addr":
			tune.ProgressAddr = *progressAddr
		}
	})
	tune.Normalize()
	if err := tune.Validate(); err != nil {
		logger.Printf("config: %v", err)
		return exitUsage
	}

	if strings.TrimSpace(*input) == "" {
		logger.Printf("missing -input")
		fs.Usage()
		return exitUsage
	}
	jobs, err := discover(*input, *output, *folder, tune.Extension)
	if err != nil {
		logger.Printf("%v", err)
		return exitUsage
	}

	runID := uuid.NewString()
	prog := &batch.Progress{}
	prog.SetTotal(batch.Total(jobs), len(jobs))
	logger.Printf("run %s: %d sources, %s blocks, %d workers",
		runID, len(jobs), humanize.Comma(prog.Snapshot().Total), tune.Workers)

	var runLog *persistlog.RunLogger
	if tune.LogDir != "" {
		runLog = persistlog.NewRunLogger(tune.LogDir)
		defer runLog.Close()
	}

	var idx *indexdb.SQLiteIndex
	if tune.IndexDB != "" {
		idx, err = indexdb.OpenSQLite(tune.IndexDB)
		if err != nil {
			// Optional; conversion proceeds without it.
			logger.Printf("open index %s: %v", tune.IndexDB, err)
			idx = nil
		} else {
			defer idx.Close()
		}
	}
	if idx != nil {
		idx.RecordRun(runID, time.Now(), len(jobs), tune.Workers)
	}

	var ps *progress.Server
	if tune.ProgressAddr != "" {
		srvCtx, stopSrv := context.WithCancel(context.Background())
		defer stopSrv()
		ps = progress.NewServer(logger)
		addr, err := ps.Serve(srvCtx, tune.ProgressAddr)
		if err != nil {
			logger.Printf("progress listen %s: %v", tune.ProgressAddr, err)
			ps = nil
		} else {
			logger.Printf("progress on ws://%s%s", addr, progress.Path)
		}
	}

	stopWatch := batch.Watch(prog, tune.ProgressEvery(), func(s batch.Snapshot) {
		if ps != nil {
			ps.Publish(s)
		}
		logger.Printf("progress %s/%s blocks, %d/%d sources",
			humanize.Comma(s.Done), humanize.Comma(s.Total), s.SourcesDone, s.Sources)
	})

	rep := batch.Run(ctx, jobs, batch.Options{
		RunID:       runID,
		Workers:     tune.Workers,
		DataVersion: tune.DataVersion,
		Author:      tune.Author,
		WriteJSON:   tune.WriteJSON,
		Progress:    &prog.Blocks,
		Warn: func(j batch.Job, w convert.Warning) {
			logger.Printf("warn %s: %s", j.Source, w)
		},
		OnDone: func(o batch.Outcome) {
			prog.Record(o)
			if runLog != nil {
				if err := runLog.WriteOutcome(runID, o); err != nil {
					logger.Printf("run log: %v", err)
				}
			}
			if idx != nil {
				idx.RecordOutcome(runID, o)
			}
		},
	})
	stopWatch()
	if ps != nil {
		ps.Finish(prog.Snapshot())
	}

	var written int64
	for _, o := range rep.Outcomes {
		written += o.Bytes
	}
	logger.Printf(summaryHead+", wrote %s", rep.Succeeded(), len(jobs),
		humanize.Comma(int64(rep.Blocks())), humanize.Bytes(uint64(written)))
	failures := rep.Failures()
	malformed := 0
	for _, o := range failures {
		if batch.IsParseFailure(o) {
			malformed++
		}
		logger.Printf("FAIL %s: %v", o.Source, o.Err)
	}
	if malformed > 0 {
		logger.Printf("%d of %d failures are malformed block ids", malformed, len(failures))
	}
	if len(failures) > 0 {
		return exitFailed
	}
	return exitOK
}

// discover maps the input path to conversion jobs.
func discover(input, output string, folder bool, ext string) ([]batch.Job, error) {
	info, err := os.Stat(input)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("input %s does not exist", input)
		}
		return nil, fmt.Errorf("stat input: %w", err)
	}

	if !folder {
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("input %s is not a file (use -folder for directories)", input)
		}
		dest := output
		if dest == "" {
			dest = strings.TrimSuffix(input, filepath.Ext(input)) + ext
		}
		return []batch.Job{{Source: input, Dest: dest}}, nil
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", input)
	}
	outDir := output
	if outDir == "" {
		outDir = input
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	ents, err := os.ReadDir(input)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	var jobs []batch.Job
	for _, e := range ents {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		// Earlier outputs written into the input directory.
		if strings.EqualFold(filepath.Ext(name), ext) || strings.HasSuffix(name, ext+".json") {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		jobs = append(jobs, batch.Job{
			Source: filepath.Join(input, name),
			Dest:   filepath.Join(outDir, base+ext),
		})
	}
	return jobs, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
