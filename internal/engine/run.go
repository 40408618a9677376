package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/parcp/parcp/internal/checkpoint"
	"github.com/parcp/parcp/internal/op"
	"github.com/parcp/parcp/internal/progress"
	"github.com/parcp/parcp/internal/runconfig"
	"github.com/parcp/parcp/internal/stats"
	"github.com/parcp/parcp/internal/walk"
)

// Driver is the interface both copy drivers satisfy: consume an
// Operation stream, return a channel of errors that closes once every
// operation (and every block, for par-block) has been accounted for.
type Driver interface {
	Run(ctx context.Context, ops <-chan op.Operation) <-chan error
}

// RunResult is the outcome of one complete copy run.
type RunResult struct {
	Stats     stats.Snapshot
	Err       error
	ErrCount  int
	Cancelled bool
}

// Run walks cfg.Sources and drives the selected copy driver to
// completion, returning once every operation has been processed or the
// context is cancelled. It is the single entry point cmd/pcp calls.
//
// collector may be nil, in which case Run allocates one privately; pass
// one in when a caller (e.g. a presenter ticking on a separate
// goroutine) needs to observe counters while the run is in progress.
func Run(ctx context.Context, cfg *runconfig.Config, sink progress.Sink, collector *stats.Collector) RunResult {
	if err := cfg.Validate(); err != nil {
		return RunResult{Err: err}
	}

	if cfg.NoProgress {
		// Nil out the sink here rather than trust every caller to do
		// it: progress.Emit's nil check then short-circuits every
		// Start/Advance/Finish/Error call from either driver before
		// it touches the channel, matching spec.md §4.7's "producers
		// check a flag before constructing an event" rather than just
		// quieting a downstream presenter.
		sink = nil
	}

	if collector == nil {
		collector = stats.NewCollector()
	}

	var cp *checkpoint.CheckpointDB
	if cfg.CheckpointPath != "" {
		var err error
		cp, err = checkpoint.OpenCheckpoint(cfg.Sources[0], cfg.Target)
		if err != nil {
			return RunResult{Err: fmt.Errorf("open checkpoint: %w", err)}
		}
		defer cp.Close()
	}

	wcfg := cfg.WalkerConfig()
	if cp != nil {
		wcfg.SkipComplete = func(dstPath string, size int64, modTime time.Time) bool {
			if !cp.IsCompleted(dstPath, size, modTime.UnixNano()) {
				return false
			}
			if fi, err := os.Stat(dstPath); err != nil || fi.Size() != size {
				return false
			}
			collector.AddFilesSkipped(1)
			progress.Emit(sink, progress.FinishEvent(dstPath, progress.Skipped))
			return true
		}
	}

	walker := walk.NewWalker(wcfg)
	ops, walkErrs := walker.Scan(ctx)

	var driver Driver
	switch cfg.Driver {
	case runconfig.DriverParBlock:
		driver = NewParBlockDriver(cfg, sink, collector, cp)
	default:
		driver = NewParFileDriver(cfg, sink, collector, cp)
	}

	driverErrs := driver.Run(ctx, ops)

	var result RunResult
	merged := mergeErrors(walkErrs, driverErrs)
	for err := range merged {
		result.ErrCount++
		if result.Err == nil {
			result.Err = err
		}
		if errors.Is(err, context.Canceled) {
			result.Cancelled = true
		}
	}

	CleanupTmpFiles()

	if result.ErrCount > 1 {
		result.Err = fmt.Errorf("%w (and %d more error(s))", result.Err, result.ErrCount-1)
	}
	result.Stats = collector.Snapshot()
	return result
}

// mergeErrors fans two error channels into one, closing the output once
// both inputs have closed.
func mergeErrors(a, b <-chan error) <-chan error {
	out := make(chan error, 64)
	done := make(chan struct{}, 2)
	forward := func(ch <-chan error) {
		for err := range ch {
			out <- err
		}
		done <- struct{}{}
	}
	go forward(a)
	go forward(b)
	go func() {
		<-done
		<-done
		close(out)
	}()
	return out
}
