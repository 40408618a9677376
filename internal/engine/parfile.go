// Package engine implements the two interchangeable copy drivers
// (par-file and par-block) that consume the walker's Operation stream,
// plus the shared metadata finalisation, reflink, and checksum
// machinery both drivers build on.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/parcp/parcp/internal/checkpoint"
	"github.com/parcp/parcp/internal/fsprim"
	"github.com/parcp/parcp/internal/op"
	"github.com/parcp/parcp/internal/progress"
	"github.com/parcp/parcp/internal/runconfig"
	"github.com/parcp/parcp/internal/stats"
)

// ParFileDriver assigns each file to a single worker for its entire
// lifetime — the simplest driver, and the default for workloads with
// many small-to-medium files where per-file overhead, not single-file
// bandwidth, dominates.
type ParFileDriver struct {
	cfg     *runconfig.Config
	opts    FinaliseOptions
	sink    progress.Sink
	stats   *stats.Collector
	limiter *rate.Limiter
	cp      *checkpoint.CheckpointDB
}

// NewParFileDriver builds a par-file driver from a resolved run config.
// cp may be nil; when set, every successfully copied file is recorded so
// a later --resume run can skip it.
func NewParFileDriver(cfg *runconfig.Config, sink progress.Sink, collector *stats.Collector, cp *checkpoint.CheckpointDB) *ParFileDriver {
	d := &ParFileDriver{
		cfg:   cfg,
		opts:  finaliseOptionsFrom(cfg),
		sink:  sink,
		stats: collector,
		cp:    cp,
	}
	if cfg.BandwidthLimit > 0 {
		d.limiter = newBWLimiter(cfg.BandwidthLimit)
	}
	return d
}

// Run consumes ops until it closes, fanning each Operation out across
// cfg.Workers goroutines. It returns at once; the returned channel
// closes once every operation has been processed or ctx is cancelled.
func (d *ParFileDriver) Run(ctx context.Context, ops <-chan op.Operation) <-chan error {
	errs := make(chan error, 64)

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for o := range ops {
				if o.Type == op.End {
					continue
				}
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := d.process(ctx, o, workerID); err != nil {
					sendErrNB(errs, err)
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	return errs
}

func (d *ParFileDriver) process(ctx context.Context, o op.Operation, workerID int) error {
	switch o.Type {
	case op.MakeDir:
		return d.makeDir(o)
	case op.MakeSymlink:
		return fsprim.MakeSymlink(o.DstPath, o.LinkTarget)
	case op.MakeHardlink:
		return fsprim.MakeHardlink(o.DstPath, o.LinkTarget)
	case op.MakeSpecial:
		return fsprim.MakeSpecial(o.DstPath, o.Info.Kind, o.Info.Mode, o.Info.Rdev)
	case op.CopyFile:
		relPath := o.DstPath
		n, err := copyFile(ctx, o.SrcPath, o.DstPath, relPath, o.Info, d.cfg, d.opts, d.sink, d.limiter)
		if err == nil {
			if d.stats != nil {
				d.stats.AddFilesCopied(1)
				d.stats.AddBytesCopied(n)
			}
			markCheckpoint(d.cp, o)
		} else if d.stats != nil {
			d.stats.AddFilesFailed(1)
		}
		_ = workerID
		return err
	case op.FinaliseMetadata:
		return finaliseDir(o.SrcPath, o.DstPath, o.Info, d.opts)
	default:
		return fmt.Errorf("unknown operation type %v for %s", o.Type, o.DstPath)
	}
}

// makeDir creates a directory permissively (0700) so every worker can
// write children regardless of the source's final mode; the real mode,
// ownership, and timestamps are applied later by FinaliseMetadata once
// every descendant operation has run.
func (d *ParFileDriver) makeDir(o op.Operation) error {
	if err := os.MkdirAll(o.DstPath, 0o700); err != nil {
		return fsprim.Classify(o.DstPath, err)
	}
	return nil
}

// finaliseOptionsFrom projects the CLI's --no-perms/--no-timestamps
// flags onto FinaliseOptions. Only Perms and Timestamps have a
// documented gate (spec.md §4.3 step 3); ownership, xattrs, and ACLs
// have none and are always attempted, relying on the fsprim primitives
// themselves to no-op where the filesystem or privilege level doesn't
// support them.
func finaliseOptionsFrom(cfg *runconfig.Config) FinaliseOptions {
	return FinaliseOptions{
		Perms:      !cfg.NoPerms,
		Timestamps: !cfg.NoTimestamps,
		Owner:      true,
		Xattrs:     true,
		ACLs:       true,
		Policy:     PolicyRelaxed,
	}
}

// markCheckpoint records a successfully copied regular file in the
// resume database, if one is attached to the run. Errors are swallowed:
// a checkpoint write failure should never fail an otherwise-successful
// copy.
func markCheckpoint(cp *checkpoint.CheckpointDB, o op.Operation) {
	if cp == nil {
		return
	}
	_ = cp.MarkCompleted(o.DstPath, o.Info.Size, "", o.Info.ModTime.UnixNano())
}

func sendErrNB(errs chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errs <- err:
	default:
	}
}
