package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/parcp/parcp/internal/checkpoint"
	"github.com/parcp/parcp/internal/fsprim"
	"github.com/parcp/parcp/internal/op"
	"github.com/parcp/parcp/internal/progress"
	"github.com/parcp/parcp/internal/runconfig"
	"github.com/parcp/parcp/internal/stats"
)

// blockTask is one block-sized slice of a single file's copy, scheduled
// onto the shared block worker pool. Every blockTask for the same file
// shares one inflightFile, so whichever worker processes the last block
// is the one that finalises metadata and commits the rename.
type blockTask struct {
	file  *inflightFile
	ext   fsprim.Extent // absolute byte range within the source file
	isEnd bool          // never set: schedule runs non-regular/dir ops itself
}

// inflightFile is the shared state every block of one file's copy
// writes through. outstanding starts at the block count and is
// decremented as each block finishes; the worker that drives it to zero
// owns finalisation.
type inflightFile struct {
	op       op.Operation
	tmpFd    *os.File
	tmpPath  string
	relPath  string
	firstErr atomic.Value   // error
	hasher   *orderedHasher // non-nil only under --verify-checksum

	outstanding atomic.Int64
	written     atomic.Int64
}

// ParBlockDriver splits each file into fixed-size blocks and fans those
// blocks, rather than whole files, across cfg.Workers goroutines — the
// right driver when the tree holds a few very large files, since
// par-file would otherwise leave most workers idle while one worker
// streams a single huge file.
type ParBlockDriver struct {
	cfg     *runconfig.Config
	opts    FinaliseOptions
	sink    progress.Sink
	stats   *stats.Collector
	limiter *rate.Limiter
	cp      *checkpoint.CheckpointDB
}

// NewParBlockDriver builds a par-block driver from a resolved run config.
// cp may be nil; when set, every successfully copied file is recorded so
// a later --resume run can skip it.
func NewParBlockDriver(cfg *runconfig.Config, sink progress.Sink, collector *stats.Collector, cp *checkpoint.CheckpointDB) *ParBlockDriver {
	d := &ParBlockDriver{
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

// Run consumes ops, splitting each CopyFile operation into block tasks
// and dispatching every other operation type directly, identically to
// ParFileDriver. Unlike ParFileDriver, a single large file's blocks may
// run across every worker simultaneously.
func (d *ParBlockDriver) Run(ctx context.Context, ops <-chan op.Operation) <-chan error {
	errs := make(chan error, 64)
	blocks := make(chan *blockTask, 2*d.cfg.Workers)

	var workerWg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for bt := range blocks {
				select {
				case <-ctx.Done():
					return
				default:
				}
				d.processBlock(ctx, bt, errs)
			}
		}()
	}

	var schedWg sync.WaitGroup
	schedWg.Add(1)
	go func() {
		defer schedWg.Done()
		for o := range ops {
			if o.Type == op.End {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			d.schedule(ctx, o, blocks, errs)
		}
	}()

	go func() {
		schedWg.Wait()
		close(blocks)
		workerWg.Wait()
		close(errs)
	}()

	return errs
}

// schedule dispatches a non-file operation immediately, or splits a
// CopyFile operation into cfg.BlockSize-sized block tasks sharing one
// inflightFile.
func (d *ParBlockDriver) schedule(ctx context.Context, o op.Operation, blocks chan<- *blockTask, errs chan<- error) {
	switch o.Type {
	case op.MakeDir:
		if err := os.MkdirAll(o.DstPath, 0o700); err != nil {
			sendErrNB(errs, fsprim.Classify(o.DstPath, err))
		}
		return
	case op.MakeSymlink:
		sendErrNB(errs, fsprim.MakeSymlink(o.DstPath, o.LinkTarget))
		return
	case op.MakeHardlink:
		sendErrNB(errs, fsprim.MakeHardlink(o.DstPath, o.LinkTarget))
		return
	case op.MakeSpecial:
		sendErrNB(errs, fsprim.MakeSpecial(o.DstPath, o.Info.Kind, o.Info.Mode, o.Info.Rdev))
		return
	case op.FinaliseMetadata:
		sendErrNB(errs, finaliseDir(o.SrcPath, o.DstPath, o.Info, d.opts))
		return
	case op.CopyFile:
		d.scheduleFile(ctx, o, blocks, errs)
		return
	default:
		sendErrNB(errs, fmt.Errorf("unknown operation type %v for %s", o.Type, o.DstPath))
	}
}

func (d *ParBlockDriver) scheduleFile(ctx context.Context, o op.Operation, blocks chan<- *blockTask, errs chan<- error) {
	progress.Emit(d.sink, progress.StartEvent(o.DstPath, o.Info.Size))

	perm := os.FileMode(o.Info.Mode).Perm()

	if d.cfg.Reflink != runconfig.ReflinkNever && !d.cfg.VerifyChecksum {
		_ = os.Remove(o.DstPath)
		fd, ok, err := tryReflink(d.cfg.Reflink, o.SrcPath, o.DstPath, perm, o.Info.DevIno.Dev)
		if err != nil {
			progress.Emit(d.sink, progress.ErrorEvent(o.DstPath, classifyProgressKind(err), err))
			sendErrNB(errs, err)
			return
		}
		if ok {
			n, ferr := finishReflinked(o.SrcPath, fd, o.Info, d.cfg, d.opts)
			if ferr != nil {
				progress.Emit(d.sink, progress.ErrorEvent(o.DstPath, classifyProgressKind(ferr), ferr))
			}
			d.recordResult(o, n, ferr)
			sendErrNB(errs, ferr)
			return
		}
	}

	if o.Info.Size == 0 {
		d.scheduleEmptyFile(o, errs)
		return
	}

	tmpFd, tmpPath, err := createTempSibling(o.DstPath, perm)
	if err != nil {
		sendErrNB(errs, err)
		return
	}

	srcFd, err := os.Open(o.SrcPath)
	if err != nil {
		discardTempSibling(tmpFd, tmpPath)
		sendErrNB(errs, fsprim.Classify(o.SrcPath, err))
		return
	}
	extents, err := fsprim.Extents(srcFd, o.Info.Size)
	srcFd.Close()
	if err != nil {
		discardTempSibling(tmpFd, tmpPath)
		sendErrNB(errs, err)
		return
	}
	sparse := len(extents) > 0 && (len(extents) > 1 || extents[0].Length != o.Info.Size)
	if sparse {
		if err := fsprim.AllocateSparse(tmpFd, o.Info.Size); err != nil {
			discardTempSibling(tmpFd, tmpPath)
			sendErrNB(errs, err)
			return
		}
	} else {
		extents = []fsprim.Extent{{Offset: 0, Length: o.Info.Size}}
	}

	tasks := splitExtents(extents, d.cfg.BlockSize)

	f := &inflightFile{op: o, tmpFd: tmpFd, tmpPath: tmpPath, relPath: o.DstPath}
	if d.cfg.VerifyChecksum {
		f.hasher = newOrderedHasher()
		feedHoles(f.hasher, extents, o.Info.Size)
	}
	f.outstanding.Store(int64(len(tasks)))

	for _, ext := range tasks {
		select {
		case blocks <- &blockTask{file: f, ext: ext}:
		case <-ctx.Done():
			return
		}
	}
}

// scheduleEmptyFile handles the zero-length case directly: there is no
// data to block up, so the scheduler itself creates, finalises, and
// commits the file rather than handing it to the block pool.
func (d *ParBlockDriver) scheduleEmptyFile(o op.Operation, errs chan<- error) {
	perm := os.FileMode(o.Info.Mode).Perm()
	tmpFd, tmpPath, err := createTempSibling(o.DstPath, perm)
	if err != nil {
		sendErrNB(errs, err)
		return
	}
	if err := finaliseFile(o.SrcPath, tmpFd, o.Info, d.opts); err != nil {
		discardTempSibling(tmpFd, tmpPath)
		sendErrNB(errs, err)
		return
	}
	if d.cfg.Fsync {
		if err := tmpFd.Sync(); err != nil {
			discardTempSibling(tmpFd, tmpPath)
			sendErrNB(errs, fsprim.Classify(tmpPath, err))
			return
		}
	}
	if d.cfg.VerifyChecksum {
		if err := verifyCommitted(tmpPath, newOrderedHasher().finish(0)); err != nil {
			discardTempSibling(tmpFd, tmpPath)
			sendErrNB(errs, err)
			return
		}
	}
	err = commitTempSibling(tmpFd, tmpPath, o.DstPath)
	d.recordResult(o, 0, err)
	sendErrNB(errs, err)
}

// splitExtents breaks each data extent into blockSize-sized pieces so
// no single block task runs longer than necessary to keep every worker
// fed.
func splitExtents(extents []fsprim.Extent, blockSize int64) []fsprim.Extent {
	if blockSize <= 0 {
		blockSize = runconfig.DefaultBlockSize
	}
	var out []fsprim.Extent
	for _, ext := range extents {
		off := ext.Offset
		end := ext.Offset + ext.Length
		for off < end {
			length := blockSize
			if off+length > end {
				length = end - off
			}
			out = append(out, fsprim.Extent{Offset: off, Length: length})
			off += length
		}
	}
	return out
}

func (d *ParBlockDriver) processBlock(ctx context.Context, bt *blockTask, errs chan<- error) {
	f := bt.file

	if err := waitForBandwidth(ctx, d.limiter, bt.ext.Length); err != nil {
		f.firstErr.CompareAndSwap(nil, err)
		if f.outstanding.Add(-1) == 0 {
			d.finishFile(ctx, f, errs)
		}
		return
	}

	params := fsprim.CopyParams{
		SrcPath:   f.op.SrcPath,
		DstFd:     f.tmpFd,
		SrcOffset: bt.ext.Offset,
		DstOffset: bt.ext.Offset,
		Length:    bt.ext.Length,
		SrcSize:   f.op.Info.Size,
	}

	var result fsprim.CopyResult
	var err error
	switch {
	case d.cfg.VerifyChecksum:
		params.Hasher = f.hasher
		result, err = fsprim.CopyReadWrite(params)
	case d.cfg.IOURing:
		result, err = fsprim.CopyIOURing(params)
		if err != nil {
			result, err = fsprim.CopyRange(params)
		}
	default:
		result, err = fsprim.CopyRange(params)
	}
	if err != nil {
		f.firstErr.CompareAndSwap(nil, err)
	} else {
		f.written.Add(result.BytesWritten)
		progress.Emit(d.sink, progress.AdvanceEvent(f.relPath, result.BytesWritten))
	}

	if f.outstanding.Add(-1) == 0 {
		d.finishFile(ctx, f, errs)
	}
}

// finishFile runs once per file, on whichever worker's block happens to
// drive outstanding to zero: it verifies (if requested), finalises
// metadata, and commits the temp file into place.
func (d *ParBlockDriver) finishFile(_ context.Context, f *inflightFile, errs chan<- error) {
	if v := f.firstErr.Load(); v != nil {
		err := v.(error)
		discardTempSibling(f.tmpFd, f.tmpPath)
		progress.Emit(d.sink, progress.ErrorEvent(f.relPath, classifyProgressKind(err), err))
		sendErrNB(errs, err)
		return
	}

	if err := finaliseFile(f.op.SrcPath, f.tmpFd, f.op.Info, d.opts); err != nil {
		discardTempSibling(f.tmpFd, f.tmpPath)
		progress.Emit(d.sink, progress.ErrorEvent(f.relPath, classifyProgressKind(err), err))
		sendErrNB(errs, err)
		return
	}

	if d.cfg.Fsync {
		if err := f.tmpFd.Sync(); err != nil {
			discardTempSibling(f.tmpFd, f.tmpPath)
			sendErrNB(errs, fsprim.Classify(f.tmpPath, err))
			return
		}
	}

	if f.hasher != nil {
		if err := verifyCommitted(f.tmpPath, f.hasher.finish(f.op.Info.Size)); err != nil {
			discardTempSibling(f.tmpFd, f.tmpPath)
			progress.Emit(d.sink, progress.ErrorEvent(f.relPath, classifyProgressKind(err), err))
			sendErrNB(errs, err)
			return
		}
	}

	err := commitTempSibling(f.tmpFd, f.tmpPath, f.op.DstPath)
	d.recordResult(f.op, f.written.Load(), err)
	sendErrNB(errs, err)
}

func (d *ParBlockDriver) recordResult(o op.Operation, n int64, err error) {
	if err != nil {
		if d.stats != nil {
			d.stats.AddFilesFailed(1)
		}
		return
	}
	if d.stats != nil {
		d.stats.AddFilesCopied(1)
		d.stats.AddBytesCopied(n)
	}
	markCheckpoint(d.cp, o)
	progress.Emit(d.sink, progress.FinishEvent(o.DstPath, progress.OK))
}
