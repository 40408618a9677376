package engine

import (
	"context"
	"os"

	"golang.org/x/time/rate"

	"github.com/parcp/parcp/internal/fsprim"
	"github.com/parcp/parcp/internal/op"
	"github.com/parcp/parcp/internal/progress"
	"github.com/parcp/parcp/internal/runconfig"
)

// copyFile copies one regular file from srcPath to dstPath per cfg,
// trying a reflink clone first (unless disabled or already known
// unsupported on the destination device) and falling back to a
// sparse-aware streamed copy through a temp-then-rename commit. relPath
// is used only to label progress events.
func copyFile(ctx context.Context, srcPath, dstPath, relPath string, info op.FileInfo, cfg *runconfig.Config, opts FinaliseOptions, sink progress.Sink, limiter *rate.Limiter) (int64, error) {
	progress.Emit(sink, progress.StartEvent(relPath, info.Size))
	perm := os.FileMode(info.Mode).Perm()

	if cfg.Reflink != runconfig.ReflinkNever && !cfg.VerifyChecksum {
		_ = os.Remove(dstPath) // TryReflink requires an exclusive create
		fd, ok, err := tryReflink(cfg.Reflink, srcPath, dstPath, perm, info.DevIno.Dev)
		if err != nil {
			progress.Emit(sink, progress.ErrorEvent(relPath, classifyProgressKind(err), err))
			return 0, err
		}
		if ok {
			n, ferr := finishReflinked(srcPath, fd, info, cfg, opts)
			if ferr != nil {
				progress.Emit(sink, progress.ErrorEvent(relPath, classifyProgressKind(ferr), ferr))
				return n, ferr
			}
			progress.Emit(sink, progress.FinishEvent(relPath, progress.OK))
			return n, nil
		}
	}

	n, err := copyFileStream(ctx, srcPath, dstPath, relPath, info, cfg, opts, sink, limiter)
	if err != nil {
		progress.Emit(sink, progress.ErrorEvent(relPath, classifyProgressKind(err), err))
		return n, err
	}
	progress.Emit(sink, progress.FinishEvent(relPath, progress.OK))
	return n, nil
}

func finishReflinked(srcPath string, fd *os.File, info op.FileInfo, cfg *runconfig.Config, opts FinaliseOptions) (int64, error) {
	defer fd.Close()
	if err := finaliseFile(srcPath, fd, info, opts); err != nil {
		return info.Size, err
	}
	if cfg.Fsync {
		if err := fd.Sync(); err != nil {
			return info.Size, fsprim.Classify(dstName(fd), err)
		}
	}
	return info.Size, nil
}

func copyFileStream(ctx context.Context, srcPath, dstPath, relPath string, info op.FileInfo, cfg *runconfig.Config, opts FinaliseOptions, sink progress.Sink, limiter *rate.Limiter) (int64, error) {
	perm := os.FileMode(info.Mode).Perm()
	tmpFd, tmpPath, err := createTempSibling(dstPath, perm)
	if err != nil {
		return 0, err
	}

	var hasher *orderedHasher
	if cfg.VerifyChecksum {
		hasher = newOrderedHasher()
	}

	written, err := streamData(ctx, srcPath, tmpFd, info, cfg, relPath, sink, limiter, hasher)
	if err != nil {
		discardTempSibling(tmpFd, tmpPath)
		return written, err
	}

	if err := finaliseFile(srcPath, tmpFd, info, opts); err != nil {
		discardTempSibling(tmpFd, tmpPath)
		return written, err
	}

	if cfg.Fsync {
		if err := tmpFd.Sync(); err != nil {
			discardTempSibling(tmpFd, tmpPath)
			return written, fsprim.Classify(tmpPath, err)
		}
	}

	if hasher != nil {
		if err := verifyCommitted(tmpPath, hasher.finish(info.Size)); err != nil {
			discardTempSibling(tmpFd, tmpPath)
			return written, err
		}
	}

	if err := commitTempSibling(tmpFd, tmpPath, dstPath); err != nil {
		return written, err
	}
	return written, nil
}

// streamData copies info.Size bytes from srcPath into dstFd, preserving
// sparse layout by truncating holes into place and only streaming data
// extents. --verify-checksum forces the buffered read/write path so
// every byte is visible to the checksum, and also disables any
// kernel-clone optimisation for this file (spec.md §4.6); otherwise the
// fastest available in-kernel primitive is used. When hasher is
// non-nil, every data byte written and every hole skipped is fed to it
// in file order so the caller ends up with a digest of the whole
// logical file, not just the extents actually streamed.
func streamData(ctx context.Context, srcPath string, dstFd *os.File, info op.FileInfo, cfg *runconfig.Config, relPath string, sink progress.Sink, limiter *rate.Limiter, hasher *orderedHasher) (int64, error) {
	if info.Size == 0 {
		return 0, nil
	}

	srcFd, err := os.Open(srcPath)
	if err != nil {
		return 0, fsprim.Classify(srcPath, err)
	}
	defer srcFd.Close()

	extents, err := fsprim.Extents(srcFd, info.Size)
	if err != nil {
		return 0, err
	}
	sparse := len(extents) > 0 && (len(extents) > 1 || extents[0].Length != info.Size)
	if sparse {
		if err := fsprim.AllocateSparse(dstFd, info.Size); err != nil {
			return 0, err
		}
	} else {
		extents = []fsprim.Extent{{Offset: 0, Length: info.Size}}
	}

	if hasher != nil {
		feedHoles(hasher, extents, info.Size)
	}

	var total int64
	for _, ext := range extents {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		if err := waitForBandwidth(ctx, limiter, ext.Length); err != nil {
			return total, err
		}

		params := fsprim.CopyParams{
			SrcPath:   srcPath,
			SrcFd:     srcFd,
			DstFd:     dstFd,
			SrcOffset: ext.Offset,
			DstOffset: ext.Offset,
			Length:    ext.Length,
			SrcSize:   info.Size,
		}

		var result fsprim.CopyResult
		var cerr error
		if cfg.VerifyChecksum {
			params.Hasher = hasher
			result, cerr = fsprim.CopyReadWrite(params)
		} else {
			result, cerr = fsprim.CopyRange(params)
		}
		if cerr != nil {
			return total + result.BytesWritten, cerr
		}
		total += result.BytesWritten
		progress.Emit(sink, progress.AdvanceEvent(relPath, result.BytesWritten))
	}

	return total, nil
}

// feedHoles zero-fills the digest across every gap the data extents
// leave uncovered: before the first extent, between consecutive
// extents, and after the last extent up to the file's logical size.
func feedHoles(hasher *orderedHasher, extents []fsprim.Extent, size int64) {
	var cursor int64
	for _, ext := range extents {
		if ext.Offset > cursor {
			hasher.zeroFill(cursor, ext.Offset-cursor)
		}
		cursor = ext.Offset + ext.Length
	}
	if cursor < size {
		hasher.zeroFill(cursor, size-cursor)
	}
}

// waitForBandwidth blocks until limiter has released n bytes of quota,
// split into burst-sized waits since rate.Limiter.WaitN rejects any
// single request larger than its configured burst.
func waitForBandwidth(ctx context.Context, limiter *rate.Limiter, n int64) error {
	if limiter == nil {
		return nil
	}
	burst := int64(limiter.Burst())
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := limiter.WaitN(ctx, int(chunk)); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func dstName(fd *os.File) string {
	if fd == nil {
		return ""
	}
	return fd.Name()
}

func classifyProgressKind(err error) progress.ErrorKind {
	fe, ok := err.(*fsprim.Error)
	if !ok {
		return progress.KindIOError
	}
	switch fe.Kind {
	case fsprim.NotFound:
		return progress.KindNotFound
	case fsprim.PermissionDenied:
		return progress.KindPermissionDenied
	case fsprim.AlreadyExists:
		return progress.KindAlreadyExists
	case fsprim.CrossDevice:
		return progress.KindCrossDevice
	case fsprim.Unsupported:
		return progress.KindUnsupported
	case fsprim.InvalidPath:
		return progress.KindInvalidPath
	case fsprim.WalkerError:
		return progress.KindWalkerError
	case fsprim.ChecksumMismatch:
		return progress.KindChecksumMismatch
	case fsprim.Cancelled:
		return progress.KindCancelled
	case fsprim.MetadataError:
		return progress.KindMetadataError
	default:
		return progress.KindIOError
	}
}
