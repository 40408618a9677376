// Package walk implements the single tree-walker thread: it traverses one
// or more source operands, applies gitignore/glob filtering and the
// no-clobber/backup destination policy, and emits an ordered stream of
// op.Operation values for the copy drivers in internal/engine to consume.
//
// A directory's MakeDir is always emitted before any operation for its
// children, and its FinaliseMetadata always after every descendant
// operation — drivers rely on this ordering to set a directory's mtime
// only once its contents can no longer change it.
package walk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/parcp/parcp/internal/filter"
	"github.com/parcp/parcp/internal/fsprim"
	"github.com/parcp/parcp/internal/op"
)

// Config controls a single walk.
type Config struct {
	Sources           []string
	Target            string
	Recursive         bool
	NoTargetDirectory bool
	Gitignore         bool
	GlobExpand        bool
	NoClobber         bool
	Backup            BackupPolicy

	// ExtraFilter, if non-nil, is the base filter chain. Each directory's
	// .gitignore rules are layered ahead of it, so a matching .gitignore
	// rule decides before ExtraFilter's rules; ExtraFilter's size limits
	// always apply.
	ExtraFilter *filter.Chain

	// QueueCapacity sizes the Operation channel; spec guidance is 2*W
	// where W is the driver's worker count. Defaults to 32.
	QueueCapacity int

	// SkipComplete, if non-nil, is consulted for every regular file
	// immediately before it would be turned into a CopyFile operation.
	// Returning true causes the walker to omit the operation entirely,
	// the same as a NoClobber skip — used to wire a --resume checkpoint
	// in as an extra skip condition alongside no_clobber.
	SkipComplete func(dstPath string, size int64, modTime time.Time) bool
}

// Walker traverses source trees and emits op.Operation values.
type Walker struct {
	cfg Config

	// inodeSeen maps a hard-linked inode to the first destination path
	// it was copied to, so later links to the same inode become
	// MakeHardlink instead of a second CopyFile.
	inodeSeen sync.Map // op.DevIno -> string
}

// NewWalker creates a Walker for cfg.
func NewWalker(cfg Config) *Walker {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 32
	}
	return &Walker{cfg: cfg}
}

// Scan starts the walk in a background goroutine and returns the
// Operation and error channels. Both channels close once the walk (and
// all descendant work) has completed or ctx is cancelled.
func (w *Walker) Scan(ctx context.Context) (<-chan op.Operation, <-chan error) {
	ops := make(chan op.Operation, w.cfg.QueueCapacity)
	errs := make(chan error, 64)

	go func() {
		defer close(ops)
		defer close(errs)
		w.run(ctx, ops, errs)
	}()

	return ops, errs
}

func (w *Walker) run(ctx context.Context, ops chan<- op.Operation, errs chan<- error) {
	sources := w.cfg.Sources
	if w.cfg.GlobExpand {
		expanded, err := expandGlobs(sources)
		if err != nil {
			sendErr(errs, err)
			return
		}
		sources = expanded
	}

	dsts, err := resolveDestinations(sources, w.cfg.Target, w.cfg.NoTargetDirectory)
	if err != nil {
		sendErr(errs, err)
		return
	}

	for i, src := range sources {
		select {
		case <-ctx.Done():
			return
		default:
		}

		root := filepath.Clean(src)
		kind, _, err := fsprim.ProbeKind(root)
		if err != nil {
			sendErr(errs, err)
			continue
		}
		if kind == fsprim.KindDir && !w.cfg.Recursive {
			sendErr(errs, fmt.Errorf("%s: -r not specified; omitting directory", root))
			continue
		}

		if err := w.walkEntry(ctx, root, root, dsts[i], w.cfg.ExtraFilter, ops, errs); err != nil {
			sendErr(errs, err)
			return
		}
	}

	select {
	case ops <- op.Operation{Type: op.End}:
	case <-ctx.Done():
	}
}

func (w *Walker) walkEntry(
	ctx context.Context,
	root, srcPath, dstPath string,
	chain *filter.Chain,
	ops chan<- op.Operation,
	errs chan<- error,
) error {
	kind, info, err := fsprim.ProbeKind(srcPath)
	if err != nil {
		sendErr(errs, err)
		return nil
	}

	switch kind {
	case fsprim.KindDir:
		return w.walkDir(ctx, root, srcPath, dstPath, info, chain, ops, errs)

	case fsprim.KindSymlink:
		target, rerr := os.Readlink(srcPath)
		if rerr != nil {
			sendErr(errs, fsprim.Classify(srcPath, rerr))
			return nil
		}
		skip, perr := w.prepareDest(dstPath)
		if perr != nil {
			sendErr(errs, perr)
			return nil
		}
		if skip {
			return nil
		}
		fi, ferr := buildFileInfo(kind, info)
		if ferr != nil {
			sendErr(errs, ferr)
			return nil
		}
		return sendOp(ctx, ops, op.Operation{Type: op.MakeSymlink, SrcPath: srcPath, DstPath: dstPath, Info: fi, LinkTarget: target})

	case fsprim.KindRegular:
		fi, ferr := buildFileInfo(kind, info)
		if ferr != nil {
			sendErr(errs, ferr)
			return nil
		}
		if stat, ok := info.Sys().(*syscall.Stat_t); ok && stat.Nlink > 1 {
			if firstDst, seen := w.inodeSeen.LoadOrStore(fi.DevIno, dstPath); seen {
				skip, perr := w.prepareDest(dstPath)
				if perr != nil {
					sendErr(errs, perr)
					return nil
				}
				if skip {
					return nil
				}
				return sendOp(ctx, ops, op.Operation{Type: op.MakeHardlink, SrcPath: srcPath, DstPath: dstPath, Info: fi, LinkTarget: firstDst.(string)})
			}
		}
		skip, perr := w.prepareDest(dstPath)
		if perr != nil {
			sendErr(errs, perr)
			return nil
		}
		if skip {
			return nil
		}
		if w.cfg.SkipComplete != nil && w.cfg.SkipComplete(dstPath, fi.Size, fi.ModTime) {
			return nil
		}
		return sendOp(ctx, ops, op.Operation{Type: op.CopyFile, SrcPath: srcPath, DstPath: dstPath, Info: fi})

	case fsprim.KindFIFO, fsprim.KindSocket, fsprim.KindBlockDevice, fsprim.KindCharDevice:
		fi, ferr := buildFileInfo(kind, info)
		if ferr != nil {
			sendErr(errs, ferr)
			return nil
		}
		skip, perr := w.prepareDest(dstPath)
		if perr != nil {
			sendErr(errs, perr)
			return nil
		}
		if skip {
			return nil
		}
		return sendOp(ctx, ops, op.Operation{Type: op.MakeSpecial, SrcPath: srcPath, DstPath: dstPath, Info: fi})

	default:
		sendErr(errs, &fsprim.Error{Kind: fsprim.Unsupported, Path: srcPath, Err: fmt.Errorf("unsupported file type")})
		return nil
	}
}

func (w *Walker) walkDir(
	ctx context.Context,
	root, srcPath, dstPath string,
	info os.FileInfo,
	chain *filter.Chain,
	ops chan<- op.Operation,
	errs chan<- error,
) error {
	fi, ferr := buildFileInfo(fsprim.KindDir, info)
	if ferr != nil {
		sendErr(errs, ferr)
		return nil
	}

	if err := sendOp(ctx, ops, op.Operation{Type: op.MakeDir, SrcPath: srcPath, DstPath: dstPath, Info: fi, Mode: uint32(info.Mode().Perm())}); err != nil {
		return err
	}

	childChain, cerr := w.extendIgnore(chain, srcPath)
	if cerr != nil {
		sendErr(errs, cerr)
	}

	entries, rerr := os.ReadDir(srcPath)
	if rerr != nil {
		sendErr(errs, fsprim.Classify(srcPath, rerr))
	} else {
		for _, entry := range entries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			entryPath := filepath.Join(srcPath, entry.Name())
			entryDst := filepath.Join(dstPath, entry.Name())

			if childChain != nil {
				rel, relErr := filepath.Rel(root, entryPath)
				if relErr == nil {
					var size int64
					if einfo, ierr := entry.Info(); ierr == nil {
						size = einfo.Size()
					}
					if !childChain.Match(filepath.ToSlash(rel), entry.IsDir(), size) {
						continue
					}
				}
			}

			if err := w.walkEntry(ctx, root, entryPath, entryDst, childChain, ops, errs); err != nil {
				return err
			}
		}
	}

	return sendOp(ctx, ops, op.Operation{Type: op.FinaliseMetadata, SrcPath: srcPath, DstPath: dstPath, Info: fi, IsDirFinal: true})
}

// prepareDest applies the no-clobber/backup policy to an existing
// destination, reporting whether the entry should be skipped entirely.
func (w *Walker) prepareDest(dstPath string) (skip bool, err error) {
	if _, err := os.Lstat(dstPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fsprim.Classify(dstPath, err)
	}
	if w.cfg.NoClobber {
		return true, nil
	}
	if err := applyBackup(dstPath, w.cfg.Backup); err != nil {
		return false, fsprim.Classify(dstPath, err)
	}
	return false, nil
}

func buildFileInfo(kind fsprim.Kind, info os.FileInfo) (op.FileInfo, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return op.FileInfo{}, &fsprim.Error{Kind: fsprim.Unsupported, Err: fmt.Errorf("unsupported stat type")}
	}
	return op.FileInfo{
		Kind:    kind,
		Size:    info.Size(),
		UID:     stat.Uid,
		GID:     stat.Gid,
		Mode:    uint32(info.Mode()),
		ModTime: info.ModTime(),
		AccTime: atimeFromStat(stat),
		DevIno:  op.DevIno{Dev: devFromStat(stat), Ino: stat.Ino},
		Rdev:    uint64(stat.Rdev), //nolint:gosec // G115: dev_t is int32 on darwin, always non-negative
	}, nil
}

func sendOp(ctx context.Context, ops chan<- op.Operation, o op.Operation) error {
	select {
	case ops <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sendErr(errs chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errs <- err:
	default:
	}
}
