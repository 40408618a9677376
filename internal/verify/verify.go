package verify

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/parcp/parcp/internal/filter"
	"github.com/parcp/parcp/internal/progress"
)

// Config controls a standalone verification pass over an already-copied
// tree.
type Config struct {
	SrcRoot string
	DstRoot string
	Workers int
	Filter  *filter.Chain
	Sink    progress.Sink
}

// Mismatch records one file whose source and destination digests
// disagree, or that failed to hash at all.
type Mismatch struct {
	RelPath string
	SrcHash string
	DstHash string
}

// Result is the outcome of a verification pass.
type Result struct {
	Verified  int64
	Mismatched []Mismatch
}

// Run walks dst, hashes every regular file present in both src and dst,
// and reports any that disagree. It fans out across cfg.Workers
// goroutines since hashing is CPU- and IO-bound per file.
func Run(ctx context.Context, cfg Config) Result {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	files := collectFiles(cfg.DstRoot, cfg.SrcRoot, cfg.Filter)

	taskCh := make(chan string, workers*2)
	var mu sync.Mutex
	var result Result
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for relPath := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				verifyOne(cfg, relPath, &mu, &result)
			}
		}()
	}

	for _, f := range files {
		select {
		case <-ctx.Done():
			break
		case taskCh <- f:
		}
	}
	close(taskCh)
	wg.Wait()

	return result
}

func verifyOne(cfg Config, relPath string, mu *sync.Mutex, result *Result) {
	srcPath := filepath.Join(cfg.SrcRoot, relPath)
	dstPath := filepath.Join(cfg.DstRoot, relPath)

	progress.Emit(cfg.Sink, progress.StartEvent(relPath, 0))

	srcHash, srcErr := HashFile(srcPath)
	dstHash, dstErr := HashFile(dstPath)

	mu.Lock()
	defer mu.Unlock()
	switch {
	case srcErr != nil || dstErr != nil:
		result.Mismatched = append(result.Mismatched, Mismatch{RelPath: relPath, SrcHash: "error", DstHash: "error"})
		progress.Emit(cfg.Sink, progress.ErrorEvent(relPath, progress.KindChecksumMismatch, srcErr))
	case srcHash != dstHash:
		result.Mismatched = append(result.Mismatched, Mismatch{RelPath: relPath, SrcHash: srcHash, DstHash: dstHash})
		progress.Emit(cfg.Sink, progress.ErrorEvent(relPath, progress.KindChecksumMismatch, nil))
	default:
		result.Verified++
		progress.Emit(cfg.Sink, progress.FinishEvent(relPath, progress.OK))
	}
}

// collectFiles walks dst and returns, relative to dst, every regular
// file that also exists in src and passes filter.
func collectFiles(dstRoot, srcRoot string, f *filter.Chain) []string {
	var files []string
	_ = filepath.WalkDir(dstRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		relPath, err := filepath.Rel(dstRoot, path)
		if err != nil {
			return nil
		}
		if f != nil {
			info, ierr := d.Info()
			if ierr != nil {
				return nil
			}
			if !f.Match(filepath.ToSlash(relPath), false, info.Size()) {
				return nil
			}
		}
		if _, err := os.Lstat(filepath.Join(srcRoot, relPath)); err != nil {
			return nil
		}
		files = append(files, relPath)
		return nil
	})
	return files
}
