package present

import (
	"fmt"
	"io"
	"time"

	"github.com/parcp/parcp/internal/progress"
	"github.com/parcp/parcp/internal/stats"
)

// Presenter consumes progress events and renders them until the channel
// closes, then returns a final summary line.
type Presenter interface {
	Run(events <-chan progress.Event) error
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     *stats.Collector
	Quiet     bool
	IsTTY     bool
}

// NewPresenter picks a plain or quiet presenter. There is no TTY-only
// full-screen mode: terminal and piped output both get the same
// one-line-per-file plain presenter, since a copy engine is judged on
// throughput, not on how its progress bar looks. cfg.Quiet (set by the
// CLI for --quiet and --no-progress) selects the quiet presenter, which
// drains events and prints nothing.
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	return &plainPresenter{w: cfg.Writer, errW: cfg.ErrWriter, stats: cfg.Stats}
}

type plainPresenter struct {
	w, errW io.Writer
	stats   *stats.Collector
}

func (p *plainPresenter) Run(events <-chan progress.Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	sampler := time.NewTicker(time.Second)
	defer sampler.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-sampler.C:
			p.stats.Tick()
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev progress.Event) {
	switch ev.Kind {
	case progress.Finish:
		switch ev.Result {
		case progress.Skipped:
			fmt.Fprintf(p.w, "%s  skipped\n", ev.Path)
		case progress.Cancelled:
			fmt.Fprintf(p.w, "%s  cancelled\n", ev.Path)
		default:
			fmt.Fprintf(p.w, "%s  %s\n", ev.Path, FormatRate(p.stats.RollingSpeed(5)))
		}
	case progress.Error:
		fmt.Fprintf(p.w, "%s  %s: %v\n", ev.Path, ev.ErrKind, ev.Err)
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal > 0 {
		pct := float64(snap.BytesCopied) / float64(snap.BytesTotal) * 100
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s/%s files %s eta %s\n",
			pct,
			FormatBytes(snap.BytesCopied), FormatBytes(snap.BytesTotal),
			FormatCount(snap.FilesCopied), FormatCount(snap.FilesTotal),
			FormatRate(p.stats.RollingSpeed(10)),
			FormatETA(p.stats.ETA()),
		)
		return
	}
	fmt.Fprintf(p.errW, "progress: %s copied %s files\n",
		FormatBytes(snap.BytesCopied), FormatCount(snap.FilesCopied))
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

type quietPresenter struct {
	stats *stats.Collector
}

func (p *quietPresenter) Run(events <-chan progress.Event) error {
	for range events {
	}
	return nil
}

func (p *quietPresenter) Summary() string { return "" }
