package present

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parcp/parcp/internal/progress"
	"github.com/parcp/parcp/internal/stats"
)

func TestPlainPresenter_HandlesFinishAndError(t *testing.T) {
	var out, errOut bytes.Buffer
	coll := stats.NewCollector()
	p := NewPresenter(Config{Writer: &out, ErrWriter: &errOut, Stats: coll})

	events := make(chan progress.Event, 4)
	events <- progress.Event{Kind: progress.Finish, Path: "a.txt", Result: progress.OK}
	events <- progress.Event{Kind: progress.Finish, Path: "b.txt", Result: progress.Skipped}
	events <- progress.Event{Kind: progress.Error, Path: "c.txt", ErrKind: progress.KindPermissionDenied, Err: errors.New("denied")}
	close(events)

	err := p.Run(events)
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "a.txt")
	assert.Contains(t, out.String(), "b.txt  skipped")
	assert.Contains(t, out.String(), "c.txt")
	assert.Contains(t, out.String(), "denied")
}

func TestPlainPresenter_Summary(t *testing.T) {
	coll := stats.NewCollector()
	coll.AddFilesCopied(3)
	coll.AddBytesCopied(1024)
	p := NewPresenter(Config{Writer: &bytes.Buffer{}, ErrWriter: &bytes.Buffer{}, Stats: coll})
	summary := p.Summary()
	assert.Contains(t, summary, "done ✓")
	assert.Contains(t, summary, "files 3")
}

func TestQuietPresenter_DrainsAndSummarizesEmpty(t *testing.T) {
	coll := stats.NewCollector()
	p := NewPresenter(Config{Stats: coll, Quiet: true})

	events := make(chan progress.Event, 1)
	events <- progress.Event{Kind: progress.Finish, Path: "a.txt", Result: progress.OK}
	close(events)

	err := p.Run(events)
	assert.NoError(t, err)
	assert.Equal(t, "", p.Summary())
}
