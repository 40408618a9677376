package engine

import (
	"fmt"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/parcp/parcp/internal/fsprim"
	"github.com/parcp/parcp/internal/verify"
)

// orderedHasher builds one xxh3 digest per file from byte ranges that
// may arrive out of order — par-block finishes whichever block a
// worker grabs first, not necessarily the one at the lowest offset —
// by buffering any range that lands ahead of the next expected offset
// until its predecessor shows up. A hole between data extents is fed
// as a run of zeros at the offset it occupies, so the digest matches
// spec.md §4.6's "data bytes in extent order, zero-filled for hole
// lengths" definition and is comparable to a plain sequential hash of
// the finished file. It implements fsprim.HashSink.
type orderedHasher struct {
	mu      sync.Mutex
	h       *xxh3.Hasher
	next    int64
	pending map[int64][]byte
}

func newOrderedHasher() *orderedHasher {
	return &orderedHasher{h: xxh3.New(), pending: make(map[int64][]byte)}
}

// WriteAt feeds a chunk of real data at its destination offset.
func (o *orderedHasher) WriteAt(p []byte, offset int64) {
	if len(p) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[offset] = append([]byte(nil), p...)
	o.drainLocked()
}

// zeroFill registers a hole of length bytes at offset, fed to the
// digest as zeros once the cursor reaches it.
func (o *orderedHasher) zeroFill(offset, length int64) {
	if length <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[offset] = make([]byte, length)
	o.drainLocked()
}

func (o *orderedHasher) drainLocked() {
	for {
		chunk, ok := o.pending[o.next]
		if !ok {
			return
		}
		o.h.Write(chunk)
		delete(o.pending, o.next)
		o.next += int64(len(chunk))
	}
}

// finish pads any trailing hole out to totalSize and returns the
// hex-encoded digest covering every byte from 0 to totalSize.
func (o *orderedHasher) finish(totalSize int64) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gap := totalSize - o.next; gap > 0 {
		o.h.Write(make([]byte, gap))
		o.next = totalSize
	}
	sum := o.h.Sum128()
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}

// verifyCommitted re-opens the just-finalised (but not yet renamed
// into place) destination and streams it through a fresh digest,
// comparing against streamedSum — the digest built while the data was
// actually being written. This is the second half of spec.md §4.6's
// two-digest scheme: catching any divergence FinaliseMetadata or fsync
// might have introduced, not just a bad read/write.
func verifyCommitted(path, streamedSum string) error {
	committedSum, err := verify.HashFile(path)
	if err != nil {
		return fsprim.Classify(path, err)
	}
	if streamedSum != committedSum {
		return &fsprim.Error{Kind: fsprim.ChecksumMismatch, Path: path, Err: fmt.Errorf("streamed digest %s != committed digest %s", streamedSum, committedSum)}
	}
	return nil
}
