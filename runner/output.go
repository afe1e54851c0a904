package runner

import (
	"io"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/cryspen/mach-test/types"
)

// OutputSink receives the complete output of every test, e.g. a per-run log
// directory. The returned path is recorded on the outcome.
type OutputSink interface {
	OpenTestLog(test types.TestSpec) (w io.WriteCloser, path string, err error)
}

// tailBuffer keeps only the last maxBytes written to it so a representative
// snippet of the output can be attached to a failing outcome.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultOutputTailBytes
	}
	return &tailBuffer{maxBytes: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
	}
	return len(p), nil
}

// String returns the retained output with terminal escape sequences removed.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return stripansi.Strip(string(b.contents))
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}

// lockedWriter serializes writes from the stdout and stderr copiers.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
