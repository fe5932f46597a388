package testutil

import (
	"bytes"
	"sync"
)

// SafeBuffer is a bytes.Buffer safe for concurrent use, e.g. as the output of
// a child process that is read while it runs.
type SafeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (sb *SafeBuffer) Write(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.Write(p)
}

func (sb *SafeBuffer) String() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.String()
}
