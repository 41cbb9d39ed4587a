package engine

import "sync"

// latch is a one-shot signal: once triggered it stays triggered.
type latch struct {
	mu   sync.Mutex
	wait chan struct{}
}

func newLatch() *latch {
	return &latch{wait: make(chan struct{})}
}

// trigger fires the latch and reports whether this call was the one that fired it.
func (l *latch) trigger() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.test() {
		return false
	}
	close(l.wait)
	return true
}

func (l *latch) test() bool {
	select {
	case <-l.wait:
		return true
	default:
		return false
	}
}

func (l *latch) waitChan() <-chan struct{} { return l.wait }
