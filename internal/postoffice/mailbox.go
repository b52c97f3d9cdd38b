package postoffice

import (
	"sync"
	"sync/atomic"
)

// gate serializes handler invocations against removal. Handlers run under
// the read lock so several can be in flight; close sets the flag and then
// takes the write lock, which waits for every running handler.
//
// isClosed does not lock, so a handler may post through its own dropbox.
type gate struct {
	mu     sync.RWMutex
	closed atomic.Bool
}

// run invokes fn unless the gate is closed. It reports whether fn ran.
func (g *gate) run(fn func()) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed.Load() {
		return false
	}
	fn()
	return true
}

// close marks the gate closed and waits for in-flight runs. It returns
// false if the gate was already closed.
func (g *gate) close() bool {
	if !g.closed.CompareAndSwap(false, true) {
		return false
	}
	g.mu.Lock()
	g.mu.Unlock() //nolint:staticcheck // barrier
	return true
}

func (g *gate) isClosed() bool { return g.closed.Load() }
