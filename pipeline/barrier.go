package pipeline

import "sync"

// barrier tracks the per-file tasks of one submission. It opens only once the
// demultiplexer has finished (seal) and every started task has settled, in
// whichever order those events happen.
type barrier struct {
	mu      sync.Mutex
	seen    map[string]bool
	pending map[string]struct{}
	sealed  bool
	opened  bool
	done    chan struct{}
}

func newBarrier() *barrier {
	return &barrier{
		seen:    make(map[string]bool),
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
}

// start registers a task for key. It returns false if a task for key was
// already started in this submission, or after seal.
func (b *barrier) start(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed || b.seen[key] {
		return false
	}
	b.seen[key] = true
	b.pending[key] = struct{}{}
	return true
}

func (b *barrier) settle(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, key)
	b.maybeOpenLocked()
}

// seal records that no more tasks will be started.
func (b *barrier) seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	b.maybeOpenLocked()
}

func (b *barrier) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *barrier) maybeOpenLocked() {
	if b.sealed && len(b.pending) == 0 && !b.opened {
		b.opened = true
		close(b.done)
	}
}

// wait blocks until the barrier opens.
func (b *barrier) wait() {
	<-b.done
}
