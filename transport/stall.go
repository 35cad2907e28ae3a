package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/webcore/internal/timer"
)

// StallFunc is notified about a connection which made no progress for too long.
type StallFunc func(remote net.Addr, idle time.Duration)

// StallWatcher reports connections making no progress beyond the threshold. It never
// closes them: enforcing timeouts is up to the read deadlines.
type StallWatcher struct {
	threshold time.Duration
	onStall   StallFunc
	mu        sync.Mutex
	seq       uint64
	tracked   map[uint64]*Progress
}

func NewStallWatcher(threshold time.Duration, onStall StallFunc) *StallWatcher {
	return &StallWatcher{
		threshold: threshold,
		onStall:   onStall,
		tracked:   make(map[uint64]*Progress),
	}
}

// Progress is a handle of a single tracked connection.
type Progress struct {
	id       uint64
	remote   net.Addr
	last     atomic.Int64
	reported atomic.Bool
	watcher  *StallWatcher
}

// Track starts watching the connection.
func (w *StallWatcher) Track(remote net.Addr) *Progress {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	p := &Progress{id: w.seq, remote: remote, watcher: w}
	p.Touch()
	w.tracked[p.id] = p

	return p
}

// Touch records progress. A connection reported as stalled may be reported again after
// it progresses.
func (p *Progress) Touch() {
	if p == nil {
		return
	}

	p.last.Store(timer.Now().UnixMilli())
	p.reported.Store(false)
}

// Done stops watching the connection.
func (p *Progress) Done() {
	if p == nil {
		return
	}

	p.watcher.mu.Lock()
	delete(p.watcher.tracked, p.id)
	p.watcher.mu.Unlock()
}

// Check reports every connection idle for longer than the threshold at the moment, once
// per stall. Returns the number of newly reported connections.
func (w *StallWatcher) Check(now time.Time) (stalled int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.tracked {
		idle := now.Sub(time.UnixMilli(p.last.Load()))
		if idle < w.threshold || p.reported.Swap(true) {
			continue
		}

		stalled++
		if w.onStall != nil {
			w.onStall(p.remote, idle)
		}
	}

	return stalled
}

// Len returns the number of tracked connections.
func (w *StallWatcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.tracked)
}

// Run checks connections periodically until the context is done.
func (w *StallWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(max(w.threshold/2, timer.Resolution))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(timer.Now())
		}
	}
}
