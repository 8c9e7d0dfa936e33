package workload

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

type Tstrategy int

const (
	SPIN   Tstrategy = iota // spin lock around the increment
	MUTEX                   // blocking lock around the increment
	ATOMIC                  // lock-free atomic add
	NOLOCK                  // private per-worker counter, no sharing
)

func (s Tstrategy) String() string {
	switch s {
	case SPIN:
		return "spinlock"
	case MUTEX:
		return "mutex"
	case ATOMIC:
		return "atomic"
	case NOLOCK:
		return "nolock"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

func ParseStrategy(s string) (Tstrategy, error) {
	for _, st := range []Tstrategy{SPIN, MUTEX, ATOMIC, NOLOCK} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown lock strategy %q", s)
}

// Spins before handing the P back to the runtime, so a spinner cannot starve
// a lock holder that shares its P.
const spinTries = 128

// Test-and-test-and-set spin lock.
type Spinlock struct {
	state atomic.Uint32
}

func (l *Spinlock) Lock() {
	for {
		if l.state.CompareAndSwap(0, 1) {
			return
		}
		for i := 0; l.state.Load() != 0; i++ {
			if i == spinTries {
				runtime.Gosched()
				i = 0
			}
		}
	}
}

func (l *Spinlock) Unlock() {
	l.state.Store(0)
}

type paddedCounter struct {
	n uint64
	_ [56]byte
}

// Shared state for one lock-contention trial. Create one per trial and call
// Cleanup after every worker has returned.
type LockWorkload struct {
	spin    *Spinlock
	mu      *sync.Mutex
	atomic  atomic.Uint64
	shared  uint64
	private []paddedCounter
	nthread int
	niter   uint64
}

func NewLockWorkload(nthread int, niter uint64) *LockWorkload {
	if nthread < 0 {
		nthread = 0
	}
	return &LockWorkload{
		spin:    &Spinlock{},
		mu:      &sync.Mutex{},
		private: make([]paddedCounter, nthread),
		nthread: nthread,
		niter:   niter,
	}
}

func (w *LockWorkload) Nthread() int {
	return w.nthread
}

func (w *LockWorkload) Niter() uint64 {
	return w.niter
}

// Run one worker's loop. id selects the private slot for NOLOCK and must be
// in [0, Nthread()).
func (w *LockWorkload) Worker(strategy Tstrategy, id int) {
	switch strategy {
	case SPIN:
		l := w.spin
		for i := uint64(0); i < w.niter; i++ {
			l.Lock()
			w.shared++
			l.Unlock()
		}
	case MUTEX:
		mu := w.mu
		for i := uint64(0); i < w.niter; i++ {
			mu.Lock()
			w.shared++
			mu.Unlock()
		}
	case ATOMIC:
		for i := uint64(0); i < w.niter; i++ {
			w.atomic.Add(1)
		}
	case NOLOCK:
		c := &w.private[id]
		for i := uint64(0); i < w.niter; i++ {
			c.n++
		}
	}
}

// Final count for strategy. Only meaningful after every worker returned.
func (w *LockWorkload) Counter(strategy Tstrategy) uint64 {
	switch strategy {
	case SPIN, MUTEX:
		return w.shared
	case ATOMIC:
		return w.atomic.Load()
	case NOLOCK:
		var n uint64
		for i := range w.private {
			n += w.private[i].n
		}
		return n
	}
	return 0
}

// Destroy the spin and blocking locks. Workers must not run afterwards; a
// SPIN or MUTEX worker on a cleaned-up workload panics.
func (w *LockWorkload) Cleanup() {
	w.spin = nil
	w.mu = nil
}
