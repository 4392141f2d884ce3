package syncer

import (
	"errors"
	"sync"
)

// ErrSyncInProgress is returned when a sync is requested while another one
// is still running, in this process or, with a lock configured, in another.
var ErrSyncInProgress = errors.New("sync already in progress")

type State string

const (
	StateIdle     State = "idle"
	StateSyncing  State = "syncing"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// Guard allows at most one sync at a time within a process.
// Idle -> Syncing -> Complete | Failed, and either end state may sync again.
type Guard struct {
	mu    sync.Mutex
	state State
	prev  State
}

func NewGuard() *Guard {
	return &Guard{state: StateIdle}
}

// TryAcquire moves the guard to Syncing. It returns false when a sync is
// already running.
func (g *Guard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateSyncing {
		return false
	}
	g.prev = g.state
	g.state = StateSyncing
	return true
}

// Release ends the running sync as Complete, or Failed when err is non-nil.
func (g *Guard) Release(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateSyncing {
		return
	}
	if err != nil {
		g.state = StateFailed
		return
	}
	g.state = StateComplete
}

// Abandon gives the guard back without recording an outcome.
func (g *Guard) Abandon() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateSyncing {
		g.state = g.prev
	}
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
