package tracker

import "sync"

// The process-wide tracker. Ownership is explicit: the activation flow calls
// Configure once with the wired collaborators, everything else reaches the
// shared instance through Get, and Shutdown resets it completely (used on
// deactivation and between test cases).
var (
	globalMu   sync.Mutex
	globalDeps Deps
	global     *Tracker
)

// Configure sets the dependencies used to construct the shared tracker.
// Must be called before Get; calling it while a tracker exists only affects
// the next instance built after Shutdown.
func Configure(deps Deps) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalDeps = deps
}

// Get returns the single process-wide tracker, constructing it on first
// call.
func Get() *Tracker {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(globalDeps)
	}
	return global
}

// Shutdown stops the shared tracker and discards it, so a subsequent Get
// starts from an empty buffer. Idempotent.
func Shutdown() {
	globalMu.Lock()
	t := global
	global = nil
	globalMu.Unlock()

	if t != nil {
		t.Stop()
	}
}
