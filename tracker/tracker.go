// Package tracker buffers accepted suggestions and, once the user's edits
// have had time to settle, reports how much each suggestion was modified.
package tracker

import (
	"context"
	"sync"
	"time"

	"edittrack/logger"
	"edittrack/similarity"
	"edittrack/telemetry"
	"edittrack/usergroup"
)

// MaturityWindow is the minimum age before an accepted suggestion is
// evaluated, giving the user time to edit it.
const MaturityWindow = 5 * time.Minute

// DefaultFlushInterval is how often the background loop scans the buffer.
const DefaultFlushInterval = 2 * time.Minute

// Clock abstracts wall-clock reads so tests can control entry aging.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ContentResolver re-reads the current text at a location. The second return
// is false when the location can no longer be resolved (file deleted, range
// out of bounds).
type ContentResolver interface {
	ReadText(loc Location) (string, bool)
}

// IdentityResolver reports the current authenticated endpoint identifier,
// or "" when none is available.
type IdentityResolver interface {
	CurrentEndpoint() string
}

// GroupResolver reports the experiment group to tag telemetry with.
// *usergroup.Classifier satisfies it.
type GroupResolver interface {
	Current() usergroup.Group
}

// Deps are the collaborators a Tracker consumes. Gate is required; the
// resolvers may be nil, in which case their values default to empty/unknown.
type Deps struct {
	Gate     *telemetry.Gate
	Content  ContentResolver
	Identity IdentityResolver
	Groups   GroupResolver

	// Clock defaults to the system clock.
	Clock Clock
	// Maturity defaults to MaturityWindow.
	Maturity time.Duration
	// FlushInterval defaults to DefaultFlushInterval.
	FlushInterval time.Duration
}

// Tracker buffers accepted-suggestion entries and emits one telemetry event
// per entry once it matures. Enqueue and Flush may be called concurrently;
// buffer mutation is guarded by a single mutex and emission happens outside
// the lock on a snapshot of the mature entries.
type Tracker struct {
	deps Deps

	mu      sync.Mutex
	entries []*Entry
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a tracker. Most callers want the shared process-wide instance
// via Get instead.
func New(deps Deps) *Tracker {
	if deps.Gate == nil {
		// No gate means no way to emit; behave as permanently disabled.
		deps.Gate = telemetry.NewGate(nil, "", false)
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Maturity <= 0 {
		deps.Maturity = MaturityWindow
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Tracker{deps: deps}
}

// Enqueue appends an accepted suggestion to the buffer. When telemetry is
// disabled the entry is dropped outright: suggestions accepted while
// telemetry is off are never tracked, even if it is re-enabled later.
func (t *Tracker) Enqueue(e *Entry) {
	if !t.deps.Gate.Enabled() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	logger.Debug("enqueued suggestion %s (buffer size %d)", e.RequestID, len(t.entries))
}

// Flush evaluates every entry old enough for the user's edits to have
// settled and retains the rest, in order, for the next pass. When telemetry
// is disabled it returns before inspecting any timestamps.
func (t *Tracker) Flush() {
	if !t.deps.Gate.Enabled() {
		return
	}

	now := t.deps.Clock.Now()

	t.mu.Lock()
	var mature, young []*Entry
	for _, e := range t.entries {
		if e.age(now) >= t.deps.Maturity {
			mature = append(mature, e)
		} else {
			young = append(young, e)
		}
	}
	t.entries = young
	t.mu.Unlock()

	if len(mature) == 0 {
		return
	}
	logger.Debug("flushing %d mature suggestions, %d retained", len(mature), len(young))

	// Emission re-reads file content and identity, which may be slow;
	// do it outside the buffer lock.
	for _, e := range mature {
		t.emitOnSuggestion(e)
	}
}

// emitOnSuggestion emits the modification event for one mature entry. It
// never fails outward: unresolvable content or identity collapses to empty
// values so a missing collaborator cannot block telemetry.
func (t *Tracker) emitOnSuggestion(e *Entry) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("suggestion emission panic recovered for %s: %v", e.RequestID, r)
		}
	}()

	current := ""
	if t.deps.Content != nil {
		if text, ok := t.deps.Content.ReadText(e.Location); ok {
			current = text
		}
	}

	pct := similarity.Diff(e.OriginalText, current)
	additions, deletions := similarity.LineChanges(e.OriginalText, current)

	endpoint := ""
	if t.deps.Identity != nil {
		endpoint = t.deps.Identity.CurrentEndpoint()
	}
	group := usergroup.GroupUnknown
	if t.deps.Groups != nil {
		group = t.deps.Groups.Current()
	}

	t.deps.Gate.Emit(telemetry.EventSuggestionModified, telemetry.Fields{
		"request_id":              e.RequestID,
		"session_id":              e.SessionID,
		"trigger":                 string(e.Trigger),
		"suggestion_index":        e.SuggestionIndex,
		"modification_percentage": pct,
		"completion_type":         string(e.Completion),
		"language":                e.Language,
		"endpoint":                endpoint,
		"user_group":              string(group),
		"additions":               additions,
		"deletions":               deletions,
	})
}

// Start launches the background flush loop. Calling Start on a running
// tracker is a no-op.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	done := t.done
	interval := t.deps.FlushInterval
	t.mu.Unlock()

	go t.flushLoop(ctx, interval, done)
	logger.Info("suggestion tracker started (flush every %v)", interval)
}

func (t *Tracker) flushLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Flush()
		}
	}
}

// Stop halts the flush loop, waits for it to exit, and clears the buffer.
// Idempotent; the tracker behaves as freshly constructed afterwards.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.done = nil
	t.started = false
	t.entries = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Len reports the current buffer size.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
