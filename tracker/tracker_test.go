package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"edittrack/assert"
	"edittrack/telemetry"
	"edittrack/usergroup"
)

// mockClock is a controllable clock that counts reads.
type mockClock struct {
	mu       sync.Mutex
	now      time.Time
	nowCalls int
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowCalls++
	return c.now
}

func (c *mockClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *mockClock) peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowCalls
}

// mockSink records every event sent through the gate.
type mockSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *mockSink) Send(_ context.Context, event telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *mockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *mockSink) event(i int) telemetry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[i]
}

// mockContent resolves locations from a path-keyed map.
type mockContent struct {
	texts map[string]string
}

func (m *mockContent) ReadText(loc Location) (string, bool) {
	text, ok := m.texts[loc.Path]
	return text, ok
}

type mockIdentity struct {
	endpoint string
}

func (m *mockIdentity) CurrentEndpoint() string { return m.endpoint }

type mockGroups struct {
	group usergroup.Group
}

func (m *mockGroups) Current() usergroup.Group { return m.group }

type testEnv struct {
	tracker *Tracker
	gate    *telemetry.Gate
	sink    *mockSink
	clock   *mockClock
	content *mockContent
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sink := &mockSink{}
	gate := telemetry.NewGate(sink, "test-device", true)
	clock := newMockClock()
	content := &mockContent{texts: make(map[string]string)}
	tr := New(Deps{
		Gate:     gate,
		Content:  content,
		Identity: &mockIdentity{endpoint: "endpoint-1"},
		Groups:   &mockGroups{group: usergroup.GroupControl},
		Clock:    clock,
	})
	return &testEnv{tracker: tr, gate: gate, sink: sink, clock: clock, content: content}
}

func (env *testEnv) newEntry(requestID string, age time.Duration) *Entry {
	return &Entry{
		AcceptedAt:      env.clock.peek().Add(-age),
		RequestID:       requestID,
		SessionID:       "session-1",
		Trigger:         TriggerAuto,
		SuggestionIndex: 0,
		Completion:      CompletionLine,
		Language:        "go",
		OriginalText:    "fmt.Println(x)",
		Location:        Location{Path: "main.go", StartByte: 10, EndByte: 24},
	}
}

func TestEnqueueWhileDisabledDropsEntry(t *testing.T) {
	env := newTestEnv(t)
	env.gate.SetEnabled(false)

	env.tracker.Enqueue(env.newEntry("r1", 0))
	assert.Equal(t, 0, env.tracker.Len(), "buffer after disabled enqueue")

	// Re-enabling later must not resurrect the entry.
	env.gate.SetEnabled(true)
	env.clock.advance(10 * time.Minute)
	env.tracker.Flush()
	assert.Equal(t, 0, env.sink.count(), "events for dropped entry")
}

func TestEnqueueWhileEnabledBuffers(t *testing.T) {
	env := newTestEnv(t)

	env.tracker.Enqueue(env.newEntry("r1", 0))
	assert.Equal(t, 1, env.tracker.Len(), "buffer size")

	// Too young to evaluate.
	env.tracker.Flush()
	assert.Equal(t, 0, env.sink.count(), "events before maturity")
	assert.Equal(t, 1, env.tracker.Len(), "immature entry retained")
}

func TestFlushPartitionsByAge(t *testing.T) {
	env := newTestEnv(t)
	env.content.texts["main.go"] = "fmt.Println(x)"

	env.tracker.Enqueue(env.newEntry("old", 6*time.Minute))
	env.tracker.Enqueue(env.newEntry("new", 0))

	env.tracker.Flush()
	assert.Equal(t, 1, env.sink.count(), "events after first flush")
	assert.Equal(t, "old", env.sink.event(0).Fields["request_id"], "mature entry emitted")
	assert.Equal(t, 1, env.tracker.Len(), "young entry retained")

	env.clock.advance(5 * time.Minute)
	env.tracker.Flush()
	assert.Equal(t, 2, env.sink.count(), "events after second flush")
	assert.Equal(t, "new", env.sink.event(1).Fields["request_id"], "retained entry emitted")
	assert.Equal(t, 0, env.tracker.Len(), "buffer drained")
}

func TestFlushPreservesRelativeOrder(t *testing.T) {
	env := newTestEnv(t)

	env.tracker.Enqueue(env.newEntry("a", 10*time.Minute))
	env.tracker.Enqueue(env.newEntry("b", time.Minute))
	env.tracker.Enqueue(env.newEntry("c", 8*time.Minute))
	env.tracker.Enqueue(env.newEntry("d", 2*time.Minute))

	env.tracker.Flush()
	assert.Equal(t, "a", env.sink.event(0).Fields["request_id"], "first mature")
	assert.Equal(t, "c", env.sink.event(1).Fields["request_id"], "second mature")

	env.clock.advance(5 * time.Minute)
	env.tracker.Flush()
	assert.Equal(t, "b", env.sink.event(2).Fields["request_id"], "first retained")
	assert.Equal(t, "d", env.sink.event(3).Fields["request_id"], "second retained")
}

func TestFlushWhileDisabledDoesNoWork(t *testing.T) {
	env := newTestEnv(t)

	env.tracker.Enqueue(env.newEntry("r1", 10*time.Minute))
	env.gate.SetEnabled(false)

	before := env.clock.calls()
	env.tracker.Flush()
	assert.Equal(t, before, env.clock.calls(), "clock reads during disabled flush")
	assert.Equal(t, 0, env.sink.count(), "events during disabled flush")
	assert.Equal(t, 1, env.tracker.Len(), "buffer untouched")
}

func TestEmitFields(t *testing.T) {
	env := newTestEnv(t)
	env.content.texts["main.go"] = "fmt.Println(x)"

	e := env.newEntry("r1", 6*time.Minute)
	e.Trigger = TriggerOnDemand
	e.SuggestionIndex = 2
	e.Completion = CompletionBlock
	env.tracker.Enqueue(e)
	env.tracker.Flush()

	assert.Equal(t, 1, env.sink.count(), "event count")
	event := env.sink.event(0)
	assert.Equal(t, telemetry.EventSuggestionModified, event.Name, "event name")
	assert.Equal(t, "r1", event.Fields["request_id"], "request id")
	assert.Equal(t, "session-1", event.Fields["session_id"], "session id")
	assert.Equal(t, "on_demand", event.Fields["trigger"], "trigger")
	assert.Equal(t, 2, event.Fields["suggestion_index"], "suggestion index")
	assert.Equal(t, "block", event.Fields["completion_type"], "completion type")
	assert.Equal(t, "go", event.Fields["language"], "language")
	assert.Equal(t, "endpoint-1", event.Fields["endpoint"], "endpoint")
	assert.Equal(t, "control", event.Fields["user_group"], "user group")
	assert.Equal(t, 0.0, event.Fields["modification_percentage"], "unmodified suggestion")
}

func TestUnresolvableContentYieldsMaxDiff(t *testing.T) {
	env := newTestEnv(t)
	// No entry in env.content.texts: the file is gone.

	env.tracker.Enqueue(env.newEntry("r1", 6*time.Minute))
	env.tracker.Flush()

	assert.Equal(t, 1, env.sink.count(), "emission still happens")
	assert.Equal(t, 1.0, env.sink.event(0).Fields["modification_percentage"], "maximal diff")
}

func TestMissingResolversDefault(t *testing.T) {
	sink := &mockSink{}
	clock := newMockClock()
	tr := New(Deps{
		Gate:  telemetry.NewGate(sink, "test-device", true),
		Clock: clock,
	})

	tr.Enqueue(&Entry{
		AcceptedAt:   clock.now.Add(-6 * time.Minute),
		RequestID:    "r1",
		OriginalText: "x",
	})
	tr.Flush()

	assert.Equal(t, 1, sink.count(), "emission with nil collaborators")
	event := sink.events[0]
	assert.Equal(t, "", event.Fields["endpoint"], "endpoint default")
	assert.Equal(t, "unknown", event.Fields["user_group"], "group default")
	assert.Equal(t, 1.0, event.Fields["modification_percentage"], "content default")
}

func TestModifiedSuggestionPercentage(t *testing.T) {
	env := newTestEnv(t)
	env.content.texts["main.go"] = "aabcd"

	e := env.newEntry("r1", 6*time.Minute)
	e.OriginalText = "abccd"
	env.tracker.Enqueue(e)
	env.tracker.Flush()

	pct, ok := env.sink.event(0).Fields["modification_percentage"].(float64)
	assert.True(t, ok, "percentage type")
	assert.InDelta(t, 0.4, pct, 1e-9, "edit distance 2 over length 5")
}

func TestConcurrentEnqueueAndFlush(t *testing.T) {
	env := newTestEnv(t)
	env.content.texts["main.go"] = "fmt.Println(x)"

	const n = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			age := time.Duration(0)
			if i%2 == 0 {
				age = 6 * time.Minute
			}
			env.tracker.Enqueue(env.newEntry("r", age))
		}
	}()
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			env.tracker.Flush()
		}
	}()
	wg.Wait()

	// Everything mature drains now; nothing may be lost or double-counted.
	env.clock.advance(10 * time.Minute)
	env.tracker.Flush()
	assert.Equal(t, n, env.sink.count(), "total emissions")
	assert.Equal(t, 0, env.tracker.Len(), "buffer drained")
}

func TestStartFlushLoop(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.deps.FlushInterval = 10 * time.Millisecond
	env.content.texts["main.go"] = "fmt.Println(x)"

	env.tracker.Enqueue(env.newEntry("r1", 6*time.Minute))
	env.tracker.Start(context.Background())
	defer env.tracker.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for env.sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 1, env.sink.count(), "background flush emitted")
}

func TestStopIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.Start(context.Background())
	env.tracker.Stop()
	env.tracker.Stop()

	env.tracker.Enqueue(env.newEntry("r1", 0))
	assert.Equal(t, 1, env.tracker.Len(), "usable after stop")
}

func TestShutdownResetsSharedTracker(t *testing.T) {
	sink := &mockSink{}
	clock := newMockClock()
	Configure(Deps{
		Gate:  telemetry.NewGate(sink, "test-device", true),
		Clock: clock,
	})
	defer Shutdown()

	first := Get()
	first.Enqueue(&Entry{AcceptedAt: clock.now, RequestID: "r1"})
	assert.Equal(t, 1, first.Len(), "buffered in first instance")

	Shutdown()
	second := Get()
	assert.True(t, first != second, "fresh instance after shutdown")
	assert.Equal(t, 0, second.Len(), "no carryover across shutdown")

	// Repeated cycles must keep working.
	Shutdown()
	Shutdown()
	assert.Equal(t, 0, Get().Len(), "repeated shutdown cycles")
}
