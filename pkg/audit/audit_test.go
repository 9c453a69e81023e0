package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type memorySink struct {
	mu     sync.Mutex
	events []*Event
	err    error
	closed int
}

func (s *memorySink) Write(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

// blockingSink holds every write until release is closed.
type blockingSink struct {
	memorySink
	release chan struct{}
}

func (s *blockingSink) Write(ctx context.Context, e *Event) error {
	<-s.release
	return s.memorySink.Write(ctx, e)
}

func TestSeverityForEventType(t *testing.T) {
	assert.Equal(t, SeverityWarning, SeverityForEventType(EventNotificationFailed))
	assert.Equal(t, SeverityInfo, SeverityForEventType(EventNotificationSent))
	assert.Equal(t, SeverityInfo, SeverityForEventType(EventPasswordResetRequested))
}

func TestLogSink_Write(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	err := sink.Write(context.Background(), &Event{
		ID:       "evt-1",
		Type:     EventPasswordResetRequested,
		Severity: SeverityInfo,
		Actor:    Actor{User: "jane@example.com", SourceIP: "10.0.0.1"},
		Target:   Target{Kind: "Team", Name: "red-team"},
		Details:  map[string]interface{}{"delivered": true},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("audit_event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "evt-1", fields["event_id"])
	assert.Equal(t, "password_reset.requested", fields["event_type"])
	assert.Equal(t, "jane@example.com", fields["actor_user"])
	assert.Equal(t, "10.0.0.1", fields["actor_ip"])
	assert.Equal(t, "red-team", fields["target_name"])
	assert.Equal(t, `{"delivered":true}`, fields["details"])
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Close())
}

func TestLogSink_WarningEventsLogAtWarnLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Write(context.Background(), &Event{ID: "info", Severity: SeverityInfo}))
	require.NoError(t, sink.Write(context.Background(), &Event{
		ID:       "warn",
		Type:     EventNotificationFailed,
		Severity: SeverityWarning,
		Actor:    Actor{User: "no-reply@retro.example.com", UserAgent: "curl/8"},
	}))

	entries := logs.FilterMessage("audit_event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0].ContextMap()["event_id"])
	assert.Equal(t, "curl/8", entries[0].ContextMap()["actor_user_agent"])
}

func TestLogSink_UnencodableDetails(t *testing.T) {
	sink := NewLogSink(zaptest.NewLogger(t))
	err := sink.Write(context.Background(), &Event{ID: "bad", Details: map[string]interface{}{"ch": make(chan int)}})
	assert.ErrorContains(t, err, "encoding audit details for bad")
}

func TestMultiSink_WritesToAllAndJoinsErrors(t *testing.T) {
	ok := &memorySink{}
	failing := &memorySink{err: errors.New("boom")}
	multi := NewMultiSink([]Sink{failing, ok}, zaptest.NewLogger(t))

	err := multi.Write(context.Background(), &Event{ID: "1"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.Events(), 1)

	require.NoError(t, multi.Close())
	assert.Equal(t, 1, ok.closed)
	assert.Equal(t, 1, failing.closed)
	assert.Equal(t, "multi", multi.Name())
}

func TestManager_FillsIDTimestampAndSeverity(t *testing.T) {
	sink := &memorySink{}
	m := NewManager(sink, ManagerConfig{}, zaptest.NewLogger(t))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	m.now = func() time.Time { return fixed }

	m.Emit(context.Background(), &Event{Type: EventNotificationFailed})
	require.NoError(t, m.Close())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, fixed.UTC(), events[0].Timestamp)
	assert.Equal(t, SeverityWarning, events[0].Severity)
	assert.Equal(t, 1, sink.closed)
}

func TestManager_KeepsCallerFields(t *testing.T) {
	sink := &memorySink{}
	m := NewManager(sink, ManagerConfig{}, zaptest.NewLogger(t))
	ts := time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC)

	m.Emit(context.Background(), &Event{ID: "given", Type: EventNotificationSent, Severity: SeverityCritical, Timestamp: ts})
	require.NoError(t, m.Close())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "given", events[0].ID)
	assert.Equal(t, ts, events[0].Timestamp)
	assert.Equal(t, SeverityCritical, events[0].Severity)
}

func TestManager_SinkErrorIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &memorySink{err: errors.New("sink down")}
	m := NewManager(sink, ManagerConfig{}, zap.New(core))

	assert.NotPanics(t, func() {
		m.Emit(context.Background(), &Event{Type: EventNotificationSent})
	})
	require.NoError(t, m.Close())

	entries := logs.FilterMessage("failed to write audit event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sink down", entries[0].ContextMap()["error"])
}

func TestManager_DropsWhenQueueFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	m := NewManager(sink, ManagerConfig{QueueSize: 1}, zaptest.NewLogger(t))

	// One event is held by the worker, one fills the queue, the rest drop.
	for i := 0; i < 10; i++ {
		m.Emit(context.Background(), &Event{Type: EventNotificationSent})
	}
	assert.GreaterOrEqual(t, m.Dropped(), int64(8))

	close(sink.release)
	require.NoError(t, m.Close())
	assert.Equal(t, int64(10), m.Dropped()+int64(len(sink.Events())))
}

func TestManager_CloseReportsDroppedEvents(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &memorySink{}
	m := NewManager(sink, ManagerConfig{}, zap.New(core))
	require.NoError(t, m.Close())
	assert.Zero(t, logs.FilterMessage("audit manager closed with dropped events").Len())

	core, logs = observer.New(zapcore.WarnLevel)
	blocked := &blockingSink{release: make(chan struct{})}
	m = NewManager(blocked, ManagerConfig{QueueSize: 1}, zap.New(core))
	for i := 0; i < 5; i++ {
		m.Emit(context.Background(), &Event{Type: EventNotificationSent})
	}
	close(blocked.release)
	require.NoError(t, m.Close())

	entries := logs.FilterMessage("audit manager closed with dropped events").All()
	require.Len(t, entries, 1)
	assert.Equal(t, m.Dropped(), entries[0].ContextMap()["dropped"])
}

func TestManager_EmitAfterCloseIsDropped(t *testing.T) {
	sink := &memorySink{}
	m := NewManager(sink, ManagerConfig{}, zaptest.NewLogger(t))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Emit(context.Background(), &Event{Type: EventNotificationSent})
	m.Emit(context.Background(), nil)

	assert.Empty(t, sink.Events())
	assert.Equal(t, int64(1), m.Dropped())
	assert.Equal(t, 1, sink.closed)
}
