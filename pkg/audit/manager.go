/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fordlabs/retroquest-notifier/pkg/metrics"
)

const (
	DefaultQueueSize    = 1024
	DefaultWriteTimeout = 5 * time.Second
)

// ManagerConfig configures the audit Manager.
type ManagerConfig struct {
	// QueueSize bounds the number of pending events. Events emitted while
	// the queue is full are dropped.
	// Default: 1024
	QueueSize int

	// WriteTimeout bounds a single sink write.
	// Default: 5s
	WriteTimeout time.Duration
}

// Manager stamps events and hands them to a sink from a single background
// worker, so Emit never blocks on the sink.
type Manager struct {
	sink   Sink
	queue  chan *Event
	logger *zap.Logger
	cfg    ManagerConfig
	now    func() time.Time

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed atomic.Bool

	dropped atomic.Int64
}

var _ Emitter = (*Manager)(nil)

// NewManager starts a Manager writing to sink.
func NewManager(sink Sink, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	m := &Manager{
		sink:   sink,
		queue:  make(chan *Event, cfg.QueueSize),
		logger: logger.Named("audit-manager"),
		cfg:    cfg,
		now:    time.Now,
	}

	m.wg.Add(1)
	go m.run()

	m.logger.Debug("audit manager started",
		zap.String("sink", sink.Name()),
		zap.Int("queue_size", cfg.QueueSize))
	return m
}

// Emit fills in ID, Timestamp and Severity when unset and queues the event.
// It never blocks: with a full queue or a closed manager the event is dropped.
func (m *Manager) Emit(_ context.Context, event *Event) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityForEventType(event.Type)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed.Load() {
		m.drop(event, "closed")
		return
	}

	select {
	case m.queue <- event:
	default:
		m.drop(event, "queue_full")
	}
}

func (m *Manager) drop(event *Event, reason string) {
	m.dropped.Add(1)
	metrics.AuditEvents.WithLabelValues(m.sink.Name(), "dropped").Inc()
	m.logger.Warn("audit event dropped",
		zap.String("event_type", string(event.Type)),
		zap.String("reason", reason))
}

func (m *Manager) run() {
	defer m.wg.Done()
	for event := range m.queue {
		m.write(event)
	}
}

func (m *Manager) write(event *Event) {
	// Emit's context usually belongs to a finished request; sink writes get their own.
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()

	if err := m.sink.Write(ctx, event); err != nil {
		metrics.AuditEvents.WithLabelValues(m.sink.Name(), "error").Inc()
		m.logger.Warn("failed to write audit event",
			zap.String("sink", m.sink.Name()),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("error", err.Error()))
		return
	}
	metrics.AuditEvents.WithLabelValues(m.sink.Name(), "success").Inc()
}

// Dropped returns how many events were discarded without reaching the sink.
func (m *Manager) Dropped() int64 {
	return m.dropped.Load()
}

// Close drains pending events and closes the sink. It is safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed.Swap(true) {
		m.mu.Unlock()
		return nil
	}
	close(m.queue)
	m.mu.Unlock()

	m.wg.Wait()
	if dropped := m.Dropped(); dropped > 0 {
		m.logger.Warn("audit manager closed with dropped events",
			zap.String("sink", m.sink.Name()),
			zap.Int64("dropped", dropped))
	}
	return m.sink.Close()
}
