// Package queue provides background job processing for Kirana.
//
// Jobs are named, with a JSON payload; handlers are registered by name at
// boot. The manager is constructed explicitly and injected where needed:
//
//	q := queue.NewManager(queue.NewRedisDriver(rdb))
//	q.Handle("stock:push", func(ctx context.Context, payload []byte) error { ... })
//	q.StartWorkers(ctx, 5)
//	q.Enqueue("stock:push", payload)
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shashiranjanraj/kirana/pkg/logger"
	"github.com/shashiranjanraj/kirana/pkg/metrics"
	"gorm.io/gorm"
)

// Handler executes one job. A non-nil error signals failure and triggers the
// retry policy.
type Handler func(ctx context.Context, payload []byte) error

// Driver is the queue storage backend.
type Driver interface {
	Push(payload []byte) error
	Pop(ctx context.Context) ([]byte, error)
}

// DelayedDriver is implemented by drivers with native delayed delivery.
type DelayedDriver interface {
	PushDelayed(payload []byte, delay time.Duration) error
}

// FailedJob is the in-memory record of a job that exhausted its retries.
type FailedJob struct {
	Job      string
	Payload  []byte
	Err      error
	FailedAt time.Time
	Attempts int
}

type envelope struct {
	Job     string          `json:"job"`
	Payload json.RawMessage `json:"payload"`
}

// Manager is the central queue hub.
type Manager struct {
	mu       sync.RWMutex
	driver   Driver
	handlers map[string]Handler
	failed   []FailedJob
	failedDB *gorm.DB
	maxRetry int
}

// NewManager builds a Manager on the given driver. A nil driver falls back
// to the in-memory one.
func NewManager(driver Driver) *Manager {
	if driver == nil {
		driver = NewMemoryDriver()
	}
	return &Manager{
		driver:   driver,
		handlers: map[string]Handler{},
		maxRetry: 3,
	}
}

// SetMaxRetry sets how many times a failing job is attempted.
func (m *Manager) SetMaxRetry(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.maxRetry = n
	}
}

// Handle registers the handler for a job name. Call once per job at boot.
func (m *Manager) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Enqueue pushes a job onto the queue immediately.
func (m *Manager) Enqueue(name string, payload []byte) error {
	env, err := json.Marshal(envelope{Job: name, Payload: payload})
	if err != nil {
		return fmt.Errorf("queue: marshal envelope for %s: %w", name, err)
	}

	m.mu.RLock()
	d := m.driver
	m.mu.RUnlock()

	if err := d.Push(env); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", name, err)
	}
	return nil
}

// EnqueueAfter pushes a job onto the queue after a delay, using the driver's
// native delayed delivery when it has one.
func (m *Manager) EnqueueAfter(name string, payload []byte, delay time.Duration) error {
	m.mu.RLock()
	d := m.driver
	m.mu.RUnlock()

	if dd, ok := d.(DelayedDriver); ok {
		env, err := json.Marshal(envelope{Job: name, Payload: payload})
		if err != nil {
			return fmt.Errorf("queue: marshal envelope for %s: %w", name, err)
		}
		return dd.PushDelayed(env, delay)
	}

	go func() {
		time.Sleep(delay)
		if err := m.Enqueue(name, payload); err != nil {
			logger.Error("queue: delayed enqueue failed", "job", name, "error", err)
		}
	}()
	return nil
}

// StartWorkers launches n concurrent workers that run until ctx is cancelled.
func (m *Manager) StartWorkers(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		go m.work(ctx)
	}
	logger.Info("queue: workers started", "count", n)
}

func (m *Manager) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			m.mu.RLock()
			d := m.driver
			m.mu.RUnlock()

			raw, err := d.Pop(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(500 * time.Millisecond)
				continue
			}
			if raw == nil {
				continue
			}

			m.process(ctx, raw)
		}
	}
}

func (m *Manager) process(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Error("queue: bad envelope", "error", err)
		return
	}

	m.mu.RLock()
	h, ok := m.handlers[env.Job]
	m.mu.RUnlock()

	if !ok {
		logger.Warn("queue: unregistered job", "job", env.Job)
		return
	}

	m.runWithRetry(ctx, env.Job, h, env.Payload)
}

func (m *Manager) runWithRetry(ctx context.Context, name string, h Handler, payload []byte) {
	start := time.Now()

	m.mu.RLock()
	maxRetry := m.maxRetry
	m.mu.RUnlock()

	var lastErr error
	for attempt := 1; attempt <= maxRetry; attempt++ {
		if err := h(ctx, payload); err != nil {
			lastErr = err
			logger.Warn("queue: job failed, retrying",
				"job", name, "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}
		metrics.RecordQueueJob(name, "success", start)
		logger.Info("queue: job processed", "job", name)
		return
	}

	metrics.RecordQueueJob(name, "failed", start)
	m.persistFailed(name, payload, lastErr, maxRetry)
	logger.Error("queue: job exhausted retries", "job", name, "error", lastErr)
}

// FailedJobs returns a snapshot of jobs that exhausted their retries.
func (m *Manager) FailedJobs() []FailedJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FailedJob, len(m.failed))
	copy(out, m.failed)
	return out
}
