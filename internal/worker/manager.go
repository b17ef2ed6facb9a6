package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	defaultQueueLen    = 16
	defaultIdleTimeout = 5 * time.Minute
)

var (
	// ErrQueueFull is returned when a session already has QueueSize runs pending.
	ErrQueueFull = errors.New("task queue full")
	// ErrStopped is returned to callers whose session worker was stopped.
	ErrStopped = errors.New("session worker stopped")
)

// Job is one unit of work executed on a session's worker goroutine.
type Job func(ctx context.Context) (string, error)

type Config struct {
	QueueSize   int
	IdleTimeout time.Duration
}

type task struct {
	ctx      context.Context
	job      Job
	resultCh chan workerReturn
}

type workerReturn struct {
	out string
	err error
}

type sessionWorker struct {
	taskCh chan task
	stopCh chan struct{}
}

// Manager runs jobs one at a time per key, in submission order. Different keys
// run concurrently.
type Manager struct {
	mu       sync.Mutex
	workers  map[string]*sessionWorker
	queueLen int
	idle     time.Duration
}

func NewManager(cfg Config) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueLen
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Manager{
		workers:  make(map[string]*sessionWorker),
		queueLen: cfg.QueueSize,
		idle:     cfg.IdleTimeout,
	}
}

// Do queues job on the worker for key and waits for its result.
func (m *Manager) Do(ctx context.Context, key string, job Job) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	resultCh := make(chan workerReturn, 1)

	m.mu.Lock()
	w := m.ensureWorkerLocked(key)
	select {
	case w.taskCh <- task{ctx: ctx, job: job, resultCh: resultCh}:
	default:
		m.mu.Unlock()
		return "", ErrQueueFull
	}
	m.mu.Unlock()

	select {
	case ret := <-resultCh:
		return ret.out, ret.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-w.stopCh:
		return "", ErrStopped
	}
}

// Stop terminates the worker for key; pending callers get ErrStopped.
func (m *Manager) Stop(key string) {
	m.mu.Lock()
	if w, ok := m.workers[key]; ok {
		delete(m.workers, key)
		close(w.stopCh)
	}
	m.mu.Unlock()
}

// StopAll terminates every worker.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for key, w := range m.workers {
		delete(m.workers, key)
		close(w.stopCh)
	}
	m.mu.Unlock()
}

// Active returns the number of running session workers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

func (m *Manager) ensureWorkerLocked(key string) *sessionWorker {
	if w, ok := m.workers[key]; ok {
		return w
	}
	w := &sessionWorker{
		taskCh: make(chan task, m.queueLen),
		stopCh: make(chan struct{}),
	}
	m.workers[key] = w
	go m.runWorker(key, w)
	return w
}

func (m *Manager) runWorker(key string, w *sessionWorker) {
	debugLog("[worker] started for session %s", key)
	idle := time.NewTimer(m.idle)
	defer idle.Stop()

	for {
		select {
		case <-w.stopCh:
			debugLog("[worker] stopped for session %s", key)
			return
		case t := <-w.taskCh:
			m.handle(key, t)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.idle)
		case <-idle.C:
			if m.retireIdle(key, w) {
				debugLog("[worker] idle exit for session %s", key)
				return
			}
			idle.Reset(m.idle)
		}
	}
}

// retireIdle removes w only while nothing is queued; Do sends under m.mu, so
// no task can slip in between the check and the removal.
func (m *Manager) retireIdle(key string, w *sessionWorker) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(w.taskCh) > 0 {
		return false
	}
	if cur, ok := m.workers[key]; ok && cur == w {
		delete(m.workers, key)
	}
	return true
}

func (m *Manager) handle(key string, t task) {
	if err := t.ctx.Err(); err != nil {
		debugLog("[worker] skip cancelled job for session %s: %v", key, err)
		t.resultCh <- workerReturn{err: err}
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[worker] job for session %s panicked: %v", key, r)
			t.resultCh <- workerReturn{err: errors.New("worker job panicked")}
		}
	}()
	out, err := t.job(t.ctx)
	t.resultCh <- workerReturn{out: out, err: err}
}
