package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quizzai/internal/models"
	"quizzai/internal/service/ai"
)

type stubExecutor struct {
	mu      sync.Mutex
	tasks   []ai.Task
	reply   string
	err     error
	delay   time.Duration
	active  int32
	maxSeen int32
}

func (s *stubExecutor) Execute(ctx context.Context, task ai.Task) (string, error) {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		cur := atomic.LoadInt32(&s.maxSeen)
		if n <= cur || atomic.CompareAndSwapInt32(&s.maxSeen, cur, n) {
			break
		}
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func newTestManager(exec *stubExecutor, builds *int32) *Manager {
	return NewManager(Options{
		Factory: func(ctx context.Context) (ai.Executor, error) {
			if builds != nil {
				atomic.AddInt32(builds, 1)
			}
			return exec, nil
		},
	})
}

func TestCreateAgentIsIdempotent(t *testing.T) {
	m := newTestManager(&stubExecutor{}, nil)
	defer m.Close()

	first := m.CreateAgent("s1")
	m.AddToContext("s1", "chapter one", "")
	second := m.CreateAgent("s1")
	if first != second {
		t.Fatalf("expected the same agent instance")
	}
	if got := m.GetContext("s1"); !strings.Contains(got, "chapter one") {
		t.Fatalf("context reset by second CreateAgent: %q", got)
	}
	if stats := m.Stats(); stats.TotalAgents != 1 || stats.TotalContexts != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestContextOrdering(t *testing.T) {
	m := newTestManager(&stubExecutor{}, nil)
	defer m.Close()

	m.CreateAgent("s1")
	m.AddToContext("s1", "A", "")
	m.AddToContext("s1", "B", "note")
	want := "[pdf_content_0]\nA\n\n[note_1]\nB\n"
	if got := m.GetContext("s1"); got != want {
		t.Fatalf("context = %q, want %q", got, want)
	}
	if got := m.GetContext("unknown"); got != "" {
		t.Fatalf("expected empty context for unknown session, got %q", got)
	}
}

func TestAddToContextCreatesBucket(t *testing.T) {
	m := newTestManager(&stubExecutor{}, nil)
	defer m.Close()

	m.AddToContext("orphan", "text", "")
	if got := m.GetContext("orphan"); got != "[pdf_content_0]\ntext\n" {
		t.Fatalf("unexpected context %q", got)
	}
}

func TestCleanSessionRemovesEverything(t *testing.T) {
	m := newTestManager(&stubExecutor{reply: "{}"}, nil)
	defer m.Close()

	m.CreateAgent("s1")
	m.AddToContext("s1", "A", "")
	if _, err := m.RunAgent(context.Background(), "hi", "s1", true); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !m.CleanSession("s1") {
		t.Fatalf("expected CleanSession to report removal")
	}
	if _, ok := m.AgentInfo("s1"); ok {
		t.Fatalf("agent info still present")
	}
	if m.GetContext("s1") != "" {
		t.Fatalf("context still present")
	}
	if len(m.ActiveSessions()) != 0 {
		t.Fatalf("session still active")
	}
	if m.workers.Active() != 0 {
		t.Fatalf("worker still running")
	}
	if m.CleanSession("s1") {
		t.Fatalf("second clean should report nothing removed")
	}
}

func TestRunAgentUnknownSession(t *testing.T) {
	var builds int32
	m := newTestManager(&stubExecutor{}, &builds)
	defer m.Close()

	_, err := m.RunAgent(context.Background(), "hi", "missing", true)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if builds != 0 {
		t.Fatalf("executor built for unknown session")
	}
}

func TestRunAgentComposesPrompt(t *testing.T) {
	exec := &stubExecutor{reply: `{"mcqs": []}`}
	var builds int32
	m := newTestManager(exec, &builds)
	defer m.Close()

	m.CreateAgent("s1")
	m.AddToContext("s1", "Paris is the capital of France.", "")
	out, err := m.RunAgent(context.Background(), "Generate 1 mcq", "s1", true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != `{"mcqs": []}` {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := m.RunAgent(context.Background(), "plain", "s1", false); err != nil {
		t.Fatalf("run without context: %v", err)
	}

	if builds != 1 {
		t.Fatalf("executor should be built once, built %d times", builds)
	}
	first := exec.tasks[0]
	wantPrompt := "Context Information:\n[pdf_content_0]\nParis is the capital of France.\n\n\nGenerate 1 mcq"
	if first.Prompt != wantPrompt {
		t.Fatalf("prompt = %q, want %q", first.Prompt, wantPrompt)
	}
	if first.SessionID != "s1" || first.ExpectedOutput != expectedOutput {
		t.Fatalf("unexpected task %+v", first)
	}
	if !strings.Contains(first.System, agentRole) {
		t.Fatalf("system prompt misses persona: %q", first.System)
	}
	if exec.tasks[1].Prompt != "plain" {
		t.Fatalf("context should be skipped, got %q", exec.tasks[1].Prompt)
	}
}

func TestRunAgentWrapsUpstreamError(t *testing.T) {
	m := newTestManager(&stubExecutor{err: errors.New("quota exceeded")}, nil)
	defer m.Close()

	m.CreateAgent("s1")
	_, err := m.RunAgent(context.Background(), "hi", "s1", true)
	if !errors.Is(err, models.ErrUpstream) || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected wrapped upstream error, got %v", err)
	}
}

func TestRunAgentExecutorFactoryFailure(t *testing.T) {
	m := NewManager(Options{
		Factory: func(ctx context.Context) (ai.Executor, error) {
			return nil, errors.New("api key not configured")
		},
	})
	defer m.Close()

	m.CreateAgent("s1")
	_, err := m.RunAgent(context.Background(), "hi", "s1", true)
	if !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("expected ErrUpstream from failed factory, got %v", err)
	}
	if _, ok := m.AgentInfo("s1"); !ok {
		t.Fatalf("agent should survive a failed run")
	}
}

func TestRunAgentTimeout(t *testing.T) {
	exec := &stubExecutor{reply: "{}", delay: time.Second}
	m := NewManager(Options{
		Factory: func(ctx context.Context) (ai.Executor, error) { return exec, nil },
		Timeout: 20 * time.Millisecond,
	})
	defer m.Close()

	m.CreateAgent("s1")
	_, err := m.RunAgent(context.Background(), "hi", "s1", true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRunAgentSerializesPerSession(t *testing.T) {
	exec := &stubExecutor{reply: "{}", delay: 10 * time.Millisecond}
	m := newTestManager(exec, nil)
	defer m.Close()

	m.CreateAgent("s1")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.RunAgent(context.Background(), "hi", "s1", true); err != nil {
				t.Errorf("run: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&exec.maxSeen); got != 1 {
		t.Fatalf("expected one in-flight run per session, saw %d", got)
	}
}

func TestAgentInfoAndStats(t *testing.T) {
	m := newTestManager(&stubExecutor{}, nil)
	defer m.Close()

	m.CreateAgent("b")
	m.CreateAgent("a")
	m.AddToContext("a", "x", "")
	info, ok := m.AgentInfo("a")
	if !ok || !info.HasAgent || !info.HasContext || info.ContextItems != 1 || info.AgentRole != agentRole {
		t.Fatalf("unexpected info %+v", info)
	}
	stats := m.Stats()
	if stats.TotalAgents != 2 || stats.TotalContexts != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(stats.ActiveSessions) != 2 || stats.ActiveSessions[0] != "a" || stats.ActiveSessions[1] != "b" {
		t.Fatalf("active sessions not sorted: %v", stats.ActiveSessions)
	}
}
