// Package agent keeps one educational agent and one context bucket per session
// and runs prompts against them.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"quizzai/internal/models"
	"quizzai/internal/service/ai"
	"quizzai/internal/worker"
)

const (
	DefaultContentType = "pdf_content"
	expectedOutput     = "JSON formatted response with the requested questions or answer"
	previewRunes       = 200
)

const (
	agentRole = "Educational AI Assistant"
	agentGoal = `Generate high-quality educational questions (multiple choice, short answer, long answer) ` +
		`or a direct answer to a question, based on the supplied PDF content, and help students learn ` +
		`through conversation. Multiple choice output must be an object whose outermost key is "mcqs", ` +
		`holding items with "question", "options" and "correct", where correct is one of A, B, C or D. ` +
		`Short and long questions follow the structure requested in the prompt.`
	agentBackstory = `You are an experienced educator with broad subject knowledge. You write questions ` +
		`that are challenging but fair and that test real understanding. You can read the PDF content ` +
		`included with each request and you ground every question in it. Questions must be unambiguous, ` +
		`pitched at a sensible difficulty and come with correct answers.

When asked for questions or answers you reply with valid JSON only. No prose, no markdown, no code fences.`
)

var ErrNoExecutor = errors.New("executor factory not configured")

// Agent is the persona bound to a single session. The executor is built on
// first run.
type Agent struct {
	SessionID string
	Role      string
	Goal      string
	Backstory string

	mu       sync.Mutex
	executor ai.Executor
}

func (a *Agent) systemPrompt() string {
	return fmt.Sprintf("Role: %s\n\nGoal: %s\n\n%s", a.Role, a.Goal, a.Backstory)
}

type entry struct {
	Label   string
	Content string
}

// AgentInfo describes an agent and its context bucket.
type AgentInfo struct {
	SessionID    string `json:"session_id"`
	HasAgent     bool   `json:"has_agent"`
	HasContext   bool   `json:"has_context"`
	ContextItems int    `json:"context_items"`
	AgentRole    string `json:"agent_role"`
	AgentGoal    string `json:"agent_goal"`
}

type Stats struct {
	TotalAgents    int      `json:"total_agents"`
	TotalContexts  int      `json:"total_contexts"`
	ActiveSessions []string `json:"active_sessions"`
}

type Options struct {
	Factory     ai.ExecutorFactory
	Workers     *worker.Manager
	QueueSize   int
	IdleTimeout time.Duration
	// Timeout bounds a single RunAgent call; zero means no limit.
	Timeout time.Duration
}

type Manager struct {
	mu      sync.RWMutex
	agents  map[string]*Agent
	buckets map[string][]entry

	factory ai.ExecutorFactory
	workers *worker.Manager
	timeout time.Duration
}

func NewManager(opts Options) *Manager {
	workers := opts.Workers
	if workers == nil {
		workers = worker.NewManager(worker.Config{
			QueueSize:   opts.QueueSize,
			IdleTimeout: opts.IdleTimeout,
		})
	}
	return &Manager{
		agents:  make(map[string]*Agent),
		buckets: make(map[string][]entry),
		factory: opts.Factory,
		workers: workers,
		timeout: opts.Timeout,
	}
}

// CreateAgent returns the agent for sessionID, creating it if needed. An
// existing context bucket is left untouched.
func (m *Manager) CreateAgent(sessionID string) *Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[sessionID]; ok {
		worker.Debugf("[agent] reusing agent for session %s", sessionID)
		return a
	}
	a := &Agent{
		SessionID: sessionID,
		Role:      agentRole,
		Goal:      agentGoal,
		Backstory: agentBackstory,
	}
	m.agents[sessionID] = a
	if _, ok := m.buckets[sessionID]; !ok {
		m.buckets[sessionID] = nil
	}
	log.Printf("[agent] created agent for session %s", sessionID)
	return a
}

func (m *Manager) AddToContext(sessionID, content, contentType string) {
	if contentType == "" {
		contentType = DefaultContentType
	}
	m.mu.Lock()
	bucket := m.buckets[sessionID]
	label := fmt.Sprintf("%s_%d", contentType, len(bucket))
	m.buckets[sessionID] = append(bucket, entry{Label: label, Content: content})
	total := len(m.buckets[sessionID])
	m.mu.Unlock()
	log.Printf("[agent] added %d chars to context of session %s (%d items)", len(content), sessionID, total)
}

// GetContext returns the labelled bucket contents in insertion order.
func (m *Manager) GetContext(sessionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.buckets[sessionID]
	if len(bucket) == 0 {
		return ""
	}
	parts := make([]string, 0, len(bucket))
	for _, e := range bucket {
		parts = append(parts, "["+e.Label+"]\n"+e.Content+"\n")
	}
	return strings.Join(parts, "\n")
}

// RunAgent executes prompt on the session's worker. At most one run per
// session is in flight; others wait in order.
func (m *Manager) RunAgent(ctx context.Context, prompt, sessionID string, includeContext bool) (string, error) {
	m.mu.RLock()
	a, ok := m.agents[sessionID]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no agent for session %s: %w", sessionID, models.ErrNotFound)
	}

	full := prompt
	if includeContext {
		if c := m.GetContext(sessionID); c != "" {
			full = "Context Information:\n" + c + "\n\n" + prompt
		}
	}
	worker.Debugf("[agent] running session %s, prompt preview: %s", sessionID, preview(full))

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	out, err := m.workers.Do(ctx, sessionID, func(ctx context.Context) (string, error) {
		exec, err := m.executorFor(ctx, a)
		if err != nil {
			return "", err
		}
		return exec.Execute(ctx, ai.Task{
			SessionID:      sessionID,
			System:         a.systemPrompt(),
			Prompt:         full,
			ExpectedOutput: expectedOutput,
		})
	})
	if err != nil {
		log.Printf("[agent] run failed for session %s: %v", sessionID, err)
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
			errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
			return "", err
		}
		return "", fmt.Errorf("run agent: %w: %w", models.ErrUpstream, err)
	}
	log.Printf("[agent] session %s response length: %d", sessionID, len(out))
	return out, nil
}

func (m *Manager) executorFor(ctx context.Context, a *Agent) (ai.Executor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.executor != nil {
		return a.executor, nil
	}
	if m.factory == nil {
		return nil, ErrNoExecutor
	}
	exec, err := m.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}
	a.executor = exec
	return exec, nil
}

// CleanSession drops the agent, its context and its worker. It reports whether
// anything was removed.
func (m *Manager) CleanSession(sessionID string) bool {
	m.mu.Lock()
	_, hadAgent := m.agents[sessionID]
	_, hadBucket := m.buckets[sessionID]
	delete(m.agents, sessionID)
	delete(m.buckets, sessionID)
	m.mu.Unlock()

	m.workers.Stop(sessionID)
	found := hadAgent || hadBucket
	if found {
		log.Printf("[agent] cleaned session %s", sessionID)
	} else {
		worker.Debugf("[agent] nothing to clean for session %s", sessionID)
	}
	return found
}

func (m *Manager) AgentInfo(sessionID string) (AgentInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[sessionID]
	if !ok {
		return AgentInfo{}, false
	}
	bucket, hasBucket := m.buckets[sessionID]
	return AgentInfo{
		SessionID:    sessionID,
		HasAgent:     true,
		HasContext:   hasBucket,
		ContextItems: len(bucket),
		AgentRole:    a.Role,
		AgentGoal:    a.Goal,
	}, true
}

func (m *Manager) ActiveSessions() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	agents, contexts := len(m.agents), len(m.buckets)
	m.mu.RUnlock()
	return Stats{
		TotalAgents:    agents,
		TotalContexts:  contexts,
		ActiveSessions: m.ActiveSessions(),
	}
}

// Close stops every session worker.
func (m *Manager) Close() {
	m.workers.StopAll()
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}
