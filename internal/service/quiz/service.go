// Package quiz implements the document upload, question generation, grading
// and chat flows on top of sessions and agents.
package quiz

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"quizzai/internal/config"
	"quizzai/internal/models"
	"quizzai/internal/normalize"
	"quizzai/internal/service/agent"
	"quizzai/internal/service/extract"
	"quizzai/internal/service/session"
)

const (
	ShortAnswerKey = "short_answer"
	ChatKey        = "question"
)

type Limits struct {
	MaxPDFSize   int64
	PromptLimit  int
	MaxQuestions int
	TempDir      string
}

func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxPDFSize:   cfg.BasicConfig.MaxPDFSize,
		PromptLimit:  cfg.BasicConfig.PromptLimit,
		MaxQuestions: cfg.BasicConfig.MaxQuestions,
		TempDir:      cfg.BasicConfig.TempDir,
	}
}

type Service struct {
	sessions  *session.Manager
	agents    *agent.Manager
	extractor extract.Extractor
	limits    Limits
}

func NewService(sessions *session.Manager, agents *agent.Manager, extractor extract.Extractor, limits Limits) *Service {
	if limits.MaxPDFSize <= 0 {
		limits.MaxPDFSize = config.DefaultMaxPDFSize
	}
	if limits.PromptLimit <= 0 {
		limits.PromptLimit = config.DefaultPromptLimit
	}
	if limits.MaxQuestions <= 0 {
		limits.MaxQuestions = config.DefaultMaxQuestions
	}
	return &Service{
		sessions:  sessions,
		agents:    agents,
		extractor: extractor,
		limits:    limits,
	}
}

func (s *Service) NewSession(ctx context.Context) (*models.Session, error) {
	return s.sessions.CreateSession(ctx)
}

func (s *Service) Session(ctx context.Context, id string) (*models.Session, error) {
	return s.sessions.GetSession(ctx, id)
}

// DeleteSession cleans the agent before removing the record.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return err
	}
	s.agents.CleanSession(sess.AgentSessionID)
	ok, err := s.sessions.DeleteSession(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Service) AgentInfo(id string) (agent.AgentInfo, error) {
	info, ok := s.agents.AgentInfo(id)
	if !ok {
		return agent.AgentInfo{}, fmt.Errorf("no agent for session %s: %w", id, models.ErrNotFound)
	}
	return info, nil
}

func (s *Service) Stats() agent.Stats {
	return s.agents.Stats()
}

// IngestDocument extracts the text of an uploaded PDF, stores it on the
// session and appends it to the agent context. size may be -1 when unknown.
func (s *Service) IngestDocument(ctx context.Context, id, filename string, size int64, r io.Reader) error {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return fmt.Errorf("only PDF files are allowed: %w", models.ErrInvalidInput)
	}
	if size > s.limits.MaxPDFSize {
		return fmt.Errorf("file exceeds %d bytes: %w", s.limits.MaxPDFSize, models.ErrTooLarge)
	}

	if s.limits.TempDir != "" {
		if err := os.MkdirAll(s.limits.TempDir, 0o755); err != nil {
			return fmt.Errorf("create temp dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(s.limits.TempDir, "quizzai-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, io.LimitReader(r, s.limits.MaxPDFSize+1))
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("save upload: %w", closeErr)
	}
	if written > s.limits.MaxPDFSize {
		return fmt.Errorf("file exceeds %d bytes: %w", s.limits.MaxPDFSize, models.ErrTooLarge)
	}

	text, err := s.extractor.Extract(ctx, tmpPath)
	if err != nil {
		return fmt.Errorf("error processing PDF: %w", err)
	}

	processed := true
	name := filepath.Base(filename)
	ok, err := s.sessions.UpdateSession(ctx, id, session.Update{
		PDFText:     &text,
		PDFFilename: &name,
		Processed:   &processed,
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	s.agents.AddToContext(sess.AgentSessionID, text, agent.DefaultContentType)
	log.Printf("[quiz] session %s ingested %s (%d chars)", id, name, len(text))
	return nil
}

// Generate asks the agent for count questions of the given type.
func (s *Service) Generate(ctx context.Context, id, rawType string, count int) (map[string]any, error) {
	sess, err := s.processedSession(ctx, id)
	if err != nil {
		return nil, err
	}
	qtype, ok := models.ParseQuestionType(rawType)
	if !ok {
		return nil, fmt.Errorf("invalid question type %q, use mcq, short or long: %w", rawType, models.ErrInvalidInput)
	}
	if count < 1 || count > s.limits.MaxQuestions {
		return nil, fmt.Errorf("count must be between 1 and %d: %w", s.limits.MaxQuestions, models.ErrInvalidInput)
	}
	prompt := truncate(generatePrompt(qtype, count), s.limits.PromptLimit)
	return s.run(ctx, sess, prompt, qtype.EnvelopeKey())
}

// CheckShortAnswer grades answer against question using the stored document.
func (s *Service) CheckShortAnswer(ctx context.Context, id, question, answer string) (map[string]any, error) {
	sess, err := s.processedSession(ctx, id)
	if err != nil {
		return nil, err
	}
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return nil, fmt.Errorf("question and answer are required: %w", models.ErrInvalidInput)
	}
	return s.run(ctx, sess, gradePrompt(question, answer), ShortAnswerKey)
}

// Chat forwards a free-form prompt to the agent.
func (s *Service) Chat(ctx context.Context, id, prompt string) (map[string]any, error) {
	sess, err := s.processedSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is required: %w", models.ErrInvalidInput)
	}
	return s.run(ctx, sess, truncate(prompt, s.limits.PromptLimit), ChatKey)
}

func (s *Service) processedSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Processed {
		return nil, fmt.Errorf("no PDF uploaded for this session: %w", models.ErrInvalidInput)
	}
	return sess, nil
}

func (s *Service) run(ctx context.Context, sess *models.Session, prompt, key string) (map[string]any, error) {
	raw, err := s.agents.RunAgent(ctx, prompt, sess.AgentSessionID, true)
	if err != nil {
		return nil, err
	}
	s.record(ctx, sess.ChatID, prompt, raw)

	parsed, err := normalize.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON from agent: %w", err)
	}
	return normalize.Envelope(parsed, key)
}

func (s *Service) record(ctx context.Context, id, prompt, raw string) {
	for _, msg := range []struct {
		role    models.Role
		content string
	}{
		{models.RoleUser, prompt},
		{models.RoleAssistant, raw},
	} {
		if ok, err := s.sessions.AddMessage(ctx, id, msg.role, msg.content); err != nil || !ok {
			log.Printf("[quiz] record %s message for session %s failed: ok=%v err=%v", msg.role, id, ok, err)
		}
	}
}
