// Package session owns the lifecycle of quiz sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"quizzai/internal/models"
	"quizzai/internal/service/agent"
	"quizzai/internal/storage"
)

// Agents is the part of the agent manager sessions depend on.
type Agents interface {
	CreateAgent(sessionID string) *agent.Agent
	CleanSession(sessionID string) bool
}

// Update lists the fields to change; nil fields are left as they are.
type Update struct {
	PDFText     *string
	PDFFilename *string
	Processed   *bool
}

type Manager struct {
	store  storage.SessionStore
	agents Agents
	now    func() time.Time
}

func NewManager(store storage.SessionStore, agents Agents) *Manager {
	return &Manager{
		store:  store,
		agents: agents,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession registers a new session and its agent.
func (m *Manager) CreateSession(ctx context.Context) (*models.Session, error) {
	id := uuid.NewString()
	m.agents.CreateAgent(id)
	now := m.now()
	s := &models.Session{
		ChatID:         id,
		AgentSessionID: id,
		Processed:      false,
		Messages:       []models.Message{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		m.agents.CleanSession(id)
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Printf("[session] created session %s", id)
	return s, nil
}

func (m *Manager) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return m.store.Get(ctx, id)
}

// UpdateSession merges the non-nil fields of u. It reports false for an
// unknown id.
func (m *Manager) UpdateSession(ctx context.Context, id string, u Update) (bool, error) {
	err := m.store.Update(ctx, id, func(s *models.Session) {
		if u.PDFText != nil {
			text := *u.PDFText
			s.PDFText = &text
		}
		if u.PDFFilename != nil {
			name := *u.PDFFilename
			s.PDFFilename = &name
		}
		if u.Processed != nil {
			s.Processed = *u.Processed
		}
		s.UpdatedAt = m.now()
	})
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddMessage appends to the session's chat log. It reports false for an
// unknown id.
func (m *Manager) AddMessage(ctx context.Context, id string, role models.Role, content string) (bool, error) {
	err := m.store.AppendMessage(ctx, id, models.Message{
		Role:      role,
		Content:   content,
		Timestamp: m.now(),
	})
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteSession removes the record only. Callers clean the agent first.
func (m *Manager) DeleteSession(ctx context.Context, id string) (bool, error) {
	err := m.store.Delete(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	log.Printf("[session] deleted session %s", id)
	return true, nil
}
