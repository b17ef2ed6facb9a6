package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quizzai/internal/config"
	"quizzai/internal/models"
)

// SessionStore persists session records and their chat logs. Implementations
// return copies; mutating a returned session never changes the stored one.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	// Get returns models.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.Session, error)
	// Update applies fn to the stored record and saves everything except
	// Messages, which only change through AppendMessage.
	Update(ctx context.Context, id string, fn func(*models.Session)) error
	AppendMessage(ctx context.Context, id string, msg models.Message) error
	Delete(ctx context.Context, id string) error
	// IdleSince lists sessions whose updated_at is before the given time.
	IdleSince(ctx context.Context, before time.Time) ([]string, error)
	Close() error
}

// Open builds the store named by kind ("memory" or "sqlite3").
func Open(kind string, cfg *config.Config) (SessionStore, error) {
	switch strings.ToLower(kind) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3":
		dsn := ""
		if cfg != nil {
			if dbCfg, ok := cfg.Databases["sqlite3"]; ok {
				dsn = dbCfg.DSN
			} else if dbCfg, ok := cfg.Databases["sqlite"]; ok {
				dsn = dbCfg.DSN
			}
		}
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage: %s", kind)
	}
}
