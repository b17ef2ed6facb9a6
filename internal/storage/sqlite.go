package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quizzai/internal/models"
)

const defaultSQLiteDSN = ":memory:"

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite connects to dsn (":memory:" when empty) and runs Migrate.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = defaultSQLiteDSN
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// every new connection to :memory: is a new empty database
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			chat_id TEXT PRIMARY KEY,
			agent_session_id TEXT NOT NULL,
			pdf_text TEXT,
			pdf_filename TEXT,
			processed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(chat_id) REFERENCES sessions(chat_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (sqlite3): %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.ChatID == "" {
		return fmt.Errorf("session id required: %w", models.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (chat_id, agent_session_id, pdf_text, pdf_filename, processed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ChatID, sess.AgentSessionID, nullString(sess.PDFText), nullString(sess.PDFFilename),
		sess.Processed, sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.getSession(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE chat_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	sess.Messages = []models.Message{}
	for rows.Next() {
		var (
			msg  models.Message
			role string
		)
		if err := rows.Scan(&role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		sess.Messages = append(sess.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return sess, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getSession(ctx context.Context, q querier, id string) (*models.Session, error) {
	var (
		sess     models.Session
		text     sql.NullString
		filename sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT chat_id, agent_session_id, pdf_text, pdf_filename, processed, created_at, updated_at
		 FROM sessions WHERE chat_id = ?`, id,
	).Scan(&sess.ChatID, &sess.AgentSessionID, &text, &filename, &sess.Processed, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if text.Valid {
		sess.PDFText = &text.String
	}
	if filename.Valid {
		sess.PDFFilename = &filename.String
	}
	return &sess, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*models.Session)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sess, err := s.getSession(ctx, tx, id)
	if err != nil {
		return err
	}
	fn(sess)
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET agent_session_id = ?, pdf_text = ?, pdf_filename = ?, processed = ?, updated_at = ?
		 WHERE chat_id = ?`,
		sess.AgentSessionID, nullString(sess.PDFText), nullString(sess.PDFFilename), sess.Processed,
		sess.UpdatedAt.UTC(), id,
	); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, id string, msg models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE chat_id = ?`, msg.Timestamp.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		id, string(msg.Role), msg.Content, msg.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// the foreign_keys pragma is per connection, so messages are removed explicitly
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE chat_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return tx.Commit()
}

func (s *SQLiteStore) IdleSince(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, updated_at FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var (
			id        string
			updatedAt time.Time
		)
		if err := rows.Scan(&id, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if updatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
