// Package chatlog is the durable append-only log of chat exchanges. The
// relay notifies it fire-and-forget after each successful exchange; write
// failures are logged and never surfaced to the chat path. A cron-driven
// retention job deletes old records and prunes oversized sessions.
package chatlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/solenne/hearth/internal/observability"
)

// DefaultMaxMessages is how many messages a session keeps after pruning.
const DefaultMaxMessages = 200

// Record is one chat session in the durable log.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LoggedMessage is one stored turn.
type LoggedMessage struct {
	ID        int64     `json:"id"`
	RecordID  string    `json:"record_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists chat records and messages in SQLite.
//
// Store is safe for concurrent use; SQLite serializes writers internally
// and the connection is opened with a busy timeout.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the chat log database at path and ensures the
// schema exists.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("chatlog: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("chatlog: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("chatlog: ping %s: %w", path, err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL REFERENCES chat_records(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_record ON chat_messages(record_id, id);
	`)
	if err != nil {
		return fmt.Errorf("chatlog: init schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one turn under the session, creating the chat record on
// first use.
func (s *Store) Append(ctx context.Context, sessionID, role, text string) error {
	recordID, err := s.ensureRecord(ctx, sessionID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (record_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
		recordID, role, text, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("chatlog: append message: %w", err)
	}
	return nil
}

// Notify records a completed exchange without ever failing the caller:
// errors are logged and counted, then dropped. This is the relay-facing
// entry point.
func (s *Store) Notify(ctx context.Context, sessionID, userText, assistantText string) {
	if err := s.Append(ctx, sessionID, "user", userText); err != nil {
		observability.RecordChatLogWrite("error")
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Chat log write failed")
		return
	}
	if err := s.Append(ctx, sessionID, "assistant", assistantText); err != nil {
		observability.RecordChatLogWrite("error")
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Chat log write failed")
		return
	}
	observability.RecordChatLogWrite("ok")
}

// History returns up to limit messages for the session, oldest first.
// A session with no record yields an empty slice.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]LoggedMessage, error) {
	if limit <= 0 {
		limit = DefaultMaxMessages
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.record_id, m.role, m.text, m.created_at
		FROM chat_messages m
		JOIN chat_records r ON r.id = m.record_id
		WHERE r.session_id = ?
		ORDER BY m.id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("chatlog: query history: %w", err)
	}
	defer rows.Close()

	var msgs []LoggedMessage
	for rows.Next() {
		var m LoggedMessage
		var created int64
		if err := rows.Scan(&m.ID, &m.RecordID, &m.Role, &m.Text, &created); err != nil {
			return nil, fmt.Errorf("chatlog: scan message: %w", err)
		}
		m.CreatedAt = time.Unix(created, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatlog: iterate history: %w", err)
	}

	// Query is newest-first for the LIMIT; flip to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteOlderThan removes chat records (and their messages, via cascade)
// created before cutoff. Returns the number of records removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_records WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("chatlog: delete old records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("chatlog: rows affected: %w", err)
	}
	return n, nil
}

// PruneSessions trims every session to its most recent maxMessages
// messages and returns the number of messages removed.
func (s *Store) PruneSessions(ctx context.Context, maxMessages int) (int64, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_messages
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY record_id ORDER BY id DESC) AS rn
				FROM chat_messages
			) WHERE rn <= ?
		)`, maxMessages)
	if err != nil {
		return 0, fmt.Errorf("chatlog: prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("chatlog: rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) ensureRecord(ctx context.Context, sessionID string) (string, error) {
	var recordID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM chat_records WHERE session_id = ?`, sessionID).Scan(&recordID)
	if err == nil {
		return recordID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("chatlog: lookup record: %w", err)
	}

	recordID = uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_records (id, session_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		recordID, sessionID, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("chatlog: create record: %w", err)
	}

	// Re-read in case a concurrent writer won the insert race.
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM chat_records WHERE session_id = ?`, sessionID).Scan(&recordID); err != nil {
		return "", fmt.Errorf("chatlog: reread record: %w", err)
	}
	return recordID, nil
}
