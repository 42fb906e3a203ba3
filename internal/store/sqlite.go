package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harborbank/concierge/internal/engine"
)

// SQLite keeps all conversation state in a single database file. The stack
// and the instance payloads are stored as JSON documents; history rows are
// relational so recent turns can be fetched with a plain ORDER BY.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS context_stacks (
	user_id    TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS task_instances (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_history (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id   TEXT NOT NULL,
	utterance TEXT NOT NULL,
	reply     TEXT NOT NULL,
	at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_user ON conversation_history(user_id, seq);
`

// NewSQLite opens (creating if needed) the database at path and applies the
// schema. The caller owns Close.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("store: sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	// The driver serializes access through a single connection; the engine's
	// per-user locking provides the higher-level ordering.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) LoadContextStack(userID string) (engine.ContextStack, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM context_stacks WHERE user_id = ?`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ContextStack{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.ContextStack{}, fmt.Errorf("store: load context stack for %s: %w", userID, err)
	}
	var stack engine.ContextStack
	if err := json.Unmarshal([]byte(payload), &stack); err != nil {
		return engine.ContextStack{}, fmt.Errorf("store: decode context stack for %s: %w", userID, err)
	}
	return stack, nil
}

func (s *SQLite) SaveContextStack(stack engine.ContextStack) error {
	payload, err := json.Marshal(stack)
	if err != nil {
		return fmt.Errorf("store: encode context stack for %s: %w", stack.UserID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO context_stacks (user_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		stack.UserID, string(payload), stack.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: save context stack for %s: %w", stack.UserID, err)
	}
	return nil
}

func (s *SQLite) LoadInstance(id string) (engine.Instance, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM task_instances WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Instance{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.Instance{}, fmt.Errorf("store: load instance %s: %w", id, err)
	}
	var inst engine.Instance
	if err := json.Unmarshal([]byte(payload), &inst); err != nil {
		return engine.Instance{}, fmt.Errorf("store: decode instance %s: %w", id, err)
	}
	return inst, nil
}

func (s *SQLite) SaveInstance(inst engine.Instance) error {
	payload, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("store: encode instance %s: %w", inst.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO task_instances (id, user_id, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		inst.ID, inst.UserID, string(payload), inst.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: save instance %s: %w", inst.ID, err)
	}
	return nil
}

func (s *SQLite) AppendHistory(turn engine.HistoryTurn) error {
	_, err := s.db.Exec(`INSERT INTO conversation_history (user_id, utterance, reply, at) VALUES (?, ?, ?, ?)`,
		turn.UserID, turn.Utterance, turn.Reply, turn.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: append history for %s: %w", turn.UserID, err)
	}
	return nil
}

func (s *SQLite) History(userID string, limit int) ([]engine.HistoryTurn, error) {
	query := `SELECT utterance, reply, at FROM conversation_history WHERE user_id = ? ORDER BY seq DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: load history for %s: %w", userID, err)
	}
	defer rows.Close()

	var turns []engine.HistoryTurn
	for rows.Next() {
		var turn engine.HistoryTurn
		var at string
		if err := rows.Scan(&turn.Utterance, &turn.Reply, &at); err != nil {
			return nil, fmt.Errorf("store: scan history for %s: %w", userID, err)
		}
		turn.UserID = userID
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			turn.At = parsed
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate history for %s: %w", userID, err)
	}
	// Rows arrive newest first; callers expect oldest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
