package db

import (
	"context"
	"fmt"
	"slices"
)

// CreateSession starts a conversation for userID.
func (d *DB) CreateSession(ctx context.Context, userID, title string) (*Session, error) {
	if title == "" {
		title = "New Chat"
	}
	ts := now()
	s := &Session{ID: newID(), UserID: userID, Title: title, LastMessageAt: ts, CreatedAt: ts}
	_, err := d.conn.ExecContext(ctx,
		"INSERT INTO chat_sessions (id, user_id, title, last_message_at, created_at) VALUES (?, ?, ?, ?, ?)",
		s.ID, s.UserID, s.Title, s.LastMessageAt, s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return s, nil
}

// GetSession returns the session only if userID owns it.
func (d *DB) GetSession(ctx context.Context, userID, id string) (*Session, error) {
	var s Session
	err := d.conn.QueryRowContext(ctx,
		"SELECT id, user_id, title, last_message_at, created_at FROM chat_sessions WHERE id = ? AND user_id = ?",
		id, userID).Scan(&s.ID, &s.UserID, &s.Title, &s.LastMessageAt, &s.CreatedAt)
	if notFound(err) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return &s, nil
}

// ListSessions returns userID's sessions, most recently active first.
func (d *DB) ListSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.QueryContext(ctx,
		"SELECT id, user_id, title, last_message_at, created_at FROM chat_sessions WHERE user_id = ? ORDER BY last_message_at DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.LastMessageAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TouchSession bumps a session's last activity time.
func (d *DB) TouchSession(ctx context.Context, userID, id string) error {
	_, err := d.conn.ExecContext(ctx,
		"UPDATE chat_sessions SET last_message_at = ? WHERE id = ? AND user_id = ?", now(), id, userID)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// AppendTurn stores one message in a session.
func (d *DB) AppendTurn(ctx context.Context, sessionID, userID, role, content string) (*Turn, error) {
	t := &Turn{ID: newID(), SessionID: sessionID, UserID: userID, Role: role, Content: content, CreatedAt: now()}
	_, err := d.conn.ExecContext(ctx,
		"INSERT INTO chat_messages (id, session_id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		t.ID, t.SessionID, t.UserID, t.Role, t.Content, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("appending %s turn: %w", role, err)
	}
	return t, nil
}

// LoadRecentHistory returns the last limit turns of a session in chronological order.
func (d *DB) LoadRecentHistory(ctx context.Context, sessionID, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, session_id, user_id, role, content, created_at FROM chat_messages
		WHERE session_id = ? AND user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()
	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
