package db

import (
	"context"
	"fmt"
	"strings"
)

// SaveMemory stores a memory record, assigning an ID when m has none.
func (d *DB) SaveMemory(ctx context.Context, m *Memory) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Type == "" {
		m.Type = "general"
	}
	m.CreatedAt = now()
	_, err := d.conn.ExecContext(ctx,
		"INSERT INTO memories (id, user_id, key, value, description, type, text, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.UserID, m.Key, m.Value, m.Description, m.Type, m.Text, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

// MemoriesByKey returns userID's memories stored under key, oldest first.
func (d *DB) MemoriesByKey(ctx context.Context, userID, key string) ([]Memory, error) {
	return d.scanMemories(ctx,
		"SELECT id, user_id, key, value, description, type, text, created_at FROM memories WHERE user_id = ? AND key = ? ORDER BY created_at, rowid",
		userID, key)
}

// ListMemories returns userID's most recent memories.
func (d *DB) ListMemories(ctx context.Context, userID string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	return d.scanMemories(ctx,
		"SELECT id, user_id, key, value, description, type, text, created_at FROM memories WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		userID, limit)
}

// CountMemories returns how many memories userID has.
func (d *DB) CountMemories(ctx context.Context, userID string) (int, error) {
	var n int
	if err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE user_id = ?", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return n, nil
}

// DeleteMemories removes the listed memories owned by userID and reports
// how many rows went away. IDs belonging to other users are ignored.
func (d *DB) DeleteMemories(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	res, err := d.conn.ExecContext(ctx, "DELETE FROM memories WHERE user_id = ? AND id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("deleting memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting memories: %w", err)
	}
	return int(n), nil
}

func (d *DB) scanMemories(ctx context.Context, query string, args ...any) ([]Memory, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()
	var memories []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Key, &m.Value, &m.Description, &m.Type, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// DeleteMemory removes one memory owned by userID.
func (d *DB) DeleteMemory(ctx context.Context, userID, id string) error {
	res, err := d.conn.ExecContext(ctx, "DELETE FROM memories WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting memory %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}
