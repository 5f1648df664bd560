// Package memory stores short facts about a user and retrieves them by
// semantic similarity. Record rows live in SQLite; vectors live in a
// chromem-go collection whose documents carry the owning user in metadata.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/chris/copilot/internal/db"
)

const collectionName = "user_memories"

// Item is what a caller asks to remember.
type Item struct {
	Key         string
	Value       string
	Description string
	Type        string
}

// Result is one similarity hit. Lower Distance is closer.
type Result struct {
	ID       string
	Text     string
	Metadata map[string]string
	Distance float32
}

// vectorIndex is the part of *chromem.Collection the store uses.
type vectorIndex interface {
	AddDocument(ctx context.Context, doc chromem.Document) error
	Query(ctx context.Context, queryText string, nResults int, where, whereDocument map[string]string) ([]chromem.Result, error)
	Delete(ctx context.Context, where, whereDocument map[string]string, ids ...string) error
	Count() int
}

type Store struct {
	db         *db.DB
	collection vectorIndex
	logger     *slog.Logger
}

// OpenVectorDB opens a persistent chromem database at path, or an in-memory
// one when path is empty.
func OpenVectorDB(path string) (*chromem.DB, error) {
	if path == "" {
		return chromem.NewDB(), nil
	}
	vdb, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	return vdb, nil
}

func NewStore(database *db.DB, vdb *chromem.DB, embed chromem.EmbeddingFunc, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	col, err := vdb.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("opening memory collection: %w", err)
	}
	return &Store{db: database, collection: col, logger: logger}, nil
}

// IndexText renders the text that gets embedded for an item.
func IndexText(it Item) string {
	var b strings.Builder
	if it.Key != "" {
		b.WriteString(it.Key)
		b.WriteString(": ")
	}
	b.WriteString(it.Value)
	if it.Description != "" {
		b.WriteString(" - ")
		b.WriteString(it.Description)
	}
	return b.String()
}

// Save records it for userID. Saving an existing key appends another record.
func (s *Store) Save(ctx context.Context, userID string, it Item) (*db.Memory, error) {
	m := &db.Memory{
		UserID:      userID,
		Key:         it.Key,
		Value:       it.Value,
		Description: it.Description,
		Type:        it.Type,
		Text:        IndexText(it),
	}
	if err := s.db.SaveMemory(ctx, m); err != nil {
		return nil, err
	}
	doc := chromem.Document{
		ID:      m.ID,
		Content: m.Text,
		Metadata: map[string]string{
			"userId":      userID,
			"key":         m.Key,
			"type":        m.Type,
			"description": m.Description,
			"createdAt":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		if derr := s.db.DeleteMemory(context.WithoutCancel(ctx), userID, m.ID); derr != nil {
			s.logger.Warn("memory row rollback failed", "id", m.ID, "error", derr)
		}
		return nil, fmt.Errorf("indexing memory: %w", err)
	}
	s.logger.Debug("memory saved", "user", userID, "key", m.Key, "id", m.ID)
	return m, nil
}

// Search returns userID's memories closest to query, best first. Backend
// failures are logged and produce an empty result.
func (s *Store) Search(ctx context.Context, userID, query string, limit int) []Result {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil
	}
	owned, err := s.db.CountMemories(ctx, userID)
	if err != nil {
		s.logger.Warn("memory search failed", "user", userID, "error", err)
		return nil
	}
	n := min(limit, owned, s.collection.Count())
	if n <= 0 {
		return nil
	}
	hits, err := s.collection.Query(ctx, query, n, map[string]string{"userId": userID}, nil)
	if err != nil {
		s.logger.Warn("memory search failed", "user", userID, "error", err)
		return nil
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{
			ID:       h.ID,
			Text:     h.Content,
			Metadata: h.Metadata,
			Distance: 1 - h.Similarity,
		})
	}
	return out
}

// GetByKey returns the text of the oldest memory userID saved under key.
func (s *Store) GetByKey(ctx context.Context, userID, key string) (string, bool, error) {
	mems, err := s.db.MemoriesByKey(ctx, userID, key)
	if err != nil {
		return "", false, err
	}
	if len(mems) == 0 {
		return "", false, nil
	}
	return mems[0].Text, true, nil
}

// DeleteByKey removes every memory userID saved under key and reports how
// many were removed. Vectors are removed before rows, so a failed index
// delete leaves every memory both indexed and stored.
func (s *Store) DeleteByKey(ctx context.Context, userID, key string) (int, error) {
	mems, err := s.db.MemoriesByKey(ctx, userID, key)
	if err != nil {
		return 0, err
	}
	if len(mems) == 0 {
		return 0, nil
	}
	ids := make([]string, len(mems))
	for i, m := range mems {
		ids[i] = m.ID
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("removing memory vectors: %w", err)
	}
	n, err := s.db.DeleteMemories(ctx, userID, ids...)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// LoadRelevantContext formats the closest memories as a bullet list for the
// system prompt, or returns "" when nothing matches.
func (s *Store) LoadRelevantContext(ctx context.Context, userID, text string, limit int) string {
	hits := s.Search(ctx, userID, text, limit)
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant user information:\n")
	for _, h := range hits {
		b.WriteString("- ")
		b.WriteString(h.Text)
		b.WriteString("\n")
	}
	return b.String()
}
