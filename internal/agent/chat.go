package agent

import (
	"context"
	"fmt"

	"github.com/chris/copilot/internal/db"
	"github.com/chris/copilot/internal/llm"
)

const titleLength = 50

type Reply struct {
	SessionID string
	Content   string
}

// Chat handles a message within a stored session. An empty sessionID starts
// a new session titled after the message. Only storage failures are
// returned as errors; the reply itself is always produced.
func (a *Agent) Chat(ctx context.Context, userID, sessionID, message string) (*Reply, error) {
	store := a.deps.DB
	if sessionID == "" {
		s, err := store.CreateSession(ctx, userID, title(message))
		if err != nil {
			return nil, err
		}
		sessionID = s.ID
	} else if _, err := store.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	turns, err := store.LoadRecentHistory(ctx, sessionID, userID, a.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if _, err := store.AppendTurn(ctx, sessionID, userID, llm.RoleUser, message); err != nil {
		return nil, err
	}

	content := a.HandleUserMessage(ctx, message, toMessages(turns), userID)

	// The reply is stored even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	if _, err := store.AppendTurn(ctx, sessionID, userID, llm.RoleAssistant, content); err != nil {
		return nil, err
	}
	if err := store.TouchSession(ctx, userID, sessionID); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return &Reply{SessionID: sessionID, Content: content}, nil
}

func toMessages(turns []db.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

func title(message string) string {
	r := []rune(message)
	if len(r) > titleLength {
		return string(r[:titleLength])
	}
	return message
}
