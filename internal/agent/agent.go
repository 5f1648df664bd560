package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chris/copilot/internal/llm"
	"github.com/chris/copilot/internal/tools"
)

const (
	defaultMaxToolRounds = 5
	defaultHistoryLimit  = 20
	// memoryHistoryEntries is how many prior turns feed the memory lookup.
	memoryHistoryEntries = 3
	memoryContextLimit   = 5
	// minMessageBudget keeps room for at least the current turn.
	minMessageBudget = 1000

	fallbackReply = "I'm having trouble processing your request. Please try again."
)

// ContextLoader recalls stored facts relevant to a piece of text.
type ContextLoader interface {
	LoadRelevantContext(ctx context.Context, userID, text string, limit int) string
}

type Options struct {
	MaxToolRounds    int           // tool rounds per message; the model is called at most MaxToolRounds+1 times
	HistoryLimit     int           // prior turns sent to the model
	MaxContextTokens int           // 0 disables trimming
	Timeout          time.Duration // wall clock for one message; 0 means none
}

type Agent struct {
	client  llm.Client
	deps    tools.Deps
	memory  ContextLoader
	opts    Options
	logger  *slog.Logger
	catalog func(userID string) *tools.Registry
}

func New(client llm.Client, deps tools.Deps, memory ContextLoader, opts Options, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = defaultMaxToolRounds
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	a := &Agent{client: client, deps: deps, memory: memory, opts: opts, logger: logger}
	a.catalog = func(userID string) *tools.Registry { return tools.NewRegistry(userID, a.deps) }
	return a
}

// HandleUserMessage runs the tool-calling loop for one inbound message and
// returns the reply. It always returns text: model failures, cancellation
// and the round cap all end in a user-facing message.
func (a *Agent) HandleUserMessage(ctx context.Context, userMessage string, history []llm.Message, userID string) string {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	logger := a.logger.With("user", userID)

	registry := a.catalog(userID)
	defs := registry.Definitions()

	history = recent(history, a.opts.HistoryLimit)
	system := llm.BuildSystemPrompt(a.recall(ctx, userID, userMessage, history))

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})

	budget := 0
	if a.opts.MaxContextTokens > 0 {
		budget = max(llm.HistoryBudget(a.opts.MaxContextTokens, system, defs), minMessageBudget)
	}

	var lastText string
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("message abandoned", "round", round, "error", err)
			return apology(err)
		}

		sent := messages
		if budget > 0 {
			sent = llm.TrimMessages(messages, budget)
			if len(sent) < len(messages) {
				logger.Debug("context trimmed", "from", len(messages), "to", len(sent))
			}
		}

		resp, err := a.client.Chat(ctx, system, sent, defs)
		if err != nil {
			logger.Error("model call failed", "round", round, "error", err)
			return apology(err)
		}
		if len(resp.ToolCalls) == 0 {
			logger.Info("message handled", "rounds", round, "elapsed", time.Since(start))
			return resp.Content
		}
		if resp.Content != "" {
			lastText = resp.Content
		}
		if round >= a.opts.MaxToolRounds {
			logger.Warn("tool round limit reached", "rounds", round, "pending_calls", len(resp.ToolCalls))
			break
		}

		calls := withCallIDs(resp.ToolCalls)
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: calls})
		messages = append(messages, a.runTools(ctx, registry, calls)...)
	}

	if lastText != "" {
		return lastText
	}
	return fallbackReply
}

// runTools executes one model turn's tool calls concurrently. Results come
// back in call order, each tagged with its call's ID.
func (a *Agent) runTools(ctx context.Context, registry *tools.Registry, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, len(calls))
	var g errgroup.Group
	for i, tc := range calls {
		g.Go(func() error {
			a.logger.Debug("tool call", "tool", tc.Name, "id", tc.ID, "params", tc.Params)
			results[i] = llm.Message{
				Role:       llm.RoleTool,
				Content:    registry.Execute(ctx, tc.Name, tc.Params),
				ToolCallID: tc.ID,
			}
			return nil
		})
	}
	_ = g.Wait() // Execute never fails
	return results
}

// recall loads memories relevant to the new message and the last few turns.
func (a *Agent) recall(ctx context.Context, userID, userMessage string, history []llm.Message) string {
	if a.memory == nil {
		return ""
	}
	parts := []string{userMessage}
	for _, m := range history[max(0, len(history)-memoryHistoryEntries):] {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return a.memory.LoadRelevantContext(ctx, userID, strings.Join(parts, "\n"), memoryContextLimit)
}

func withCallIDs(calls []llm.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	for i, tc := range calls {
		if tc.ID == "" {
			tc.ID = fmt.Sprintf("call_%d", i)
		}
		if tc.Params == nil {
			tc.Params = map[string]any{}
		}
		out[i] = tc
	}
	return out
}

// recent keeps the last n user and assistant turns.
func recent(history []llm.Message, n int) []llm.Message {
	var out []llm.Message
	for _, m := range history {
		if (m.Role == llm.RoleUser || m.Role == llm.RoleAssistant) && m.Content != "" {
			out = append(out, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func apology(err error) string {
	return fmt.Sprintf("I encountered an error processing your request: %s. Please try again.", err)
}
