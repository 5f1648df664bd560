package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/chris/copilot/internal/memory"
)

const defaultMemorySearchLimit = 5

func (r *Registry) registerMemoryTools() {
	r.Register(&Tool{
		Name:        "save_memory",
		Description: `Save important information about the user to memory. Use this when users share personal information like their name, preferences, or any details you should remember for future conversations. Examples: user says "my name is John", "I prefer monthly reports", "I work in finance".`,
		Parameters: objReq(map[string]any{
			"key":         prop("string", `A unique key/identifier for this memory (e.g., "name", "preference_report_frequency")`),
			"value":       prop("string", "The actual information to remember"),
			"description": prop("string", "Optional description or context for this memory"),
			"type":        prop("string", "Type of memory: personal_info, preference, fact, etc."),
		}, "key", "value"),
		Handler: r.saveMemory,
	})
	r.Register(&Tool{
		Name:        "search_memory",
		Description: `Search for relevant information stored in memory. Use this when you need to recall something about the user or find related information. Examples: "What is the user's name?", "What are the user's preferences?"`,
		Parameters: objReq(map[string]any{
			"query": prop("string", "The search query to find relevant memories"),
			"limit": prop("number", "Maximum number of results to return (default: 5)"),
		}, "query"),
		Handler: r.searchMemory,
	})
	r.Register(&Tool{
		Name:        "get_memory",
		Description: `Get a specific memory by its key. Use this when you know the exact key of the information you want to retrieve.`,
		Parameters: objReq(map[string]any{
			"key": prop("string", "The key of the memory to retrieve"),
		}, "key"),
		Handler: r.getMemory,
	})
	r.Register(&Tool{
		Name:        "delete_memory",
		Description: `Delete a specific memory by its key. Use this when the user asks to forget something or when information needs to be removed.`,
		Parameters: objReq(map[string]any{
			"key": prop("string", "The key of the memory to delete"),
		}, "key"),
		Handler: r.deleteMemory,
	})
}

func (r *Registry) saveMemory(ctx context.Context, args map[string]any) (string, error) {
	key, err := requireString(args, "key")
	if err != nil {
		return "", err
	}
	value, err := requireString(args, "value")
	if err != nil {
		return "", err
	}
	it := memory.Item{Key: key, Value: value}
	it.Description, _ = getString(args, "description")
	it.Type, _ = getString(args, "type")

	if _, err := r.deps.Memory.Save(ctx, r.userID, it); err != nil {
		return "", err
	}
	return fmt.Sprintf("Memory saved successfully: %s = %s", key, value), nil
}

func (r *Registry) searchMemory(ctx context.Context, args map[string]any) (string, error) {
	q, err := requireString(args, "query")
	if err != nil {
		return "", err
	}
	limit := defaultMemorySearchLimit
	if n, ok := getInt(args, "limit"); ok && n > 0 {
		limit = int(n)
	}

	results := r.deps.Memory.Search(ctx, r.userID, q, limit)
	if len(results) == 0 {
		return "No relevant memories found.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant %s:\n\n", len(results), plural(len(results), "memory", "memories"))
	for i, m := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, m.Text)
	}
	return b.String(), nil
}

func (r *Registry) getMemory(ctx context.Context, args map[string]any) (string, error) {
	key, err := requireString(args, "key")
	if err != nil {
		return "", err
	}
	text, ok, err := r.deps.Memory.GetByKey(ctx, r.userID, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "No memory found with key: " + key, nil
	}
	return fmt.Sprintf("Memory (%s): %s", key, text), nil
}

func (r *Registry) deleteMemory(ctx context.Context, args map[string]any) (string, error) {
	key, err := requireString(args, "key")
	if err != nil {
		return "", err
	}
	n, err := r.deps.Memory.DeleteByKey(ctx, r.userID, key)
	if err != nil {
		return "", err
	}
	r.logger.Debug("memories deleted", "key", key, "count", n)
	return "Memory deleted successfully: " + key, nil
}
