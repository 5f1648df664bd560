// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/chris/copilot/internal/llm"
)

// ChatRequest records one Chat call.
type ChatRequest struct {
	System   string
	Messages []llm.Message
	Tools    []llm.Tool
}

// Fake answers Chat from ChatFunc (or the Responses script, in order) and
// Complete from CompleteFunc (or the Completions script). It records every
// request.
type Fake struct {
	ChatFunc     func(ctx context.Context, call int, req ChatRequest) (*llm.Response, error)
	CompleteFunc func(ctx context.Context, prompt string, opts llm.CompleteOptions) (string, error)

	Responses   []*llm.Response
	Completions []string

	mu        sync.Mutex
	chats     []ChatRequest
	completes []string
}

var ErrScriptExhausted = errors.New("llmtest: no scripted response left")

func (f *Fake) Chat(ctx context.Context, system string, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	req := ChatRequest{System: system, Messages: append([]llm.Message(nil), messages...), Tools: tools}
	f.mu.Lock()
	call := len(f.chats)
	f.chats = append(f.chats, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.ChatFunc != nil {
		return f.ChatFunc(ctx, call, req)
	}
	if call >= len(f.Responses) {
		return nil, ErrScriptExhausted
	}
	return f.Responses[call], nil
}

func (f *Fake) Complete(ctx context.Context, prompt string, opts llm.CompleteOptions) (string, error) {
	f.mu.Lock()
	call := len(f.completes)
	f.completes = append(f.completes, prompt)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, prompt, opts)
	}
	if call >= len(f.Completions) {
		return "", ErrScriptExhausted
	}
	return f.Completions[call], nil
}

// ChatCalls returns the Chat requests seen so far.
func (f *Fake) ChatCalls() []ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatRequest(nil), f.chats...)
}

// CompletePrompts returns the Complete prompts seen so far.
func (f *Fake) CompletePrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completes...)
}
