// Package tools is the catalog of operations the model may call. A Registry
// is built per request and every handler closes over the acting user's ID,
// so no tool can reach another user's records.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris/copilot/internal/analytics"
	"github.com/chris/copilot/internal/db"
	"github.com/chris/copilot/internal/extract"
	"github.com/chris/copilot/internal/files"
	"github.com/chris/copilot/internal/llm"
	"github.com/chris/copilot/internal/memory"
	"github.com/chris/copilot/internal/query"
)

// Handler runs a tool. Errors are turned into text by Registry.Execute.
type Handler func(ctx context.Context, args map[string]any) (string, error)

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
	Handler     Handler
}

// Memory is the subset of memory.Store the memory tools use.
type Memory interface {
	Save(ctx context.Context, userID string, it memory.Item) (*db.Memory, error)
	Search(ctx context.Context, userID, query string, limit int) []memory.Result
	GetByKey(ctx context.Context, userID, key string) (string, bool, error)
	DeleteByKey(ctx context.Context, userID, key string) (int, error)
}

// Fetcher downloads a document on behalf of a user.
type Fetcher interface {
	Fetch(ctx context.Context, userID, url, name string) (*files.File, error)
}

type Archiver interface {
	Put(ctx context.Context, userID, id, name string, data []byte) (string, error)
}

// Deps are the process-lifetime collaborators shared by every registry.
type Deps struct {
	DB         *db.DB
	Client     llm.Client
	Memory     Memory
	Translator *query.Translator
	Analytics  *analytics.Service
	Extractor  extract.Extractor
	Fetcher    Fetcher
	Archive    Archiver // optional; without it the source URL is stored
	Logger     *slog.Logger
	Now        func() time.Time
}

type Registry struct {
	userID string
	deps   Deps
	logger *slog.Logger
	tools  map[string]*Tool
	order  []string
}

// NewRegistry builds the full catalog for userID.
func NewRegistry(userID string, deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	r := &Registry{
		userID: userID,
		deps:   deps,
		logger: deps.Logger.With("user", userID),
		tools:  make(map[string]*Tool),
	}
	r.registerExpenseTools()
	r.registerInvoiceTools()
	r.registerReportTools()
	r.registerMemoryTools()
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t *Tool) {
	if _, ok := r.tools[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names lists tools in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the schemas to bind to a chat call, in catalog order.
func (r *Registry) Definitions() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, llm.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}

// Execute runs a tool and always returns text: unknown names, handler
// errors and panics all become a message the model can read.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result string) {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return fmt.Sprintf("Tool %s not found", name)
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			result = fmt.Sprintf("Error executing %s: %v", name, p)
		}
	}()

	start := time.Now()
	out, err := t.Handler(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err, "elapsed", time.Since(start))
		return fmt.Sprintf("Error executing %s: %s", name, err)
	}
	r.logger.Debug("tool executed", "tool", name, "elapsed", time.Since(start), "result", truncate(out, 200))
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
