package main

import (
	"fmt"
	"log/slog"

	"github.com/chris/copilot/config"
	"github.com/chris/copilot/internal/agent"
	"github.com/chris/copilot/internal/analytics"
	"github.com/chris/copilot/internal/db"
	"github.com/chris/copilot/internal/extract"
	"github.com/chris/copilot/internal/files"
	"github.com/chris/copilot/internal/llm"
	"github.com/chris/copilot/internal/memory"
	"github.com/chris/copilot/internal/query"
	"github.com/chris/copilot/internal/tools"
)

// app holds the process-lifetime components shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *db.DB
	agent  *agent.Agent
}

// setup loads configuration and opens the database. The agent is built only
// when withAgent is set, so maintenance commands run without LLM credentials.
func setup(debug, withAgent bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: database}
	if !withAgent {
		return a, nil
	}

	ag, err := a.buildAgent()
	if err != nil {
		database.Close()
		return nil, err
	}
	a.agent = ag
	return a, nil
}

func (a *app) buildAgent() (*agent.Agent, error) {
	cfg := a.cfg

	client, err := llm.NewClient(llm.ProviderConfig{
		Provider:  cfg.LLMProvider,
		APIKey:    cfg.APIKey(),
		AuthToken: cfg.AnthropicToken,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.ChatBaseURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}

	vdb, err := memory.OpenVectorDB(cfg.MemoryPath)
	if err != nil {
		return nil, err
	}
	embed, err := memory.NewEmbeddingFunc(memory.EmbeddingConfig{
		Provider: cfg.EmbeddingProvider,
		Model:    cfg.EmbeddingModel,
		APIKey:   cfg.EmbeddingAPIKey(),
		BaseURL:  cfg.EmbeddingBaseURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	store, err := memory.NewStore(a.db, vdb, embed, a.logger.With("component", "memory"))
	if err != nil {
		return nil, err
	}

	deps := tools.Deps{
		DB:         a.db,
		Client:     client,
		Memory:     store,
		Translator: query.NewTranslator(client, a.logger.With("component", "query")),
		Analytics:  analytics.NewService(a.db, client, a.logger.With("component", "analytics")),
		Extractor:  extract.NewLLMExtractor(client, a.logger.With("component", "extract")),
		Fetcher:    files.NewFetcher(nil, cfg.StorageURL),
		Logger:     a.logger.With("component", "tools"),
	}
	if cfg.StorageURL != "" {
		archive, err := files.NewArchive(cfg.StorageURL)
		if err != nil {
			return nil, err
		}
		deps.Archive = archive
	}

	opts := agent.Options{
		MaxToolRounds:    cfg.MaxToolIterations,
		HistoryLimit:     cfg.HistoryLimit,
		MaxContextTokens: cfg.MaxContextTokens,
		Timeout:          cfg.AgentTimeout,
	}
	return agent.New(client, deps, store, opts, a.logger.With("component", "agent")), nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}
