package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/chris/copilot/internal/agent"
)

// Chatter answers a message within a stored session.
type Chatter interface {
	Chat(ctx context.Context, userID, sessionID, message string) (*agent.Reply, error)
}

type Bot struct {
	session *discordgo.Session
	chat    Chatter
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]string // channel ID -> chat session ID
}

func newBot(chat Chatter, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		chat:     chat,
		logger:   logger.With("component", "discord"),
		sessions: make(map[string]string),
	}
}

func NewBot(token string, chat Chatter, logger *slog.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}

	bot := newBot(chat, logger)
	bot.session = s
	s.AddHandler(bot.onMessage)
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening Discord connection: %w", err)
	}

	bot.logger.Info("bot connected", "username", s.State.User.Username)
	return bot, nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}
