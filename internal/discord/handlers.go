package discord

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const (
	messageLimit = 2000
	errorReply   = "Something went wrong. Try again?"
)

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore own messages
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	// Only respond to DMs or when mentioned
	isDM := m.GuildID == ""
	isMentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			isMentioned = true
			break
		}
	}
	if !isDM && !isMentioned {
		return
	}

	content := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if content == "" {
		return
	}

	_ = s.ChannelTyping(m.ChannelID)

	for _, chunk := range b.handle(context.Background(), m.ChannelID, m.Author.ID, content) {
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			b.logger.Error("sending reply", "channel", m.ChannelID, "error", err)
			return
		}
	}
}

// handle runs one message through the chat session bound to the channel and
// returns the reply split to Discord's message limit.
func (b *Bot) handle(ctx context.Context, channelID, authorID, content string) []string {
	b.mu.Lock()
	sessionID := b.sessions[channelID]
	b.mu.Unlock()

	reply, err := b.chat.Chat(ctx, userID(authorID), sessionID, content)
	if err != nil {
		b.logger.Error("chat failed", "channel", channelID, "error", err)
		return []string{errorReply}
	}

	b.mu.Lock()
	b.sessions[channelID] = reply.SessionID
	b.mu.Unlock()

	return splitMessage(reply.Content, messageLimit)
}

// userID namespaces Discord accounts so they never collide with CLI users.
func userID(authorID string) string {
	return "discord:" + authorID
}

func stripMention(s, userID string) string {
	s = strings.ReplaceAll(s, "<@"+userID+">", "")
	s = strings.ReplaceAll(s, "<@!"+userID+">", "")
	return s
}

func splitMessage(s string, maxLen int) []string {
	if len(s) <= maxLen {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		end := min(maxLen, len(s))
		if end < len(s) {
			// Prefer the last newline; never cut inside a rune.
			if idx := strings.LastIndex(s[:end], "\n"); idx > 0 {
				end = idx + 1
			}
			for end > 1 && !utf8.RuneStart(s[end]) {
				end--
			}
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
