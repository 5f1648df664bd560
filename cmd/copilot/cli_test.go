package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/copilot/internal/db"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHelpListsCommands(t *testing.T) {
	out, err := runRoot(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"chat", "sessions", "bot", "sweep", "service"} {
		assert.Contains(t, out, name)
	}
}

func TestSweepAndSessionsCommands(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "copilot.db")
	t.Setenv("DATABASE_PATH", path)
	t.Setenv("DEFAULT_USER_ID", "u1")

	d, err := db.Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, d.CreateInvoice(ctx, &db.Invoice{UserID: "u1", DueDate: "2000-01-01"}))
	_, err = d.CreateSession(ctx, "u1", "travel spend")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	out, err := runRoot(t, "sweep")
	require.NoError(t, err)
	assert.Equal(t, "1 invoice(s) marked overdue\n", out)

	out, err = runRoot(t, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "travel spend")

	out, err = runRoot(t, "sessions", "--user", "someone-else")
	require.NoError(t, err)
	assert.Equal(t, "No sessions yet.\n", out)
}

func TestBotRequiresToken(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "copilot.db"))
	t.Setenv("MEMORY_PATH", "")
	t.Setenv("EMBEDDING_PROVIDER", "local")
	t.Setenv("STORAGE_URL", "mem://localhost/uploads")
	t.Setenv("DISCORD_BOT_TOKEN", "")

	_, err := runRoot(t, "bot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_BOT_TOKEN")
}
