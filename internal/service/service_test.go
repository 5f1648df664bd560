package service

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *[]string) {
	t.Helper()
	home := t.TempDir()
	var calls []string
	m := &Manager{
		Home:       home,
		BinPath:    filepath.Join(home, "bin", "copilot"),
		ConfigFile: filepath.Join(home, ".copilot", "config"),
		Out:        &bytes.Buffer{},
		launchctl: func(args ...string) error {
			calls = append(calls, strings.Join(args, " "))
			return nil
		},
	}
	return m, &calls
}

func TestInstallAndUninstall(t *testing.T) {
	m, calls := newTestManager(t)
	work := t.TempDir()
	t.Chdir(work)
	require.NoError(t, os.WriteFile(".env", []byte("DATABASE_PATH=./copilot.db\n"), 0o600))

	exe := filepath.Join(work, "copilot-build")
	require.NoError(t, os.WriteFile(exe, []byte("binary"), 0o755))

	require.NoError(t, m.Install(exe))

	bin, err := os.ReadFile(m.BinPath)
	require.NoError(t, err)
	assert.Equal(t, "binary", string(bin))

	seeded, err := os.ReadFile(m.ConfigFile)
	require.NoError(t, err)
	assert.Contains(t, string(seeded), "DATABASE_PATH")

	plist, err := os.ReadFile(m.plistPath())
	require.NoError(t, err)
	assert.Contains(t, string(plist), "<string>"+Label+"</string>")
	assert.Contains(t, string(plist), "<string>bot</string>")
	// Relative DATABASE_PATH pins the service to the install directory.
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Contains(t, string(plist), "<string>"+wd+"</string>")
	assert.Equal(t, []string{"load " + m.plistPath()}, *calls)

	require.NoError(t, m.Uninstall())
	assert.NoFileExists(t, m.plistPath())
	assert.NoFileExists(t, m.BinPath)
	assert.Equal(t, "unload "+m.plistPath(), (*calls)[1])
}

func TestWorkDirDefaultsToConfigDir(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.ConfigFile), 0o700))
	require.NoError(t, os.WriteFile(m.ConfigFile, []byte("DATABASE_PATH=/var/lib/copilot.db\n"), 0o600))

	assert.Equal(t, filepath.Dir(m.ConfigFile), m.workDir())
}

func TestRestart(t *testing.T) {
	m, calls := newTestManager(t)
	require.NoError(t, m.Restart())
	assert.Equal(t, []string{"stop " + Label, "start " + Label}, *calls)
}
