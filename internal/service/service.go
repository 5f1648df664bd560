// Package service installs the Discord bot as a launchd agent on macOS.
package service

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/joho/godotenv"

	"github.com/chris/copilot/config"
)

const (
	Label     = "com.copilot.bot"
	plistName = Label + ".plist"
)

// Manager owns the launchd plist, the installed binary and the service logs.
type Manager struct {
	Home       string // user home; LaunchAgents and Logs live below it
	BinPath    string // where the binary is installed
	ConfigFile string // env file the service reads at startup
	Out        io.Writer

	// launchctl runs launchctl; replaced in tests.
	launchctl func(args ...string) error
}

func NewManager(out io.Writer) (*Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	return &Manager{
		Home:       home,
		BinPath:    "/usr/local/bin/copilot",
		ConfigFile: config.ConfigFile(),
		Out:        out,
		launchctl:  launchctl,
	}, nil
}

func (m *Manager) plistPath() string {
	return filepath.Join(m.Home, "Library", "LaunchAgents", plistName)
}

func (m *Manager) stdoutLog() string {
	return filepath.Join(m.Home, "Library", "Logs", "copilot-stdout.log")
}

func (m *Manager) stderrLog() string {
	return filepath.Join(m.Home, "Library", "Logs", "copilot-stderr.log")
}

// Install copies exe to BinPath, seeds ConfigFile from ./.env when it does
// not exist yet, writes the plist and loads it.
func (m *Manager) Install(exe string) error {
	exe, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}
	bin, err := os.ReadFile(exe)
	if err != nil {
		return fmt.Errorf("reading binary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.BinPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(m.BinPath), err)
	}
	if err := os.WriteFile(m.BinPath, bin, 0o755); err != nil {
		return fmt.Errorf("copying binary to %s: %w", m.BinPath, err)
	}
	fmt.Fprintf(m.Out, "installed binary to %s\n", m.BinPath)

	if err := m.seedConfig(); err != nil {
		return err
	}

	plist, err := m.renderPlist(m.workDir())
	if err != nil {
		return fmt.Errorf("generating plist: %w", err)
	}

	if _, err := os.Stat(m.plistPath()); err == nil {
		_ = m.launchctl("unload", m.plistPath())
	}
	if err := os.MkdirAll(filepath.Dir(m.plistPath()), 0o755); err != nil {
		return fmt.Errorf("creating LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(m.plistPath(), plist, 0o644); err != nil {
		return fmt.Errorf("writing plist: %w", err)
	}
	fmt.Fprintf(m.Out, "wrote plist to %s\n", m.plistPath())

	if err := m.launchctl("load", m.plistPath()); err != nil {
		return fmt.Errorf("loading plist: %w", err)
	}
	fmt.Fprintln(m.Out, "service loaded and will start on login")
	return nil
}

func (m *Manager) seedConfig() error {
	if _, err := os.Stat(m.ConfigFile); err == nil {
		fmt.Fprintf(m.Out, "config already exists at %s\n", m.ConfigFile)
		return nil
	}
	data, err := os.ReadFile(".env")
	if err != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.ConfigFile), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(m.ConfigFile, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(m.Out, "seeded config from .env -> %s\n", m.ConfigFile)
	return nil
}

// workDir is where the service runs. Relative database, memory or storage
// paths in the config resolve against it, so those pin it to the directory
// install ran from.
func (m *Manager) workDir() string {
	vars, _ := godotenv.Read(m.ConfigFile)
	for _, k := range []string{"DATABASE_PATH", "MEMORY_PATH"} {
		if p, ok := vars[k]; ok && p != "" && !filepath.IsAbs(p) {
			if wd, err := os.Getwd(); err == nil {
				return wd
			}
		}
	}
	return filepath.Dir(m.ConfigFile)
}

// Uninstall unloads and removes the plist and the installed binary.
func (m *Manager) Uninstall() error {
	if _, err := os.Stat(m.plistPath()); err == nil {
		if err := m.launchctl("unload", m.plistPath()); err != nil {
			fmt.Fprintf(m.Out, "warning: unload failed: %v\n", err)
		}
		if err := os.Remove(m.plistPath()); err != nil {
			return fmt.Errorf("removing plist: %w", err)
		}
		fmt.Fprintf(m.Out, "removed %s\n", m.plistPath())
	} else {
		fmt.Fprintln(m.Out, "plist not found, skipping")
	}

	if _, err := os.Stat(m.BinPath); err == nil {
		if err := os.Remove(m.BinPath); err != nil {
			return fmt.Errorf("removing binary: %w", err)
		}
		fmt.Fprintf(m.Out, "removed %s\n", m.BinPath)
	}
	fmt.Fprintln(m.Out, "uninstalled")
	return nil
}

func (m *Manager) Start() error { return m.launchctl("start", Label) }

func (m *Manager) Stop() error { return m.launchctl("stop", Label) }

func (m *Manager) Restart() error {
	_ = m.Stop()
	return m.Start()
}

func (m *Manager) Status() error {
	cmd := exec.Command("launchctl", "list", Label)
	cmd.Stdout = m.Out
	cmd.Stderr = m.Out
	if err := cmd.Run(); err != nil {
		fmt.Fprintln(m.Out, "service is not loaded")
	}
	return nil
}

// Logs follows both service log files.
func (m *Manager) Logs() error {
	cmd := exec.Command("tail", "-f", m.stdoutLog(), m.stderrLog())
	cmd.Stdout = m.Out
	cmd.Stderr = m.Out
	return cmd.Run()
}

func launchctl(args ...string) error {
	cmd := exec.Command("launchctl", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("launchctl %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinPath}}</string>
		<string>bot</string>
	</array>
	<key>WorkingDirectory</key>
	<string>{{.WorkDir}}</string>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.StdoutLog}}</string>
	<key>StandardErrorPath</key>
	<string>{{.StderrLog}}</string>
</dict>
</plist>
`))

func (m *Manager) renderPlist(workDir string) ([]byte, error) {
	var buf bytes.Buffer
	err := plistTemplate.Execute(&buf, struct {
		Label, BinPath, WorkDir, StdoutLog, StderrLog string
	}{Label, m.BinPath, workDir, m.stdoutLog(), m.stderrLog()})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
