package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chris/copilot/internal/discord"
	"github.com/chris/copilot/internal/scheduler"
	"github.com/chris/copilot/internal/service"
)

const prompt = "copilot> "

func newRootCommand() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "copilot",
		Short: "Conversational assistant for invoices and expenses",
		Long: strings.TrimSpace(`copilot answers questions about your invoices and expenses, processes
invoice files, builds reports and remembers what you tell it.

Run it as a local chat, as a Discord bot, or trigger maintenance jobs.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newChatCommand(&debug))
	root.AddCommand(newSessionsCommand(&debug))
	root.AddCommand(newBotCommand(&debug))
	root.AddCommand(newSweepCommand(&debug))
	root.AddCommand(newServiceCommand())
	return root
}

func newChatCommand(debug *bool) *cobra.Command {
	var (
		message string
		session string
		user    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Example: strings.Join([]string{
			"  copilot chat",
			"  copilot chat --message \"How much did I spend on travel last month?\"",
			"  copilot chat --session 6f1c... --user alice",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*debug, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if user == "" {
				user = a.cfg.DefaultUserID
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			if strings.TrimSpace(message) != "" {
				reply, err := a.agent.Chat(ctx, user, session, message)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply.Content)
				return nil
			}
			return repl(ctx, a, cmd.InOrStdin(), out, user, session)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Send one message and exit")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Continue an existing session")
	cmd.Flags().StringVarP(&user, "user", "u", "", "User ID (defaults to DEFAULT_USER_ID)")
	return cmd
}

func repl(ctx context.Context, a *app, in io.Reader, out io.Writer, user, session string) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		if stat, err := f.Stat(); err == nil {
			interactive = stat.Mode()&os.ModeCharDevice != 0
		}
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	if interactive {
		fmt.Fprint(out, prompt)
	}
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" || input == "quit" {
			break
		}
		if input != "" {
			reply, err := a.agent.Chat(ctx, user, session, input)
			if err != nil {
				return err
			}
			session = reply.SessionID
			fmt.Fprintln(out, reply.Content)
		}
		if ctx.Err() != nil {
			break
		}
		if interactive {
			fmt.Fprint(out, prompt)
		}
	}
	if session != "" {
		a.logger.Info("session saved", "session", session)
	}
	return scanner.Err()
}

func newSessionsCommand(debug *bool) *cobra.Command {
	var (
		user  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*debug, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if user == "" {
				user = a.cfg.DefaultUserID
			}

			sessions, err := a.db.ListSessions(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions yet.")
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(out, "%s  %s  %s\n", s.ID, s.LastMessageAt, s.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User ID (defaults to DEFAULT_USER_ID)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list")
	return cmd
}

func newBotCommand(debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Discord bot and the overdue-invoice sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*debug, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.DiscordToken == "" {
				return fmt.Errorf("DISCORD_BOT_TOKEN is not set")
			}

			sched := scheduler.New(a.db, a.logger)
			if err := sched.Start(a.cfg.OverdueSweepCron); err != nil {
				return err
			}
			defer sched.Stop()

			bot, err := discord.NewBot(a.cfg.DiscordToken, a.agent, a.logger)
			if err != nil {
				return err
			}
			defer bot.Close()

			a.logger.Info("bot is running, press Ctrl+C to exit")
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			a.logger.Info("shutting down")
			return nil
		},
	}
}

func newSweepCommand(debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark pending invoices past their due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*debug, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := scheduler.New(a.db, a.logger).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d invoice(s) marked overdue\n", n)
			return nil
		},
	}
}

func newServiceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the bot as a launchd service (macOS)",
	}

	action := func(use, short string, run func(m *service.Manager) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := service.NewManager(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				return run(m)
			},
		}
	}

	cmd.AddCommand(
		action("install", "Install the binary and load the service", func(m *service.Manager) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolving executable path: %w", err)
			}
			return m.Install(exe)
		}),
		action("uninstall", "Unload the service and remove the binary", (*service.Manager).Uninstall),
		action("start", "Start the service", (*service.Manager).Start),
		action("stop", "Stop the service", (*service.Manager).Stop),
		action("restart", "Restart the service", (*service.Manager).Restart),
		action("status", "Show launchd status", (*service.Manager).Status),
		action("logs", "Follow the service logs", (*service.Manager).Logs),
	)
	return cmd
}
