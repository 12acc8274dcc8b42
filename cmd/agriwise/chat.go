package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agriwise-backend/internal/chat"
	"agriwise-backend/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat drawer in the terminal",
	Long: `Starts an interactive conversation with the assistant.

Enter sends, Alt+Enter inserts a newline, Esc cancels a pending answer
(or quits when idle) and Ctrl+C quits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()

		completer, closeCompleter, err := newCompleter(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("gemini client initialization failed: %w", err)
		}
		defer closeCompleter()

		opts := append(sessionOptions(cfg), chat.WithLogger(logger))
		return tui.Run(ctx, completer, opts...)
	},
}
