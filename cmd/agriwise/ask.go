package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"agriwise-backend/internal/models"
	"agriwise-backend/internal/services"
)

var plainOutput bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the answer",
	Example: `  agriwise ask "What pH does tomato soil need?"
  agriwise ask --plain "How often should I water seedlings?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		completer, closeCompleter, err := newCompleter(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("gemini client initialization failed: %w", err)
		}
		defer closeCompleter()

		return runAsk(ctx, cmd, completer, strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().BoolVar(&plainOutput, "plain", false, "Print the raw answer without markdown rendering")
}

// runAsk asks one question. Cancelling ctx (Ctrl+C) aborts the request.
func runAsk(ctx context.Context, cmd *cobra.Command, completer services.Completer, question string) error {
	reply, err := exchangeFor(cfg, completer).Ask(ctx, nil, question)
	if err != nil {
		var chatErr *models.ChatError
		if errors.As(err, &chatErr) {
			return fmt.Errorf("%s: %s", chatErr.Title(), chatErr.Description())
		}
		return err
	}
	return printReply(cmd.OutOrStdout(), reply, plainOutput)
}

func printReply(w io.Writer, reply string, plain bool) error {
	if !plain {
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80)); err == nil {
			if rendered, err := r.Render(reply); err == nil {
				reply = rendered
			}
		}
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(reply, "\n"))
	return err
}
