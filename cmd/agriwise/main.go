package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agriwise-backend/internal/chat"
	"agriwise-backend/internal/config"
	"agriwise-backend/internal/services"
)

var (
	// Global flags
	configPath string
	verbose    bool
	logFile    string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "agriwise",
	Short: "AgriWise AI farming assistant",
	Long: `AgriWise answers farming questions (crops, soil health, plant diseases,
weather, sustainable practices) with a Gemini-backed assistant.

Run "agriwise serve" for the dashboard API, "agriwise chat" for the terminal
chat drawer, or "agriwise ask" for a single question.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		// The chat UI owns the terminal, so it only logs to a file.
		if cmd.Name() == "chat" && logFile == "" {
			logger = zap.NewNop()
			return nil
		}

		logger, err = newLogger(cfg, verbose, logFile)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML policy file (or set AGRIWISE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, verbose bool, path string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	if path != "" {
		zcfg.OutputPaths = []string{path}
		zcfg.ErrorOutputPaths = []string{path}
	}
	return zcfg.Build()
}

// newCompleter builds the configured Gemini backend. The returned close
// function releases its resources.
func newCompleter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.Completer, func(), error) {
	switch cfg.LLMBackend {
	case "sdk":
		c, err := services.NewGeminiSDKClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		c := services.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiModel, &http.Client{}, logger)
		return c, func() {}, nil
	}
}

// sessionOptions maps the chat policy onto session options.
func sessionOptions(cfg *config.Config) []chat.Option {
	return []chat.Option{
		chat.WithWindowSize(cfg.ChatWindowSize),
		chat.WithSystemPrompt(cfg.ChatSystemPrompt),
		chat.WithGenerationConfig(cfg.Generation),
		chat.WithGreeting(cfg.ChatGreeting),
		chat.WithTimeout(cfg.ChatRequestTimeout),
	}
}

func exchangeFor(cfg *config.Config, completer services.Completer) chat.Exchange {
	return chat.Exchange{
		Completer:    completer,
		SystemPrompt: cfg.ChatSystemPrompt,
		Generation:   cfg.Generation,
		WindowSize:   cfg.ChatWindowSize,
		Timeout:      cfg.ChatRequestTimeout,
	}
}
