package chat

import (
	"context"
	"strings"
	"time"

	"agriwise-backend/internal/models"
	"agriwise-backend/internal/services"
)

// Exchange answers one question against a caller-held history. Unlike
// Session it keeps nothing between calls.
type Exchange struct {
	Completer    services.Completer
	SystemPrompt string
	Generation   services.GenerationConfig
	WindowSize   int
	Timeout      time.Duration
}

// Ask sends text with the last WindowSize messages of history. Every failure
// is returned as a *models.ChatError.
func (e Exchange) Ask(ctx context.Context, history []models.Message, text string) (string, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return "", models.ErrEmptyInput
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	window := Select(history, models.NewMessage(models.RoleUser, content), e.WindowSize)
	reply, err := e.Completer.Complete(ctx, window, e.SystemPrompt, e.Generation)
	if err == nil && reply == "" {
		err = models.NewMalformedResponse("empty reply")
	}
	if err != nil {
		return "", classify(ctx, err)
	}
	return reply, nil
}
