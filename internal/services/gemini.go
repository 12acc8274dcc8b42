package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"agriwise-backend/internal/models"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-1.5-flash"

	// Acknowledgement placed after the system prompt so the wire turns keep alternating.
	systemAck = "Understood."

	maxResponseBytes = 4 << 20
)

// GeminiClient calls the Gemini generateContent REST endpoint directly.
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	logger     *zap.Logger
}

func NewGeminiClient(apiKey, baseURL, model string, httpClient *http.Client, logger *zap.Logger) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Wire types for generateContent.

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopK            int32   `json:"topK,omitempty"`
	TopP            float32 `json:"topP,omitempty"`
	MaxOutputTokens int32   `json:"maxOutputTokens,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Complete sends one generateContent request for the window. No retry is attempted.
func (c *GeminiClient) Complete(ctx context.Context, window []models.Message, systemPrompt string, cfg GenerationConfig) (string, error) {
	turns, err := buildTurns(window, systemPrompt)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(buildRequest(turns, cfg))
	if err != nil {
		return "", &models.ChatError{Kind: models.KindTransportFailure, Message: "failed to encode request", Err: err}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &models.ChatError{Kind: models.KindTransportFailure, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Gemini API error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(raw, 512)))
		return "", rejectionFromBody(resp.StatusCode, raw)
	}

	text, err := c.parseResponse(raw)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *GeminiClient) parseResponse(raw []byte) (string, error) {
	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &models.ChatError{Kind: models.KindMalformedResponse, Message: "invalid JSON body", Err: err}
	}

	for i, cand := range parsed.Candidates {
		c.logger.Debug("Gemini candidate", zap.Int("index", i), zap.String("finish_reason", cand.FinishReason))
	}

	if len(parsed.Candidates) == 0 {
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			return "", models.NewMalformedResponse("blocked: " + parsed.PromptFeedback.BlockReason)
		}
		return "", models.NewMalformedResponse("no candidates")
	}

	first := parsed.Candidates[0]
	if first.Content == nil || len(first.Content.Parts) == 0 || first.Content.Parts[0].Text == "" {
		if first.FinishReason != "" {
			return "", models.NewMalformedResponse("finish reason: " + first.FinishReason)
		}
		return "", models.NewMalformedResponse("candidate has no text")
	}
	return first.Content.Parts[0].Text, nil
}

func rejectionFromBody(status int, raw []byte) *models.ChatError {
	var body geminiErrorBody
	message := ""
	if json.Unmarshal(raw, &body) == nil {
		message = body.Error.Message
	}
	if message == "" {
		message = "Failed to get response from Gemini API: " + http.StatusText(status)
	}
	return models.NewRemoteRejection(status, message)
}

// Helper functions

type turn struct {
	Role string // "user" or "model"
	Text string
}

// buildTurns maps a request window onto alternating Gemini turns. Leading
// assistant messages (the greeting) are dropped, consecutive same-role
// messages are merged, and the system prompt goes first as a synthetic exchange.
func buildTurns(window []models.Message, systemPrompt string) ([]turn, error) {
	start := 0
	for start < len(window) && window[start].Role != models.RoleUser {
		start++
	}

	var turns []turn
	if systemPrompt != "" {
		turns = append(turns, turn{Role: "user", Text: systemPrompt}, turn{Role: "model", Text: systemAck})
	}

	base := len(turns)
	for _, msg := range window[start:] {
		role := wireRole(msg.Role)
		if len(turns) > base && turns[len(turns)-1].Role == role {
			turns[len(turns)-1].Text += "\n\n" + msg.Content
			continue
		}
		turns = append(turns, turn{Role: role, Text: msg.Content})
	}

	if len(turns) == base || turns[len(turns)-1].Role != "user" {
		return nil, &models.ChatError{Kind: models.KindEmptyInput, Message: "request window has no trailing user message"}
	}
	return turns, nil
}

func wireRole(r models.Role) string {
	if r == models.RoleAssistant {
		return "model"
	}
	return "user"
}

func buildRequest(turns []turn, cfg GenerationConfig) geminiRequest {
	req := geminiRequest{
		Contents: make([]geminiContent, len(turns)),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     cfg.Temperature,
			TopK:            cfg.TopK,
			TopP:            cfg.TopP,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	}
	for i, t := range turns {
		req.Contents[i] = geminiContent{Role: t.Role, Parts: []geminiPart{{Text: t.Text}}}
	}
	if cfg.SafetySettings {
		for _, category := range safetyCategories {
			req.SafetySettings = append(req.SafetySettings, geminiSafetySetting{Category: category, Threshold: safetyThreshold})
		}
	}
	return req
}

func transportError(ctx context.Context, err error) *models.ChatError {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &models.ChatError{Kind: models.KindTransportFailure, Message: "request timed out", Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &models.ChatError{Kind: models.KindTransportFailure, Message: "request cancelled", Err: err}
	default:
		return models.NewTransportError(err)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
