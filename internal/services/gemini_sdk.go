package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"agriwise-backend/internal/models"
)

// GeminiSDKClient completes chat windows through the generative-ai-go SDK.
type GeminiSDKClient struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

func NewGeminiSDKClient(ctx context.Context, apiKey, modelName string, logger *zap.Logger, opts ...option.ClientOption) (*GeminiSDKClient, error) {
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiSDKClient{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

func (s *GeminiSDKClient) Close() {
	s.client.Close()
}

func (s *GeminiSDKClient) Complete(ctx context.Context, window []models.Message, systemPrompt string, cfg GenerationConfig) (string, error) {
	turns, err := buildTurns(window, systemPrompt)
	if err != nil {
		return "", err
	}

	model := s.client.GenerativeModel(s.modelName)
	applyGenerationConfig(model, cfg)

	cs := model.StartChat()
	cs.History = sdkHistory(turns[:len(turns)-1])

	resp, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Text))
	if err != nil {
		return "", classifySDKError(ctx, err)
	}

	for i, cand := range resp.Candidates {
		s.logger.Debug("Gemini candidate",
			zap.Int("index", i),
			zap.String("finish_reason", cand.FinishReason.String()),
			zap.Int32("token_count", cand.TokenCount))
	}

	return firstCandidateText(resp)
}

func applyGenerationConfig(model *genai.GenerativeModel, cfg GenerationConfig) {
	model.SetTemperature(cfg.Temperature)
	if cfg.TopK > 0 {
		model.SetTopK(cfg.TopK)
	}
	if cfg.TopP > 0 {
		model.SetTopP(cfg.TopP)
	}
	if cfg.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}
	if cfg.SafetySettings {
		model.SafetySettings = sdkSafetySettings()
	}
}

func sdkSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, len(categories))
	for i, c := range categories {
		settings[i] = &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockMediumAndAbove}
	}
	return settings
}

func sdkHistory(turns []turn) []*genai.Content {
	history := make([]*genai.Content, len(turns))
	for i, t := range turns {
		history[i] = &genai.Content{Role: t.Role, Parts: []genai.Part{genai.Text(t.Text)}}
	}
	return history
}

// firstCandidateText returns the first text part of the first candidate.
func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", models.NewMalformedResponse("blocked: " + resp.PromptFeedback.BlockReason.String())
		}
		return "", models.NewMalformedResponse("no candidates")
	}

	cand := resp.Candidates[0]
	if cand.Content != nil && len(cand.Content.Parts) > 0 {
		if t, ok := cand.Content.Parts[0].(genai.Text); ok && t != "" {
			return string(t), nil
		}
	}
	if cand.FinishReason != genai.FinishReasonUnspecified {
		return "", models.NewMalformedResponse("finish reason: " + cand.FinishReason.String())
	}
	return "", models.NewMalformedResponse("candidate has no text")
}

func classifySDKError(ctx context.Context, err error) *models.ChatError {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &models.ChatError{Kind: models.KindMalformedResponse, Message: blocked.Error(), Err: err}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		message := gerr.Message
		if message == "" {
			message = http.StatusText(gerr.Code)
		}
		return &models.ChatError{Kind: models.KindRemoteRejection, Status: gerr.Code, Message: message, Err: err}
	}

	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		status := aerr.HTTPCode()
		if status < 0 {
			status = 0
		}
		message := aerr.Reason()
		if st := aerr.GRPCStatus(); st != nil && st.Message() != "" {
			message = st.Message()
		}
		return &models.ChatError{Kind: models.KindRemoteRejection, Status: status, Message: message, Err: err}
	}

	return transportError(ctx, err)
}
