package services

import (
	"context"

	"agriwise-backend/internal/models"
)

// DefaultSystemPrompt is the guidance injected ahead of every conversation.
const DefaultSystemPrompt = "You are an AI assistant for farmers. Provide helpful, educational, and actionable advice about farming, soil health, plant diseases, weather implications, and sustainable agricultural practices."

// Completer turns a request window into the assistant's reply.
// Every failure is returned as a *models.ChatError; implementations make exactly one attempt.
type Completer interface {
	Complete(ctx context.Context, window []models.Message, systemPrompt string, cfg GenerationConfig) (string, error)
}

// GenerationConfig is the sampling policy sent with every request.
type GenerationConfig struct {
	Temperature     float32
	TopK            int32
	TopP            float32
	MaxOutputTokens int32
	SafetySettings  bool
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.7,
		TopK:            40,
		TopP:            0.95,
		MaxOutputTokens: 1000,
		SafetySettings:  true,
	}
}

// Harm categories blocked at medium probability and above when safety settings are on.
var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

const safetyThreshold = "BLOCK_MEDIUM_AND_ABOVE"
