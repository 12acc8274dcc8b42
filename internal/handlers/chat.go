package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"agriwise-backend/internal/chat"
	"agriwise-backend/internal/models"
)

const maxHistory = 200

// ChatHandler answers a single question against a client-held history.
// It keeps no state between requests.
type ChatHandler struct {
	exchange chat.Exchange
	logger   *zap.Logger
}

func NewChatHandler(exchange chat.Exchange, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{exchange: exchange, logger: logger}
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is required", r))
		return
	}
	if fields := validateHistory(req.History); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	reply, err := h.exchange.Ask(r.Context(), req.History, req.Message)
	if err != nil {
		var chatErr *models.ChatError
		if !errors.As(err, &chatErr) {
			chatErr = models.NewTransportError(err)
		}
		h.logger.Warn("Assistant request failed",
			zap.String("kind", string(chatErr.Kind)),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.Error(chatErr))

		status := http.StatusBadGateway
		if chatErr.Kind == models.KindEmptyInput {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, chatErrorResp(chatErr, r))
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{Reply: reply})
}

func validateHistory(history []models.Message) map[string]string {
	fields := make(map[string]string)
	if len(history) > maxHistory {
		fields["history"] = fmt.Sprintf("at most %d messages", maxHistory)
		return fields
	}
	for i, m := range history {
		if !m.Role.Valid() {
			fields[fmt.Sprintf("history[%d].role", i)] = "must be user or assistant"
		}
	}
	return fields
}
