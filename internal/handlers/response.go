package handlers

import (
	"encoding/json"
	"net/http"

	"agriwise-backend/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	resp := errorResp(code, message, r)
	resp.Error.Fields = fields
	return resp
}

// chatErrorResp renders a failed assistant request the way the chat drawer
// shows it: a title and a description.
func chatErrorResp(e *models.ChatError, r *http.Request) models.ErrorResponse {
	resp := errorResp("AI_ERROR", e.Description(), r)
	resp.Error.Title = e.Title()
	resp.Error.Kind = e.Kind
	return resp
}
