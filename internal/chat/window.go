package chat

import "agriwise-backend/internal/models"

// DefaultWindowSize is how many prior messages accompany a new request.
const DefaultWindowSize = 3

// Select returns the last k messages of history followed by newMessage.
// If history holds fewer than k messages all of them are used; k <= 0 yields
// only newMessage. The result never shares a backing array with history.
func Select(history []models.Message, newMessage models.Message, k int) []models.Message {
	if k < 0 {
		k = 0
	}
	if len(history) > k {
		history = history[len(history)-k:]
	}

	window := make([]models.Message, 0, len(history)+1)
	window = append(window, history...)
	return append(window, newMessage)
}
