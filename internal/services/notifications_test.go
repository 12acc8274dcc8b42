package services

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"agriwise-backend/internal/models"
)

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "chat_updates:abc-123", ChannelFor("abc-123"))
}

func TestReplyFromSnapshot(t *testing.T) {
	greeting := models.NewMessage(models.RoleAssistant, "Hello!")
	question := models.NewMessage(models.RoleUser, "When to plant garlic?")
	answer := models.NewMessage(models.RoleAssistant, "In autumn.")

	tests := []struct {
		name     string
		snapshot models.ChatSnapshot
		ok       bool
	}{
		{"completed exchange", models.ChatSnapshot{SessionID: "s", Messages: []models.Message{greeting, question, answer}}, true},
		{"greeting only", models.ChatSnapshot{SessionID: "s", Messages: []models.Message{greeting}}, false},
		{"pending", models.ChatSnapshot{SessionID: "s", Messages: []models.Message{greeting, question}, Pending: true}, false},
		{"failed request", models.ChatSnapshot{SessionID: "s", Messages: []models.Message{greeting, question}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reply, ok := replyFromSnapshot(tc.snapshot)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, models.Reply{SessionID: "s", Message: answer}, reply)
			}
		})
	}
}

func TestNotificationPublisher_LogsPublishFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	// Nothing listens on this port, so every publish fails fast.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	p := NewNotificationPublisher(client, zap.New(core))
	p.OnError(models.Notification{SessionID: "s1", Kind: models.KindTransportFailure, Title: "Connection Error"})

	entries := logs.FilterMessage("Failed to publish notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "s1", entries[0].ContextMap()["session_id"])
	assert.Equal(t, "error", entries[0].ContextMap()["type"])
}
