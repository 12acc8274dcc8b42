package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agriwise-backend/internal/models"
)

const publishTimeout = 2 * time.Second

// ChannelFor is the Redis pub/sub channel carrying a session's updates.
func ChannelFor(sessionID string) string {
	return fmt.Sprintf("chat_updates:%s", sessionID)
}

// NotificationPublisher fans session events out over Redis pub/sub so other
// dashboard processes can surface them. It satisfies chat.Observer.
type NotificationPublisher struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewNotificationPublisher(redisClient *redis.Client, logger *zap.Logger) *NotificationPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationPublisher{redis: redisClient, logger: logger}
}

// OnSnapshot publishes the assistant's reply once a request completes successfully.
func (p *NotificationPublisher) OnSnapshot(snapshot models.ChatSnapshot) {
	reply, ok := replyFromSnapshot(snapshot)
	if !ok {
		return
	}
	p.publish(snapshot.SessionID, models.WSMessage{Type: "reply", Payload: reply})
}

func (p *NotificationPublisher) OnError(n models.Notification) {
	p.publish(n.SessionID, models.WSMessage{Type: "error", Payload: n})
}

func (p *NotificationPublisher) publish(sessionID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Failed to encode notification", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.redis.Publish(ctx, ChannelFor(sessionID), data).Err(); err != nil {
		p.logger.Warn("Failed to publish notification",
			zap.String("session_id", sessionID),
			zap.String("type", msg.Type),
			zap.Error(err))
	}
}

// replyFromSnapshot returns the reply appended by a completed request: the
// snapshot is idle and ends with an assistant message that follows a user one.
func replyFromSnapshot(s models.ChatSnapshot) (models.Reply, bool) {
	n := len(s.Messages)
	if s.Pending || n < 2 {
		return models.Reply{}, false
	}
	last := s.Messages[n-1]
	if last.Role != models.RoleAssistant || s.Messages[n-2].Role != models.RoleUser {
		return models.Reply{}, false
	}
	return models.Reply{SessionID: s.SessionID, Message: last}, true
}
