package models

// Role identifies who produced a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a single message in a conversation.
// Content is stored verbatim; line breaks are kept for rendering.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// ChatRequest is the payload sent to the stateless chat endpoint.
type ChatRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
}

// ChatResponse is the reply from the AI chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ChatSnapshot is the read-only view of a session handed to presentation surfaces.
type ChatSnapshot struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Pending   bool      `json:"pending"`
}

// Notification is the user-visible error raised when a request fails.
type Notification struct {
	SessionID   string    `json:"session_id"`
	Kind        ErrorKind `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// Reply is published when a session appends an assistant message.
type Reply struct {
	SessionID string  `json:"session_id"`
	Message   Message `json:"message"`
}

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientFrame is a frame sent by a WebSocket client.
type ClientFrame struct {
	Type string `json:"type"` // "send" or "cancel"
	Text string `json:"text,omitempty"`
}

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Title     string            `json:"title,omitempty"`
	Kind      ErrorKind         `json:"kind,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
