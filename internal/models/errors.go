package models

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies why a chat request did not produce an assistant message.
type ErrorKind string

const (
	KindEmptyInput        ErrorKind = "empty_input"
	KindTransportFailure  ErrorKind = "transport_failure"
	KindRemoteRejection   ErrorKind = "remote_rejection"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// ErrEmptyInput is returned for blank or whitespace-only input. It never reaches the network.
var ErrEmptyInput = &ChatError{Kind: KindEmptyInput, Message: "message is empty"}

// ChatError is the classified failure of one chat exchange.
type ChatError struct {
	Kind    ErrorKind
	Status  int    // HTTP status for RemoteRejection, 0 otherwise
	Message string // remote or local message, surfaced to the user
	Err     error
}

func (e *ChatError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil && e.Message == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// Is matches any ChatError of the same kind, so errors.Is(err, ErrEmptyInput) works.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Title is the one-line heading shown in the notification.
func (e *ChatError) Title() string {
	switch e.Kind {
	case KindTransportFailure:
		return "Connection Error"
	case KindEmptyInput:
		return "Empty Message"
	default:
		return "AI Assistant Error"
	}
}

// Description is the human-readable notification body.
func (e *ChatError) Description() string {
	switch e.Kind {
	case KindTransportFailure:
		msg := e.Message
		if msg == "" && e.Err != nil {
			msg = e.Err.Error()
		}
		return "Failed to connect to AI assistant: " + msg
	case KindRemoteRejection:
		if e.Message != "" {
			return e.Message
		}
		return fmt.Sprintf("The AI assistant rejected the request (%s)", http.StatusText(e.Status))
	case KindMalformedResponse:
		if e.Message != "" {
			return "The assistant returned no answer (" + e.Message + ")"
		}
		return "The assistant returned no answer"
	default:
		return "Please type a message first"
	}
}

// Notification builds the user-visible notification for this error.
func (e *ChatError) Notification(sessionID string) Notification {
	return Notification{
		SessionID:   sessionID,
		Kind:        e.Kind,
		Title:       e.Title(),
		Description: e.Description(),
	}
}

func NewTransportError(err error) *ChatError {
	return &ChatError{Kind: KindTransportFailure, Err: err}
}

func NewRemoteRejection(status int, message string) *ChatError {
	return &ChatError{Kind: KindRemoteRejection, Status: status, Message: message}
}

func NewMalformedResponse(reason string) *ChatError {
	return &ChatError{Kind: KindMalformedResponse, Message: reason}
}
