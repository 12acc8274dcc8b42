// Package chat owns the assistant conversation: the bounded history, the
// context window sent with each request and the single-flight request lifecycle.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agriwise-backend/internal/models"
	"agriwise-backend/internal/services"
)

const (
	DefaultGreeting = "Hello! I'm your AgriWise AI Assistant. How can I help with your farming questions today?"
	DefaultTimeout  = 30 * time.Second
)

var (
	// ErrBusy is returned when Send is called while a response is pending.
	ErrBusy = errors.New("a response is already pending")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("chat session closed")
)

// State is the request lifecycle of a session.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// Observer receives session updates. Calls come from the goroutine running
// Send (or Start and its wait), outside the session lock, in transition order.
type Observer interface {
	OnSnapshot(snapshot models.ChatSnapshot)
	OnError(notification models.Notification)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Snapshot func(models.ChatSnapshot)
	Error    func(models.Notification)
}

func (o ObserverFuncs) OnSnapshot(snapshot models.ChatSnapshot) {
	if o.Snapshot != nil {
		o.Snapshot(snapshot)
	}
}

func (o ObserverFuncs) OnError(notification models.Notification) {
	if o.Error != nil {
		o.Error(notification)
	}
}

type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func WithWindowSize(k int) Option {
	return func(s *Session) { s.windowSize = k }
}

func WithSystemPrompt(prompt string) Option {
	return func(s *Session) { s.systemPrompt = prompt }
}

func WithGenerationConfig(cfg services.GenerationConfig) Option {
	return func(s *Session) { s.genCfg = cfg }
}

// WithGreeting replaces the greeting text. An empty string keeps the default.
func WithGreeting(text string) Option {
	return func(s *Session) {
		if text != "" {
			s.greeting = text
		}
	}
}

// WithTimeout bounds each request. Zero or negative keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// Session holds one conversation with the assistant.
type Session struct {
	id           string
	completer    services.Completer
	systemPrompt string
	genCfg       services.GenerationConfig
	windowSize   int
	greeting     string
	timeout      time.Duration
	observers    []Observer
	logger       *zap.Logger

	mu      sync.Mutex
	history []models.Message
	state   State
	cancel  context.CancelFunc
	closed  bool
}

// New creates a session whose history starts with the greeting.
func New(completer services.Completer, opts ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		completer:    completer,
		systemPrompt: services.DefaultSystemPrompt,
		genCfg:       services.DefaultGenerationConfig(),
		windowSize:   DefaultWindowSize,
		greeting:     DefaultGreeting,
		timeout:      DefaultTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = []models.Message{models.NewMessage(models.RoleAssistant, s.greeting)}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Send appends the user's message and waits for the assistant's reply.
//
// Blank text returns models.ErrEmptyInput and a send while a reply is pending
// returns ErrBusy; neither changes the history. On failure the user's message
// stays, no assistant message is appended, observers get one notification and
// the classified *models.ChatError is returned.
func (s *Session) Send(ctx context.Context, text string) error {
	wait, err := s.Start(ctx, text)
	if err != nil {
		return err
	}
	return wait()
}

// Start is the accepting half of Send. It appends the user's message and
// publishes the pending snapshot before returning, so callers that start sends
// in order get them accepted in order. The returned wait runs the request.
func (s *Session) Start(ctx context.Context, text string) (wait func() error, err error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, models.ErrEmptyInput
	}
	msg := models.NewMessage(models.RoleUser, content)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.state == StateAwaitingResponse {
		s.mu.Unlock()
		s.logger.Debug("Send rejected, response pending")
		return nil, ErrBusy
	}
	window := Select(s.history, msg, s.windowSize)
	s.history = append(s.history, msg)
	s.state = StateAwaitingResponse
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	s.cancel = cancel
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publishSnapshot(snapshot)

	return func() error { return s.await(reqCtx, cancel, window) }, nil
}

func (s *Session) await(reqCtx context.Context, cancel context.CancelFunc, window []models.Message) error {
	start := time.Now()
	reply, err := s.completer.Complete(reqCtx, window, s.systemPrompt, s.genCfg)
	if err == nil && reply == "" {
		err = models.NewMalformedResponse("empty reply")
	}
	var chatErr *models.ChatError
	if err != nil {
		chatErr = classify(reqCtx, err)
	}
	cancel()

	s.mu.Lock()
	s.state = StateIdle
	s.cancel = nil
	if chatErr == nil {
		s.history = append(s.history, models.NewMessage(models.RoleAssistant, reply))
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if chatErr != nil {
		s.logger.Warn("Assistant request failed",
			zap.String("kind", string(chatErr.Kind)),
			zap.Int("status", chatErr.Status),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(chatErr))
		s.publishError(chatErr.Notification(s.id))
		s.publishSnapshot(snapshot)
		return chatErr
	}

	s.logger.Info("Assistant replied",
		zap.Int("window", len(window)),
		zap.Int("reply_chars", len(reply)),
		zap.Duration("elapsed", time.Since(start)))
	s.publishSnapshot(snapshot)
	return nil
}

// Cancel aborts the pending request, if any. The aborted Send reports a
// transport failure.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Close cancels any pending request and rejects further sends.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Pending() bool {
	return s.State() == StateAwaitingResponse
}

// History returns a copy of the conversation, greeting first.
func (s *Session) History() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.history...)
}

func (s *Session) Snapshot() models.ChatSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() models.ChatSnapshot {
	return models.ChatSnapshot{
		SessionID: s.id,
		Messages:  append([]models.Message(nil), s.history...),
		Pending:   s.state == StateAwaitingResponse,
	}
}

func (s *Session) publishSnapshot(snapshot models.ChatSnapshot) {
	for _, o := range s.observers {
		o.OnSnapshot(snapshot)
	}
}

func (s *Session) publishError(n models.Notification) {
	for _, o := range s.observers {
		o.OnError(n)
	}
}

// classify turns any completer error into a ChatError.
func classify(ctx context.Context, err error) *models.ChatError {
	var chatErr *models.ChatError
	if errors.As(err, &chatErr) {
		return chatErr
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &models.ChatError{Kind: models.KindTransportFailure, Message: "request timed out", Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &models.ChatError{Kind: models.KindTransportFailure, Message: "request cancelled", Err: err}
	default:
		return models.NewTransportError(err)
	}
}
