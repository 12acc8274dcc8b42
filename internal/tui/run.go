package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"agriwise-backend/internal/chat"
	"agriwise-backend/internal/models"
	"agriwise-backend/internal/services"
)

// programObserver forwards session events into the bubbletea event loop.
type programObserver struct {
	program *tea.Program
}

func (o *programObserver) OnSnapshot(s models.ChatSnapshot) {
	if o.program != nil {
		o.program.Send(snapshotMsg(s))
	}
}

func (o *programObserver) OnError(n models.Notification) {
	if o.program != nil {
		o.program.Send(errorMsg(n))
	}
}

// Run opens the chat drawer in the terminal and blocks until the user quits
// or ctx is done. The session is closed on return.
func Run(ctx context.Context, completer services.Completer, opts ...chat.Option) error {
	obs := &programObserver{}
	session := chat.New(completer, append(opts, chat.WithObserver(obs))...)
	defer session.Close()

	p := tea.NewProgram(NewModel(ctx, session), tea.WithAltScreen(), tea.WithContext(ctx))
	obs.program = p

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat UI failed: %w", err)
	}
	return nil
}
