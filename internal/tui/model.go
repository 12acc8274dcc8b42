// Package tui is the terminal chat drawer: a bubbletea program driving a
// chat.Session.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"agriwise-backend/internal/chat"
	"agriwise-backend/internal/models"
)

// chrome is the number of rows around the history viewport.
const chrome = 9

type (
	snapshotMsg models.ChatSnapshot
	errorMsg    models.Notification
	sendDoneMsg struct {
		text string
		err  error
	}
)

// Model is the chat drawer. History always comes from the session's latest snapshot.
type Model struct {
	ctx     context.Context
	session *chat.Session
	styles  styles

	snapshot models.ChatSnapshot
	notice   *models.Notification

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width int
	ready bool
}

func NewModel(ctx context.Context, session *chat.Session) Model {
	st := defaultStyles()

	ta := textarea.New()
	ta.Placeholder = "Ask about crops, soil, pests... (Enter to send, Alt+Enter for newline)"
	ta.Prompt = "| "
	ta.CharLimit = 4096
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = st.Spinner

	return Model{
		ctx:      ctx,
		session:  session,
		styles:   st,
		snapshot: session.Snapshot(),
		viewport: viewport.New(80, 20),
		textarea: ta,
		spinner:  sp,
	}
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chrome, 3)
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(msg.Width-4, 20)),
		)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.snapshot.Pending {
				m.session.Cancel()
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEnter:
			if msg.Alt {
				break
			}
			return m.submit()
		}

	case snapshotMsg:
		m.snapshot = models.ChatSnapshot(msg)
		m.refresh()
		if m.snapshot.Pending {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case errorMsg:
		n := models.Notification(msg)
		m.notice = &n
		return m, nil

	case sendDoneMsg:
		// Failures of accepted sends arrive as errorMsg. A busy rejection gives
		// the draft back unless the user has started a new one.
		if errors.Is(msg.err, chat.ErrBusy) {
			if m.textarea.Value() == "" {
				m.textarea.SetValue(msg.text)
			}
			m.notice = &models.Notification{Title: "Please wait", Description: "The assistant is still answering."}
		}
		return m, nil

	case spinner.TickMsg:
		if !m.snapshot.Pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit sends the draft. Sending is disabled while a reply is pending and
// blank drafts are ignored.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.snapshot.Pending {
		return m, nil
	}
	text := m.textarea.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}

	m.textarea.Reset()
	m.notice = nil
	ctx, session := m.ctx, m.session
	return m, func() tea.Msg {
		return sendDoneMsg{text: text, err: session.Send(ctx, text)}
	}
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	var sb strings.Builder
	for _, msg := range m.snapshot.Messages {
		switch msg.Role {
		case models.RoleUser:
			sb.WriteString(m.styles.UserLabel.Render("You") + "\n")
			sb.WriteString(m.styles.UserText.Render(msg.Content))
			sb.WriteString("\n")
		default:
			sb.WriteString(m.styles.BotLabel.Render("AgriWise") + "\n")
			sb.WriteString(m.renderMarkdown(msg.Content))
		}
	}
	return sb.String()
}

// renderMarkdown falls back to the raw text if glamour fails or panics.
func (m Model) renderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content + "\n"
		}
	}()

	if m.renderer != nil && content != "" {
		if rendered, err := m.renderer.Render(content); err == nil {
			return rendered
		}
	}
	return content + "\n"
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	parts := []string{
		m.styles.Header.Render("🌱 AgriWise AI Assistant"),
		m.viewport.View(),
	}

	if m.notice != nil {
		body := m.styles.NoticeTitle.Render(m.notice.Title) + "\n" + m.notice.Description
		parts = append(parts, m.styles.Notice.Width(max(m.width-4, 20)).Render(body))
	}

	status := ""
	if m.snapshot.Pending {
		status = m.spinner.View() + " " + m.styles.Status.Render("AI is thinking...")
	}
	parts = append(parts,
		status,
		m.styles.Input.Render(m.textarea.View()),
		m.styles.Help.Render("enter send • alt+enter newline • esc cancel/quit • ctrl+c quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
