package tui

import "github.com/charmbracelet/lipgloss"

var (
	green  = lipgloss.Color("34")
	amber  = lipgloss.Color("214")
	red    = lipgloss.Color("196")
	muted  = lipgloss.Color("245")
	border = lipgloss.Color("240")
)

type styles struct {
	Header      lipgloss.Style
	UserLabel   lipgloss.Style
	UserText    lipgloss.Style
	BotLabel    lipgloss.Style
	Status      lipgloss.Style
	Spinner     lipgloss.Style
	NoticeTitle lipgloss.Style
	Notice      lipgloss.Style
	Help        lipgloss.Style
	Input       lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Header:      lipgloss.NewStyle().Bold(true).Foreground(green).Padding(0, 1),
		UserLabel:   lipgloss.NewStyle().Bold(true).Foreground(amber).MarginTop(1),
		UserText:    lipgloss.NewStyle().PaddingLeft(2),
		BotLabel:    lipgloss.NewStyle().Bold(true).Foreground(green).MarginTop(1),
		Status:      lipgloss.NewStyle().Foreground(muted).Italic(true),
		Spinner:     lipgloss.NewStyle().Foreground(green),
		NoticeTitle: lipgloss.NewStyle().Bold(true).Foreground(red),
		Notice:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(red).Padding(0, 1),
		Help:        lipgloss.NewStyle().Foreground(muted),
		Input:       lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).BorderForeground(border),
	}
}
