package repl

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const headerText = "msdscript REPL. Type :help for commands, Ctrl+C or Ctrl+D to quit."

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Millisecond*500, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the bubbletea front end over a Session. Past inputs and their
// results scroll in a viewport above the edit line.
type Model struct {
	session    *Session
	buffer     []rune
	cursor     int // index into buffer
	quitting   bool
	cursorOn   bool
	transcript []string
	viewport   viewport.Model
	windowSize tea.WindowSizeMsg
}

func NewModel(session *Session) Model {
	return Model{
		session:  session,
		cursorOn: true,
		viewport: viewport.New(80, 20),
	}
}

func (m Model) Session() *Session {
	return m.session
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowSize = msg
		m.viewport.Width = msg.Width
		// header, blank line, edit line
		m.viewport.Height = max(msg.Height-3, 1)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		m.cursorOn = !m.cursorOn
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlD:
		m.quitting = true
		m.session.Close()
		return m, tea.Quit
	case tea.KeyEnter:
		line := string(m.buffer)
		prompt := m.session.GetPrompt()
		m.buffer = nil
		m.cursor = 0
		if strings.TrimSpace(line) != "" {
			log.Debug("Command received", "command", line, "session", m.session.ID())
		}

		m.transcript = append(m.transcript, promptStyle.Render(prompt)+line)
		resp := m.session.Submit(line)
		m.appendResponse(resp)
		m.refresh()
		if resp.Quit {
			m.quitting = true
			m.session.Close()
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyBackspace:
		if m.cursor > 0 {
			buf := make([]rune, 0, len(m.buffer)-1)
			buf = append(buf, m.buffer[:m.cursor-1]...)
			m.buffer = append(buf, m.buffer[m.cursor:]...)
			m.cursor--
		}
		return m, nil
	case tea.KeyLeft:
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case tea.KeyRight:
		if m.cursor < len(m.buffer) {
			m.cursor++
		}
		return m, nil
	case tea.KeyHome, tea.KeyCtrlA:
		m.cursor = 0
		return m, nil
	case tea.KeyEnd, tea.KeyCtrlE:
		m.cursor = len(m.buffer)
		return m, nil
	case tea.KeyUp:
		m.session.StartHistoryNavigation(string(m.buffer))
		m.buffer = []rune(m.session.NavigateHistory(true))
		m.cursor = len(m.buffer)
		return m, nil
	case tea.KeyDown:
		if m.session.IsInHistoryMode() {
			m.buffer = []rune(m.session.NavigateHistory(false))
			m.cursor = len(m.buffer)
		}
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.KeySpace:
		m.insert([]rune{' '})
		return m, nil
	case tea.KeyRunes:
		m.insert(msg.Runes)
		return m, nil
	}
	return m, nil
}

func (m *Model) insert(rs []rune) {
	buf := make([]rune, 0, len(m.buffer)+len(rs))
	buf = append(buf, m.buffer[:m.cursor]...)
	buf = append(buf, rs...)
	m.buffer = append(buf, m.buffer[m.cursor:]...)
	m.cursor += len(rs)
}

func (m *Model) appendResponse(resp Response) {
	if resp.Text == "" {
		return
	}
	switch resp.Kind {
	case ResponseResult:
		m.transcript = append(m.transcript, resultStyle.Render(resp.Text))
	case ResponseError:
		m.transcript = append(m.transcript, errorStyle.Render(resp.Text))
	default:
		m.transcript = append(m.transcript, infoStyle.Render(resp.Text))
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(strings.Join(m.transcript, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(headerText))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(promptStyle.Render(m.session.GetPrompt()))
	b.WriteString(string(m.buffer[:m.cursor]))
	if m.cursorOn {
		b.WriteString(m.session.GetActiveCursorSymbol())
	} else {
		b.WriteString(m.session.GetInactiveCursorSymbol())
	}
	b.WriteString(string(m.buffer[m.cursor:]))
	b.WriteString("\n")

	return b.String()
}

// Transcript returns the rendered scrollback lines.
func (m Model) Transcript() []string {
	return m.transcript
}
