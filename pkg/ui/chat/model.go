package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wisochat/pkg/session"
	"wisochat/pkg/transcript"
)

const wheelStep = 3

var defaultEmojis = []string{"😀", "😂", "😍", "👍", "🎉", "🔥"}

// transcriptChangedMsg tells the model the transcript grew.
type transcriptChangedMsg struct{}

type model struct {
	sess    *session.Synchronizer
	runtime RuntimeInfo
	emojis  []string

	theme     theme
	input     textinput.Model
	viewport  viewport.Model
	width     int
	height    int
	isReady   bool
	followLog bool
	pickIndex int
}

func newModel(sess *session.Synchronizer, info RuntimeInfo) *model {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Write a message..."
	in.Focus()
	in.CharLimit = 0
	in.SetValue(sess.Composition())
	in.CursorEnd()

	emojis := info.Emojis
	if len(emojis) == 0 {
		emojis = defaultEmojis
	}

	m := &model{
		sess:      sess,
		runtime:   info,
		emojis:    emojis,
		theme:     defaultTheme(),
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
	m.resizeComponents()

	return m
}

func (m *model) Init() tea.Cmd {
	m.refreshViewport(true)
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case transcriptChangedMsg:
		m.refreshViewport(true)
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+e":
			m.sess.TogglePicker()
			m.resizeComponents()
			m.refreshViewport(false)
			return m, nil
		case "enter":
			return m.submit()
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}
		if m.sess.PickerOpen() {
			if handled := m.handlePickerKey(typed); handled {
				return m, nil
			}
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.sess.SetComposition(after)
	}

	return m, cmd
}

func (m *model) submit() (tea.Model, tea.Cmd) {
	if isExitCommand(m.input.Value()) {
		return m, tea.Quit
	}

	m.sess.SetComposition(m.input.Value())
	if m.sess.Submit() {
		m.input.SetValue("")
		m.pickIndex = 0
		m.refreshViewport(true)
	}

	return m, nil
}

func (m *model) handlePickerKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "left":
		m.pickIndex = (m.pickIndex - 1 + len(m.emojis)) % len(m.emojis)
		return true
	case "right":
		m.pickIndex = (m.pickIndex + 1) % len(m.emojis)
		return true
	case "tab":
		m.sess.AppendToComposition(m.emojis[m.pickIndex])
		m.input.SetValue(m.sess.Composition())
		m.input.CursorEnd()
		return true
	default:
		return false
	}
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("💬 " + displayOr(m.runtime.Title, "wisoChat"))
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"relay:%s · link:%s · messages:%d (you:%d peer:%d)",
		displayOr(m.runtime.Relay, "offline"),
		m.linkState(),
		m.sess.Len(),
		m.sess.Count(transcript.Self),
		m.sess.Count(transcript.Peer),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send · Ctrl+E emoji · PgUp/PgDn scroll · End latest · Ctrl+C/Esc quit")
	if m.sess.PickerOpen() {
		status = m.theme.status.Render("←/→ choose · Tab insert · Ctrl+E close")
	}

	parts := []string{header, meta, line, m.theme.viewport.Width(m.width - 2).Render(m.viewport.View()), status}
	if m.sess.PickerOpen() {
		parts = append(parts, m.pickerView())
	}
	parts = append(parts,
		m.theme.inputLabel.Render(transcript.Self.Label())+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *model) pickerView() string {
	items := make([]string, 0, len(m.emojis))
	for i, emoji := range m.emojis {
		style := m.theme.pickerItem
		if i == m.pickIndex {
			style = m.theme.pickerSelected
		}
		items = append(items, style.Render(emoji))
	}

	return m.theme.picker.Render(lipgloss.JoinHorizontal(lipgloss.Center, items...))
}

func (m *model) linkState() string {
	if m.runtime.Connected == nil {
		return "local"
	}
	if m.runtime.Connected() {
		return "up"
	}

	return "down"
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 50 {
		w = 50
	}
	h := m.height - 12
	if m.sess.PickerOpen() {
		h -= 3
	}
	if h < 6 {
		h = 6
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	entries := m.sess.Transcript()
	sections := make([]string, 0, len(entries))
	for _, entry := range entries {
		sections = append(sections, m.renderEntry(entry))
	}

	m.viewport.SetContent(strings.Join(sections, "\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

// renderEntry draws one bubble. Own messages hug the right edge.
func (m *model) renderEntry(entry transcript.Entry) string {
	box, title, align := m.theme.peerBox, m.theme.peerTitle, lipgloss.Left
	if entry.Origin == transcript.Self {
		box, title, align = m.theme.selfBox, m.theme.selfTitle, lipgloss.Right
	}

	limit := max(10, m.viewport.Width*2/3)
	width := min(limit, max(lipgloss.Width(entry.Body), lipgloss.Width(entry.Origin.Label()))+2)
	card := lipgloss.JoinVertical(align,
		title.Render(entry.Origin.Label()),
		box.Width(width).Render(entry.Body),
	)

	return lipgloss.PlaceHorizontal(m.viewport.Width, align, card)
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(wheelStep)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(wheelStep)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func displayOr(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	return trimmed
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
