package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"storyloom/engine"
	"storyloom/engine/state"
	"storyloom/types"
)

// rawLine stores an unstyled output line with its classification,
// so we can re-wrap and re-style when the terminal is resized.
type rawLine struct {
	text     string
	kind     lineKind
	isInput  bool // true for echoed player input
	isSystem bool // true for system messages
}

// Model is the Bubble Tea model for a running story.
type Model struct {
	engine *engine.Engine

	viewport viewport.Model
	input    textinput.Model
	history  *History

	rawLines []rawLine // accumulated narrative lines (unstyled, for re-wrapping)

	width     int
	height    int
	ready     bool
	trace     bool
	quitting  bool
	lastScene string
	saveDir   string
}

// gameOutputMsg carries output from the engine into the Update loop.
type gameOutputMsg struct {
	input    string   // echoed player input (empty for intro)
	lines    []string // output lines
	isSystem bool     // true for meta-command output
}

// New creates a TUI model wired to the given engine.
func New(eng *engine.Engine) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 256
	ti.PromptStyle = styleInputPrompt

	home, _ := os.UserHomeDir()
	return Model{
		engine:  eng,
		input:   ti,
		history: NewHistory(100),
		saveDir: filepath.Join(home, ".storyloom", "saves"),
	}
}

// Run starts the Bubble Tea program. An empty saveDir keeps the
// default under the user's home directory.
func Run(eng *engine.Engine, saveDir string) error {
	m := New(eng)
	if saveDir != "" {
		m.saveDir = saveDir
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

// Init returns the initial command that produces the title, intro and
// first scene.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.initialOutput())
}

func (m Model) initialOutput() tea.Cmd {
	return func() tea.Msg {
		meta := m.engine.Script.Meta
		var lines []string

		lines = append(lines, meta.Title+" v"+meta.Version+" by "+meta.Author)
		lines = append(lines, "")

		if meta.Intro != "" {
			lines = append(lines, meta.Intro)
			lines = append(lines, "")
		}

		lines = append(lines, m.renderScene(true)...)
		return gameOutputMsg{lines: lines}
	}
}

// Update handles messages (key presses, window resize, game output).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := m.height - 2 // 1 status bar + 1 input line
		if vpHeight < 1 {
			vpHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.KeyMap = viewportKeyMap()
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}

		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.autosave()
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m.handleEnter()

		case "up":
			if prev, ok := m.history.Prev(); ok {
				m.input.SetValue(prev)
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if next, ok := m.history.Next(); ok {
				m.input.SetValue(next)
				m.input.CursorEnd()
			} else {
				m.input.SetValue("")
				m.history.ResetCursor()
			}
			return m, nil

		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			// A bare digit picks that choice; digits inside text just type.
			if m.input.Value() == "" {
				m = m.play(msg.String())
				return m, nil
			}

		case "pgup", "pgdown":
			var vpCmd tea.Cmd
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}

	case gameOutputMsg:
		m = m.appendOutput(msg)
	}

	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	cmds = append(cmds, inputCmd)

	return m, tea.Batch(cmds...)
}

// handleEnter processes the submitted input line.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if input == "" {
		return m, nil
	}

	m.history.Push(input)
	m.history.ResetCursor()

	// Meta-commands.
	if strings.HasPrefix(input, "/") {
		output, quit := m.handleMeta(input)
		m = m.appendOutput(gameOutputMsg{input: input, lines: output, isSystem: true})
		if quit {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	m = m.play(input)
	return m, nil
}

// play runs one line of player input through the engine: a bare number
// picks a choice, anything else goes to the free-text resolver. A valid
// action ticks the clock and re-renders the scene.
func (m Model) play(input string) Model {
	if m.engine.Over() || m.engine.Aborted() {
		return m.appendOutput(gameOutputMsg{
			input: input, lines: []string{"The story is over."}, isSystem: true,
		})
	}

	var lines []string
	if n, err := strconv.Atoi(input); err == nil {
		res, err := m.engine.Choose(n)
		if err != nil {
			return m.appendOutput(gameOutputMsg{
				input: input, lines: []string{err.Error()}, isSystem: true,
			})
		}
		lines = append(lines, res.Output...)
		lines = append(lines, m.eventLines(res.Events)...)
	} else {
		res := m.engine.Do(input)
		lines = append(lines, res.Output...)
		lines = append(lines, m.eventLines(res.Events)...)
		if !res.Handled {
			// A dead input answers with the fallback; no turn passes.
			return m.appendOutput(gameOutputMsg{input: input, lines: lines})
		}
	}

	tick := m.engine.BeginTurn()
	lines = append(lines, tick.Output...)
	lines = append(lines, m.eventLines(tick.Events)...)
	lines = append(lines, m.renderScene(false)...)

	return m.appendOutput(gameOutputMsg{input: input, lines: lines})
}

// renderScene views the current scene and returns its display lines:
// text when the scene changed (or force is set) plus numbered choices.
func (m *Model) renderScene(force bool) []string {
	res, choices, err := m.engine.View()
	if err != nil {
		return []string{fmt.Sprintf("[Runtime error: %v]", err)}
	}

	var lines []string
	changed := m.engine.State.CurrentScene != m.lastScene
	m.lastScene = m.engine.State.CurrentScene
	if force || changed {
		lines = append(lines, res.Output...)
	}
	lines = append(lines, m.eventLines(res.Events)...)

	if m.engine.Aborted() {
		return append(lines, "", "[Too many runtime problems. The story stops here.]")
	}
	if m.engine.Over() {
		return append(lines, "", "[The end.]")
	}

	lines = append(lines, "")
	for _, ch := range choices {
		lines = append(lines, fmt.Sprintf("  %d. %s", ch.Index, ch.Text))
	}
	return lines
}

// eventLines surfaces runtime warnings always, other events while tracing.
func (m Model) eventLines(evs []types.Event) []string {
	var lines []string
	for _, e := range evs {
		if e.Type == "log" {
			if lvl, _ := e.Data["level"].(string); lvl == "warn" {
				lines = append(lines, fmt.Sprintf("[warning: %v]", e.Data["message"]))
				continue
			}
		}
		if m.trace {
			lines = append(lines, fmt.Sprintf("[trace] %s %v", e.Type, e.Data))
		}
	}
	return lines
}

// appendOutput adds lines to the narrative and refreshes the viewport.
func (m Model) appendOutput(msg gameOutputMsg) Model {
	if msg.input != "" {
		m.rawLines = append(m.rawLines, rawLine{
			text: "> " + msg.input, isInput: true,
		})
	}

	for _, line := range msg.lines {
		rl := rawLine{text: line, isSystem: msg.isSystem}
		if !msg.isSystem {
			rl.kind = classifyLine(line)
		}
		m.rawLines = append(m.rawLines, rl)
	}

	// Blank line separator between turns.
	m.rawLines = append(m.rawLines, rawLine{})

	m.refreshViewport()

	return m
}

// refreshViewport re-wraps and re-styles all raw lines at the current width
// and updates the viewport content.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	width := m.width
	if width < 10 {
		width = 10
	}

	var styled []string
	for _, rl := range m.rawLines {
		if rl.text == "" {
			styled = append(styled, "")
			continue
		}

		wrapped := wordWrap(rl.text, width)

		switch {
		case rl.isInput:
			styled = append(styled, stylePlayerInput.Render(wrapped))
		case rl.isSystem:
			styled = append(styled, styledSystemMsg(wrapped))
		default:
			styled = append(styled, renderLineKind(wrapped, rl.kind))
		}
	}

	m.viewport.SetContent(strings.Join(styled, "\n"))
	m.viewport.GotoBottom()
}

// renderLineKind applies the style for a given lineKind.
func renderLineKind(line string, kind lineKind) string {
	switch kind {
	case kindChoice:
		return styledChoice(line)
	case kindDialogue:
		return styleDialogue.Render(line)
	case kindSystem:
		return styleSystem.Render(line)
	case kindError:
		return styleError.Render(line)
	case kindTrace:
		return styleTrace.Render(line)
	default:
		return styleNarrative.Render(line)
	}
}

// wordWrap wraps text to fit within the given width, breaking at word
// boundaries. Preserves existing newlines within the text.
func wordWrap(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	var result strings.Builder
	words := strings.Fields(text)
	lineLen := 0

	for i, word := range words {
		wLen := len(word)

		if i == 0 {
			result.WriteString(word)
			lineLen = wLen
			continue
		}

		if lineLen+1+wLen > width {
			result.WriteString("\n")
			result.WriteString(word)
			lineLen = wLen
		} else {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + wLen
		}
	}

	return result.String()
}

// View renders the full TUI layout: viewport + status bar + input.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	return m.viewport.View() + "\n" + m.renderStatusBar() + "\n" + m.input.View()
}

// handleMeta dispatches meta-commands. Returns output lines and quit flag.
func (m *Model) handleMeta(input string) ([]string, bool) {
	parts := strings.Fields(input)
	cmd := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "/quit", "/exit":
		return []string{"Goodbye."}, true

	case "/save":
		return m.cmdSave(arg), false

	case "/load":
		return m.cmdLoad(arg), false

	case "/help":
		return m.cmdHelp(), false

	case "/state":
		return m.cmdState(), false

	case "/trace":
		m.trace = !m.trace
		if m.trace {
			return []string{"Trace output enabled."}, false
		}
		return []string{"Trace output disabled."}, false

	default:
		return []string{fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd)}, false
	}
}

func (m *Model) cmdSave(name string) []string {
	if name == "" {
		name = "quicksave"
	}

	data, err := m.engine.Snapshot()
	if err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}

	if err := os.MkdirAll(m.saveDir, 0o755); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}

	path := filepath.Join(m.saveDir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}

	return []string{fmt.Sprintf("Game saved to %s.", name)}
}

func (m *Model) cmdLoad(name string) []string {
	if name == "" {
		name = "quicksave"
	}

	path := filepath.Join(m.saveDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}
	}

	if err := m.engine.Restore(data); err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}
	}

	m.lastScene = ""
	output := []string{fmt.Sprintf("Game loaded from %s (turn %d).", name, m.engine.State.Turn)}
	output = append(output, m.renderScene(true)...)
	return output
}

// autosave writes a best-effort autosave on interrupt; failures are
// swallowed since the program is already going down.
func (m *Model) autosave() {
	m.cmdSave("autosave")
}

func (m *Model) cmdHelp() []string {
	return []string{
		"System:",
		"  /save [name]  — Save game (default: quicksave)",
		"  /load [name]  — Load game (default: quicksave)",
		"  /quit         — Exit game",
		"  /help         — Show this help",
		"  /state        — Debug: dump current state",
		"  /trace        — Toggle debug trace output",
		"",
		"Play:",
		"  Press a choice number (or type it) to pick that choice.",
		"  Anything else goes to the story's own verbs, for example",
		"  \"look\", \"examine bell\" or \"search\".",
		"",
		"Navigation: PgUp/PgDn to scroll, Up/Down for command history",
	}
}

func (m *Model) cmdState() []string {
	s := m.engine.State
	output := []string{
		fmt.Sprintf("Scene: %s", s.CurrentScene),
		fmt.Sprintf("Turn: %d (time %d)", s.Turn, state.GameTime(s)),
	}
	if len(s.Flags) > 0 {
		output = append(output, fmt.Sprintf("Flags: %v", s.Flags))
	}
	if list := m.engine.Effects.List(); len(list) > 0 {
		names := make([]string, 0, len(list))
		for _, ae := range list {
			names = append(names, ae.Name)
		}
		output = append(output, fmt.Sprintf("Effects: %s", strings.Join(names, ", ")))
	}
	output = append(output, fmt.Sprintf("Variables: %v", s.Vars))
	return output
}

// viewportKeyMap returns a viewport keymap with Up/Down disabled
// (we use those for input history).
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
