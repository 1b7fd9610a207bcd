// Package cli implements the plain-terminal front end: scene text and
// numbered choices on stdout, player input on stdin, slash-prefixed
// meta-commands for saves and diagnostics.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"storyloom/engine"
	"storyloom/engine/state"
	"storyloom/types"
)

// maxInvalidInputs ends the session after this many consecutive inputs
// that neither pick a choice nor reach a behavior or action.
const maxInvalidInputs = 5

// CLI drives one story session over a line-based terminal.
type CLI struct {
	Engine    *engine.Engine
	In        io.Reader
	Out       io.Writer
	SaveDir   string
	Trace     bool
	EchoInput bool // echo each input line after the prompt (for script playback)

	transcript []string
	lastScene  string
	invalid    int
	done       bool
}

// New creates a CLI wired to the given engine, reading stdin and writing
// stdout. Saves go under ~/.storyloom/saves unless SaveDir is replaced.
func New(eng *engine.Engine) *CLI {
	home, _ := os.UserHomeDir()
	return &CLI{
		Engine:  eng,
		In:      os.Stdin,
		Out:     os.Stdout,
		SaveDir: filepath.Join(home, ".storyloom", "saves"),
	}
}

// Run plays the story until an ending, an abort, /quit or EOF.
func (c *CLI) Run() {
	if intro := c.Engine.Script.Meta.Intro; intro != "" {
		c.printLine(intro)
		c.printLine("")
	}
	c.render(true)

	scanner := bufio.NewScanner(c.In)
	for !c.done {
		c.print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		// Skip comment lines (for script playback).
		if strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			c.printLine(input)
		}

		// Meta-commands start with '/'.
		if strings.HasPrefix(input, "/") {
			if c.handleMeta(input) {
				return
			}
			continue
		}

		if !c.act(input) {
			if c.invalid >= maxInvalidInputs {
				c.printSystem("Too many invalid commands. Ending the session.")
				return
			}
			continue
		}

		tick := c.Engine.BeginTurn()
		c.printResult(tick)
		c.render(false)
	}
}

// render draws the current scene and its numbered choices. force repeats
// the text even when the scene did not change since the last render.
func (c *CLI) render(force bool) {
	res, choices, err := c.Engine.View()
	if err != nil {
		c.printResult(res)
		c.printSystem(fmt.Sprintf("Runtime error: %v", err))
		c.done = true
		return
	}

	changed := c.Engine.State.CurrentScene != c.lastScene
	c.lastScene = c.Engine.State.CurrentScene
	if force || changed {
		c.printResult(res)
	} else {
		c.printEvents(res.Events)
	}

	if c.Engine.Aborted() {
		c.printSystem("Too many runtime problems. Ending the session.")
		c.done = true
		return
	}
	if c.Engine.Over() {
		c.printLine("")
		c.printSystem("The end.")
		c.done = true
		return
	}

	c.printLine("")
	for _, ch := range choices {
		c.printLine(fmt.Sprintf("  %d. %s", ch.Index, ch.Text))
	}
}

// act runs one line of player input: a bare number picks a choice,
// anything else goes through the free-text parser. Returns false when
// the input was invalid and no turn passed.
func (c *CLI) act(input string) bool {
	c.transcript = append(c.transcript, "> "+input)

	if n, err := strconv.Atoi(input); err == nil {
		res, err := c.Engine.Choose(n)
		if err != nil {
			c.printSystem(err.Error())
			c.invalid++
			return false
		}
		c.invalid = 0
		c.printResult(res)
		return true
	}

	res := c.Engine.Do(input)
	c.printResult(res)
	if !res.Handled {
		c.invalid++
		return false
	}
	c.invalid = 0
	return true
}

// handleMeta dispatches meta-commands. Returns true if the game should exit.
func (c *CLI) handleMeta(input string) bool {
	parts := strings.Fields(input)
	cmd := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "/quit", "/exit":
		c.printSystem("Goodbye.")
		return true

	case "/save":
		c.cmdSave(arg)

	case "/load":
		c.cmdLoad(arg)

	case "/state":
		c.cmdState()

	case "/trace":
		c.Trace = !c.Trace
		if c.Trace {
			c.printSystem("Trace output enabled.")
		} else {
			c.printSystem("Trace output disabled.")
		}

	case "/export":
		c.cmdExport(arg)

	case "/help":
		c.cmdHelp()

	default:
		c.printSystem(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd))
	}

	return false
}

func (c *CLI) cmdSave(name string) {
	if name == "" {
		name = "quicksave"
	}

	data, err := c.Engine.Snapshot()
	if err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}

	if err := os.MkdirAll(c.SaveDir, 0o755); err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}

	path := filepath.Join(c.SaveDir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}

	c.printSystem(fmt.Sprintf("Game saved to %s.", name))
}

func (c *CLI) cmdLoad(name string) {
	if name == "" {
		name = "quicksave"
	}

	path := filepath.Join(c.SaveDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		c.printSystem(fmt.Sprintf("Load failed: %v", err))
		return
	}

	if err := c.Engine.Restore(data); err != nil {
		c.printSystem(fmt.Sprintf("Load failed: %v", err))
		return
	}

	c.done = false
	c.invalid = 0
	c.lastScene = ""
	c.printSystem(fmt.Sprintf("Game loaded from %s (turn %d).", name, c.Engine.State.Turn))
	c.render(true)
}

func (c *CLI) cmdState() {
	s := c.Engine.State
	c.printSystem(fmt.Sprintf("Scene: %s", s.CurrentScene))
	c.printSystem(fmt.Sprintf("Turn: %d (time %d)", s.Turn, state.GameTime(s)))
	if inv := state.Inventory(s); len(inv) > 0 {
		c.printSystem(fmt.Sprintf("Inventory: %s", strings.Join(inv, ", ")))
	}
	if len(s.Flags) > 0 {
		flags := make([]string, 0, len(s.Flags))
		for f := range s.Flags {
			flags = append(flags, f)
		}
		sort.Strings(flags)
		c.printSystem(fmt.Sprintf("Flags: %s", strings.Join(flags, ", ")))
	}
	for _, ae := range c.Engine.Effects.List() {
		c.printSystem(fmt.Sprintf("Effect: %s", effectText(ae)))
	}
	c.printSystem(fmt.Sprintf("Variables: %v", s.Vars))
}

// cmdExport writes the session transcript so far to a PDF file.
func (c *CLI) cmdExport(name string) {
	if len(c.transcript) == 0 {
		c.printSystem("Nothing to export yet.")
		return
	}
	if name == "" {
		name = "transcript"
	}
	if !strings.HasSuffix(name, ".pdf") {
		name += ".pdf"
	}

	meta := c.Engine.Script.Meta
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(meta.Title, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(meta.Title), "", "L", false)
	if meta.Author != "" {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.MultiCell(0, 6, tr("by "+meta.Author), "", "L", false)
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range c.transcript {
		if line == "" {
			pdf.Ln(3)
			continue
		}
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}

	if err := pdf.OutputFileAndClose(name); err != nil {
		c.printSystem(fmt.Sprintf("Export failed: %v", err))
		return
	}
	c.printSystem(fmt.Sprintf("Transcript exported to %s.", name))
}

func (c *CLI) cmdHelp() {
	help := []string{
		"System:",
		"  /save [name]    — Save game (default: quicksave)",
		"  /load [name]    — Load game (default: quicksave)",
		"  /export [file]  — Write the session transcript as a PDF",
		"  /state          — Debug: dump current state",
		"  /trace          — Toggle debug trace output",
		"  /help           — Show this help",
		"  /quit           — Exit game",
		"",
		"Play:",
		"  Type a choice number to pick it.",
		"  Anything else goes to the story's own verbs, for example",
		"  \"look\", \"examine bell\" or \"search\".",
	}
	for _, line := range help {
		c.printLine(line)
	}
}

// WatchInterrupt installs a SIGINT handler that writes a best-effort
// autosave before exiting. Commands already executed stay applied; a
// half-finished turn is not rolled back.
func (c *CLI) WatchInterrupt() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		<-ch
		fmt.Fprintln(c.Out)
		c.cmdSave("autosave")
		os.Exit(0)
	}()
}

// printEvents surfaces runtime warnings always, everything else only
// while tracing.
func (c *CLI) printEvents(evs []types.Event) {
	for _, e := range evs {
		if e.Type == "log" {
			if lvl, _ := e.Data["level"].(string); lvl == "warn" {
				c.printSystem(fmt.Sprintf("warning: %v", e.Data["message"]))
				continue
			}
		}
		if c.Trace {
			c.printSystem(fmt.Sprintf("trace: %s %v", e.Type, e.Data))
		}
	}
}

func (c *CLI) printResult(res types.Result) {
	for _, line := range res.Output {
		c.printLine(line)
	}
	c.printEvents(res.Events)
}

func (c *CLI) printLine(text string) {
	fmt.Fprintln(c.Out, text)
	c.transcript = append(c.transcript, text)
}

func (c *CLI) print(text string) {
	fmt.Fprint(c.Out, text)
}

func (c *CLI) printSystem(text string) {
	fmt.Fprintf(c.Out, "[%s]\n", text)
}

// effectText formats one active effect for the /state dump.
func effectText(ae types.ActiveEffect) string {
	who := ae.Target
	if who == "" {
		who = "player"
	}
	left := "permanent"
	if ae.Duration > 0 {
		left = fmt.Sprintf("%d ticks left", ae.Duration)
	}
	return fmt.Sprintf("%s on %s, %s", ae.Name, who, left)
}
