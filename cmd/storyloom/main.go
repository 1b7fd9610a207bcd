// Storyloom is a deterministic, data-driven runtime for interactive stories.
// Usage: storyloom [--version] [--plain] [--script <file>] [--trace] [--seed <n>] [--lenient] <story>
package main

import (
	"fmt"
	"os"
	"strconv"

	"storyloom/actions"
	"storyloom/cli"
	"storyloom/config"
	"storyloom/engine"
	"storyloom/loader"
	"storyloom/tui"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg := config.Load()

	plain := false
	trace := false
	lenient := cfg.Lenient
	seed := cfg.Seed
	var storyPath string
	var playFile string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version":
			fmt.Printf("storyloom %s (commit %s, built %s)\n", version, commit, date)
			return
		case "--plain":
			plain = true
		case "--trace":
			trace = true
		case "--lenient":
			lenient = true
		case "--seed":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "--seed requires a number\n")
				os.Exit(1)
			}
			i++
			n, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "--seed requires a number, got %q\n", args[i])
				os.Exit(1)
			}
			seed = n
		case "--script":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "--script requires a file path\n")
				os.Exit(1)
			}
			i++
			playFile = args[i]
		default:
			if storyPath == "" {
				storyPath = args[i]
			}
		}
	}

	if storyPath == "" {
		storyPath = cfg.ScriptPath
	}
	if storyPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: storyloom [--version] [--plain] [--script <file>] [--trace] [--seed <n>] [--lenient] <story.yaml|story.lua|dir>\n")
		os.Exit(1)
	}

	// Load and compile the story script.
	sc, err := loader.Load(storyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading game: %v\n", err)
		os.Exit(1)
	}

	eng := engine.New(sc, engine.Options{
		Actions: actions.Builtin(),
		Seed:    seed,
		Lenient: lenient,
	})

	// Script mode: open file, force plain, echo commands.
	if playFile != "" {
		f, err := os.Open(playFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening script: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		fmt.Printf("%s v%s by %s\n\n", sc.Meta.Title, sc.Meta.Version, sc.Meta.Author)
		c := cli.New(eng)
		c.In = f
		c.EchoInput = true
		c.Trace = trace
		c.SaveDir = cfg.SaveDir
		c.Run()
		return
	}

	// Use plain CLI if --plain flag or stdout is not a terminal.
	if plain || !isTerminal() {
		fmt.Printf("%s v%s by %s\n\n", sc.Meta.Title, sc.Meta.Version, sc.Meta.Author)
		c := cli.New(eng)
		c.Trace = trace
		c.SaveDir = cfg.SaveDir
		c.WatchInterrupt()
		c.Run()
		return
	}

	if err := tui.Run(eng, cfg.SaveDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// isTerminal returns true if stdout is a terminal (not piped/redirected).
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
