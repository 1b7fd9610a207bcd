// Package engine wires the runtime components into a turn loop: effects
// and scheduled events tick, the scene renders, player input dispatches
// commands, state machines advance. Construction is explicit: every
// component receives exactly the components it needs.
package engine

import (
	"fmt"
	"time"

	"storyloom/engine/dispatch"
	"storyloom/engine/effects"
	"storyloom/engine/events"
	"storyloom/engine/expr"
	"storyloom/engine/interact"
	"storyloom/engine/machines"
	"storyloom/engine/parser"
	"storyloom/engine/save"
	"storyloom/engine/scene"
	"storyloom/engine/state"
	"storyloom/engine/tables"
	"storyloom/types"
)

const (
	// maxSceneChain caps goto chains inside on_enter hooks.
	maxSceneChain = 8
	// maxFailedTurns aborts the loop after this many consecutive turns
	// with runtime warnings, instead of looping on a broken script.
	maxFailedTurns = 3
)

// Options configures a new engine.
type Options struct {
	// Actions is the host's plugin action registry, assembled before
	// construction.
	Actions map[string]dispatch.ActionFunc
	// Seed fixes the RNG stream; zero draws one from the clock.
	Seed int64
	// Lenient restores the fail-open treatment of unsupported condition
	// forms.
	Lenient bool
}

// Engine owns a running story: the script, the store and the wired
// subsystems.
type Engine struct {
	Script *state.Script
	State  *types.State
	RNG    *RNG

	Eval     *expr.Evaluator
	Dispatch *dispatch.Dispatcher
	Effects  *effects.Engine
	Events   *events.Engine
	Machines *machines.Engine
	Tables   *tables.Engine
	Scene    *scene.Renderer
	Parser   *parser.Parser
	Interact *interact.Resolver

	choices     []scene.Choice
	lastEntered string
	over        bool
	aborted     bool
	trace       []types.Event
	turnWarns   int
	failedTurns int
}

// New builds an engine over a loaded script and wires the components
// together.
func New(sc *state.Script, opts Options) *Engine {
	st := state.NewState(sc)
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	st.RNGSeed = seed

	e := &Engine{Script: sc, State: st, RNG: NewRNG(seed)}

	e.Eval = expr.New(st, sc)
	e.Eval.Lenient = opts.Lenient
	e.Eval.Rand = e.RNG.IntRange
	e.Eval.Warn = e.warn

	e.Tables = tables.New(sc, e.RNG)
	e.Tables.Warn = e.warn

	d := dispatch.New(st, sc, e.Eval)
	d.Warn = e.warn
	d.Actions = opts.Actions
	d.Tables = e.Tables
	e.Dispatch = d

	e.Effects = effects.New(st, sc)
	e.Effects.Runner = d
	e.Effects.Warn = e.warn
	d.Effects = e.Effects

	e.Events = events.New(st, sc, e.Eval)
	e.Events.Rand = e.RNG
	e.Events.Runner = d
	e.Events.Warn = e.warn
	d.React = e.Events.React

	e.Machines = machines.New(st, sc, e.Eval)
	e.Machines.Runner = d
	e.Machines.React = e.Events.React
	e.Machines.Warn = e.warn

	e.Scene = scene.New(st, sc, e.Eval)
	e.Scene.Expand = e.Tables.Expand
	e.Scene.Warn = e.warn

	e.Parser = parser.New(sc.Parser)

	e.Interact = interact.New(st, sc, e.Eval, e.Scene)
	e.Interact.Runner = d
	e.Interact.React = e.Events.React
	e.Interact.Fallback = e.Parser.Fallback()
	e.Interact.Action = e.pluginAction

	return e
}

// BeginTurn advances game time and runs the between-turn systems:
// effect updates, then scheduled events.
func (e *Engine) BeginTurn() types.Result {
	var res types.Result
	if e.closed() {
		return res
	}
	e.rollFailureWindow()

	e.State.Turn++
	now := state.GameTime(e.State) + 1
	state.SetVar(e.State, "game_time", now)

	out, evs := e.Effects.Update(now)
	res.Output = append(res.Output, out...)
	res.Events = append(res.Events, evs...)

	out, evs = e.Events.CheckScheduled(now)
	res.Output = append(res.Output, out...)
	res.Events = append(res.Events, evs...)

	e.finish(&res)
	return res
}

// View renders the current scene. A scene becoming current runs its
// on_enter commands first; their output precedes the text. Reaching a
// scene with no choices ends the story.
func (e *Engine) View() (types.Result, []scene.Choice, error) {
	var res types.Result
	if err := e.enterScene(&res); err != nil {
		e.finish(&res)
		return res, nil, err
	}

	text, choices, err := e.Scene.Render(e.State.CurrentScene)
	if err != nil {
		e.finish(&res)
		return res, nil, err
	}
	res.Output = append(res.Output, text)

	def, _ := e.Script.Scene(e.State.CurrentScene)
	if scene.IsEnding(def) {
		e.over = true
	} else if len(choices) == 0 {
		e.warn(fmt.Sprintf("scene %q has no visible choices", e.State.CurrentScene))
		e.over = true
	}

	e.choices = choices
	e.finish(&res)
	return res, choices, nil
}

// Choose runs the visible choice with the given display number from the
// last View, then advances the state machines.
func (e *Engine) Choose(index int) (types.Result, error) {
	var res types.Result
	if e.closed() {
		return res, fmt.Errorf("the story is over")
	}
	if index < 1 || index > len(e.choices) {
		return res, fmt.Errorf("no choice numbered %d", index)
	}

	c := e.choices[index-1].Def
	res.Handled = true
	if len(c.Commands) > 0 {
		out, evs := e.Dispatch.Dispatch(c.Commands)
		res.Output = append(res.Output, out...)
		res.Events = append(res.Events, evs...)
	}
	if c.Next != "" {
		out, evs := e.Dispatch.Dispatch([]types.Command{types.GotoScene{Scene: c.Next}})
		res.Output = append(res.Output, out...)
		res.Events = append(res.Events, evs...)
	}

	e.advance(&res)
	e.finish(&res)
	return res, nil
}

// Do runs one line of free text through the parser and the interaction
// resolver, then advances the state machines.
func (e *Engine) Do(input string) types.Result {
	var res types.Result
	if e.closed() {
		return res
	}

	intent := e.Parser.Parse(input)
	if intent.Verb == "" {
		res.Output = append(res.Output, "What do you want to do?")
		e.finish(&res)
		return res
	}

	// Bare "look" repeats the scene text.
	if intent.Verb == "look" && intent.Target == "" {
		if text, _, err := e.Scene.Render(e.State.CurrentScene); err == nil {
			res.Output = append(res.Output, text)
		}
		res.Handled = true
		e.finish(&res)
		return res
	}

	out, evs, handled := e.Interact.Do(intent)
	res.Output = append(res.Output, out...)
	res.Events = append(res.Events, evs...)
	res.Handled = handled

	e.advance(&res)
	e.finish(&res)
	return res
}

// Over reports whether an ending scene was reached.
func (e *Engine) Over() bool {
	return e.over
}

// Aborted reports whether the failure threshold shut the loop down.
func (e *Engine) Aborted() bool {
	return e.aborted
}

// Snapshot serializes the store plus the RNG stream coordinates.
func (e *Engine) Snapshot() ([]byte, error) {
	return save.Snapshot(e.State, e.Script, e.RNG.Seed(), e.RNG.Position())
}

// Restore loads a snapshot into the running engine. The loaded scene's
// on_enter hook counts as already run.
func (e *Engine) Restore(data []byte) error {
	sd, err := save.Load(data)
	if err != nil {
		return err
	}
	save.Apply(e.State, sd)
	e.RNG.Restore(sd.RNGSeed, sd.RNGPos)
	e.lastEntered = e.State.CurrentScene
	e.choices = nil
	e.over = false
	e.aborted = false
	e.failedTurns = 0
	e.turnWarns = 0
	e.trace = nil
	return nil
}

// enterScene runs on_enter hooks until the current scene settles. A hook
// may goto another scene; chains are capped.
func (e *Engine) enterScene(res *types.Result) error {
	for hops := 0; e.State.CurrentScene != e.lastEntered; hops++ {
		if hops >= maxSceneChain {
			e.warn(fmt.Sprintf("on_enter goto chain cut off at %d scenes", maxSceneChain))
			break
		}
		cur := e.State.CurrentScene
		def, ok := e.Script.Scene(cur)
		if !ok {
			return fmt.Errorf("unknown scene %q", cur)
		}
		e.lastEntered = cur
		if len(def.OnEnter) > 0 {
			out, evs := e.Dispatch.Dispatch(def.OnEnter)
			res.Output = append(res.Output, out...)
			res.Events = append(res.Events, evs...)
		}
	}
	return nil
}

// advance runs the state machines against the current game time.
func (e *Engine) advance(res *types.Result) {
	out, evs := e.Machines.UpdateAll(state.GameTime(e.State))
	res.Output = append(res.Output, out...)
	res.Events = append(res.Events, evs...)
}

// pluginAction backs the interaction resolver's registry hook.
func (e *Engine) pluginAction(verb, target string) ([]string, []types.Event, bool) {
	if _, ok := e.Dispatch.Actions[verb]; !ok {
		return nil, nil, false
	}
	out, evs := e.Dispatch.Dispatch([]types.Command{types.PluginAction{Name: verb, Target: target}})
	return out, evs, true
}

// warn records a runtime warning as a log event on the current turn.
func (e *Engine) warn(msg string) {
	e.turnWarns++
	e.trace = append(e.trace, types.Event{
		Type: "log",
		Data: map[string]any{"level": "warn", "message": msg},
	})
}

// finish drains accumulated trace events into the result.
func (e *Engine) finish(res *types.Result) {
	res.Events = append(res.Events, e.trace...)
	e.trace = nil
}

// rollFailureWindow counts consecutive warning-bearing turns and aborts
// past the threshold.
func (e *Engine) rollFailureWindow() {
	if e.turnWarns > 0 {
		e.failedTurns++
		if e.failedTurns >= maxFailedTurns {
			e.aborted = true
		}
	} else {
		e.failedTurns = 0
	}
	e.turnWarns = 0
}

func (e *Engine) closed() bool {
	return e.over || e.aborted
}
