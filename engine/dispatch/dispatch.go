// Package dispatch executes the command union against the runtime store.
// Every command is one atomic operation; longer-lived machinery (effects,
// tables, reactive events) sits behind narrow interfaces the engine wires
// in, so this package stays at the bottom of the dependency graph.
package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"storyloom/engine/expr"
	"storyloom/engine/state"
	"storyloom/types"
)

// maxDepth bounds nested dispatch through conditionals, rolled-table
// commands and effect hooks.
const maxDepth = 16

// EffectOps is what command execution needs from the effects engine.
type EffectOps interface {
	Apply(name, target string) ([]string, []types.Event, bool)
	Remove(name, target string) ([]string, []types.Event, bool)
	EffectiveStat(stat string, base float64) float64
}

// TableOps is what command execution needs from the table engine.
type TableOps interface {
	Roll(name string) (types.TableEntry, bool)
	RollDice(spec string) (int, bool)
	Expand(text string) string
}

// ReactFunc lets the reactive event system observe state changes as they
// happen. kind is "variable", "flag", "scene", "item", "action" or
// "custom"; whatever the reactions print and emit is folded into the
// triggering command's output.
type ReactFunc func(kind string, data map[string]any) ([]string, []types.Event)

// Dispatcher executes command lists for one running game.
type Dispatcher struct {
	State   *types.State
	Script  *state.Script
	Eval    *expr.Evaluator
	Effects EffectOps
	Tables  TableOps
	Actions map[string]ActionFunc
	React   ReactFunc
	Warn    func(msg string)

	depth int
}

// New returns a dispatcher over the given store. Effects, Tables, Actions
// and React start unset; the engine fills them in during wiring.
func New(st *types.State, sc *state.Script, ev *expr.Evaluator) *Dispatcher {
	return &Dispatcher{State: st, Script: sc, Eval: ev}
}

func (d *Dispatcher) warnf(format string, args ...any) {
	if d.Warn != nil {
		d.Warn(fmt.Sprintf(format, args...))
	}
}

func (d *Dispatcher) react(kind string, data map[string]any) ([]string, []types.Event) {
	if d.React == nil {
		return nil, nil
	}
	return d.React(kind, data)
}

// Dispatch executes commands in order, collecting output text and events.
// Failures warn and skip the failing command; dispatch never stops a turn.
func (d *Dispatcher) Dispatch(cmds []types.Command) ([]string, []types.Event) {
	if d.depth >= maxDepth {
		d.warnf("command nesting exceeded %d levels, dropping %d commands", maxDepth, len(cmds))
		return nil, nil
	}
	d.depth++
	defer func() { d.depth-- }()

	var out []string
	var evs []types.Event
	for _, c := range cmds {
		o, e := d.dispatchOne(c)
		out = append(out, o...)
		evs = append(evs, e...)
	}
	return out, evs
}

func (d *Dispatcher) dispatchOne(cmd types.Command) ([]string, []types.Event) {
	switch c := cmd.(type) {
	case types.Assign:
		return d.assign(c)

	case types.AddFlag:
		state.SetFlag(d.State, c.Flag)
		evs := []types.Event{{Type: "flag_changed", Data: map[string]any{"flag": c.Flag, "value": true}}}
		ro, re := d.react("flag", map[string]any{"name": c.Flag, "value": true})
		return ro, append(evs, re...)

	case types.ClearFlag:
		state.ClearFlag(d.State, c.Flag)
		evs := []types.Event{{Type: "flag_changed", Data: map[string]any{"flag": c.Flag, "value": false}}}
		ro, re := d.react("flag", map[string]any{"name": c.Flag, "value": false})
		return ro, append(evs, re...)

	case types.ApplyEffect:
		if d.Effects == nil {
			d.warnf("no effects engine for apply_effect %q", c.Effect)
			return nil, nil
		}
		out, evs, _ := d.Effects.Apply(c.Effect, c.Target)
		return out, evs

	case types.RemoveEffect:
		if d.Effects == nil {
			d.warnf("no effects engine for remove_effect %q", c.Effect)
			return nil, nil
		}
		out, evs, _ := d.Effects.Remove(c.Effect, c.Target)
		return out, evs

	case types.GotoScene:
		if _, ok := d.Script.Scene(c.Scene); !ok {
			d.warnf("goto targets unknown scene %q", c.Scene)
			return nil, nil
		}
		d.State.CurrentScene = c.Scene
		evs := []types.Event{{Type: "scene_changed", Data: map[string]any{"scene": c.Scene}}}
		ro, re := d.react("scene", map[string]any{"name": c.Scene})
		return ro, append(evs, re...)

	case types.Conditional:
		if d.Eval.EvalCondition(c.If) {
			return d.Dispatch(c.Then)
		}
		return d.Dispatch(c.Else)

	case types.RollTable:
		return d.rollTable(c)

	case types.PluginAction:
		return d.runAction(c)
	}
	d.warnf("unknown command %T", cmd)
	return nil, nil
}

func (d *Dispatcher) assign(c types.Assign) ([]string, []types.Event) {
	v := resolveLiteral(c.Value, d.State)
	if c.Op == "+=" {
		cur, exists := d.State.Vars[c.Name]
		if !exists {
			cur = 0
		}
		curF, curOK := state.ToFloat(cur)
		addF, addOK := state.ToFloat(v)
		if !curOK || !addOK {
			d.warnf("cannot add %v to %s (current %v)", v, c.Name, cur)
			return nil, nil
		}
		if isIntLike(cur) && isIntLike(v) {
			v = int(curF + addF)
		} else {
			v = curF + addF
		}
	}
	state.SetVar(d.State, c.Name, v)
	evs := []types.Event{{Type: "variable_changed", Data: map[string]any{"name": c.Name, "value": v}}}
	ro, re := d.react("variable", map[string]any{"name": c.Name, "value": v})
	return ro, append(evs, re...)
}

func (d *Dispatcher) rollTable(c types.RollTable) ([]string, []types.Event) {
	if d.Tables == nil {
		d.warnf("no table engine for roll_table %q", c.Table)
		return nil, nil
	}
	entry, ok := d.Tables.Roll(c.Table)
	if !ok {
		return nil, nil
	}
	var out []string
	evs := []types.Event{{Type: "table_rolled", Data: map[string]any{"table": c.Table, "item": entry.Item}}}
	if entry.Message != "" {
		out = append(out, d.Tables.Expand(entry.Message))
	}
	if entry.Item != "" {
		state.AddItem(d.State, entry.Item)
		evs = append(evs, types.Event{Type: "item_gained", Data: map[string]any{"item": entry.Item}})
		ro, re := d.react("item", map[string]any{"name": entry.Item, "value": "gained"})
		out = append(out, ro...)
		evs = append(evs, re...)
	}
	if len(entry.Commands) > 0 {
		co, ce := d.Dispatch(entry.Commands)
		out = append(out, co...)
		evs = append(evs, ce...)
	}
	return out, evs
}

func (d *Dispatcher) runAction(c types.PluginAction) ([]string, []types.Event) {
	// broadcast and log are core verbs, not plugins: registries need not
	// carry them.
	switch c.Name {
	case "broadcast":
		msg := asArgString(c)
		if d.Tables != nil {
			msg = d.Tables.Expand(msg)
		}
		return []string{msg}, []types.Event{{Type: "broadcast", Data: map[string]any{"message": msg}}}
	case "log":
		msg := asArgString(c)
		d.warnf("script log: %s", msg)
		return nil, nil
	}

	fn, ok := d.Actions[c.Name]
	if !ok {
		d.warnf("unknown action %q", c.Name)
		return nil, nil
	}
	res := fn(&ActionContext{
		State:    d.State,
		Script:   d.Script,
		Eval:     d.Eval,
		Effects:  d.Effects,
		Tables:   d.Tables,
		Target:   c.Target,
		Args:     c.Args,
		Dispatch: d.Dispatch,
		Warn:     d.warnf,
	})
	out := res.Messages
	evs := append([]types.Event{{Type: "action_run", Data: map[string]any{"action": c.Name}}}, res.Events...)
	if len(res.Commands) > 0 {
		co, ce := d.Dispatch(res.Commands)
		out = append(out, co...)
		evs = append(evs, ce...)
	}
	return out, evs
}

// asArgString extracts the message payload of a broadcast or log action.
func asArgString(c types.PluginAction) string {
	if v, ok := c.Args["message"]; ok {
		return fmt.Sprint(v)
	}
	return c.Target
}

// resolveLiteral turns a set command's right-hand side into a value:
// bool, int, float, quoted string, a dotted read from the store, or the
// raw string itself.
func resolveLiteral(s string, st *types.State) any {
	s = strings.TrimSpace(s)
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	if dottedRe.MatchString(s) {
		if v, ok := state.LookupPath(st, strings.Split(s, ".")); ok {
			return v
		}
	}
	return s
}

func isIntLike(v any) bool {
	switch v.(type) {
	case int, int64:
		return true
	}
	return false
}
