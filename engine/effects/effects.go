// Package effects manages timed status effects: application and expiry,
// periodic on_tick hooks, and the stat modifiers active effects
// contribute. Durations and tick cadence count in game time.
package effects

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"storyloom/engine/state"
	"storyloom/types"
)

// Runner dispatches an effect's hook commands. The engine wires the
// command dispatcher in here after construction.
type Runner interface {
	Dispatch(cmds []types.Command) ([]string, []types.Event)
}

// Engine owns the active-effect table inside the runtime store.
type Engine struct {
	State  *types.State
	Script *state.Script
	Runner Runner
	Warn   func(msg string)
}

// New returns an effects engine over the given store.
func New(st *types.State, sc *state.Script) *Engine {
	return &Engine{State: st, Script: sc}
}

func (e *Engine) warnf(format string, args ...any) {
	if e.Warn != nil {
		e.Warn(fmt.Sprintf(format, args...))
	}
}

func (e *Engine) run(cmds []types.Command) ([]string, []types.Event) {
	if e.Runner == nil || len(cmds) == 0 {
		return nil, nil
	}
	return e.Runner.Dispatch(cmds)
}

// Key returns the active-effect map key for a name and target. Effects on
// the player are keyed by bare name.
func Key(name, target string) string {
	if target == "" || target == "player" {
		return name
	}
	return name + "@" + target
}

// Active reports whether the named effect is currently applied.
func (e *Engine) Active(name, target string) bool {
	_, ok := e.State.Effects[Key(name, target)]
	return ok
}

// List returns the active effects sorted by key.
func (e *Engine) List() []types.ActiveEffect {
	keys := make([]string, 0, len(e.State.Effects))
	for k := range e.State.Effects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.ActiveEffect, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.State.Effects[k])
	}
	return out
}

// Apply activates a named effect. Applying an already-active effect
// refreshes its remaining duration without re-running on_apply.
func (e *Engine) Apply(name, target string) ([]string, []types.Event, bool) {
	def, ok := e.Script.Effect(name)
	if !ok {
		e.warnf("apply of unknown effect %q", name)
		return nil, nil, false
	}
	key := Key(name, target)
	dur := e.parseDuration(def.Duration)
	if cur, active := e.State.Effects[key]; active {
		cur.Duration = dur
		e.State.Effects[key] = cur
		return nil, []types.Event{{Type: "effect_refreshed", Data: map[string]any{"effect": key, "duration": dur}}}, true
	}
	e.State.Effects[key] = types.ActiveEffect{
		Name:      name,
		Target:    target,
		Duration:  dur,
		StartTick: state.GameTime(e.State),
	}
	evs := []types.Event{{Type: "effect_applied", Data: map[string]any{"effect": key, "duration": dur}}}
	out, hookEvs := e.run(def.OnApply)
	return out, append(evs, hookEvs...), true
}

// Remove deactivates an effect and runs its on_remove hook. Removing an
// inactive effect warns and reports false.
func (e *Engine) Remove(name, target string) ([]string, []types.Event, bool) {
	key := Key(name, target)
	if _, active := e.State.Effects[key]; !active {
		e.warnf("remove of inactive effect %q", key)
		return nil, nil, false
	}
	delete(e.State.Effects, key)
	evs := []types.Event{{Type: "effect_removed", Data: map[string]any{"effect": key}}}
	var out []string
	if def, ok := e.Script.Effect(name); ok {
		o, hookEvs := e.run(def.OnRemove)
		out = append(out, o...)
		evs = append(evs, hookEvs...)
	}
	return out, evs, true
}

// Update advances every active effect to the given game time: durations
// count down, expired effects run on_remove and drop out, and periodic
// effects fire on_tick at their cadence. Effects are processed in key
// order so runs are reproducible. An effect expiring this update does not
// also tick.
func (e *Engine) Update(now int) ([]string, []types.Event) {
	keys := make([]string, 0, len(e.State.Effects))
	for k := range e.State.Effects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	var evs []types.Event
	for _, key := range keys {
		eff, ok := e.State.Effects[key]
		if !ok {
			continue // removed by an earlier hook this update
		}
		def, ok := e.Script.Effect(eff.Name)
		if !ok {
			e.warnf("active effect %q has no definition, dropping it", key)
			delete(e.State.Effects, key)
			continue
		}

		if eff.Duration > 0 {
			eff.Duration--
			if eff.Duration == 0 {
				delete(e.State.Effects, key)
				evs = append(evs, types.Event{Type: "effect_expired", Data: map[string]any{"effect": key}})
				o, hookEvs := e.run(def.OnRemove)
				out = append(out, o...)
				evs = append(evs, hookEvs...)
				continue
			}
		}

		if def.TickRate > 0 {
			ticks := (now - eff.StartTick) / def.TickRate
			if ticks > eff.LastTick {
				eff.LastTick = ticks
				evs = append(evs, types.Event{Type: "effect_tick", Data: map[string]any{"effect": key, "tick": ticks}})
				o, hookEvs := e.run(def.OnTick)
				out = append(out, o...)
				evs = append(evs, hookEvs...)
			}
		}

		// A hook may have removed the effect; do not resurrect it.
		if _, still := e.State.Effects[key]; still {
			e.State.Effects[key] = eff
		}
	}
	return out, evs
}

// Modifier sums the active modifiers for one stat: the additive total and
// the multiplicative product.
func (e *Engine) Modifier(stat string) (add, mul float64) {
	mul = 1
	for _, eff := range e.State.Effects {
		def, ok := e.Script.Effect(eff.Name)
		if !ok {
			continue
		}
		spec, ok := def.Modifiers[stat]
		if !ok {
			continue
		}
		a, m, ok := parseModifier(spec)
		if !ok {
			e.warnf("bad modifier %q on effect %q", spec, eff.Name)
			continue
		}
		add += a
		mul *= m
	}
	return add, mul
}

// EffectiveStat applies active modifiers to a base value: additive
// modifiers first, then the multiplicative product.
func (e *Engine) EffectiveStat(stat string, base float64) float64 {
	add, mul := e.Modifier(stat)
	return (base + add) * mul
}

// parseDuration reads the leading integer of a duration string ("3", "30
// minutes"). Empty, "permanent" and unparseable strings mean permanent.
func (e *Engine) parseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || s == "permanent" {
		return 0
	}
	fields := strings.Fields(s)
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		e.warnf("bad effect duration %q, treating as permanent", s)
		return 0
	}
	return n
}

// parseModifier splits a modifier spec into its additive and
// multiplicative parts. "*2" and "x2" multiply; anything else adds.
func parseModifier(spec string) (add, mul float64, ok bool) {
	spec = strings.TrimSpace(spec)
	if rest, cut := strings.CutPrefix(spec, "*"); cut {
		m, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		return 0, m, err == nil
	}
	if rest, cut := strings.CutPrefix(spec, "x"); cut {
		m, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		return 0, m, err == nil
	}
	a, err := strconv.ParseFloat(spec, 64)
	return a, 1, err == nil
}
