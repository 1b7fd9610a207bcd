// Package machines runs the script's named state machines. Each machine
// keeps its current state in the "<name>_state" variable, so conditions
// read it like any other variable and saves carry it for free.
package machines

import (
	"fmt"
	"sort"

	"storyloom/engine/events"
	"storyloom/engine/expr"
	"storyloom/engine/state"
	"storyloom/types"
)

// Runner dispatches transition and continuous actions. The engine wires
// the command dispatcher in here.
type Runner interface {
	Dispatch(cmds []types.Command) ([]string, []types.Event)
}

// Engine updates every machine once per turn.
type Engine struct {
	State  *types.State
	Script *state.Script
	Eval   *expr.Evaluator
	Runner Runner

	// React, when set, receives a "custom" machine_transition change for
	// every transition so reactive events can chain off machines.
	React func(kind string, data map[string]any) ([]string, []types.Event)
	Warn  func(msg string)

	order []string
}

// New returns a machine engine. Machines update in sorted-name order so
// runs are reproducible.
func New(st *types.State, sc *state.Script, ev *expr.Evaluator) *Engine {
	order := make([]string, 0, len(sc.Machines))
	for name := range sc.Machines {
		order = append(order, name)
	}
	sort.Strings(order)
	return &Engine{State: st, Script: sc, Eval: ev, order: order}
}

func (m *Engine) warnf(format string, args ...any) {
	if m.Warn != nil {
		m.Warn(fmt.Sprintf(format, args...))
	}
}

func (m *Engine) dispatch(cmds []types.Command) ([]string, []types.Event) {
	if m.Runner == nil || len(cmds) == 0 {
		return nil, nil
	}
	return m.Runner.Dispatch(cmds)
}

// Current returns a machine's current state: the "<name>_state" variable
// when it holds a known state, otherwise the declared initial state.
func (m *Engine) Current(name string) (string, bool) {
	def, ok := m.Script.Machine(name)
	if !ok {
		return "", false
	}
	if v, ok := m.State.Vars[name+"_state"]; ok {
		if s, ok := v.(string); ok {
			if _, known := def.States[s]; known {
				return s, true
			}
		}
	}
	return def.Initial, true
}

// UpdateAll advances every machine one step at the given game time. Per
// machine, the first satisfied transition of the current state fires (at
// most one per update), then the resulting state's continuous actions
// run. Event-only transitions are skipped here; they fire through
// TransitionOnEvent.
func (m *Engine) UpdateAll(now int) ([]string, []types.Event) {
	var out []string
	var evs []types.Event
	for _, name := range m.order {
		def, _ := m.Script.Machine(name)
		cur, _ := m.Current(name)
		stateDef, ok := def.States[cur]
		if !ok {
			m.warnf("machine %q is in undefined state %q", name, cur)
			continue
		}

		for _, t := range stateDef.Transitions {
			if t.Event != "" || t.Condition == "" {
				continue
			}
			if !events.EvalWindow(t.Condition, now, m.Eval.EvalCondition) {
				continue
			}
			o, ev2 := m.transition(name, cur, t)
			out = append(out, o...)
			evs = append(evs, ev2...)
			cur = t.To
			stateDef = def.States[cur]
			break
		}

		o, ev2 := m.dispatch(stateDef.Continuous)
		out = append(out, o...)
		evs = append(evs, ev2...)
	}
	return out, evs
}

// TransitionOnEvent fires transitions waiting on a named event. Every
// machine whose current state has a transition for the event takes it,
// provided any attached condition also holds.
func (m *Engine) TransitionOnEvent(event string) ([]string, []types.Event) {
	var out []string
	var evs []types.Event
	for _, name := range m.order {
		def, _ := m.Script.Machine(name)
		cur, _ := m.Current(name)
		stateDef, ok := def.States[cur]
		if !ok {
			continue
		}
		for _, t := range stateDef.Transitions {
			if t.Event != event {
				continue
			}
			if t.Condition != "" && !m.Eval.EvalCondition(t.Condition) {
				continue
			}
			o, ev2 := m.transition(name, cur, t)
			out = append(out, o...)
			evs = append(evs, ev2...)
			break
		}
	}
	return out, evs
}

// ForceState sets a machine's state directly, without running transition
// actions. Unknown machines and states are errors.
func (m *Engine) ForceState(name, to string) error {
	def, ok := m.Script.Machine(name)
	if !ok {
		return fmt.Errorf("unknown machine %q", name)
	}
	if _, ok := def.States[to]; !ok {
		return fmt.Errorf("machine %q has no state %q", name, to)
	}
	state.SetVar(m.State, name+"_state", to)
	return nil
}

func (m *Engine) transition(name, from string, t types.TransitionDef) ([]string, []types.Event) {
	state.SetVar(m.State, name+"_state", t.To)
	evs := []types.Event{{
		Type: "machine_transition",
		Data: map[string]any{"machine": name, "from": from, "to": t.To},
	}}
	out, hookEvs := m.dispatch(t.Actions)
	evs = append(evs, hookEvs...)
	if m.React != nil {
		o, ev2 := m.React("custom", map[string]any{
			"name":    "machine_transition",
			"machine": name,
			"from":    from,
			"to":      t.To,
		})
		out = append(out, o...)
		evs = append(evs, ev2...)
	}
	return out, evs
}
