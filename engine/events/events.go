// Package events implements the two halves of the event system:
// scheduled events fired on game-time windows each turn, and reactive
// events fired when commands change state. Reactions may cascade, but
// only through a fixed depth before the engine cuts them off.
package events

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"storyloom/engine/dispatch"
	"storyloom/engine/expr"
	"storyloom/engine/state"
	"storyloom/types"
)

// maxReactDepth bounds reaction cascades: a reaction's own state changes
// can trigger further reactions this many levels deep.
const maxReactDepth = 4

// historyCap bounds the fired-event audit trail.
const historyCap = 100

// Runner dispatches parsed event actions. The engine wires the command
// dispatcher in here.
type Runner interface {
	Dispatch(cmds []types.Command) ([]string, []types.Event)
}

// Source supplies the chance gate's random draw.
type Source interface {
	Float64() float64
}

// Engine owns scheduled and reactive event processing for one game.
type Engine struct {
	State  *types.State
	Script *state.Script
	Eval   *expr.Evaluator
	Rand   Source
	Runner Runner
	Warn   func(msg string)

	scheduledOrder []int
	reactiveOrder  []int
	disabled       map[string]bool // runtime override of the Disabled flag
	removed        map[string]bool
	history        []types.EventRecord
	reactDepth     int
}

// New returns an event engine with both event lists ordered by priority
// (high before medium before low, definition order within a priority).
func New(st *types.State, sc *state.Script, ev *expr.Evaluator) *Engine {
	e := &Engine{
		State:    st,
		Script:   sc,
		Eval:     ev,
		disabled: map[string]bool{},
		removed:  map[string]bool{},
	}
	e.scheduledOrder = priorityOrder(len(sc.Scheduled), func(i int) string { return sc.Scheduled[i].Priority })
	e.reactiveOrder = priorityOrder(len(sc.Reactive), func(i int) string { return sc.Reactive[i].Priority })
	return e
}

func (e *Engine) warnf(format string, args ...any) {
	if e.Warn != nil {
		e.Warn(fmt.Sprintf(format, args...))
	}
}

// CheckScheduled fires every enabled scheduled event whose time window
// holds at the given game time, in priority order. Events with a chance
// below 1 are gated by a random draw.
func (e *Engine) CheckScheduled(now int) ([]string, []types.Event) {
	var out []string
	var evs []types.Event
	for _, i := range e.scheduledOrder {
		def := e.Script.Scheduled[i]
		if !e.active(def.ID, def.Disabled) {
			continue
		}
		if !EvalWindow(def.Trigger, now, e.Eval.EvalCondition) {
			continue
		}
		if def.Chance > 0 && def.Chance < 1 {
			if e.Rand == nil || e.Rand.Float64() >= def.Chance {
				continue
			}
		}
		e.record(def.ID, "scheduled")
		evs = append(evs, types.Event{Type: "event_fired", Data: map[string]any{"event": def.ID, "kind": "scheduled"}})
		o, ev2 := e.runActions(def.Actions)
		out = append(out, o...)
		evs = append(evs, ev2...)
	}
	return out, evs
}

// React fires every enabled reactive event whose pattern matches the
// state change, in priority order. It has the dispatch.ReactFunc shape.
func (e *Engine) React(kind string, data map[string]any) ([]string, []types.Event) {
	if e.reactDepth >= maxReactDepth {
		e.warnf("reaction cascade cut off at %d levels", maxReactDepth)
		return nil, nil
	}
	e.reactDepth++
	defer func() { e.reactDepth-- }()

	var out []string
	var evs []types.Event
	for _, i := range e.reactiveOrder {
		def := e.Script.Reactive[i]
		if !e.active(def.ID, def.Disabled) {
			continue
		}
		if !matchPattern(def.Pattern, kind, data) {
			continue
		}
		if !e.Eval.EvalAll(def.Conditions) {
			continue
		}
		e.record(def.ID, "reactive")
		evs = append(evs, types.Event{Type: "event_fired", Data: map[string]any{"event": def.ID, "kind": "reactive"}})
		o, ev2 := e.runActions(def.Actions)
		out = append(out, o...)
		evs = append(evs, ev2...)
	}
	return out, evs
}

// Enable clears the disabled state of an event. Reports false for
// unknown ids.
func (e *Engine) Enable(id string) bool {
	if !e.knows(id) {
		return false
	}
	e.disabled[id] = false
	return true
}

// Disable stops an event from firing until re-enabled.
func (e *Engine) Disable(id string) bool {
	if !e.knows(id) {
		return false
	}
	e.disabled[id] = true
	return true
}

// Remove permanently drops an event for the rest of the session.
func (e *Engine) Remove(id string) bool {
	if !e.knows(id) {
		return false
	}
	e.removed[id] = true
	return true
}

// History returns the audit trail of fired events, oldest first.
func (e *Engine) History() []types.EventRecord {
	out := make([]types.EventRecord, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) knows(id string) bool {
	for _, d := range e.Script.Scheduled {
		if d.ID == id {
			return true
		}
	}
	for _, d := range e.Script.Reactive {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) active(id string, defDisabled bool) bool {
	if e.removed[id] {
		return false
	}
	if override, ok := e.disabled[id]; ok {
		return !override
	}
	return !defDisabled
}

func (e *Engine) record(id, kind string) {
	e.history = append(e.history, types.EventRecord{
		ID:       id,
		Kind:     kind,
		Turn:     e.State.Turn,
		GameTime: state.GameTime(e.State),
	})
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}
}

// runActions executes an event's action list. Raw tokens go through the
// built-in handlers first (spawn, transform, broadcast, log), then fall
// back to the command parser; parsed commands dispatch directly.
func (e *Engine) runActions(actions []types.EventAction) ([]string, []types.Event) {
	var out []string
	var evs []types.Event
	for _, a := range actions {
		if a.Cmd != nil {
			o, ev2 := e.dispatch([]types.Command{a.Cmd})
			out = append(out, o...)
			evs = append(evs, ev2...)
			continue
		}
		o, ev2 := e.handleToken(a.Raw)
		out = append(out, o...)
		evs = append(evs, ev2...)
	}
	return out, evs
}

func (e *Engine) dispatch(cmds []types.Command) ([]string, []types.Event) {
	if e.Runner == nil {
		e.warnf("no runner wired for event commands")
		return nil, nil
	}
	return e.Runner.Dispatch(cmds)
}

func (e *Engine) handleToken(raw string) ([]string, []types.Event) {
	verb, rest, _ := strings.Cut(raw, ":")
	verb = strings.TrimSpace(verb)
	rest = strings.TrimSpace(rest)

	switch verb {
	case "spawn":
		if _, ok := e.Script.Object(rest); !ok {
			e.warnf("spawn of unknown object %q", rest)
			return nil, nil
		}
		if !spawnObject(e.State, rest) {
			return nil, nil
		}
		return nil, []types.Event{{Type: "object_spawned", Data: map[string]any{"object": rest}}}

	case "transform":
		obj, newState, ok := strings.Cut(rest, ":")
		if !ok {
			e.warnf("transform needs object:state, got %q", rest)
			return nil, nil
		}
		obj, newState = strings.TrimSpace(obj), strings.TrimSpace(newState)
		def, found := e.Script.Object(obj)
		if !found {
			e.warnf("transform of unknown object %q", obj)
			return nil, nil
		}
		if !hasState(def, newState) {
			e.warnf("object %q has no state %q", obj, newState)
			return nil, nil
		}
		state.SetVar(e.State, obj+"_state", newState)
		evs := []types.Event{{Type: "object_transformed", Data: map[string]any{"object": obj, "state": newState}}}
		// The state variable changed, so variable watchers get their turn.
		o, ev2 := e.React("variable", map[string]any{"name": obj + "_state", "value": newState})
		return o, append(evs, ev2...)

	case "broadcast":
		return []string{rest}, nil

	case "log":
		return nil, []types.Event{{Type: "log", Data: map[string]any{"message": rest}}}
	}

	cmd, err := dispatch.ParseAction(raw)
	if err != nil {
		e.warnf("unhandled event action %q: %v", raw, err)
		return nil, nil
	}
	return e.dispatch([]types.Command{cmd})
}

// Handles reports whether a raw action token is one of the built-in event
// handlers. The loader uses it to validate action lists.
func Handles(raw string) bool {
	verb, _, _ := strings.Cut(raw, ":")
	switch strings.TrimSpace(verb) {
	case "spawn", "transform", "broadcast", "log":
		return true
	}
	return false
}

func spawnObject(st *types.State, id string) bool {
	switch list := st.Vars["spawned_objects"].(type) {
	case []any:
		for _, v := range list {
			if v == id {
				return false
			}
		}
		st.Vars["spawned_objects"] = append(list, id)
	case []string:
		for _, v := range list {
			if v == id {
				return false
			}
		}
		st.Vars["spawned_objects"] = append(list, id)
	default:
		st.Vars["spawned_objects"] = []any{id}
	}
	return true
}

func hasState(def types.ObjectDef, s string) bool {
	for _, st := range def.States {
		if st == s {
			return true
		}
	}
	return false
}

// matchPattern tests a compiled trigger pattern against a state change.
// An empty Key or Value matches anything.
func matchPattern(p types.TriggerPattern, kind string, data map[string]any) bool {
	if p.Kind != kind {
		return false
	}
	if p.Key != "" && asString(data["name"]) != p.Key {
		return false
	}
	if p.Value != "" && asString(data["value"]) != p.Value {
		return false
	}
	return true
}

var timeCmpRe = regexp.MustCompile(`^time\s*(==|!=|>=|<=|>|<)\s*(\d+)$`)
var timeModRe = regexp.MustCompile(`^time\s*%\s*(\d+)\s*==\s*(\d+)$`)

// EvalWindow evaluates a scheduled trigger at the given game time. The
// trigger is "&&"-joined clauses; a clause is a time comparison
// ("time > 5"), a periodic form ("time % 10 == 0"), or anything else,
// which goes to the fallback condition evaluator. An empty trigger never
// fires.
func EvalWindow(trigger string, now int, fallback func(string) bool) bool {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return false
	}
	for _, clause := range strings.Split(trigger, "&&") {
		clause = strings.TrimSpace(clause)
		if m := timeCmpRe.FindStringSubmatch(clause); m != nil {
			n, _ := strconv.Atoi(m[2])
			if !compareInt(now, m[1], n) {
				return false
			}
			continue
		}
		if m := timeModRe.FindStringSubmatch(clause); m != nil {
			mod, _ := strconv.Atoi(m[1])
			want, _ := strconv.Atoi(m[2])
			if mod <= 0 || now%mod != want {
				return false
			}
			continue
		}
		if fallback == nil || !fallback(clause) {
			return false
		}
	}
	return true
}

func compareInt(a int, op string, b int) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	}
	return false
}

// ParsePattern compiles a reactive trigger string. Supported forms:
// "variable_change:NAME", "flag_set:NAME", "flag_cleared:NAME",
// "scene.change" (optionally ":SCENE"), "player.action" (optionally
// ":VERB"), "item_gained:NAME", "item_lost:NAME" and "custom:NAME".
// The dotted spelling "player.action = VERB" / "variable.NAME = V" /
// "world.KEY = V" / "custom.TYPE" is accepted as an equivalent.
func ParsePattern(trigger string) (types.TriggerPattern, error) {
	trigger = strings.TrimSpace(trigger)
	if !strings.Contains(trigger, ":") {
		if p, ok := parseDottedPattern(trigger); ok {
			return p, nil
		}
	}

	kind, key, _ := strings.Cut(trigger, ":")
	kind = strings.TrimSpace(kind)
	key = strings.TrimSpace(key)

	switch kind {
	case "variable_change", "variable":
		return types.TriggerPattern{Kind: "variable", Key: key}, nil
	case "flag_set":
		return types.TriggerPattern{Kind: "flag", Key: key, Value: "true"}, nil
	case "flag_cleared":
		return types.TriggerPattern{Kind: "flag", Key: key, Value: "false"}, nil
	case "flag":
		return types.TriggerPattern{Kind: "flag", Key: key}, nil
	case "scene.change", "scene_change", "scene":
		return types.TriggerPattern{Kind: "scene", Key: key}, nil
	case "player.action", "action":
		return types.TriggerPattern{Kind: "action", Key: key}, nil
	case "item_gained":
		return types.TriggerPattern{Kind: "item", Key: key, Value: "gained"}, nil
	case "item_lost":
		return types.TriggerPattern{Kind: "item", Key: key, Value: "lost"}, nil
	case "item":
		return types.TriggerPattern{Kind: "item", Key: key}, nil
	case "custom":
		return types.TriggerPattern{Kind: "custom", Key: key}, nil
	}
	return types.TriggerPattern{}, fmt.Errorf("unknown trigger pattern %q", trigger)
}

// parseDottedPattern handles the "family.key [= value]" spelling. World
// state lives in the variable store, so "world." is an alias for
// "variable.".
func parseDottedPattern(trigger string) (types.TriggerPattern, bool) {
	head, val, _ := strings.Cut(trigger, "=")
	head = strings.TrimSpace(head)
	val = strings.TrimSpace(val)
	switch {
	case head == "player.action":
		return types.TriggerPattern{Kind: "action", Key: val}, true
	case head == "scene.change":
		return types.TriggerPattern{Kind: "scene", Key: val}, true
	case strings.HasPrefix(head, "variable."):
		return types.TriggerPattern{Kind: "variable", Key: strings.TrimPrefix(head, "variable."), Value: val}, true
	case strings.HasPrefix(head, "world."):
		return types.TriggerPattern{Kind: "variable", Key: strings.TrimPrefix(head, "world."), Value: val}, true
	case strings.HasPrefix(head, "custom."):
		return types.TriggerPattern{Kind: "custom", Key: strings.TrimPrefix(head, "custom.")}, true
	}
	return types.TriggerPattern{}, false
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func priorityOrder(n int, prio func(int) string) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return priorityRank(prio(idx[a])) < priorityRank(prio(idx[b]))
	})
	return idx
}

func priorityRank(p string) int {
	switch p {
	case "high":
		return 0
	case "low":
		return 2
	}
	return 1
}
