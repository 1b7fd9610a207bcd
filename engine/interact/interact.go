// Package interact maps parsed intents to scene objects and runs the
// matching behavior.
package interact

import (
	"fmt"
	"strings"

	"storyloom/engine/expr"
	"storyloom/engine/scene"
	"storyloom/engine/state"
	"storyloom/types"
)

// Runner dispatches a behavior's command list.
type Runner interface {
	Dispatch(cmds []types.Command) ([]string, []types.Event)
}

// AmbiguityError indicates multiple objects matched a name.
type AmbiguityError struct {
	Name       string
	Candidates []string
}

func (e *AmbiguityError) Error() string {
	names := strings.Join(e.Candidates, ", ")
	return fmt.Sprintf("which %s? (%s)", e.Name, names)
}

// NotFoundError indicates no visible object matched a name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("you don't see %q here", e.Name)
}

// Resolver resolves intent targets among the current scene's visible
// objects plus carried items, and runs object behaviors.
type Resolver struct {
	State  *types.State
	Script *state.Script
	Eval   *expr.Evaluator
	Scene  *scene.Renderer
	Runner Runner
	React  func(kind string, data map[string]any) ([]string, []types.Event)

	// Action runs a registered plugin action for a verb no behavior
	// claimed; handled=false falls through. Wired by the engine.
	Action func(verb, target string) (out []string, evs []types.Event, handled bool)

	// Fallback is shown when nothing handles an intent; the script's
	// command_parser fallback, usually.
	Fallback string
}

// New returns a resolver over the given store.
func New(st *types.State, sc *state.Script, ev *expr.Evaluator, r *scene.Renderer) *Resolver {
	return &Resolver{State: st, Script: sc, Eval: ev, Scene: r}
}

// Do runs an intent: resolve the target, run the behavior gated by its
// condition, and fire the player.action reactive hook. Unhandled intents
// answer with the fallback text; the bool reports whether anything
// claimed the intent.
func (r *Resolver) Do(intent types.Intent) ([]string, []types.Event, bool) {
	if intent.Verb == "" {
		return nil, nil, false
	}

	var out []string
	var evs []types.Event
	handled := false
	targetID := ""

	if intent.Target != "" {
		id, err := r.ResolveName(intent.Target)
		if err != nil {
			return []string{err.Error()}, nil, false
		}
		targetID = id

		obj, _ := r.Script.Object(id)
		if b, ok := obj.Behaviors[intent.Verb]; ok {
			if b.Condition == "" || r.Eval.EvalCondition(b.Condition) {
				handled = true
				if b.Response != "" {
					out = append(out, r.interpolate(b.Response))
				}
				if len(b.Commands) > 0 && r.Runner != nil {
					o, e := r.Runner.Dispatch(b.Commands)
					out = append(out, o...)
					evs = append(evs, e...)
				}
			}
		}
		if !handled && intent.Verb == "look" {
			if desc := r.describe(obj); desc != "" {
				out = append(out, desc)
				handled = true
			}
		}
	}

	if !handled && r.Action != nil {
		o, e, ok := r.Action(intent.Verb, targetID)
		if ok {
			handled = true
			out = append(out, o...)
			evs = append(evs, e...)
		}
	}

	if r.React != nil {
		o, e := r.React("action", map[string]any{"name": intent.Verb, "value": targetID})
		if len(o) > 0 || len(e) > 0 {
			handled = true
		}
		out = append(out, o...)
		evs = append(evs, e...)
	}

	if !handled {
		out = append(out, r.fallbackText())
	}
	return out, evs, handled
}

// ResolveName resolves a player-typed name to an object ID among the
// current scene's present objects and the inventory.
func (r *Resolver) ResolveName(name string) (string, error) {
	nameLower := strings.ToLower(strings.TrimSpace(name))

	var matches []string
	for _, id := range r.candidates() {
		def, ok := r.Script.Object(id)
		if !ok {
			continue
		}
		if matchesName(id, def, nameLower) && !containsStr(matches, id) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Name: name}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguityError{Name: name, Candidates: matches}
	}
}

// candidates lists the object IDs an intent may refer to: present in the
// current scene, or carried.
func (r *Resolver) candidates() []string {
	ids := r.Scene.PresentObjects(r.State.CurrentScene)
	for _, item := range state.Inventory(r.State) {
		if _, ok := r.Script.Object(item); ok && !containsStr(ids, item) {
			ids = append(ids, item)
		}
	}
	return ids
}

// matchesName checks a query against an object's name attribute and ID.
// Supports exact match, word-based partial match ("key" matches
// "rusty key") and underscore normalization ("rusty key" → rusty_key).
func matchesName(id string, def types.ObjectDef, nameLower string) bool {
	if nameVal, ok := def.Attributes["name"]; ok {
		if nameStr, ok := nameVal.(string); ok {
			objNameLower := strings.ToLower(nameStr)
			if objNameLower == nameLower {
				return true
			}
			for _, word := range strings.Fields(objNameLower) {
				if word == nameLower {
					return true
				}
			}
		}
	}
	idLower := strings.ToLower(id)
	if idLower == nameLower {
		return true
	}
	return strings.ReplaceAll(nameLower, " ", "_") == idLower
}

func (r *Resolver) describe(def types.ObjectDef) string {
	if desc, ok := def.Attributes["description"].(string); ok {
		return r.interpolate(desc)
	}
	return ""
}

func (r *Resolver) interpolate(text string) string {
	if r.Scene != nil {
		return r.Scene.Interpolate(text)
	}
	return text
}

func (r *Resolver) fallbackText() string {
	if r.Fallback != "" {
		return r.Fallback
	}
	return "Nothing happens."
}

func containsStr(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
