// Package scene renders scenes for display: inline alternative expansion,
// variable interpolation and condition-gated choice filtering. Rendering
// never mutates the store; on_enter commands are the engine's job.
package scene

import (
	"fmt"
	"regexp"
	"strings"

	"storyloom/engine/expr"
	"storyloom/engine/state"
	"storyloom/types"
)

var placeholderRe = regexp.MustCompile(`\{(\w+(?:\.\w+)*)\}`)

// Renderer renders one script's scenes against the live store.
type Renderer struct {
	State  *types.State
	Script *state.Script
	Eval   *expr.Evaluator

	// Expand resolves inline "{a|b|c}" alternatives. Wired from the
	// table engine; unset leaves alternatives verbatim.
	Expand func(text string) string
	Warn   func(msg string)
}

// Choice is a selectable choice as displayed: Index is the 1-based number
// shown to the player, counted over visible choices only.
type Choice struct {
	Index int
	Text  string
	Def   types.ChoiceDef
}

// New returns a renderer over the given store.
func New(st *types.State, sc *state.Script, ev *expr.Evaluator) *Renderer {
	return &Renderer{State: st, Script: sc, Eval: ev}
}

func (r *Renderer) warnf(format string, args ...any) {
	if r.Warn != nil {
		r.Warn(fmt.Sprintf(format, args...))
	}
}

// Render renders a scene: its text with alternatives and placeholders
// resolved, plus the currently visible choices.
func (r *Renderer) Render(id string) (string, []Choice, error) {
	def, ok := r.Script.Scene(id)
	if !ok {
		return "", nil, fmt.Errorf("unknown scene %q", id)
	}
	return r.Interpolate(def.Text), r.Visible(def), nil
}

// Visible filters a scene's choices by their conditions and numbers the
// survivors for display.
func (r *Renderer) Visible(def types.SceneDef) []Choice {
	var out []Choice
	for _, c := range def.Choices {
		if c.Condition != "" && !r.Eval.EvalCondition(c.Condition) {
			continue
		}
		out = append(out, Choice{
			Index: len(out) + 1,
			Text:  r.Interpolate(c.Text),
			Def:   c,
		})
	}
	return out
}

// IsEnding reports whether a scene defines no choices at all, which ends
// the game when reached.
func IsEnding(def types.SceneDef) bool {
	return len(def.Choices) == 0
}

// Interpolate expands inline alternatives, then replaces {name} and
// {dotted.path} placeholders with store values. Unresolvable placeholders
// warn and stay verbatim.
func (r *Renderer) Interpolate(text string) string {
	if r.Expand != nil {
		text = r.Expand(text)
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(ph string) string {
		name := ph[1 : len(ph)-1]
		if name == "inventory" {
			return r.formatInventory()
		}
		var v any
		var ok bool
		if strings.Contains(name, ".") {
			v, ok = state.LookupPath(r.State, strings.Split(name, "."))
		} else {
			v, ok = state.GetVar(r.State, name)
		}
		if !ok {
			r.warnf("no value for placeholder %q", ph)
			return ph
		}
		return fmt.Sprintf("%v", v)
	})
}

// PresentObjects lists the objects present in a scene: declared or
// spawned, with satisfied spawn conditions.
func (r *Renderer) PresentObjects(sceneID string) []string {
	var out []string
	for _, id := range state.SceneObjects(r.State, r.Script, sceneID) {
		obj, ok := r.Script.Object(id)
		if !ok {
			r.warnf("scene %q lists unknown object %q", sceneID, id)
			continue
		}
		if obj.SpawnCondition != "" && !r.Eval.EvalCondition(obj.SpawnCondition) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (r *Renderer) formatInventory() string {
	items := state.Inventory(r.State)
	if len(items) == 0 {
		return "nothing"
	}
	return strings.Join(items, ", ")
}
