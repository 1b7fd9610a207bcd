package loader

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"storyloom/engine/expr"
	"storyloom/engine/state"
	"storyloom/types"
)

// ValidationError collects all validation errors and warnings. Errors
// make the load fail; warnings print to stderr and the script loads.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(ve.Errors), strings.Join(ve.Errors, "\n  "))
}

func (ve *ValidationError) errorf(format string, args ...any) {
	ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
}

func (ve *ValidationError) warnf(format string, args ...any) {
	ve.Warnings = append(ve.Warnings, fmt.Sprintf(format, args...))
}

// Known event priorities.
var validPriorities = map[string]bool{
	"": true, "high": true, "medium": true, "low": true,
}

// validate cross-checks the compiled script: every reference must
// resolve and every condition must compile. Map sections are walked in
// sorted order so repeated loads report identically.
func validate(sc *state.Script, ve *ValidationError) {
	if sc.StartScene == "" {
		ve.errorf("start_scene is required")
	} else if _, ok := sc.Scenes[sc.StartScene]; !ok {
		ve.errorf("start_scene %q not found in defined scenes", sc.StartScene)
	}

	for _, id := range sortedKeys(sc.Scenes) {
		validateScene(sc, sc.Scenes[id], ve)
	}
	for _, id := range sortedKeys(sc.Objects) {
		validateObject(sc, sc.Objects[id], ve)
	}
	for _, id := range sortedKeys(sc.Effects) {
		validateEffect(sc, sc.Effects[id], ve)
	}
	for _, id := range sortedKeys(sc.Tables) {
		validateTable(sc, sc.Tables[id], ve)
	}
	for _, id := range sortedKeys(sc.Machines) {
		validateMachine(sc, sc.Machines[id], ve)
	}

	// Event IDs unique across both lists.
	eventIDs := map[string]bool{}
	for _, ev := range sc.Scheduled {
		if eventIDs[ev.ID] {
			ve.warnf("duplicate event ID %q", ev.ID)
		}
		eventIDs[ev.ID] = true
		validateScheduled(sc, ev, ve)
	}
	for _, ev := range sc.Reactive {
		if eventIDs[ev.ID] {
			ve.warnf("duplicate event ID %q", ev.ID)
		}
		eventIDs[ev.ID] = true
		validateReactive(sc, ev, ve)
	}
}

func validateScene(sc *state.Script, scene types.SceneDef, ve *ValidationError) {
	for _, obj := range scene.Objects {
		if _, ok := sc.Objects[obj]; !ok {
			ve.errorf("scene %q lists undefined object %q", scene.ID, obj)
		}
	}
	validateCommands(sc, fmt.Sprintf("scene %q on_enter", scene.ID), scene.OnEnter, ve)
	for i, c := range scene.Choices {
		ctx := fmt.Sprintf("scene %q choice %d", scene.ID, i+1)
		if c.Next != "" {
			if _, ok := sc.Scenes[c.Next]; !ok {
				ve.errorf("%s goes to undefined scene %q", ctx, c.Next)
			}
		}
		validateCondition(ctx, c.Condition, ve)
		validateCommands(sc, ctx, c.Commands, ve)
	}
}

func validateObject(sc *state.Script, obj types.ObjectDef, ve *ValidationError) {
	validateCondition(fmt.Sprintf("object %q spawn_condition", obj.ID), obj.SpawnCondition, ve)
	for _, verb := range sortedKeys(obj.Behaviors) {
		b := obj.Behaviors[verb]
		ctx := fmt.Sprintf("object %q behavior %q", obj.ID, verb)
		validateCondition(ctx, b.Condition, ve)
		validateCommands(sc, ctx, b.Commands, ve)
	}
}

func validateEffect(sc *state.Script, eff types.EffectDef, ve *ValidationError) {
	if d := strings.TrimSpace(eff.Duration); d != "" && d != "permanent" {
		n, err := strconv.Atoi(strings.Fields(d)[0])
		if err != nil || n < 0 {
			ve.warnf("effect %q duration %q has no leading tick count, treated as permanent", eff.ID, eff.Duration)
		}
	}
	for _, stat := range sortedKeys(eff.Modifiers) {
		if !validModifier(eff.Modifiers[stat]) {
			ve.warnf("effect %q modifier %s=%q is not numeric and will be ignored", eff.ID, stat, eff.Modifiers[stat])
		}
	}
	validateCommands(sc, fmt.Sprintf("effect %q on_apply", eff.ID), eff.OnApply, ve)
	validateCommands(sc, fmt.Sprintf("effect %q on_tick", eff.ID), eff.OnTick, ve)
	validateCommands(sc, fmt.Sprintf("effect %q on_remove", eff.ID), eff.OnRemove, ve)
}

// validModifier mirrors the effect engine's parsing: "*2" and "x2"
// multiply, anything else must read as a float.
func validModifier(spec string) bool {
	spec = strings.TrimSpace(spec)
	if rest, cut := strings.CutPrefix(spec, "*"); cut {
		spec = strings.TrimSpace(rest)
	} else if rest, cut := strings.CutPrefix(spec, "x"); cut {
		spec = strings.TrimSpace(rest)
	}
	_, err := strconv.ParseFloat(spec, 64)
	return err == nil
}

func validateTable(sc *state.Script, tbl types.TableDef, ve *ValidationError) {
	if len(tbl.Entries) == 0 {
		ve.warnf("table %q has no entries", tbl.ID)
	}
	for i, e := range tbl.Entries {
		ctx := fmt.Sprintf("table %q entry %d", tbl.ID, i+1)
		if e.Weight <= 0 {
			ve.errorf("%s has non-positive weight %v", ctx, e.Weight)
		}
		validateCommands(sc, ctx, e.Commands, ve)
	}
}

func validateMachine(sc *state.Script, m types.MachineDef, ve *ValidationError) {
	if _, ok := m.States[m.Initial]; !ok {
		ve.errorf("machine %q initial state %q not found in its states", m.ID, m.Initial)
	}
	for _, name := range sortedKeys(m.States) {
		st := m.States[name]
		for i, tr := range st.Transitions {
			ctx := fmt.Sprintf("machine %q state %q transition %d", m.ID, name, i+1)
			if _, ok := m.States[tr.To]; !ok {
				ve.errorf("%s goes to undefined state %q", ctx, tr.To)
			}
			if tr.Condition == "" && tr.Event == "" {
				ve.warnf("%s has neither condition nor event and never fires", ctx)
			}
			validateWindow(ctx, tr.Condition, ve)
			validateCommands(sc, ctx, tr.Actions, ve)
		}
		validateCommands(sc, fmt.Sprintf("machine %q state %q continuous", m.ID, name), st.Continuous, ve)
	}
}

func validateScheduled(sc *state.Script, ev types.ScheduledEventDef, ve *ValidationError) {
	ctx := fmt.Sprintf("scheduled event %q", ev.ID)
	if strings.TrimSpace(ev.Trigger) == "" {
		ve.warnf("%s has an empty trigger and never fires", ctx)
	} else {
		validateWindow(ctx, ev.Trigger, ve)
	}
	if ev.Chance < 0 || ev.Chance > 1 {
		ve.errorf("%s chance %v is outside [0, 1]", ctx, ev.Chance)
	}
	if !validPriorities[ev.Priority] {
		ve.warnf("%s has unrecognized priority %q", ctx, ev.Priority)
	}
	validateEventActions(sc, ctx, ev.Actions, ve)
}

func validateReactive(sc *state.Script, ev types.ReactiveEventDef, ve *ValidationError) {
	ctx := fmt.Sprintf("reactive event %q", ev.ID)
	for i, c := range ev.Conditions {
		validateCondition(fmt.Sprintf("%s condition %d", ctx, i+1), c, ve)
	}
	if !validPriorities[ev.Priority] {
		ve.warnf("%s has unrecognized priority %q", ctx, ev.Priority)
	}
	validateEventActions(sc, ctx, ev.Actions, ve)
}

// validateCommands checks every cross-reference in a command list.
// Dangling goto, apply_effect and roll_table targets are errors; a
// dangling remove_effect only warns because removing an inactive effect
// is harmless at runtime.
func validateCommands(sc *state.Script, ctx string, cmds []types.Command, ve *ValidationError) {
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case types.GotoScene:
			if _, ok := sc.Scenes[c.Scene]; !ok {
				ve.errorf("%s: goto references undefined scene %q", ctx, c.Scene)
			}
		case types.ApplyEffect:
			if _, ok := sc.Effects[c.Effect]; !ok {
				ve.errorf("%s: apply_effect references undefined effect %q", ctx, c.Effect)
			}
		case types.RemoveEffect:
			if _, ok := sc.Effects[c.Effect]; !ok {
				ve.warnf("%s: remove_effect references undefined effect %q", ctx, c.Effect)
			}
		case types.RollTable:
			if _, ok := sc.Tables[c.Table]; !ok {
				ve.errorf("%s: roll_table references undefined table %q", ctx, c.Table)
			}
		case types.Conditional:
			validateCondition(ctx, c.If, ve)
			validateCommands(sc, ctx, c.Then, ve)
			validateCommands(sc, ctx, c.Else, ve)
		}
	}
}

// validateEventActions resolves the object references inside raw
// spawn/transform tokens. broadcast and log carry free text.
func validateEventActions(sc *state.Script, ctx string, actions []types.EventAction, ve *ValidationError) {
	for i, a := range actions {
		actx := fmt.Sprintf("%s action %d", ctx, i+1)
		if a.Raw == "" {
			validateCommands(sc, actx, []types.Command{a.Cmd}, ve)
			continue
		}
		verb, rest, _ := strings.Cut(a.Raw, ":")
		switch strings.TrimSpace(verb) {
		case "spawn":
			obj := strings.TrimSpace(rest)
			if _, ok := sc.Objects[obj]; !ok {
				ve.errorf("%s: spawn references undefined object %q", actx, obj)
			}
		case "transform":
			objName, stateName, _ := strings.Cut(rest, ":")
			obj, ok := sc.Objects[strings.TrimSpace(objName)]
			if !ok {
				ve.errorf("%s: transform references undefined object %q", actx, strings.TrimSpace(objName))
				continue
			}
			stateName = strings.TrimSpace(stateName)
			if len(obj.States) > 0 && !containsStr(obj.States, stateName) {
				ve.errorf("%s: object %q has no state %q", actx, obj.ID, stateName)
			}
		}
	}
}

// validateCondition test-compiles a condition so syntax errors surface
// at load time instead of silently failing mid-game.
func validateCondition(ctx, cond string, ve *ValidationError) {
	if strings.TrimSpace(cond) == "" {
		return
	}
	if _, err := expr.CompileCondition(cond); err != nil {
		ve.errorf("%s: %v", ctx, err)
	}
}

// validateWindow checks each "&&"-joined clause of a trigger window.
func validateWindow(ctx, trigger string, ve *ValidationError) {
	for _, clause := range strings.Split(trigger, "&&") {
		validateCondition(ctx, clause, ve)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
