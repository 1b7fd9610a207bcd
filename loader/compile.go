package loader

import (
	"fmt"

	"storyloom/engine/dispatch"
	"storyloom/engine/events"
	"storyloom/engine/state"
	"storyloom/types"
)

// compile turns a merged raw document into the typed script. Parse
// failures land in ve so a broken script reports every problem at once
// instead of stopping at the first.
func compile(raw *rawScript, ve *ValidationError) *state.Script {
	sc := &state.Script{
		Meta: types.Meta{
			Title:   raw.Title,
			Author:  raw.Author,
			Version: raw.Version,
			Intro:   raw.Intro,
		},
		StartScene: raw.StartScene,
		Variables:  raw.Variables,
		Flags:      raw.Flags,
		Scenes:     map[string]types.SceneDef{},
		Objects:    map[string]types.ObjectDef{},
		Effects:    map[string]types.EffectDef{},
		Tables:     map[string]types.TableDef{},
		Machines:   map[string]types.MachineDef{},
		Parser:     types.ParserDef{Verbs: raw.Parser.Verbs, Fallback: raw.Parser.Fallback},
	}

	for id, rs := range raw.Scenes {
		sc.Scenes[id] = compileScene(id, rs, ve)
	}
	for id, ro := range raw.Objects {
		sc.Objects[id] = compileObject(id, ro, ve)
	}
	for id, re := range raw.Effects {
		sc.Effects[id] = compileEffect(id, re, ve)
	}
	for id, entries := range raw.Random.Tables {
		sc.Tables[id] = compileTable(id, entries, ve)
	}
	for id, rm := range raw.Machines {
		sc.Machines[id] = compileMachine(id, rm, ve)
	}
	for i, rs := range raw.Events.Scheduled {
		sc.Scheduled = append(sc.Scheduled, compileScheduled(i, rs, ve))
	}
	for i, rr := range raw.Events.Reactive {
		sc.Reactive = append(sc.Reactive, compileReactive(i, rr, ve))
	}
	return sc
}

// compileCommands parses a command list, recording every parse error
// under the given context.
func compileCommands(ctx string, raw []any, ve *ValidationError) []types.Command {
	if len(raw) == 0 {
		return nil
	}
	cmds, err := dispatch.ParseCommands(raw)
	if err != nil {
		ve.errorf("%s: %v", ctx, err)
	}
	return cmds
}

func compileScene(id string, raw rawScene, ve *ValidationError) types.SceneDef {
	text := raw.Text
	if text == "" {
		text = raw.Description
	}
	def := types.SceneDef{
		ID:      id,
		Text:    text,
		Objects: raw.Objects,
		OnEnter: compileCommands(fmt.Sprintf("scene %q on_enter", id), raw.OnEnter, ve),
	}
	for i, c := range raw.Choices {
		ctx := fmt.Sprintf("scene %q choice %d", id, i+1)
		if c.Text == "" {
			ve.errorf("%s has no text", ctx)
		}
		def.Choices = append(def.Choices, types.ChoiceDef{
			Text:      c.Text,
			Next:      c.Next,
			Condition: c.Condition,
			Commands:  compileCommands(ctx, c.Commands, ve),
		})
	}
	return def
}

func compileObject(id string, raw rawObject, ve *ValidationError) types.ObjectDef {
	def := types.ObjectDef{
		ID:             id,
		Type:           raw.Type,
		Attributes:     raw.Attributes,
		States:         raw.States,
		SpawnCondition: raw.SpawnCondition,
	}
	if len(raw.Behaviors) > 0 {
		def.Behaviors = map[string]types.BehaviorDef{}
		for verb, b := range raw.Behaviors {
			def.Behaviors[verb] = types.BehaviorDef{
				Condition: b.Condition,
				Response:  b.Response,
				Commands:  compileCommands(fmt.Sprintf("object %q behavior %q", id, verb), b.Commands, ve),
			}
		}
	}
	return def
}

func compileEffect(id string, raw rawEffect, ve *ValidationError) types.EffectDef {
	def := types.EffectDef{
		ID:       id,
		Duration: anyText(raw.Duration),
		TickRate: raw.TickRate,
		OnApply:  compileCommands(fmt.Sprintf("effect %q on_apply", id), raw.OnApply, ve),
		OnTick:   compileCommands(fmt.Sprintf("effect %q on_tick", id), raw.OnTick, ve),
		OnRemove: compileCommands(fmt.Sprintf("effect %q on_remove", id), raw.OnRemove, ve),
	}
	if len(raw.Modifiers) > 0 {
		def.Modifiers = map[string]string{}
		for stat, v := range raw.Modifiers {
			def.Modifiers[stat] = anyText(v)
		}
	}
	return def
}

func compileTable(id string, raw []rawTableEntry, ve *ValidationError) types.TableDef {
	def := types.TableDef{ID: id}
	for i, e := range raw {
		weight := 1.0
		if e.Weight != nil {
			weight = *e.Weight
		}
		def.Entries = append(def.Entries, types.TableEntry{
			Weight:   weight,
			Message:  e.Message,
			Item:     e.Item,
			Commands: compileCommands(fmt.Sprintf("table %q entry %d", id, i+1), e.Commands, ve),
		})
	}
	return def
}

func compileMachine(id string, raw rawMachine, ve *ValidationError) types.MachineDef {
	def := types.MachineDef{
		ID:      id,
		Initial: raw.Initial,
		States:  map[string]types.MachineStateDef{},
	}
	for name, rs := range raw.States {
		st := types.MachineStateDef{
			Continuous: compileCommands(fmt.Sprintf("machine %q state %q continuous", id, name), rs.Continuous, ve),
		}
		for i, tr := range rs.Transitions {
			st.Transitions = append(st.Transitions, types.TransitionDef{
				Condition: tr.Condition,
				Event:     tr.Event,
				To:        tr.To,
				Actions:   compileCommands(fmt.Sprintf("machine %q state %q transition %d", id, name, i+1), tr.Actions, ve),
			})
		}
		def.States[name] = st
	}
	return def
}

func compileScheduled(i int, raw rawScheduled, ve *ValidationError) types.ScheduledEventDef {
	id := raw.ID
	if id == "" {
		id = fmt.Sprintf("scheduled_%d", i+1)
	}
	chance := 1.0
	if raw.Chance != nil {
		chance = *raw.Chance
	}
	return types.ScheduledEventDef{
		ID:       id,
		Trigger:  raw.Trigger,
		Chance:   chance,
		Priority: raw.Priority,
		Actions:  compileEventActions(fmt.Sprintf("scheduled event %q", id), raw.Action, raw.Actions, ve),
		Disabled: raw.Disabled,
	}
}

func compileReactive(i int, raw rawReactive, ve *ValidationError) types.ReactiveEventDef {
	id := raw.ID
	if id == "" {
		id = fmt.Sprintf("reactive_%d", i+1)
	}
	def := types.ReactiveEventDef{
		ID:         id,
		Trigger:    raw.Trigger,
		Conditions: raw.Conditions,
		Priority:   raw.Priority,
		Actions:    compileEventActions(fmt.Sprintf("reactive event %q", id), raw.Action, raw.Actions, ve),
		Disabled:   raw.Disabled,
	}
	p, err := events.ParsePattern(raw.Trigger)
	if err != nil {
		ve.errorf("reactive event %q: %v", id, err)
	}
	def.Pattern = p
	return def
}

// compileEventActions merges the singular "action" and plural "actions"
// spellings. Strings stay raw tokens for the scheduler's built-in
// handlers; maps parse as commands.
func compileEventActions(ctx string, single any, list []any, ve *ValidationError) []types.EventAction {
	raw := list
	if single != nil {
		raw = append([]any{single}, list...)
	}
	var out []types.EventAction
	for i, r := range raw {
		if s, ok := r.(string); ok {
			if !events.Handles(s) {
				if _, err := dispatch.ParseAction(s); err != nil {
					ve.errorf("%s action %d: %v", ctx, i+1, err)
					continue
				}
			}
			out = append(out, types.EventAction{Raw: s})
			continue
		}
		cmd, err := dispatch.ParseCommand(r)
		if err != nil {
			ve.errorf("%s action %d: %v", ctx, i+1, err)
			continue
		}
		out = append(out, types.EventAction{Cmd: cmd})
	}
	return out
}

// anyText renders a field that scripts may write as either a number or a
// string ("duration: 5", "duration: 30 minutes", "strength: -2").
func anyText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
