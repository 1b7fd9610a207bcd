package loader

import (
	"strings"
	"testing"

	"storyloom/engine/state"
	"storyloom/types"
)

// validScript returns a minimal script that passes validation.
func validScript() *state.Script {
	return &state.Script{
		StartScene: "hall",
		Scenes: map[string]types.SceneDef{
			"hall": {ID: "hall", Text: "A hall."},
		},
		Objects:  map[string]types.ObjectDef{},
		Effects:  map[string]types.EffectDef{},
		Tables:   map[string]types.TableDef{},
		Machines: map[string]types.MachineDef{},
	}
}

func runValidate(sc *state.Script) *ValidationError {
	ve := &ValidationError{}
	validate(sc, ve)
	return ve
}

func TestValidate_ValidScript(t *testing.T) {
	ve := runValidate(validScript())
	if len(ve.Errors) != 0 || len(ve.Warnings) != 0 {
		t.Fatalf("errors = %v, warnings = %v", ve.Errors, ve.Warnings)
	}
}

func TestValidate_StartScene(t *testing.T) {
	sc := validScript()
	sc.StartScene = ""
	assertContains(t, runValidate(sc).Errors, "start_scene is required")

	sc.StartScene = "nowhere"
	assertContains(t, runValidate(sc).Errors, `start_scene "nowhere"`)
}

func TestValidate_DanglingChoiceTarget(t *testing.T) {
	sc := validScript()
	sc.Scenes["hall"] = types.SceneDef{
		ID:   "hall",
		Text: "A hall.",
		Choices: []types.ChoiceDef{
			{Text: "Leave", Next: "void"},
		},
	}
	assertContains(t, runValidate(sc).Errors, `undefined scene "void"`)
}

func TestValidate_ChoiceWithoutNextAllowed(t *testing.T) {
	sc := validScript()
	sc.Scenes["hall"] = types.SceneDef{
		ID:   "hall",
		Text: "A hall.",
		Choices: []types.ChoiceDef{
			{Text: "Wait", Commands: []types.Command{types.AddFlag{Flag: "waited"}}},
		},
	}
	ve := runValidate(sc)
	if len(ve.Errors) != 0 {
		t.Fatalf("errors = %v", ve.Errors)
	}
}

func TestValidate_SceneObjectRef(t *testing.T) {
	sc := validScript()
	sc.Scenes["hall"] = types.SceneDef{ID: "hall", Text: "A hall.", Objects: []string{"ghost"}}
	assertContains(t, runValidate(sc).Errors, `undefined object "ghost"`)
}

func TestValidate_CommandRefs(t *testing.T) {
	sc := validScript()
	sc.Scenes["hall"] = types.SceneDef{
		ID:   "hall",
		Text: "A hall.",
		OnEnter: []types.Command{
			types.GotoScene{Scene: "limbo"},
			types.ApplyEffect{Effect: "cursed"},
			types.RollTable{Table: "missing_loot"},
		},
	}
	ve := runValidate(sc)
	assertContains(t, ve.Errors, `undefined scene "limbo"`)
	assertContains(t, ve.Errors, `undefined effect "cursed"`)
	assertContains(t, ve.Errors, `undefined table "missing_loot"`)
}

func TestValidate_RemoveEffectWarnsOnly(t *testing.T) {
	sc := validScript()
	sc.Scenes["hall"] = types.SceneDef{
		ID:      "hall",
		Text:    "A hall.",
		OnEnter: []types.Command{types.RemoveEffect{Effect: "gone"}},
	}
	ve := runValidate(sc)
	if len(ve.Errors) != 0 {
		t.Fatalf("errors = %v, want none", ve.Errors)
	}
	assertContains(t, ve.Warnings, `undefined effect "gone"`)
}

func TestValidate_ConditionalRecurses(t *testing.T) {
	sc := validScript()
	sc.Scenes["hall"] = types.SceneDef{
		ID:   "hall",
		Text: "A hall.",
		OnEnter: []types.Command{
			types.Conditional{
				If:   "pure gibberish here",
				Then: []types.Command{types.GotoScene{Scene: "limbo"}},
			},
		},
	}
	ve := runValidate(sc)
	assertContains(t, ve.Errors, "unsupported condition")
	assertContains(t, ve.Errors, `undefined scene "limbo"`)
}

func TestValidate_BadChoiceCondition(t *testing.T) {
	sc := validScript()
	sc.Scenes["hall"] = types.SceneDef{
		ID:   "hall",
		Text: "A hall.",
		Choices: []types.ChoiceDef{
			{Text: "Mutter", Condition: "darkness is near"},
		},
	}
	assertContains(t, runValidate(sc).Errors, "unsupported condition")
}

func TestValidate_ChoiceWithoutText(t *testing.T) {
	raw := newRawScript()
	raw.StartScene = "hall"
	raw.Scenes["hall"] = rawScene{
		Text:    "A hall.",
		Choices: []rawChoice{{Next: "hall"}},
	}
	ve := &ValidationError{}
	compile(raw, ve)
	assertContains(t, ve.Errors, "has no text")
}

func TestValidate_ObjectChecks(t *testing.T) {
	sc := validScript()
	sc.Objects["door"] = types.ObjectDef{
		ID:             "door",
		SpawnCondition: "not a condition at all",
		Behaviors: map[string]types.BehaviorDef{
			"kick": {Condition: "another bad one", Commands: []types.Command{types.GotoScene{Scene: "pain"}}},
		},
	}
	ve := runValidate(sc)
	if len(ve.Errors) != 3 {
		t.Fatalf("errors = %v, want 3", ve.Errors)
	}
}

func TestValidate_EffectWarnings(t *testing.T) {
	sc := validScript()
	sc.Effects["odd"] = types.EffectDef{
		ID:       "odd",
		Duration: "until dawn",
		Modifiers: map[string]string{
			"strength": "lots",
		},
	}
	ve := runValidate(sc)
	if len(ve.Errors) != 0 {
		t.Fatalf("errors = %v, want none", ve.Errors)
	}
	assertContains(t, ve.Warnings, "no leading tick count")
	assertContains(t, ve.Warnings, "not numeric")
}

func TestValidate_EffectGoodFormsQuiet(t *testing.T) {
	sc := validScript()
	sc.Effects["ok"] = types.EffectDef{
		ID:       "ok",
		Duration: "30 minutes",
		Modifiers: map[string]string{
			"strength": "-2",
			"speed":    "*1.5",
			"luck":     "x2",
		},
	}
	ve := runValidate(sc)
	if len(ve.Warnings) != 0 {
		t.Fatalf("warnings = %v, want none", ve.Warnings)
	}
}

func TestValidate_TableChecks(t *testing.T) {
	sc := validScript()
	sc.Tables["empty"] = types.TableDef{ID: "empty"}
	sc.Tables["zero"] = types.TableDef{
		ID:      "zero",
		Entries: []types.TableEntry{{Weight: 0, Message: "never"}},
	}
	ve := runValidate(sc)
	assertContains(t, ve.Warnings, `table "empty" has no entries`)
	assertContains(t, ve.Errors, "non-positive weight")
}

func TestValidate_MachineChecks(t *testing.T) {
	sc := validScript()
	sc.Machines["weather"] = types.MachineDef{
		ID:      "weather",
		Initial: "sunny",
		States: map[string]types.MachineStateDef{
			"raining": {
				Transitions: []types.TransitionDef{
					{Condition: "time > 5", To: "flooded"},
					{To: "raining"},
				},
			},
		},
	}
	ve := runValidate(sc)
	assertContains(t, ve.Errors, `initial state "sunny"`)
	assertContains(t, ve.Errors, `undefined state "flooded"`)
	assertContains(t, ve.Warnings, "never fires")
}

func TestValidate_ScheduledChecks(t *testing.T) {
	sc := validScript()
	sc.Scheduled = []types.ScheduledEventDef{
		{ID: "wild", Trigger: "time > 1", Chance: 1.5, Priority: "urgent"},
		{ID: "idle", Chance: 1},
	}
	ve := runValidate(sc)
	assertContains(t, ve.Errors, "outside [0, 1]")
	assertContains(t, ve.Warnings, `unrecognized priority "urgent"`)
	assertContains(t, ve.Warnings, "empty trigger")
}

func TestValidate_DuplicateEventID(t *testing.T) {
	sc := validScript()
	sc.Scheduled = []types.ScheduledEventDef{
		{ID: "dawn", Trigger: "time > 1", Chance: 1},
	}
	sc.Reactive = []types.ReactiveEventDef{
		{ID: "dawn", Trigger: "flag_set:up"},
	}
	assertContains(t, runValidate(sc).Warnings, `duplicate event ID "dawn"`)
}

func TestValidate_EventActionTokens(t *testing.T) {
	sc := validScript()
	sc.Objects["wisp"] = types.ObjectDef{ID: "wisp", States: []string{"dim", "bright"}}
	sc.Scheduled = []types.ScheduledEventDef{
		{
			ID:      "haunt",
			Trigger: "time > 1",
			Chance:  1,
			Actions: []types.EventAction{
				{Raw: "spawn:wisp"},
				{Raw: "spawn:shade"},
				{Raw: "transform:wisp:bright"},
				{Raw: "transform:wisp:blinding"},
				{Raw: "broadcast:The air goes cold."},
			},
		},
	}
	ve := runValidate(sc)
	if len(ve.Errors) != 2 {
		t.Fatalf("errors = %v, want 2", ve.Errors)
	}
	assertContains(t, ve.Errors, `undefined object "shade"`)
	assertContains(t, ve.Errors, `no state "blinding"`)
}

func TestValidate_ReactiveConditions(t *testing.T) {
	sc := validScript()
	sc.Reactive = []types.ReactiveEventDef{
		{
			ID:         "echo",
			Trigger:    "player.action = shout",
			Conditions: []string{"has_flag(cave)", "words upon words"},
		},
	}
	ve := runValidate(sc)
	if len(ve.Errors) != 1 {
		t.Fatalf("errors = %v, want 1", ve.Errors)
	}
	assertContains(t, ve.Errors, "unsupported condition")
}

func TestValidate_WindowClauses(t *testing.T) {
	sc := validScript()
	sc.Scheduled = []types.ScheduledEventDef{
		{ID: "tide", Trigger: "time % 4 == 0 && time > 0", Chance: 1},
	}
	ve := runValidate(sc)
	if len(ve.Errors) != 0 {
		t.Fatalf("errors = %v, want none", ve.Errors)
	}
}

func TestValidationError_Message(t *testing.T) {
	ve := &ValidationError{}
	ve.errorf("first problem")
	ve.errorf("second problem")
	msg := ve.Error()
	if !strings.Contains(msg, "2 error(s)") {
		t.Errorf("message = %q", msg)
	}
	if !strings.Contains(msg, "first problem") || !strings.Contains(msg, "second problem") {
		t.Errorf("message = %q", msg)
	}
}

// assertContains checks that at least one string in the slice contains
// substr.
func assertContains(t *testing.T, strs []string, substr string) {
	t.Helper()
	for _, s := range strs {
		if strings.Contains(s, substr) {
			return
		}
	}
	t.Errorf("expected one of %v to contain %q", strs, substr)
}
