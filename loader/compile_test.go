package loader

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"storyloom/types"
)

// newTestVM creates a sandboxed Lua VM with the API registered and a
// fresh collector.
func newTestVM() (*lua.LState, *collector) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(L)
	sandbox(L)
	coll := &collector{raw: newRawScript()}
	registerAPI(L, coll)
	return L, coll
}

func TestLuaStory_Metadata(t *testing.T) {
	L, coll := newTestVM()
	defer L.Close()

	if err := L.DoString(`
		story {
			title = "Test Story",
			author = "Author",
			version = "1.0",
			intro = "Welcome.",
			start_scene = "hall",
			variables = { health = 100, name = "Rin" },
			flags = { "fresh_start" },
		}
	`); err != nil {
		t.Fatal(err)
	}

	raw := coll.raw
	if raw.Title != "Test Story" || raw.Author != "Author" || raw.Version != "1.0" {
		t.Errorf("metadata = %q/%q/%q", raw.Title, raw.Author, raw.Version)
	}
	if raw.StartScene != "hall" {
		t.Errorf("StartScene = %q", raw.StartScene)
	}
	if raw.Variables["health"] != 100 {
		t.Errorf("health = %v (%T), want int 100", raw.Variables["health"], raw.Variables["health"])
	}
	if raw.Variables["name"] != "Rin" {
		t.Errorf("name = %v", raw.Variables["name"])
	}
	if len(raw.Flags) != 1 || raw.Flags[0] != "fresh_start" {
		t.Errorf("flags = %v", raw.Flags)
	}
}

func TestLuaStory_LaterCallWins(t *testing.T) {
	L, coll := newTestVM()
	defer L.Close()

	if err := L.DoString(`
		story { title = "First", variables = { gold = 5 } }
		story { variables = { gold = 9 } }
	`); err != nil {
		t.Fatal(err)
	}

	// Second call overrides gold but leaves the title alone.
	if coll.raw.Title != "First" {
		t.Errorf("Title = %q, want First", coll.raw.Title)
	}
	if coll.raw.Variables["gold"] != 9 {
		t.Errorf("gold = %v, want 9", coll.raw.Variables["gold"])
	}
}

func TestLuaScene_Full(t *testing.T) {
	L, coll := newTestVM()
	defer L.Close()

	if err := L.DoString(`
		scene "hall" {
			text = "A grand hall.",
			on_enter = { { set = "visited = true" } },
			objects = { "statue" },
			choices = {
				{ text = "Leave", next = "yard" },
				{ text = "Pray", condition = "has_flag(devout)", commands = { { add_flag = "prayed" } } },
			},
		}
	`); err != nil {
		t.Fatal(err)
	}

	raw, ok := coll.raw.Scenes["hall"]
	if !ok {
		t.Fatal("scene 'hall' not collected")
	}
	if raw.Text != "A grand hall." {
		t.Errorf("Text = %q", raw.Text)
	}
	if len(raw.OnEnter) != 1 {
		t.Errorf("OnEnter = %d entries", len(raw.OnEnter))
	}
	if len(raw.Objects) != 1 || raw.Objects[0] != "statue" {
		t.Errorf("Objects = %v", raw.Objects)
	}
	if len(raw.Choices) != 2 {
		t.Fatalf("Choices = %d", len(raw.Choices))
	}
	if raw.Choices[0].Next != "yard" {
		t.Errorf("choice 1 next = %q", raw.Choices[0].Next)
	}
	if raw.Choices[1].Condition != "has_flag(devout)" {
		t.Errorf("choice 2 condition = %q", raw.Choices[1].Condition)
	}
	if len(raw.Choices[1].Commands) != 1 {
		t.Errorf("choice 2 commands = %d", len(raw.Choices[1].Commands))
	}
}

func TestLuaObject_BehaviorForms(t *testing.T) {
	L, coll := newTestVM()
	defer L.Close()

	if err := L.DoString(`
		object "door" {
			type = "scenery",
			states = { "closed", "open" },
			spawn_condition = "has_flag(found_door)",
			attributes = { name = "oak door", weight = 200 },
			behaviors = {
				look = "Heavy oak, iron-banded.",
				open = {
					condition = "has_item(brass_key)",
					response = "The lock turns.",
					commands = { { add_flag = "door_open" } },
				},
			},
		}
	`); err != nil {
		t.Fatal(err)
	}

	raw, ok := coll.raw.Objects["door"]
	if !ok {
		t.Fatal("object 'door' not collected")
	}
	if raw.Type != "scenery" || raw.SpawnCondition != "has_flag(found_door)" {
		t.Errorf("object = %+v", raw)
	}
	if len(raw.States) != 2 || raw.States[0] != "closed" {
		t.Errorf("States = %v", raw.States)
	}
	if raw.Attributes["weight"] != 200 {
		t.Errorf("weight = %v (%T)", raw.Attributes["weight"], raw.Attributes["weight"])
	}
	if raw.Behaviors["look"].Response != "Heavy oak, iron-banded." {
		t.Errorf("look = %+v", raw.Behaviors["look"])
	}
	open := raw.Behaviors["open"]
	if open.Condition != "has_item(brass_key)" || len(open.Commands) != 1 {
		t.Errorf("open = %+v", open)
	}
}

func TestLuaTableDef_EntryOrder(t *testing.T) {
	L, coll := newTestVM()
	defer L.Close()

	if err := L.DoString(`
		table_def "loot" {
			{ weight = 5, message = "Dust." },
			{ message = "A coin.", item = "coin" },
			{ weight = 0.5, message = "A gem.", item = "gem" },
		}
	`); err != nil {
		t.Fatal(err)
	}

	entries := coll.raw.Random.Tables["loot"]
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Weight == nil || *entries[0].Weight != 5 {
		t.Errorf("entry 1 weight = %v", entries[0].Weight)
	}
	if entries[1].Weight != nil {
		t.Errorf("entry 2 weight = %v, want nil (defaulted later)", *entries[1].Weight)
	}
	if entries[2].Weight == nil || *entries[2].Weight != 0.5 {
		t.Errorf("entry 3 weight = %v", entries[2].Weight)
	}
	if entries[1].Item != "coin" {
		t.Errorf("entry 2 item = %q", entries[1].Item)
	}
}

func TestLuaEventDefs(t *testing.T) {
	L, coll := newTestVM()
	defer L.Close()

	if err := L.DoString(`
		scheduled {
			id = "dusk",
			trigger = "time % 12 == 0",
			chance = 0.5,
			priority = "low",
			action = "broadcast:The light fails.",
		}
		reactive {
			trigger = "player.action = shout",
			conditions = { "has_flag(echo)" },
			actions = { { set = "noise += 1" } },
			disabled = true,
		}
	`); err != nil {
		t.Fatal(err)
	}

	if len(coll.raw.Events.Scheduled) != 1 {
		t.Fatalf("scheduled = %d", len(coll.raw.Events.Scheduled))
	}
	dusk := coll.raw.Events.Scheduled[0]
	if dusk.ID != "dusk" || dusk.Priority != "low" {
		t.Errorf("dusk = %+v", dusk)
	}
	if dusk.Chance == nil || *dusk.Chance != 0.5 {
		t.Errorf("chance = %v", dusk.Chance)
	}
	if dusk.Action != "broadcast:The light fails." {
		t.Errorf("action = %v", dusk.Action)
	}

	if len(coll.raw.Events.Reactive) != 1 {
		t.Fatalf("reactive = %d", len(coll.raw.Events.Reactive))
	}
	shout := coll.raw.Events.Reactive[0]
	if shout.Trigger != "player.action = shout" || !shout.Disabled {
		t.Errorf("shout = %+v", shout)
	}
	if len(shout.Conditions) != 1 || len(shout.Actions) != 1 {
		t.Errorf("shout lists = %+v", shout)
	}
}

func TestCompile_SceneTextFallback(t *testing.T) {
	raw := newRawScript()
	raw.StartScene = "attic"
	raw.Scenes["attic"] = rawScene{Description: "Dust and rafters."}

	ve := &ValidationError{}
	sc := compile(raw, ve)
	if len(ve.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", ve.Errors)
	}
	if sc.Scenes["attic"].Text != "Dust and rafters." {
		t.Errorf("Text = %q, want description fallback", sc.Scenes["attic"].Text)
	}
}

func TestCompile_EventDefaults(t *testing.T) {
	raw := newRawScript()
	raw.StartScene = "attic"
	raw.Scenes["attic"] = rawScene{Text: "Dust."}
	raw.Events.Scheduled = append(raw.Events.Scheduled, rawScheduled{
		Trigger: "time > 3",
		Action:  "log:dusk settles",
	})

	ve := &ValidationError{}
	sc := compile(raw, ve)
	if len(ve.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", ve.Errors)
	}
	ev := sc.Scheduled[0]
	if ev.ID != "scheduled_1" {
		t.Errorf("auto ID = %q, want scheduled_1", ev.ID)
	}
	if ev.Chance != 1.0 {
		t.Errorf("default chance = %v, want 1.0", ev.Chance)
	}
}

func TestCompile_EventActionForms(t *testing.T) {
	raw := newRawScript()
	raw.StartScene = "attic"
	raw.Scenes["attic"] = rawScene{Text: "Dust."}
	raw.Events.Scheduled = append(raw.Events.Scheduled, rawScheduled{
		ID:      "mix",
		Trigger: "time > 1",
		Action:  "broadcast:first",
		Actions: []any{
			map[string]any{"add_flag": "woken"},
			"log:second",
		},
	})

	ve := &ValidationError{}
	sc := compile(raw, ve)
	if len(ve.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", ve.Errors)
	}
	acts := sc.Scheduled[0].Actions
	if len(acts) != 3 {
		t.Fatalf("actions = %d, want 3", len(acts))
	}
	// Singular action runs before the plural list.
	if acts[0].Raw != "broadcast:first" {
		t.Errorf("action 1 = %+v", acts[0])
	}
	if _, ok := acts[1].Cmd.(types.AddFlag); !ok {
		t.Errorf("action 2 = %+v, want AddFlag", acts[1])
	}
	if acts[2].Raw != "log:second" {
		t.Errorf("action 3 = %+v", acts[2])
	}
}

func TestCompile_BadEventAction(t *testing.T) {
	raw := newRawScript()
	raw.StartScene = "attic"
	raw.Scenes["attic"] = rawScene{Text: "Dust."}
	raw.Events.Scheduled = append(raw.Events.Scheduled, rawScheduled{
		ID:      "broken",
		Trigger: "time > 1",
		Action:  "teleport:somewhere",
	})

	ve := &ValidationError{}
	compile(raw, ve)
	assertContains(t, ve.Errors, "unknown action verb")
}

func TestCompile_BadReactiveTrigger(t *testing.T) {
	raw := newRawScript()
	raw.StartScene = "attic"
	raw.Scenes["attic"] = rawScene{Text: "Dust."}
	raw.Events.Reactive = append(raw.Events.Reactive, rawReactive{
		ID:      "odd",
		Trigger: "lunar_phase:full",
	})

	ve := &ValidationError{}
	compile(raw, ve)
	assertContains(t, ve.Errors, "unknown trigger pattern")
}

func TestCompile_CommandErrorsCarryContext(t *testing.T) {
	raw := newRawScript()
	raw.StartScene = "attic"
	raw.Scenes["attic"] = rawScene{
		Text:    "Dust.",
		OnEnter: []any{map[string]any{"detonate": "all"}},
	}

	ve := &ValidationError{}
	compile(raw, ve)
	assertContains(t, ve.Errors, `scene "attic" on_enter`)
}

func TestAnyText(t *testing.T) {
	if got := anyText(nil); got != "" {
		t.Errorf("nil = %q", got)
	}
	if got := anyText("30 minutes"); got != "30 minutes" {
		t.Errorf("string = %q", got)
	}
	if got := anyText(5); got != "5" {
		t.Errorf("int = %q", got)
	}
	if got := anyText(-2.5); got != "-2.5" {
		t.Errorf("float = %q", got)
	}
}
