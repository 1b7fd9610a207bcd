package events

import (
	"strings"
	"testing"

	"storyloom/engine/dispatch"
	"storyloom/engine/expr"
	"storyloom/engine/state"
	"storyloom/types"
)

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func eventsFixture() (*types.State, *Engine, *dispatch.Dispatcher) {
	sc := &state.Script{
		StartScene: "camp",
		Variables:  map[string]any{"health": 100},
		Scenes: map[string]types.SceneDef{
			"camp":  {ID: "camp"},
			"ridge": {ID: "ridge"},
		},
		Objects: map[string]types.ObjectDef{
			"wolf": {ID: "wolf", States: []string{"prowling", "fled"}},
		},
		Scheduled: []types.ScheduledEventDef{
			{
				ID:       "dusk",
				Trigger:  "time == 3",
				Priority: "high",
				Actions:  []types.EventAction{{Raw: "broadcast:Dusk settles over the camp."}},
			},
			{
				ID:      "wolves",
				Trigger: "time >= 5 && time <= 6",
				Actions: []types.EventAction{{Raw: "spawn:wolf"}},
			},
			{
				ID:       "quiet",
				Trigger:  "time == 3",
				Disabled: true,
				Actions:  []types.EventAction{{Raw: "broadcast:never printed"}},
			},
		},
		Reactive: []types.ReactiveEventDef{
			{
				ID:         "low_health",
				Pattern:    types.TriggerPattern{Kind: "variable", Key: "health"},
				Conditions: []string{"health < 20"},
				Actions:    []types.EventAction{{Raw: "broadcast:Your vision blurs."}},
			},
			{
				ID:      "brave_set",
				Pattern: types.TriggerPattern{Kind: "flag", Key: "brave", Value: "true"},
				Actions: []types.EventAction{{Cmd: types.Assign{Name: "morale", Op: "=", Value: "5"}}},
			},
		},
	}
	st := state.NewState(sc)
	ev := expr.New(st, sc)
	e := New(st, sc, ev)
	d := dispatch.New(st, sc, ev)
	e.Runner = d
	d.React = e.React
	return st, e, d
}

func TestEvalWindow(t *testing.T) {
	tests := []struct {
		name    string
		trigger string
		now     int
		want    bool
	}{
		{"exact time hit", "time == 3", 3, true},
		{"exact time miss", "time == 3", 2, false},
		{"window inside", "time >= 5 && time <= 6", 5, true},
		{"window upper edge", "time >= 5 && time <= 6", 6, true},
		{"window before", "time >= 5 && time <= 6", 4, false},
		{"window after", "time >= 5 && time <= 6", 7, false},
		{"periodic hit", "time % 2 == 0", 4, true},
		{"periodic miss", "time % 2 == 0", 5, false},
		{"empty never fires", "", 9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalWindow(tt.trigger, tt.now, nil); got != tt.want {
				t.Errorf("EvalWindow(%q, %d) = %v, want %v", tt.trigger, tt.now, got, tt.want)
			}
		})
	}
}

func TestEvalWindow_FallbackClause(t *testing.T) {
	var seen []string
	fallback := func(cond string) bool {
		seen = append(seen, cond)
		return cond == "has_flag(ready)"
	}

	if !EvalWindow("time > 1 && has_flag(ready)", 5, fallback) {
		t.Error("fallback clause should pass through the evaluator")
	}
	if len(seen) != 1 || seen[0] != "has_flag(ready)" {
		t.Errorf("fallback saw %v", seen)
	}
	if EvalWindow("time > 1 && has_flag(lost)", 5, fallback) {
		t.Error("a failing fallback clause fails the window")
	}
}

func TestCheckScheduled_FiresInsideWindow(t *testing.T) {
	_, e, _ := eventsFixture()

	out, evs := e.CheckScheduled(3)
	if len(out) != 1 || out[0] != "Dusk settles over the camp." {
		t.Errorf("output = %v", out)
	}
	if len(evs) != 1 || evs[0].Type != "event_fired" || evs[0].Data["event"] != "dusk" {
		t.Errorf("events = %v", evs)
	}
	hist := e.History()
	if len(hist) != 1 || hist[0].ID != "dusk" || hist[0].Kind != "scheduled" {
		t.Errorf("history = %v", hist)
	}

	if out, _ := e.CheckScheduled(4); len(out) != 0 {
		t.Errorf("nothing should fire at time 4, got %v", out)
	}
}

func TestCheckScheduled_DisabledDefinitionStaysQuiet(t *testing.T) {
	_, e, _ := eventsFixture()

	out, _ := e.CheckScheduled(3)
	for _, line := range out {
		if strings.Contains(line, "never printed") {
			t.Error("disabled event fired")
		}
	}
}

func TestCheckScheduled_PriorityOrdersOutput(t *testing.T) {
	sc := &state.Script{
		StartScene: "camp",
		Scenes:     map[string]types.SceneDef{"camp": {ID: "camp"}},
		Scheduled: []types.ScheduledEventDef{
			{ID: "c", Trigger: "time == 1", Priority: "low", Actions: []types.EventAction{{Raw: "broadcast:third"}}},
			{ID: "a", Trigger: "time == 1", Priority: "high", Actions: []types.EventAction{{Raw: "broadcast:first"}}},
			{ID: "b", Trigger: "time == 1", Actions: []types.EventAction{{Raw: "broadcast:second"}}},
		},
	}
	st := state.NewState(sc)
	e := New(st, sc, expr.New(st, sc))

	out, _ := e.CheckScheduled(1)
	want := []string{"first", "second", "third"}
	if len(out) != 3 {
		t.Fatalf("output = %v", out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %q, want %q", i, out[i], want[i])
		}
	}
}

func TestCheckScheduled_ChanceGate(t *testing.T) {
	sc := &state.Script{
		StartScene: "camp",
		Scenes:     map[string]types.SceneDef{"camp": {ID: "camp"}},
		Scheduled: []types.ScheduledEventDef{
			{ID: "gusts", Trigger: "time > 0", Chance: 0.5, Actions: []types.EventAction{{Raw: "broadcast:The wind shifts."}}},
		},
	}
	st := state.NewState(sc)
	e := New(st, sc, expr.New(st, sc))

	e.Rand = fixedSource(0.4)
	if out, _ := e.CheckScheduled(1); len(out) != 1 {
		t.Errorf("draw below chance should fire, got %v", out)
	}
	e.Rand = fixedSource(0.6)
	if out, _ := e.CheckScheduled(2); len(out) != 0 {
		t.Errorf("draw above chance should not fire, got %v", out)
	}
}

func TestCheckScheduled_SpawnedObjectBecomesPresent(t *testing.T) {
	st, e, _ := eventsFixture()
	ev := expr.New(st, e.Script)

	if ev.EvalCondition("wolf.present") {
		t.Fatal("wolf should start absent")
	}
	_, evs := e.CheckScheduled(5)
	found := false
	for _, rec := range evs {
		if rec.Type == "object_spawned" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected object_spawned in %v", evs)
	}
	if !ev.EvalCondition("wolf.present") {
		t.Error("spawned object should be present")
	}
	if !ev.EvalCondition("wolf.prowling") {
		t.Error("spawned object starts in its first state")
	}

	// Spawning again is a no-op.
	e.CheckScheduled(6)
	if n := len(state.SceneObjects(st, e.Script, "camp")); n != 1 {
		t.Errorf("wolf should be listed once, got %d objects", n)
	}
}

func TestReact_PatternKeyAndConditions(t *testing.T) {
	st, e, _ := eventsFixture()

	state.SetVar(st, "health", 90)
	if out, _ := e.React("variable", map[string]any{"name": "health", "value": 90}); len(out) != 0 {
		t.Errorf("condition health < 20 should gate the reaction, got %v", out)
	}

	state.SetVar(st, "health", 10)
	out, _ := e.React("variable", map[string]any{"name": "health", "value": 10})
	if len(out) != 1 || out[0] != "Your vision blurs." {
		t.Errorf("output = %v", out)
	}

	if out, _ := e.React("variable", map[string]any{"name": "gold", "value": 0}); len(out) != 0 {
		t.Errorf("key mismatch should not fire, got %v", out)
	}
}

func TestReact_RunsParsedCommands(t *testing.T) {
	st, e, _ := eventsFixture()

	e.React("flag", map[string]any{"name": "brave", "value": true})
	if st.Vars["morale"] != 5 {
		t.Errorf("morale = %v, want 5", st.Vars["morale"])
	}

	// Value mismatch: clearing the flag must not fire the same event.
	state.SetVar(st, "morale", 0)
	e.React("flag", map[string]any{"name": "brave", "value": false})
	if st.Vars["morale"] != 0 {
		t.Error("flag_set pattern fired on a cleared flag")
	}
}

func TestReact_CascadeIsDepthLimited(t *testing.T) {
	sc := &state.Script{
		StartScene: "camp",
		Variables:  map[string]any{"x": 0},
		Scenes:     map[string]types.SceneDef{"camp": {ID: "camp"}},
		Reactive: []types.ReactiveEventDef{
			{
				ID:      "echo",
				Pattern: types.TriggerPattern{Kind: "variable", Key: "x"},
				Actions: []types.EventAction{{Cmd: types.Assign{Name: "x", Op: "+=", Value: "1"}}},
			},
		},
	}
	st := state.NewState(sc)
	ev := expr.New(st, sc)
	e := New(st, sc, ev)
	d := dispatch.New(st, sc, ev)
	e.Runner = d
	d.React = e.React
	var warns []string
	e.Warn = func(msg string) { warns = append(warns, msg) }

	d.Dispatch([]types.Command{types.Assign{Name: "x", Op: "=", Value: "0"}})

	if st.Vars["x"] != maxReactDepth {
		t.Errorf("x = %v, want the cascade cut off at %d", st.Vars["x"], maxReactDepth)
	}
	if len(warns) != 1 {
		t.Errorf("expected one cascade warning, got %d", len(warns))
	}
}

func TestEnableDisableRemove(t *testing.T) {
	_, e, _ := eventsFixture()

	if !e.Disable("dusk") {
		t.Fatal("dusk is a known event")
	}
	if out, _ := e.CheckScheduled(3); len(out) != 0 {
		t.Errorf("disabled event fired: %v", out)
	}

	// A definition-disabled event can be enabled at runtime.
	if !e.Enable("quiet") {
		t.Fatal("quiet is a known event")
	}
	out, _ := e.CheckScheduled(3)
	if len(out) != 1 || out[0] != "never printed" {
		t.Errorf("enabled event should fire, got %v", out)
	}

	// Removal is final: enabling afterwards does nothing.
	e.Remove("quiet")
	e.Enable("quiet")
	if out, _ := e.CheckScheduled(3); len(out) != 0 {
		t.Errorf("removed event fired: %v", out)
	}

	if e.Disable("nonexistent") {
		t.Error("unknown ids should report false")
	}
}

func TestHistory_Capped(t *testing.T) {
	_, e, _ := eventsFixture()

	for i := 0; i < historyCap+20; i++ {
		e.record("dusk", "scheduled")
	}
	if len(e.History()) != historyCap {
		t.Errorf("history length = %d, want %d", len(e.History()), historyCap)
	}
}

func TestHandleToken_Transform(t *testing.T) {
	st, e, _ := eventsFixture()
	var warns []string
	e.Warn = func(msg string) { warns = append(warns, msg) }

	_, evs := e.handleToken("transform:wolf:fled")
	if st.Vars["wolf_state"] != "fled" {
		t.Errorf("wolf_state = %v, want fled", st.Vars["wolf_state"])
	}
	if len(evs) == 0 || evs[0].Type != "object_transformed" {
		t.Errorf("events = %v", evs)
	}

	e.handleToken("transform:wolf:sleeping")
	if len(warns) != 1 {
		t.Errorf("unknown state should warn, got %v", warns)
	}
	if st.Vars["wolf_state"] != "fled" {
		t.Error("failed transform must not change state")
	}
}

func TestHandleToken_FallsBackToCommandParser(t *testing.T) {
	st, e, _ := eventsFixture()

	e.handleToken("add_flag:storm_coming")
	if !state.HasFlag(st, "storm_coming") {
		t.Error("unrecognized tokens should try the command parser")
	}

	var warns []string
	e.Warn = func(msg string) { warns = append(warns, msg) }
	e.handleToken("summon:demon")
	if len(warns) != 1 {
		t.Errorf("unparseable token should warn, got %v", warns)
	}
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		trigger string
		want    types.TriggerPattern
	}{
		{"variable_change:health", types.TriggerPattern{Kind: "variable", Key: "health"}},
		{"flag_set:brave", types.TriggerPattern{Kind: "flag", Key: "brave", Value: "true"}},
		{"flag_cleared:brave", types.TriggerPattern{Kind: "flag", Key: "brave", Value: "false"}},
		{"scene.change", types.TriggerPattern{Kind: "scene"}},
		{"scene.change:ridge", types.TriggerPattern{Kind: "scene", Key: "ridge"}},
		{"player.action", types.TriggerPattern{Kind: "action"}},
		{"player.action:search", types.TriggerPattern{Kind: "action", Key: "search"}},
		{"item_gained:gem", types.TriggerPattern{Kind: "item", Key: "gem", Value: "gained"}},
		{"custom:machine_transition", types.TriggerPattern{Kind: "custom", Key: "machine_transition"}},
		{"player.action = shout", types.TriggerPattern{Kind: "action", Key: "shout"}},
		{"variable.fear = 3", types.TriggerPattern{Kind: "variable", Key: "fear", Value: "3"}},
		{"world.door_open = true", types.TriggerPattern{Kind: "variable", Key: "door_open", Value: "true"}},
		{"custom.omen", types.TriggerPattern{Kind: "custom", Key: "omen"}},
	}
	for _, tt := range tests {
		got, err := ParsePattern(tt.trigger)
		if err != nil {
			t.Errorf("ParsePattern(%q): %v", tt.trigger, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePattern(%q) = %+v, want %+v", tt.trigger, got, tt.want)
		}
	}

	if _, err := ParsePattern("lunar_phase:full"); err == nil {
		t.Error("unknown patterns must not parse")
	}
}

func TestHandles(t *testing.T) {
	for _, raw := range []string{"spawn:wolf", "transform:door:open", "broadcast:hi", "log:note"} {
		if !Handles(raw) {
			t.Errorf("Handles(%q) = false", raw)
		}
	}
	if Handles("give_gold:5") {
		t.Error("unknown verbs are not built-in handlers")
	}
}
