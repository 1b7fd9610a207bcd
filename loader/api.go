package loader

import (
	lua "github.com/yuin/gopher-lua"
)

// registerAPI registers the script constructors as Lua globals. Each
// call converts its table to the raw document form immediately, so the
// VM can be discarded once the files have run.
func registerAPI(L *lua.LState, coll *collector) {
	// story { title = "...", start_scene = "...", variables = {...} }
	L.SetGlobal("story", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		luaStory(coll.raw, tbl)
		return 0
	}))

	// scene "id" { ... } is curried: scene("id") returns a function that
	// takes the body table. Same shape for the other named sections.
	L.SetGlobal("scene", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			coll.raw.Scenes[id] = luaScene(L.CheckTable(1))
			return 0
		}))
		return 1
	}))

	// object "id" { ... }
	L.SetGlobal("object", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			coll.raw.Objects[id] = luaObject(L.CheckTable(1))
			return 0
		}))
		return 1
	}))

	// effect "id" { ... }
	L.SetGlobal("effect", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			coll.raw.Effects[id] = luaEffect(L.CheckTable(1))
			return 0
		}))
		return 1
	}))

	// table_def "id" { { weight = 2, message = "..." }, ... }
	L.SetGlobal("table_def", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			coll.raw.Random.Tables[id] = luaTableDef(L.CheckTable(1))
			return 0
		}))
		return 1
	}))

	// machine "id" { initial = "...", states = {...} }
	L.SetGlobal("machine", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			coll.raw.Machines[id] = luaMachine(L.CheckTable(1))
			return 0
		}))
		return 1
	}))

	// scheduled { trigger = "time % 10 == 0", actions = {...} }
	L.SetGlobal("scheduled", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.raw.Events.Scheduled = append(coll.raw.Events.Scheduled, luaScheduled(tbl))
		return 0
	}))

	// reactive { trigger = "player.action = shout", actions = {...} }
	L.SetGlobal("reactive", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.raw.Events.Reactive = append(coll.raw.Events.Reactive, luaReactive(tbl))
		return 0
	}))

	// parser { verbs = { look = {"look", "examine"} }, fallback = "..." }
	L.SetGlobal("parser", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		luaParser(coll.raw, tbl)
		return 0
	}))
}

// luaStory merges story metadata into the document. Later calls win on
// scalars, merge variables entry-wise and append flags, matching the
// YAML include rules.
func luaStory(raw *rawScript, tbl *lua.LTable) {
	if s := getString(tbl, "title"); s != "" {
		raw.Title = s
	}
	if s := getString(tbl, "author"); s != "" {
		raw.Author = s
	}
	if s := getString(tbl, "version"); s != "" {
		raw.Version = s
	}
	if s := getString(tbl, "intro"); s != "" {
		raw.Intro = s
	}
	if s := getString(tbl, "start_scene"); s != "" {
		raw.StartScene = s
	}
	if vars := tableToAnyMap(getTable(tbl, "variables")); vars != nil {
		if raw.Variables == nil {
			raw.Variables = map[string]any{}
		}
		for k, v := range vars {
			raw.Variables[k] = v
		}
	}
	raw.Flags = append(raw.Flags, toStringList(tbl.RawGetString("flags"))...)
}

func luaScene(tbl *lua.LTable) rawScene {
	s := rawScene{
		Text:        getString(tbl, "text"),
		Description: getString(tbl, "description"),
		OnEnter:     toAnyList(tbl.RawGetString("on_enter")),
		Objects:     toStringList(tbl.RawGetString("objects")),
	}
	eachArray(getTable(tbl, "choices"), func(_ int, v lua.LValue) {
		if ct, ok := v.(*lua.LTable); ok {
			s.Choices = append(s.Choices, rawChoice{
				Text:      getString(ct, "text"),
				Next:      getString(ct, "next"),
				Condition: getString(ct, "condition"),
				Commands:  toAnyList(ct.RawGetString("commands")),
			})
		}
	})
	return s
}

func luaObject(tbl *lua.LTable) rawObject {
	o := rawObject{
		Type:           getString(tbl, "type"),
		Attributes:     tableToAnyMap(getTable(tbl, "attributes")),
		States:         toStringList(tbl.RawGetString("states")),
		SpawnCondition: getString(tbl, "spawn_condition"),
	}
	if bt := getTable(tbl, "behaviors"); bt != nil {
		o.Behaviors = map[string]rawBehavior{}
		bt.ForEach(func(k, v lua.LValue) {
			verb, ok := k.(lua.LString)
			if !ok {
				return
			}
			switch val := v.(type) {
			case lua.LString:
				// Bare string is response-only shorthand.
				o.Behaviors[string(verb)] = rawBehavior{Response: string(val)}
			case *lua.LTable:
				o.Behaviors[string(verb)] = rawBehavior{
					Condition: getString(val, "condition"),
					Response:  getString(val, "response"),
					Commands:  toAnyList(val.RawGetString("commands")),
				}
			}
		})
	}
	return o
}

func luaEffect(tbl *lua.LTable) rawEffect {
	return rawEffect{
		Duration:  toGoValue(tbl.RawGetString("duration")),
		TickRate:  getInt(tbl, "tick_rate"),
		Modifiers: tableToAnyMap(getTable(tbl, "modifiers")),
		OnApply:   toAnyList(tbl.RawGetString("on_apply")),
		OnTick:    toAnyList(tbl.RawGetString("on_tick")),
		OnRemove:  toAnyList(tbl.RawGetString("on_remove")),
	}
}

func luaTableDef(tbl *lua.LTable) []rawTableEntry {
	var entries []rawTableEntry
	eachArray(tbl, func(_ int, v lua.LValue) {
		et, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		e := rawTableEntry{
			Message:  getString(et, "message"),
			Item:     getString(et, "item"),
			Commands: toAnyList(et.RawGetString("commands")),
		}
		if n, ok := et.RawGetString("weight").(lua.LNumber); ok {
			w := float64(n)
			e.Weight = &w
		}
		entries = append(entries, e)
	})
	return entries
}

func luaMachine(tbl *lua.LTable) rawMachine {
	m := rawMachine{
		Initial: getString(tbl, "initial"),
		States:  map[string]rawMachineState{},
	}
	if st := getTable(tbl, "states"); st != nil {
		st.ForEach(func(k, v lua.LValue) {
			name, ok := k.(lua.LString)
			if !ok {
				return
			}
			body, ok := v.(*lua.LTable)
			if !ok {
				return
			}
			ms := rawMachineState{
				Continuous: toAnyList(body.RawGetString("continuous")),
			}
			eachArray(getTable(body, "transitions"), func(_ int, tv lua.LValue) {
				if tt, ok := tv.(*lua.LTable); ok {
					ms.Transitions = append(ms.Transitions, rawTransition{
						Condition: getString(tt, "condition"),
						Event:     getString(tt, "event"),
						To:        getString(tt, "to"),
						Actions:   toAnyList(tt.RawGetString("actions")),
					})
				}
			})
			m.States[string(name)] = ms
		})
	}
	return m
}

func luaScheduled(tbl *lua.LTable) rawScheduled {
	ev := rawScheduled{
		ID:       getString(tbl, "id"),
		Trigger:  getString(tbl, "trigger"),
		Priority: getString(tbl, "priority"),
		Action:   toGoValue(tbl.RawGetString("action")),
		Actions:  toAnyList(tbl.RawGetString("actions")),
		Disabled: getBool(tbl, "disabled", false),
	}
	if n, ok := tbl.RawGetString("chance").(lua.LNumber); ok {
		c := float64(n)
		ev.Chance = &c
	}
	return ev
}

func luaReactive(tbl *lua.LTable) rawReactive {
	return rawReactive{
		ID:         getString(tbl, "id"),
		Trigger:    getString(tbl, "trigger"),
		Conditions: toStringList(tbl.RawGetString("conditions")),
		Priority:   getString(tbl, "priority"),
		Action:     toGoValue(tbl.RawGetString("action")),
		Actions:    toAnyList(tbl.RawGetString("actions")),
		Disabled:   getBool(tbl, "disabled", false),
	}
}

func luaParser(raw *rawScript, tbl *lua.LTable) {
	if vt := getTable(tbl, "verbs"); vt != nil {
		if raw.Parser.Verbs == nil {
			raw.Parser.Verbs = map[string][]string{}
		}
		vt.ForEach(func(k, v lua.LValue) {
			if verb, ok := k.(lua.LString); ok {
				raw.Parser.Verbs[string(verb)] = toStringList(v)
			}
		})
	}
	if s := getString(tbl, "fallback"); s != "" {
		raw.Parser.Fallback = s
	}
}

// getString returns a string field from a Lua table, or "" if missing.
func getString(tbl *lua.LTable, key string) string {
	v := tbl.RawGetString(key)
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

// getBool returns a bool field from a Lua table, or the default if missing.
func getBool(tbl *lua.LTable, key string, def bool) bool {
	v := tbl.RawGetString(key)
	if b, ok := v.(lua.LBool); ok {
		return bool(b)
	}
	return def
}

// getNumber returns a numeric field from a Lua table, or 0 if missing.
func getNumber(tbl *lua.LTable, key string) float64 {
	v := tbl.RawGetString(key)
	if n, ok := v.(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

// getInt returns an int field from a Lua table, or 0 if missing.
func getInt(tbl *lua.LTable, key string) int {
	return int(getNumber(tbl, key))
}

// getTable returns a table field from a Lua table, or nil if missing.
func getTable(tbl *lua.LTable, key string) *lua.LTable {
	v := tbl.RawGetString(key)
	if t, ok := v.(*lua.LTable); ok {
		return t
	}
	return nil
}

// toGoValue converts a Lua value to a Go value recursively.
func toGoValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int(f)) {
			return int(f)
		}
		return f
	case *lua.LNilType:
		return nil
	case lua.LString:
		return string(val)
	case *lua.LTable:
		// Sequential integer keys from 1 mean an array.
		maxN := val.MaxN()
		if maxN > 0 {
			arr := make([]any, 0, maxN)
			for i := 1; i <= maxN; i++ {
				arr = append(arr, toGoValue(val.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		val.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = toGoValue(v)
			}
		})
		return m
	default:
		return nil
	}
}

// tableToAnyMap converts a Lua table's string keys to a Go map.
func tableToAnyMap(tbl *lua.LTable) map[string]any {
	if tbl == nil {
		return nil
	}
	m := map[string]any{}
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			m[string(ks)] = toGoValue(v)
		}
	})
	return m
}

// toStringList reads an array of strings; non-string entries are dropped.
func toStringList(v lua.LValue) []string {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	eachArray(tbl, func(_ int, e lua.LValue) {
		if s, ok := e.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out
}

// toAnyList reads an array of values. A lone map counts as a one-entry
// list so `on_enter = {set = "x = 1"}` does what it looks like.
func toAnyList(v lua.LValue) []any {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	switch converted := toGoValue(tbl).(type) {
	case []any:
		return converted
	case map[string]any:
		if len(converted) > 0 {
			return []any{converted}
		}
	}
	return nil
}

// eachArray visits the 1..MaxN entries of a table in order.
func eachArray(tbl *lua.LTable, fn func(i int, v lua.LValue)) {
	if tbl == nil {
		return
	}
	for i := 1; i <= tbl.MaxN(); i++ {
		fn(i, tbl.RawGetInt(i))
	}
}
