// Package state holds the immutable script definitions and the helpers that
// read and mutate the runtime store. The store is the only mutable surface
// of the engine; every other package goes through these functions.
package state

import (
	"fmt"
	"strings"

	"storyloom/types"
)

// Script holds the immutable definitions compiled by the loader. Lookup
// methods return a copy and an ok flag; nothing here is mutated after load.
type Script struct {
	Meta       types.Meta
	StartScene string
	Variables  map[string]any // initial variable values
	Flags      []string       // flags set at start
	Scenes     map[string]types.SceneDef
	Objects    map[string]types.ObjectDef
	Effects    map[string]types.EffectDef
	Tables     map[string]types.TableDef
	Machines   map[string]types.MachineDef
	Scheduled  []types.ScheduledEventDef
	Reactive   []types.ReactiveEventDef
	Parser     types.ParserDef
}

// Scene looks up a scene definition.
func (sc *Script) Scene(id string) (types.SceneDef, bool) {
	s, ok := sc.Scenes[id]
	return s, ok
}

// Object looks up an object definition.
func (sc *Script) Object(id string) (types.ObjectDef, bool) {
	o, ok := sc.Objects[id]
	return o, ok
}

// Effect looks up an effect definition.
func (sc *Script) Effect(id string) (types.EffectDef, bool) {
	e, ok := sc.Effects[id]
	return e, ok
}

// Table looks up a random table definition.
func (sc *Script) Table(id string) (types.TableDef, bool) {
	t, ok := sc.Tables[id]
	return t, ok
}

// Machine looks up a state machine definition.
func (sc *Script) Machine(id string) (types.MachineDef, bool) {
	m, ok := sc.Machines[id]
	return m, ok
}

// NewState creates a fresh runtime state from the script's initial section.
// Initial variables are deep-copied so script definitions stay immutable.
func NewState(sc *Script) *types.State {
	s := &types.State{
		Vars:         map[string]any{},
		Flags:        map[string]bool{},
		Effects:      map[string]types.ActiveEffect{},
		CurrentScene: sc.StartScene,
	}
	for k, v := range sc.Variables {
		s.Vars[k] = deepCopy(v)
	}
	for _, f := range sc.Flags {
		s.Flags[f] = true
	}
	if _, ok := s.Vars["game_time"]; !ok {
		s.Vars["game_time"] = 0
	}
	return s
}

// deepCopy clones nested maps and slices so runtime mutation cannot reach
// back into the script definitions.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		l := make([]any, len(val))
		for i, e := range val {
			l[i] = deepCopy(e)
		}
		return l
	case []string:
		l := make([]string, len(val))
		copy(l, val)
		return l
	default:
		return v
	}
}

// GetVar returns a variable and whether it exists.
func GetVar(s *types.State, name string) (any, bool) {
	v, ok := s.Vars[name]
	return v, ok
}

// SetVar writes a variable, overwriting any previous value.
func SetVar(s *types.State, name string, v any) {
	s.Vars[name] = v
}

// NumVar returns a variable coerced to float64. Missing or non-numeric
// variables return (0, false).
func NumVar(s *types.State, name string) (float64, bool) {
	v, ok := s.Vars[name]
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// ToFloat coerces ints, floats and numeric strings to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// SetFlag sets a flag. Setting an already-set flag is a no-op.
func SetFlag(s *types.State, name string) {
	s.Flags[name] = true
}

// ClearFlag removes a flag. Clearing an unset flag is a no-op.
func ClearFlag(s *types.State, name string) {
	delete(s.Flags, name)
}

// HasFlag returns whether a flag is set.
func HasFlag(s *types.State, name string) bool {
	return s.Flags[name]
}

// HasItem returns true if the inventory variable (a list) contains the item.
func HasItem(s *types.State, item string) bool {
	for _, have := range Inventory(s) {
		if have == item {
			return true
		}
	}
	return false
}

// Inventory returns the inventory variable as a string slice. The loader
// produces []any; saves round-trip through JSON the same way.
func Inventory(s *types.State) []string {
	v, ok := s.Vars["inventory"]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		items := make([]string, 0, len(list))
		for _, e := range list {
			if str, ok := e.(string); ok {
				items = append(items, str)
			}
		}
		return items
	}
	return nil
}

// AddItem appends an item to the inventory variable, creating it if needed.
func AddItem(s *types.State, item string) {
	items := Inventory(s)
	items = append(items, item)
	s.Vars["inventory"] = items
}

// RemoveItem removes the first occurrence of an item from the inventory.
// Returns whether anything was removed.
func RemoveItem(s *types.State, item string) bool {
	items := Inventory(s)
	for i, have := range items {
		if have == item {
			s.Vars["inventory"] = append(items[:i:i], items[i+1:]...)
			return true
		}
	}
	return false
}

// GameTime returns the game_time variable as an int (0 when unset).
func GameTime(s *types.State) int {
	f, ok := NumVar(s, "game_time")
	if !ok {
		return 0
	}
	return int(f)
}

// LookupPath resolves a dotted path through nested variable maps, e.g.
// "player.health" reads Vars["player"]["health"].
func LookupPath(s *types.State, parts []string) (any, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	cur, ok := s.Vars[parts[0]]
	if !ok {
		return nil, false
	}
	for _, p := range parts[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SceneObjects returns the object IDs present in a scene: the declared list
// plus anything runtime code appended to the spawned_objects variable.
// Duplicates are dropped, declaration order kept.
func SceneObjects(s *types.State, sc *Script, sceneID string) []string {
	var ids []string
	seen := map[string]bool{}
	if scene, ok := sc.Scenes[sceneID]; ok {
		for _, id := range scene.Objects {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if v, ok := s.Vars["spawned_objects"]; ok {
		switch list := v.(type) {
		case []string:
			for _, id := range list {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		case []any:
			for _, e := range list {
				if id, ok := e.(string); ok && !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	return ids
}

// ObjectState returns an object's current state value: the "<id>_state"
// variable when set, otherwise the first declared state.
func ObjectState(s *types.State, sc *Script, id string) (string, bool) {
	if v, ok := s.Vars[id+"_state"]; ok {
		if str, ok := v.(string); ok {
			return str, true
		}
	}
	obj, ok := sc.Objects[id]
	if !ok || len(obj.States) == 0 {
		return "", false
	}
	return obj.States[0], true
}
