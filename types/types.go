// Package types defines the shared data structures for the storyloom engine:
// script definitions on one side, runtime state on the other. Apart from the
// Command union's marker methods it contains only type definitions.
package types

// Meta holds the script's descriptive header.
type Meta struct {
	Title   string
	Author  string
	Version string
	Intro   string
}

// ChoiceDef is one selectable option of a scene.
type ChoiceDef struct {
	Text      string
	Next      string // scene to move to, empty to stay
	Condition string // gates visibility, empty → always shown
	Commands  []Command
}

// SceneDef is a single story node.
type SceneDef struct {
	ID      string
	Text    string
	Choices []ChoiceDef
	OnEnter []Command // run once when the scene becomes current
	Objects []string  // object IDs present in this scene
}

// BehaviorDef is an object's scripted reaction to a verb.
type BehaviorDef struct {
	Condition string
	Response  string
	Commands  []Command
}

// ObjectDef is a world object referenced by scenes.
type ObjectDef struct {
	ID             string
	Type           string // "item", "scenery", "npc", ...
	Attributes     map[string]any
	States         []string               // declared state values; first is the default
	SpawnCondition string                 // object absent while this fails
	Behaviors      map[string]BehaviorDef // verb → reaction
}

// EffectDef is a timed status effect definition.
type EffectDef struct {
	ID        string
	Duration  string            // ticks as "5", or "30 minutes" (leading integer honored)
	TickRate  int               // ticks between periodic actions, 0 → no ticking
	Modifiers map[string]string // stat → "+N" | "-N" | "N" | "*N"
	OnApply   []Command
	OnTick    []Command
	OnRemove  []Command
}

// TableEntry is one weighted outcome of a random table.
type TableEntry struct {
	Weight   float64 // default 1
	Message  string
	Item     string // added to the inventory variable when drawn
	Commands []Command
}

// TableDef is an ordered weighted random table.
type TableDef struct {
	ID      string
	Entries []TableEntry
}

// TransitionDef is one ordered transition of a state-machine state.
type TransitionDef struct {
	Condition string // time window or evaluator expression; empty with Event set → event-only
	Event     string // fired via TransitionOnEvent
	To        string
	Actions   []Command
}

// MachineStateDef is a single state of a state machine.
type MachineStateDef struct {
	Transitions []TransitionDef
	Continuous  []Command // run every update while this state is current
}

// MachineDef is a named finite-state machine.
type MachineDef struct {
	ID      string
	Initial string
	States  map[string]MachineStateDef
}

// TriggerPattern is a parsed reactive trigger.
type TriggerPattern struct {
	Kind  string // "variable", "flag", "scene", "action", "item", "custom"
	Key   string // matched name, empty → any
	Value string // matched value, empty → any
}

// EventAction is one action of an event entry: either a raw token string
// (tried against the scheduler's handler registry first) or a parsed command.
type EventAction struct {
	Raw string
	Cmd Command
}

// ScheduledEventDef fires on a game-time window.
type ScheduledEventDef struct {
	ID       string
	Trigger  string  // "time > N", clauses joined by "&&"
	Chance   float64 // default 1.0
	Priority string  // "high", "medium", "low"
	Actions  []EventAction
	Disabled bool
}

// ReactiveEventDef fires on a matched runtime event.
type ReactiveEventDef struct {
	ID         string
	Trigger    string // original pattern text
	Pattern    TriggerPattern
	Conditions []string // all must hold
	Priority   string
	Actions    []EventAction
	Disabled   bool
}

// ParserDef is the script's free-text command vocabulary.
type ParserDef struct {
	Verbs    map[string][]string // canonical verb → aliases
	Fallback string              // response when nothing matches
}

// Intent is the parsed representation of a free-text player command.
type Intent struct {
	Verb     string
	Target   string // optional
	Indirect string // optional, after a preposition
}

// ActiveEffect is the runtime record of an applied effect. The definition
// holds the modifiers and action lists; this carries only mutable state.
type ActiveEffect struct {
	Name      string `json:"name"`
	Target    string `json:"target"`
	Duration  int    `json:"duration"` // remaining ticks, 0 = permanent
	StartTick int    `json:"start_tick"`
	LastTick  int    `json:"last_tick"` // last fired periodic tick index
}

// State is the complete mutable game state. All of it round-trips through
// the save file.
type State struct {
	Vars         map[string]any
	Flags        map[string]bool
	Effects      map[string]ActiveEffect // keyed by effect name ("name@target" off-player)
	CurrentScene string
	Turn         int
	RNGSeed      int64
}

// Event is a diagnostic or semantic record emitted during a turn.
type Event struct {
	Type string
	Data map[string]any
}

// EventRecord is one audit entry of the event scheduler.
type EventRecord struct {
	ID       string
	Kind     string // "scheduled" or "reactive"
	Turn     int
	GameTime int
}

// Result is the output of one engine operation.
type Result struct {
	Output []string
	Events []Event
	// Handled reports whether a Do input reached a choice, behavior,
	// action or reaction. Front ends use it to count dead inputs.
	Handled bool
}
