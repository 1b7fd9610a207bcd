package types

// Command is one executable instruction of the script DSL. The variant set
// is closed: the loader rejects unknown tags at parse time and the
// dispatcher matches exhaustively. Commands are immutable once parsed;
// execution mutates only the state store.
type Command interface {
	isCommand()
}

// Assign writes or increments a variable ("name = value", "name += value").
type Assign struct {
	Name  string
	Op    string // "=" or "+="
	Value string // raw right-hand side, parsed at execution time
}

// AddFlag sets a flag. Idempotent.
type AddFlag struct {
	Flag string
}

// ClearFlag removes a flag. Idempotent.
type ClearFlag struct {
	Flag string
}

// ApplyEffect starts a timed effect on a target, or refreshes its duration
// if already active.
type ApplyEffect struct {
	Effect string
	Target string // empty → "player"
}

// RemoveEffect ends an effect early, running its remove actions.
type RemoveEffect struct {
	Effect string
	Target string
}

// GotoScene moves the story to another scene.
type GotoScene struct {
	Scene string
}

// Conditional dispatches Then or Else depending on If.
type Conditional struct {
	If   string
	Then []Command
	Else []Command
}

// RollTable draws one entry from a weighted random table and executes it.
type RollTable struct {
	Table string
}

// PluginAction invokes a host-registered action by name.
type PluginAction struct {
	Name   string
	Target string
	Args   map[string]any
}

func (Assign) isCommand()       {}
func (AddFlag) isCommand()      {}
func (ClearFlag) isCommand()    {}
func (ApplyEffect) isCommand()  {}
func (RemoveEffect) isCommand() {}
func (GotoScene) isCommand()    {}
func (Conditional) isCommand()  {}
func (RollTable) isCommand()    {}
func (PluginAction) isCommand() {}
