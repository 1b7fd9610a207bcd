package dispatch

import (
	"fmt"

	"storyloom/engine/expr"
	"storyloom/engine/state"
	"storyloom/types"
)

// ActionFunc implements a named plugin action invoked by the action
// command. Scripts see actions as opaque verbs; the Go side registers
// them by name.
type ActionFunc func(ctx *ActionContext) ActionResult

// ActionContext hands an action everything it may touch. Dispatch runs
// nested commands through the owning dispatcher, so depth limits and
// reactions still apply.
type ActionContext struct {
	State    *types.State
	Script   *state.Script
	Eval     *expr.Evaluator
	Effects  EffectOps
	Tables   TableOps
	Target   string
	Args     map[string]any
	Dispatch func(cmds []types.Command) ([]string, []types.Event)
	Warn     func(format string, args ...any)
}

// ActionResult is what an action returns to the dispatcher. Commands are
// dispatched after the action's own messages and events are recorded.
type ActionResult struct {
	Messages []string
	Events   []types.Event
	Commands []types.Command
}

// Arg returns a string argument, or "" when absent.
func (c *ActionContext) Arg(name string) string {
	v, ok := c.Args[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// NumArg returns a numeric argument. String arguments are evaluated as
// value expressions with the remaining args as context, so scripts can
// write args like damage: "strength * 2".
func (c *ActionContext) NumArg(name string, def float64) float64 {
	v, ok := c.Args[name]
	if !ok {
		return def
	}
	if f, ok := state.ToFloat(v); ok {
		return f
	}
	if s, ok := v.(string); ok && c.Eval != nil {
		if f, ok := state.ToFloat(c.Eval.EvalValue(s, c.Args)); ok {
			return f
		}
	}
	return def
}
