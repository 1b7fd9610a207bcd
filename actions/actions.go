// Package actions provides the built-in plugin actions. Hosts merge
// their own handlers over Builtin() before constructing the engine.
package actions

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"storyloom/engine/dispatch"
	"storyloom/engine/state"
	"storyloom/types"
)

// Builtin returns the default action registry: search, rest, status and
// attack.
func Builtin() map[string]dispatch.ActionFunc {
	return map[string]dispatch.ActionFunc{
		"search": Search,
		"rest":   Rest,
		"status": Status,
		"attack": Attack,
	}
}

// Search rolls the current scene's search table: "<scene>_search", the
// generic "search" table, or the table named by the table argument.
func Search(c *dispatch.ActionContext) dispatch.ActionResult {
	name := c.Arg("table")
	if name == "" {
		name = c.State.CurrentScene + "_search"
		if _, ok := c.Script.Table(name); !ok {
			name = "search"
		}
	}
	if _, ok := c.Script.Table(name); !ok {
		return dispatch.ActionResult{Messages: []string{"You find nothing of note."}}
	}
	return dispatch.ActionResult{Commands: []types.Command{types.RollTable{Table: name}}}
}

// Rest heals (amount argument, default 10, capped at max_health) and
// advances game time (time argument, default 1).
func Rest(c *dispatch.ActionContext) dispatch.ActionResult {
	var cmds []types.Command
	healed := 0
	if hp, ok := state.NumVar(c.State, "health"); ok {
		target := hp + c.NumArg("amount", 10)
		if max, ok := state.NumVar(c.State, "max_health"); ok && target > max {
			target = max
		}
		if target > hp {
			healed = int(target - hp)
			cmds = append(cmds, types.Assign{Name: "health", Op: "=", Value: fmt.Sprintf("%v", target)})
		}
	}

	if hours := int(c.NumArg("time", 1)); hours > 0 {
		state.SetVar(c.State, "game_time", state.GameTime(c.State)+hours)
	}

	msg := "You rest for a while."
	if healed > 0 {
		msg = fmt.Sprintf("You rest for a while. (+%d health)", healed)
	}
	return dispatch.ActionResult{Messages: []string{msg}, Commands: cmds}
}

// Status reports health and the active effects.
func Status(c *dispatch.ActionContext) dispatch.ActionResult {
	var out []string
	if hp, ok := state.NumVar(c.State, "health"); ok {
		if max, ok := state.NumVar(c.State, "max_health"); ok {
			out = append(out, fmt.Sprintf("Health: %v/%v.", hp, max))
		} else {
			out = append(out, fmt.Sprintf("Health: %v.", hp))
		}
	}

	keys := make([]string, 0, len(c.State.Effects))
	for k := range c.State.Effects {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		out = append(out, "No active effects.")
		return dispatch.ActionResult{Messages: out}
	}
	sort.Strings(keys)
	var names []string
	for _, k := range keys {
		eff := c.State.Effects[k]
		if eff.Duration > 0 {
			names = append(names, fmt.Sprintf("%s (%d turns)", k, eff.Duration))
		} else {
			names = append(names, fmt.Sprintf("%s (permanent)", k))
		}
	}
	out = append(out, "Active effects: "+strings.Join(names, ", ")+".")
	return dispatch.ActionResult{Messages: out}
}

// Attack rolls damage dice (dice argument, default 1d6), adds the
// effect-modified strength and subtracts the target's defense attribute.
// Damage lands on the "<target>_hp" variable when the script tracks one.
func Attack(c *dispatch.ActionContext) dispatch.ActionResult {
	if c.Tables == nil {
		c.Warn("attack needs the table engine")
		return dispatch.ActionResult{}
	}
	dice := c.Arg("dice")
	if dice == "" {
		dice = "1d6"
	}
	roll, ok := c.Tables.RollDice(dice)
	if !ok {
		c.Warn("attack has a bad dice spec %q", dice)
		return dispatch.ActionResult{}
	}

	base, _ := state.NumVar(c.State, "strength")
	atk := base
	if c.Effects != nil {
		atk = c.Effects.EffectiveStat("strength", base)
	}

	defense := 0.0
	if c.Target != "" {
		if obj, ok := c.Script.Object(c.Target); ok {
			if v, ok := state.ToFloat(obj.Attributes["defense"]); ok {
				defense = v
			}
		}
	}

	damage := roll + int(atk) - int(defense)
	if damage < 1 {
		damage = 1
	}

	var out []string
	if c.Target != "" {
		out = append(out, fmt.Sprintf("You strike the %s!", c.Target))
	} else {
		out = append(out, "You swing at the air.")
	}
	out = append(out, fmt.Sprintf("  Roll: %s+%d → [%d]+%d = %d vs defense %d → %d damage",
		dice, int(atk), roll, int(atk), roll+int(atk), int(defense), damage))

	var cmds []types.Command
	if c.Target != "" {
		if _, ok := state.GetVar(c.State, c.Target+"_hp"); ok {
			cmds = append(cmds, types.Assign{Name: c.Target + "_hp", Op: "+=", Value: strconv.Itoa(-damage)})
		}
	}
	return dispatch.ActionResult{Messages: out, Commands: cmds}
}
