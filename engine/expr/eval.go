// Package expr compiles the script DSL's condition and value expressions
// into typed syntax trees and evaluates them against the runtime store.
//
// Conditions ("health > 50 and has_flag(brave)") read variables, flags and
// object state directly from the store. Value expressions ("damage * 2 +
// rand(1, 6)") are sandboxed: variable references resolve only against the
// context map handed to EvalValue, and only an allow-listed set of
// functions is callable. Both kinds compile once per source string and are
// cached on the Evaluator.
package expr

import (
	"fmt"
	"math"

	"storyloom/engine/state"
	"storyloom/types"
)

// maxSpawnDepth caps recursion through spawn conditions that mention other
// objects, so two objects whose spawn conditions reference each other
// settle as absent instead of looping.
const maxSpawnDepth = 8

// Evaluator evaluates compiled expressions against one game's state.
type Evaluator struct {
	State  *types.State
	Script *state.Script

	// Lenient restores the legacy behavior of treating unparseable
	// conditions as true. The default is to fail closed.
	Lenient bool

	// Rand backs the rand(lo, hi) function. Unset, rand warns and
	// returns its lower bound.
	Rand func(lo, hi int) int

	// Warn receives one message per runtime evaluation problem. Unset,
	// problems are silent.
	Warn func(msg string)

	conds      map[string]Node
	vals       map[string]Node
	spawnDepth int
}

// New returns an Evaluator bound to the given state and script.
func New(st *types.State, sc *state.Script) *Evaluator {
	return &Evaluator{
		State:  st,
		Script: sc,
		conds:  make(map[string]Node),
		vals:   make(map[string]Node),
	}
}

func (e *Evaluator) warnf(format string, args ...any) {
	if e.Warn != nil {
		e.Warn(fmt.Sprintf(format, args...))
	}
}

// EvalCondition evaluates one condition string against the store. The
// empty condition is true. Unparseable conditions are false (true under
// Lenient) and produce a warning.
func (e *Evaluator) EvalCondition(src string) bool {
	n, ok := e.conds[src]
	if !ok {
		n, _ = CompileCondition(src)
		e.conds[src] = n
	}
	return ToBool(e.eval(n, nil))
}

// EvalAll evaluates a conjunction of conditions. An empty list is true.
func (e *Evaluator) EvalAll(conds []string) bool {
	for _, c := range conds {
		if !e.EvalCondition(c) {
			return false
		}
	}
	return true
}

// EvalValue evaluates a value expression. Variable references resolve
// against ctx only, never the store. Failures evaluate to 0 with a
// warning.
func (e *Evaluator) EvalValue(src string, ctx map[string]any) any {
	if ctx == nil {
		ctx = map[string]any{}
	}
	n, ok := e.vals[src]
	if !ok {
		n, _ = CompileValue(src)
		e.vals[src] = n
	}
	return e.eval(n, ctx)
}

// eval walks a compiled node. A nil ctx marks condition mode, which reads
// the store; a non-nil ctx marks value mode, which reads ctx alone.
func (e *Evaluator) eval(n Node, ctx map[string]any) any {
	switch x := n.(type) {
	case Lit:
		return x.Val

	case Ref:
		if ctx != nil {
			v, ok := ctx[x.Name]
			if !ok {
				e.warnf("unknown name %q in value expression", x.Name)
				return nil
			}
			return v
		}
		if e.State == nil {
			return nil
		}
		return e.State.Vars[x.Name]

	case Path:
		if ctx != nil {
			return lookupPath(ctx, x.Parts)
		}
		if e.State == nil {
			return nil
		}
		return lookupPath(e.State.Vars, x.Parts)

	case ObjState:
		return e.objState(x)

	case Cmp:
		return e.compare(x.Op, e.eval(x.L, ctx), e.eval(x.R, ctx))

	case Logic:
		l := ToBool(e.eval(x.L, ctx))
		if x.Op == "and" {
			return l && ToBool(e.eval(x.R, ctx))
		}
		return l || ToBool(e.eval(x.R, ctx))

	case Not:
		return !ToBool(e.eval(x.X, ctx))

	case Call:
		return e.call(x, ctx)

	case Arith:
		return e.arith(x, ctx)

	case Bad:
		if ctx != nil {
			e.warnf("unparseable value expression %q evaluates to 0", x.Src)
			return 0
		}
		e.warnf("unparseable condition %q evaluates to %v", x.Src, e.Lenient)
		return e.Lenient
	}
	return nil
}

func (e *Evaluator) compare(op string, l, r any) bool {
	switch op {
	case "==":
		return equalValues(l, r)
	case "!=":
		return !equalValues(l, r)
	}
	lf, lok := state.ToFloat(l)
	rf, rok := state.ToFloat(r)
	if !lok || !rok {
		e.warnf("cannot compare %v %s %v numerically", l, op, r)
		return false
	}
	switch op {
	case ">":
		return lf > rf
	case "<":
		return lf < rf
	case ">=":
		return lf >= rf
	case "<=":
		return lf <= rf
	}
	return false
}

func (e *Evaluator) arith(x Arith, ctx map[string]any) any {
	l := e.eval(x.L, ctx)
	r := e.eval(x.R, ctx)
	lf, lok := state.ToFloat(l)
	rf, rok := state.ToFloat(r)
	if !lok || !rok {
		e.warnf("non-numeric operand in arithmetic: %v %c %v", l, x.Op, r)
		return 0
	}
	switch x.Op {
	case '+':
		return numResult(lf+rf, l, r)
	case '-':
		return numResult(lf-rf, l, r)
	case '*':
		return numResult(lf*rf, l, r)
	case '/':
		if rf == 0 {
			e.warnf("division by zero evaluates to 0")
			return 0
		}
		return lf / rf
	case '%':
		if int(rf) == 0 {
			e.warnf("modulo by zero evaluates to 0")
			return 0
		}
		return int(lf) % int(rf)
	}
	return 0
}

// numResult keeps integer arithmetic integral; mixing in a float makes the
// result a float.
func numResult(f float64, l, r any) any {
	if isInt(l) && isInt(r) {
		return int(f)
	}
	return f
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int64:
		return true
	}
	return false
}

func (e *Evaluator) call(x Call, ctx map[string]any) any {
	args := make([]any, len(x.Args))
	for i, a := range x.Args {
		args[i] = e.eval(a, ctx)
	}
	one := func() (float64, bool) {
		if len(args) != 1 {
			e.warnf("%s expects one argument", x.Fn)
			return 0, false
		}
		f, ok := state.ToFloat(args[0])
		if !ok {
			e.warnf("%s expects a number, got %v", x.Fn, args[0])
		}
		return f, ok
	}

	switch x.Fn {
	case "has_flag":
		if len(args) != 1 || e.State == nil {
			return false
		}
		return state.HasFlag(e.State, stringify(args[0]))

	case "has_item":
		if len(args) != 1 || e.State == nil {
			return false
		}
		return state.HasItem(e.State, stringify(args[0]))

	case "exists":
		if len(args) != 1 || e.State == nil {
			return false
		}
		_, ok := e.State.Vars[stringify(args[0])]
		return ok

	case "max", "min":
		if len(args) == 0 {
			e.warnf("%s expects at least one argument", x.Fn)
			return 0
		}
		best, ok := state.ToFloat(args[0])
		if !ok {
			e.warnf("%s expects numbers, got %v", x.Fn, args[0])
			return 0
		}
		allInt := isInt(args[0])
		for _, a := range args[1:] {
			f, ok := state.ToFloat(a)
			if !ok {
				e.warnf("%s expects numbers, got %v", x.Fn, a)
				return 0
			}
			if (x.Fn == "max" && f > best) || (x.Fn == "min" && f < best) {
				best = f
			}
			allInt = allInt && isInt(a)
		}
		if allInt {
			return int(best)
		}
		return best

	case "abs":
		f, ok := one()
		if !ok {
			return 0
		}
		if isInt(args[0]) {
			return int(math.Abs(f))
		}
		return math.Abs(f)

	case "round":
		f, ok := one()
		if !ok {
			return 0
		}
		return int(math.Round(f))

	case "rand":
		if len(args) != 2 {
			e.warnf("rand expects two arguments")
			return 0
		}
		lo, lok := state.ToFloat(args[0])
		hi, hok := state.ToFloat(args[1])
		if !lok || !hok {
			e.warnf("rand expects numeric bounds, got %v and %v", args[0], args[1])
			return 0
		}
		if e.Rand == nil {
			e.warnf("rand called without a random source")
			return int(lo)
		}
		return e.Rand(int(lo), int(hi))
	}
	e.warnf("unknown function %q", x.Fn)
	return nil
}

// objState resolves "object.state" conditions. The object must be present
// in the current scene (declared or spawned, with a satisfied spawn
// condition); "object.present" tests presence alone.
func (e *Evaluator) objState(x ObjState) bool {
	if e.Script == nil || e.State == nil {
		return false
	}
	obj, ok := e.Script.Object(x.Object)
	if !ok {
		e.warnf("condition references unknown object %q", x.Object)
		return false
	}
	if !e.objectPresent(x.Object, obj) {
		return false
	}
	if x.Want == "present" {
		return true
	}
	cur, ok := state.ObjectState(e.State, e.Script, x.Object)
	return ok && cur == x.Want
}

func (e *Evaluator) objectPresent(id string, obj types.ObjectDef) bool {
	listed := false
	for _, sid := range state.SceneObjects(e.State, e.Script, e.State.CurrentScene) {
		if sid == id {
			listed = true
			break
		}
	}
	if !listed {
		return false
	}
	if obj.SpawnCondition != "" {
		if e.spawnDepth >= maxSpawnDepth {
			e.warnf("spawn condition recursion limit hit at object %q", id)
			return false
		}
		e.spawnDepth++
		ok := e.EvalCondition(obj.SpawnCondition)
		e.spawnDepth--
		if !ok {
			return false
		}
	}
	return true
}

// equalValues compares with numeric coercion first: "100" == 100 holds.
// Non-numeric pairs compare by string form.
func equalValues(l, r any) bool {
	lf, lok := state.ToFloat(l)
	rf, rok := state.ToFloat(r)
	if lok && rok {
		return lf == rf
	}
	return stringify(l) == stringify(r)
}

// ToBool is the DSL's truthiness: nil, false, zero, the empty string and
// empty collections are false.
func ToBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	if f, ok := state.ToFloat(v); ok {
		return f != 0
	}
	return true
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func lookupPath(m map[string]any, parts []string) any {
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = mm[p]
		if !ok {
			return nil
		}
	}
	return cur
}
