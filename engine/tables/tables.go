// Package tables implements weighted random tables: named entry lists
// rolled by weight, dice and range notation, and inline text alternatives.
// All rolls go through an injected Source so runs stay reproducible.
package tables

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"storyloom/engine/state"
	"storyloom/types"
)

// Source supplies random draws. *engine.RNG satisfies it.
type Source interface {
	Float64() float64
	IntRange(lo, hi int) int
}

var diceRe = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// Engine rolls tables defined by one script. Failures are soft: a bad
// table name or malformed spec warns and reports !ok instead of stopping
// the game.
type Engine struct {
	Script *state.Script
	Rand   Source
	Warn   func(msg string)
}

// New returns a table engine over the script's table definitions.
func New(sc *state.Script, rand Source) *Engine {
	return &Engine{Script: sc, Rand: rand}
}

func (t *Engine) warnf(format string, args ...any) {
	if t.Warn != nil {
		t.Warn(fmt.Sprintf(format, args...))
	}
}

// Roll rolls a named table and returns the selected entry.
func (t *Engine) Roll(name string) (types.TableEntry, bool) {
	def, ok := t.Script.Table(name)
	if !ok {
		t.warnf("roll on unknown table %q", name)
		return types.TableEntry{}, false
	}
	return t.RollWeighted(def.Entries)
}

// RollWeighted selects one entry by weight. Entries with non-positive
// weight are never selected.
func (t *Engine) RollWeighted(entries []types.TableEntry) (types.TableEntry, bool) {
	i, ok := t.rollIndex(entries)
	if !ok {
		return types.TableEntry{}, false
	}
	return entries[i], true
}

func (t *Engine) rollIndex(entries []types.TableEntry) (int, bool) {
	total := 0.0
	for _, e := range entries {
		if e.Weight > 0 {
			total += e.Weight
		}
	}
	if total <= 0 {
		t.warnf("table has no positive weights")
		return 0, false
	}
	u := t.Rand.Float64() * total
	cum := 0.0
	for i, e := range entries {
		if e.Weight <= 0 {
			continue
		}
		cum += e.Weight
		if u < cum {
			return i, true
		}
	}
	// Floating-point slack can leave u at the top edge.
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Weight > 0 {
			return i, true
		}
	}
	return 0, false
}

// PickUnique rolls a named table n times without replacement, preserving
// selection order. Asking for more entries than the table holds returns
// every entry.
func (t *Engine) PickUnique(name string, n int) []types.TableEntry {
	def, ok := t.Script.Table(name)
	if !ok {
		t.warnf("pick on unknown table %q", name)
		return nil
	}
	remaining := make([]types.TableEntry, len(def.Entries))
	copy(remaining, def.Entries)

	var picked []types.TableEntry
	for len(picked) < n && len(remaining) > 0 {
		i, ok := t.rollIndex(remaining)
		if !ok {
			break
		}
		picked = append(picked, remaining[i])
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return picked
}

// RollRange rolls "lo-hi" range notation. Both bounds integral yields an
// int, otherwise a float64. Reversed bounds are swapped.
func (t *Engine) RollRange(spec string) (any, bool) {
	lo, hi, ok := strings.Cut(spec, "-")
	if !ok {
		t.warnf("bad range spec %q", spec)
		return nil, false
	}
	lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)
	lof, err1 := strconv.ParseFloat(lo, 64)
	hif, err2 := strconv.ParseFloat(hi, 64)
	if err1 != nil || err2 != nil {
		t.warnf("bad range spec %q", spec)
		return nil, false
	}
	if hif < lof {
		lof, hif = hif, lof
	}
	if !strings.Contains(lo, ".") && !strings.Contains(hi, ".") {
		return t.Rand.IntRange(int(lof), int(hif)), true
	}
	return lof + t.Rand.Float64()*(hif-lof), true
}

// RollDice rolls "NdM", "dM" or "NdM+K" dice notation.
func (t *Engine) RollDice(spec string) (int, bool) {
	m := diceRe.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		t.warnf("bad dice spec %q", spec)
		return 0, false
	}
	n := 1
	if m[1] != "" {
		n, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	if n < 1 || sides < 1 {
		t.warnf("bad dice spec %q", spec)
		return 0, false
	}
	mod := 0
	if m[3] != "" {
		mod, _ = strconv.Atoi(m[3])
	}
	sum := mod
	for i := 0; i < n; i++ {
		sum += t.Rand.IntRange(1, sides)
	}
	return sum, true
}

// Expand replaces "{a|b|c}" groups in text with one uniformly chosen
// alternative. Braces without a pipe are left alone for variable
// interpolation to handle.
func (t *Engine) Expand(text string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(text[open:], '}')
		if end < 0 {
			break
		}
		end += open
		inner := text[open+1 : end]
		if !strings.Contains(inner, "|") {
			b.WriteString(text[:end+1])
			text = text[end+1:]
			continue
		}
		alts := strings.Split(inner, "|")
		b.WriteString(text[:open])
		b.WriteString(strings.TrimSpace(alts[t.Rand.IntRange(0, len(alts)-1)]))
		text = text[end+1:]
	}
	b.WriteString(text)
	return b.String()
}
