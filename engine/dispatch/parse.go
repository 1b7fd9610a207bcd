package dispatch

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"storyloom/types"
)

var (
	assignRe = regexp.MustCompile(`^(\w+)\s*(\+=|=)\s*(.+)$`)
	dottedRe = regexp.MustCompile(`^\w+(\.\w+)+$`)
)

// ParseCommands parses a YAML-decoded command list. Every parseable
// command is returned even when some fail; the errors are joined so the
// loader can report all of them at once.
func ParseCommands(raw []any) ([]types.Command, error) {
	var cmds []types.Command
	var errs []error
	for i, r := range raw {
		c, err := ParseCommand(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("command %d: %w", i+1, err))
			continue
		}
		cmds = append(cmds, c)
	}
	return cmds, errors.Join(errs...)
}

// ParseCommand parses one YAML-decoded command: either a compact string
// ("goto:cave") or a map keyed by the command kind ({set: "gold += 5"}).
func ParseCommand(raw any) (types.Command, error) {
	switch v := raw.(type) {
	case string:
		return ParseAction(v)
	case map[string]any:
		return parseMap(v)
	}
	return nil, fmt.Errorf("command must be a string or a map, got %T", raw)
}

func parseMap(m map[string]any) (types.Command, error) {
	if raw, ok := m["if"]; ok {
		then, errT := ParseCommands(asList(m["then"]))
		els, errE := ParseCommands(asList(m["else"]))
		if err := errors.Join(errT, errE); err != nil {
			return nil, err
		}
		return types.Conditional{If: asString(raw), Then: then, Else: els}, nil
	}
	if raw, ok := m["action"]; ok {
		args, _ := m["args"].(map[string]any)
		return types.PluginAction{Name: asString(raw), Target: asString(m["target"]), Args: args}, nil
	}
	if raw, ok := m["set"]; ok {
		return parseAssign(asString(raw))
	}
	if raw, ok := m["add_flag"]; ok {
		return types.AddFlag{Flag: asString(raw)}, nil
	}
	if raw, ok := m["clear_flag"]; ok {
		return types.ClearFlag{Flag: asString(raw)}, nil
	}
	if raw, ok := m["apply_effect"]; ok {
		name, target := splitEffectRef(asString(raw))
		if t := asString(m["target"]); t != "" {
			target = t
		}
		return types.ApplyEffect{Effect: name, Target: target}, nil
	}
	if raw, ok := m["remove_effect"]; ok {
		name, target := splitEffectRef(asString(raw))
		if t := asString(m["target"]); t != "" {
			target = t
		}
		return types.RemoveEffect{Effect: name, Target: target}, nil
	}
	if raw, ok := m["goto"]; ok {
		return types.GotoScene{Scene: asString(raw)}, nil
	}
	if raw, ok := m["roll_table"]; ok {
		return types.RollTable{Table: asString(raw)}, nil
	}
	if raw, ok := m["broadcast"]; ok {
		return types.PluginAction{Name: "broadcast", Args: map[string]any{"message": asString(raw)}}, nil
	}
	if raw, ok := m["log"]; ok {
		return types.PluginAction{Name: "log", Args: map[string]any{"message": asString(raw)}}, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return nil, fmt.Errorf("unknown command with keys %v", keys)
}

// ParseAction parses the compact "verb:rest" string form used by event
// actions and effect hooks.
func ParseAction(s string) (types.Command, error) {
	verb, rest, _ := strings.Cut(s, ":")
	verb = strings.TrimSpace(verb)
	rest = strings.TrimSpace(rest)
	switch verb {
	case "set":
		return parseAssign(rest)
	case "add_flag":
		return types.AddFlag{Flag: rest}, nil
	case "clear_flag":
		return types.ClearFlag{Flag: rest}, nil
	case "apply_effect":
		name, target := splitEffectRef(rest)
		return types.ApplyEffect{Effect: name, Target: target}, nil
	case "remove_effect":
		name, target := splitEffectRef(rest)
		return types.RemoveEffect{Effect: name, Target: target}, nil
	case "goto":
		return types.GotoScene{Scene: rest}, nil
	case "roll_table":
		return types.RollTable{Table: rest}, nil
	case "broadcast":
		return types.PluginAction{Name: "broadcast", Args: map[string]any{"message": rest}}, nil
	case "log":
		return types.PluginAction{Name: "log", Args: map[string]any{"message": rest}}, nil
	}
	return nil, fmt.Errorf("unknown action verb %q", verb)
}

func parseAssign(src string) (types.Command, error) {
	m := assignRe.FindStringSubmatch(strings.TrimSpace(src))
	if m == nil {
		return nil, fmt.Errorf("bad set expression %q", src)
	}
	return types.Assign{Name: m[1], Op: m[2], Value: strings.TrimSpace(m[3])}, nil
}

// splitEffectRef splits the "name@target" effect reference. No target
// means the effect applies to the player.
func splitEffectRef(s string) (name, target string) {
	name, target, _ = strings.Cut(s, "@")
	return strings.TrimSpace(name), strings.TrimSpace(target)
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	}
	return []any{v}
}
