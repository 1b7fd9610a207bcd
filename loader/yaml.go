package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"storyloom/engine/state"
)

// rawScript mirrors the script document structure. Both front-ends
// produce one of these; compile turns it into the typed state.Script.
type rawScript struct {
	Title      string                `yaml:"title"`
	Author     string                `yaml:"author"`
	Version    string                `yaml:"version"`
	Intro      string                `yaml:"intro"`
	StartScene string                `yaml:"start_scene"`
	Includes   []string              `yaml:"includes"`
	Variables  map[string]any        `yaml:"variables"`
	Flags      []string              `yaml:"flags"`
	Scenes     map[string]rawScene   `yaml:"scenes"`
	Objects    map[string]rawObject  `yaml:"define_object"`
	Effects    map[string]rawEffect  `yaml:"effects"`
	Events     rawEventSystem        `yaml:"event_system"`
	Random     rawRandomSystem       `yaml:"random_system"`
	Machines   map[string]rawMachine `yaml:"state_machines"`
	Parser     rawParser             `yaml:"command_parser"`
}

type rawScene struct {
	Text        string      `yaml:"text"`
	Description string      `yaml:"description"` // accepted alias for text
	Choices     []rawChoice `yaml:"choices"`
	OnEnter     []any       `yaml:"on_enter"`
	Objects     []string    `yaml:"objects"`
}

type rawChoice struct {
	Text      string `yaml:"text"`
	Next      string `yaml:"next"`
	Condition string `yaml:"condition"`
	Commands  []any  `yaml:"commands"`
}

type rawObject struct {
	Type           string                 `yaml:"type"`
	Attributes     map[string]any         `yaml:"attributes"`
	States         []string               `yaml:"states"`
	SpawnCondition string                 `yaml:"spawn_condition"`
	Behaviors      map[string]rawBehavior `yaml:"behaviors"`
}

type rawBehavior struct {
	Condition string `yaml:"condition"`
	Response  string `yaml:"response"`
	Commands  []any  `yaml:"commands"`
}

// UnmarshalYAML lets a behavior be either a bare response string or a
// full {condition, response, commands} record.
func (b *rawBehavior) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&b.Response)
	}
	type plain rawBehavior
	return node.Decode((*plain)(b))
}

type rawEffect struct {
	Duration  any            `yaml:"duration"` // integer or "N unit" string
	TickRate  int            `yaml:"tick_rate"`
	Modifiers map[string]any `yaml:"modifiers"`
	OnApply   []any          `yaml:"on_apply"`
	OnTick    []any          `yaml:"on_tick"`
	OnRemove  []any          `yaml:"on_remove"`
}

type rawEventSystem struct {
	Scheduled []rawScheduled `yaml:"scheduled_events"`
	Reactive  []rawReactive  `yaml:"reactive_events"`
}

type rawScheduled struct {
	ID       string   `yaml:"id"`
	Trigger  string   `yaml:"trigger"`
	Chance   *float64 `yaml:"chance"` // nil means 1.0
	Priority string   `yaml:"priority"`
	Action   any      `yaml:"action"`
	Actions  []any    `yaml:"actions"`
	Disabled bool     `yaml:"disabled"`
}

type rawReactive struct {
	ID         string   `yaml:"id"`
	Trigger    string   `yaml:"trigger"`
	Conditions []string `yaml:"conditions"`
	Priority   string   `yaml:"priority"`
	Action     any      `yaml:"action"`
	Actions    []any    `yaml:"actions"`
	Disabled   bool     `yaml:"disabled"`
}

type rawRandomSystem struct {
	Tables map[string][]rawTableEntry `yaml:"tables"`
}

type rawTableEntry struct {
	Weight   *float64 `yaml:"weight"` // nil means 1
	Message  string   `yaml:"message"`
	Item     string   `yaml:"item"`
	Commands []any    `yaml:"commands"`
}

type rawMachine struct {
	Initial string                     `yaml:"initial"`
	States  map[string]rawMachineState `yaml:"states"`
}

type rawMachineState struct {
	Transitions []rawTransition `yaml:"transitions"`
	Continuous  []any           `yaml:"continuous"`
}

type rawTransition struct {
	Condition string `yaml:"condition"`
	Event     string `yaml:"event"`
	To        string `yaml:"to"`
	Actions   []any  `yaml:"actions"`
}

type rawParser struct {
	Verbs    map[string][]string `yaml:"verbs"`
	Fallback string              `yaml:"fallback"`
}

func newRawScript() *rawScript {
	return &rawScript{
		Scenes:   map[string]rawScene{},
		Objects:  map[string]rawObject{},
		Effects:  map[string]rawEffect{},
		Machines: map[string]rawMachine{},
		Random:   rawRandomSystem{Tables: map[string][]rawTableEntry{}},
	}
}

// knownKeys are the recognized top-level document keys. Anything else is
// a warning, not an error, so scripts stay forward-compatible.
var knownKeys = map[string]bool{
	"title": true, "author": true, "version": true, "intro": true,
	"start_scene": true, "includes": true, "variables": true, "flags": true,
	"scenes": true, "define_object": true, "effects": true,
	"event_system": true, "random_system": true, "state_machines": true,
	"command_parser": true,
}

// LoadYAML reads a YAML script, merges its includes depth-first, compiles
// and validates. Later files win merge conflicts.
func LoadYAML(path string) (*state.Script, error) {
	ve := &ValidationError{}
	raw := newRawScript()
	if err := mergeFile(raw, path, map[string]bool{}, ve); err != nil {
		return nil, err
	}
	return finish(raw, ve)
}

// mergeFile reads one document and merges it plus its includes into dst.
// Include paths resolve relative to the including file.
func mergeFile(dst *rawScript, path string, visited map[string]bool, ve *ValidationError) error {
	canon, err := filepath.Abs(path)
	if err != nil {
		canon = path
	}
	if visited[canon] {
		ve.warnf("%s already merged, skipping repeated include", filepath.Base(path))
		return nil
	}
	visited[canon] = true

	raw, err := readYAML(path, ve)
	if err != nil {
		return err
	}
	includes := raw.Includes
	raw.Includes = nil
	merge(dst, raw)

	for _, inc := range includes {
		p := inc
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		if err := mergeFile(dst, p, visited, ve); err != nil {
			return err
		}
	}
	return nil
}

func readYAML(path string, ve *ValidationError) (*rawScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}

	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	var unknown []string
	for k := range top {
		if !knownKeys[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		ve.warnf("%s: unknown top-level key %q", filepath.Base(path), k)
	}

	raw := &rawScript{}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return raw, nil
}

// merge folds src into dst. Scalars replace when non-empty, map sections
// replace entry-wise, list sections append.
func merge(dst, src *rawScript) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Author != "" {
		dst.Author = src.Author
	}
	if src.Version != "" {
		dst.Version = src.Version
	}
	if src.Intro != "" {
		dst.Intro = src.Intro
	}
	if src.StartScene != "" {
		dst.StartScene = src.StartScene
	}
	if len(src.Variables) > 0 && dst.Variables == nil {
		dst.Variables = map[string]any{}
	}
	for k, v := range src.Variables {
		dst.Variables[k] = v
	}
	dst.Flags = append(dst.Flags, src.Flags...)
	for id, s := range src.Scenes {
		dst.Scenes[id] = s
	}
	for id, o := range src.Objects {
		dst.Objects[id] = o
	}
	for id, e := range src.Effects {
		dst.Effects[id] = e
	}
	for id, t := range src.Random.Tables {
		dst.Random.Tables[id] = t
	}
	for id, m := range src.Machines {
		dst.Machines[id] = m
	}
	dst.Events.Scheduled = append(dst.Events.Scheduled, src.Events.Scheduled...)
	dst.Events.Reactive = append(dst.Events.Reactive, src.Events.Reactive...)
	if len(src.Parser.Verbs) > 0 && dst.Parser.Verbs == nil {
		dst.Parser.Verbs = map[string][]string{}
	}
	for verb, aliases := range src.Parser.Verbs {
		dst.Parser.Verbs[verb] = aliases
	}
	if src.Parser.Fallback != "" {
		dst.Parser.Fallback = src.Parser.Fallback
	}
}
