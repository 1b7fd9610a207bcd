// Package loader reads story scripts from YAML or Lua, compiles them
// into the typed script the engine runs, and validates every
// cross-reference before play starts.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"storyloom/engine/state"

	lua "github.com/yuin/gopher-lua"
)

// collector accumulates raw definitions while Lua files execute.
type collector struct {
	raw *rawScript
}

// Load reads a script from path. A .yaml/.yml file loads directly, a
// .lua file runs in a sandboxed VM, and a directory loads every .lua
// file in it (story.lua first, the rest alphabetical).
func Load(path string) (*state.Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadLuaDir(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".lua":
		return LoadLua(path)
	}
	return nil, fmt.Errorf("unsupported script format %q", filepath.Ext(path))
}

// LoadLua loads a single Lua script file.
func LoadLua(path string) (*state.Script, error) {
	return loadLuaFiles([]string{path})
}

// LoadLuaDir loads every .lua file in dir as one script.
func LoadLuaDir(dir string) (*state.Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading script directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no .lua files found in %s", dir)
	}
	var paths []string
	for _, n := range sortedLuaFiles(names) {
		paths = append(paths, filepath.Join(dir, n))
	}
	return loadLuaFiles(paths)
}

func loadLuaFiles(paths []string) (*state.Script, error) {
	// Sandboxed VM, discarded after loading.
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSafeLibs(L)
	sandbox(L)

	coll := &collector{raw: newRawScript()}
	registerAPI(L, coll)

	for _, p := range paths {
		if err := L.DoFile(p); err != nil {
			return nil, fmt.Errorf("executing %s: %w", filepath.Base(p), err)
		}
	}
	return finish(coll.raw, &ValidationError{})
}

// finish is the shared back half of every load path: compile the raw
// document, validate the result, report.
func finish(raw *rawScript, ve *ValidationError) (*state.Script, error) {
	sc := compile(raw, ve)
	validate(sc, ve)
	for _, w := range ve.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if len(ve.Errors) > 0 {
		return nil, ve
	}
	return sc, nil
}

// sortedLuaFiles orders story.lua first so shared definitions exist
// before the remaining files, which run alphabetically.
func sortedLuaFiles(files []string) []string {
	var storyFile string
	var others []string
	for _, f := range files {
		if f == "story.lua" {
			storyFile = f
		} else {
			others = append(others, f)
		}
	}
	sort.Strings(others)
	if storyFile != "" {
		return append([]string{storyFile}, others...)
	}
	return others
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes globals that would let a script reach the filesystem
// or break determinism.
func sandbox(L *lua.LState) {
	dangerous := []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage",
	}
	for _, name := range dangerous {
		L.SetGlobal(name, lua.LNil)
	}

	// math.randomseed goes too; draws must come from the engine's RNG.
	if mathTbl := L.GetGlobal("math"); mathTbl != lua.LNil {
		if tbl, ok := mathTbl.(*lua.LTable); ok {
			tbl.RawSetString("randomseed", lua.LNil)
		}
	}
}
