// Package loader reads card game definitions into types.Definition.
// Definitions come either from a CGML YAML file or from Lua files written
// against a small constructor DSL. The Lua VM is discarded after loading.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/nathoo/cgmlsim/types"
)

// entry is a named definition block in declaration order.
type entry struct {
	name string
	body map[string]any
}

// collector accumulates raw definition blocks from either source format.
type collector struct {
	meta        map[string]any
	deckTypes   []entry
	decks       []entry
	zones       []entry
	variables   []entry
	rules       []entry
	flow        map[string]any
	states      []entry
	transitions []map[string]any
	setup       []map[string]any
}

// Load reads a definition from path. A .yml or .yaml file is read as
// CGML; a .lua file or a directory of .lua files is run as Lua. The result
// is compiled and validated; validation warnings are logged.
func Load(path string, log *zap.Logger) (*types.Definition, error) {
	if log == nil {
		log = zap.NewNop()
	}
	def, err := Compile(path)
	if err != nil {
		return nil, err
	}
	return checked(def, log)
}

// Compile reads and compiles the definition at path without validating
// it.
func Compile(path string) (*types.Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition %s: %w", path, err)
	}

	var coll *collector
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case info.IsDir():
		coll, err = runLuaDir(path)
	case ext == ".lua":
		coll, err = runLua([]string{path})
	case ext == ".yml" || ext == ".yaml":
		coll, err = readYAMLFile(path)
	default:
		return nil, fmt.Errorf("unsupported definition file %s", path)
	}
	if err != nil {
		return nil, err
	}
	def, err := compile(coll)
	if err != nil {
		return nil, fmt.Errorf("compiling definition: %w", err)
	}
	return def, nil
}

// ParseYAML compiles and validates a CGML document held in memory.
func ParseYAML(data []byte, log *zap.Logger) (*types.Definition, error) {
	if log == nil {
		log = zap.NewNop()
	}
	coll, err := decodeYAML(data)
	if err != nil {
		return nil, err
	}
	return finish(coll, log)
}

func finish(coll *collector, log *zap.Logger) (*types.Definition, error) {
	def, err := compile(coll)
	if err != nil {
		return nil, fmt.Errorf("compiling definition: %w", err)
	}
	return checked(def, log)
}

func checked(def *types.Definition, log *zap.Logger) (*types.Definition, error) {
	ve := Validate(def)
	for _, w := range ve.Warnings {
		log.Warn("definition warning", zap.String("game", def.Meta.Name), zap.String("warning", w))
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}
	return def, nil
}

func readYAMLFile(path string) (*collector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition %s: %w", path, err)
	}
	coll, err := decodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return coll, nil
}

func runLuaDir(dir string) (*collector, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading game directory %s: %w", dir, err)
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
	names = sortedLuaFiles(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return runLua(paths)
}

// runLua executes files in order inside one sandboxed VM.
func runLua(paths []string) (*collector, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	openSafeLibs(L)
	sandbox(L)

	coll := &collector{}
	registerAPI(L, coll)

	for _, p := range paths {
		if err := L.DoFile(p); err != nil {
			return nil, fmt.Errorf("executing %s: %w", filepath.Base(p), err)
		}
	}
	return coll, nil
}

// sortedLuaFiles puts game.lua first and the rest in name order.
func sortedLuaFiles(files []string) []string {
	sort.Strings(files)
	out := make([]string, 0, len(files))
	for _, f := range files {
		if f == "game.lua" {
			out = append(out, f)
		}
	}
	for _, f := range files {
		if f != "game.lua" {
			out = append(out, f)
		}
	}
	return out
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes globals that reach outside the VM.
func sandbox(L *lua.LState) {
	dangerous := []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage",
	}
	for _, name := range dangerous {
		L.SetGlobal(name, lua.LNil)
	}

	// Shuffles must come from the simulator's seeded source.
	if mathTbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		mathTbl.RawSetString("randomseed", lua.LNil)
		mathTbl.RawSetString("random", lua.LNil)
	}
}
