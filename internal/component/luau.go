package component

import (
	"path/filepath"

	"github.com/goplus/luaubuild/pkgs/buildsys"
)

// Entry points are exported with C linkage so they can be called across the
// native boundary without name mangling.
const externC = `extern "C"`

func api(names ...string) []buildsys.Define {
	defs := make([]buildsys.Define, len(names))
	for i, n := range names {
		defs[i] = buildsys.Define{Name: n, Value: externC}
	}
	return defs
}

func part(dir string) Part {
	return Part{Source: filepath.Join(dir, "src"), Include: filepath.Join(dir, "include")}
}

// Luau returns the Luau component table, dependencies first. The code
// generator is last so it is appended to the manifest after everything else.
func Luau() Table {
	return Table{
		{
			Name:    "Common",
			Library: "luaucommon",
			Parts:   []Part{part("Common")},
		},
		{
			Name:    "Ast",
			Library: "luauast",
			Parts:   []Part{part("Ast")},
		},
		{
			Name:    "Compiler",
			Library: "luaucompiler",
			Parts:   []Part{part("Compiler")},
			Deps:    []string{"Ast"},
			Defines: api("LUACODE_API"),
			Headers: []string{"luacode.h"},
		},
		{
			Name:    "VM",
			Library: "luauvm",
			Parts:   []Part{part("VM")},
			Defines: api("LUA_API"),
			Headers: []string{"lua.h", "luaconf.h", "lualib.h"},
		},
		{
			Name:    "Config",
			Library: "luauconfig",
			Parts:   []Part{part("Config")},
			Deps:    []string{"Ast", "Compiler", "VM"},
			Defines: api("LUA_API", "LUACODE_API", "LUACONFIG_API"),
		},
		{
			Name:      "Custom",
			Library:   "luaucustom",
			Parts:     []Part{{Source: filepath.Join("Custom", "src")}},
			Deps:      []string{"VM"},
			Internals: []string{"VM"},
			Defines:   api("LUA_API"),
		},
		{
			Name:    "Require",
			Library: "luaurequire",
			Parts: []Part{
				part(filepath.Join("Require", "Navigator")),
				part(filepath.Join("Require", "Runtime")),
			},
			Deps:    []string{"Ast", "Config", "VM"},
			Defines: api("LUA_API", "LUACONFIG_API", "LUAREQUIRE_API"),
		},
		{
			Name:      "CodeGen",
			Library:   "luaucodegen",
			Parts:     []Part{part("CodeGen")},
			Deps:      []string{"VM"},
			Internals: []string{"VM"},
			// The code generator reaches into VM internals and must see the
			// same API defines the VM was built with.
			Defines: api("LUACODEGEN_API", "LUA_API"),
			Headers: []string{"luacodegen.h"},
			Gate:    Codegen,
		},
	}
}
