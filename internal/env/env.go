// Package env is the only place luaubuild reads the process environment.
//
// Build defaults are read once by Load. Toolchain and runtime-library
// overrides go through Chain, which follows the per-target precedence used by
// native build helpers.
package env

import (
	"os"
	"path/filepath"
	"strings"
)

// Well-known environment variables.
const (
	Target    = "TARGET"
	Host      = "HOST"
	OutDir    = "OUT_DIR"
	Profile   = "PROFILE"
	SourceDir = "LUAU_SOURCE_DIR"
	NumJobs   = "NUM_JOBS"
)

// outSubdir is joined to $OUT_DIR so the build never clears the caller's
// whole output directory.
const outSubdir = "luau-build"

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Defaults holds the values a build falls back to when they were never set
// programmatically. Empty fields mean the variable was unset.
type Defaults struct {
	Target    string
	Host      string
	OutDir    string
	Profile   string
	SourceDir string
}

// Load reads the build defaults from the process environment.
func Load() Defaults {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the build defaults through lookup.
func LoadFrom(lookup LookupFunc) Defaults {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	d := Defaults{
		Target:    get(Target),
		Host:      get(Host),
		Profile:   get(Profile),
		SourceDir: get(SourceDir),
	}
	if out := get(OutDir); out != "" {
		d.OutDir = filepath.Join(out, outSubdir)
	}
	return d
}

// Chain resolves name for a target/host pair. The first variable that is set
// wins, in this order:
//
//	<name>_<target>
//	<name>_<target with '-' replaced by '_'>
//	HOST_<name> (native build) or TARGET_<name> (cross build)
//	<name>
//
// A variable set to the empty string still counts as set.
func Chain(lookup LookupFunc, name, target, host string) (string, bool) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range ChainKeys(name, target, host) {
		if v, ok := lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// ChainKeys returns the variable names Chain consults, in precedence order.
func ChainKeys(name, target, host string) []string {
	kind := "TARGET"
	if host == target {
		kind = "HOST"
	}
	keys := []string{
		name + "_" + target,
		name + "_" + strings.ReplaceAll(target, "-", "_"),
		kind + "_" + name,
		name,
	}
	if keys[0] == keys[1] {
		keys = keys[1:]
	}
	return keys
}
