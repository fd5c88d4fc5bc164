// Package runtimelib resolves the C++ runtime library a consumer has to link
// next to the Luau static libraries.
package runtimelib

import (
	"strings"

	"github.com/goplus/luaubuild/internal/env"
)

// Var is the base name of the override variables consulted by Resolve.
const Var = "CXXSTDLIB"

// Resolve returns the C++ runtime library for target when built on host.
// ok is false when no runtime library has to be linked explicitly.
func Resolve(target, host string) (name string, ok bool) {
	return ResolveWith(nil, target, host)
}

// ResolveWith is like Resolve but reads overrides through lookup. A nil lookup
// reads the process environment.
//
// Overrides follow env.Chain for "CXXSTDLIB". An override set to the empty
// string disables the runtime library.
func ResolveWith(lookup env.LookupFunc, target, host string) (name string, ok bool) {
	if v, set := env.Chain(lookup, Var, target, host); set {
		return v, v != ""
	}
	return builtin(target)
}

func builtin(target string) (string, bool) {
	switch {
	case strings.Contains(target, "msvc"):
		// MSVC links its runtime implicitly.
		return "", false
	case strings.Contains(target, "apple"),
		strings.Contains(target, "freebsd"),
		strings.Contains(target, "openbsd"):
		return "c++", true
	case strings.Contains(target, "android"):
		return "c++_shared", true
	default:
		return "stdc++", true
	}
}
