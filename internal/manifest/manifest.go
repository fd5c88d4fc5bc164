// Package manifest describes the artifacts of a build and emits them to the
// invoking build coordinator.
package manifest

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/mod/semver"
)

// VersionMarker separates the package version from the Luau release number,
// as in "0.12.0+luau653".
const VersionMarker = "+luau"

// Directive names of the metadata protocol.
const (
	SearchPathDirective = "library-search-path"
	StaticLibDirective  = "link-static-library"
	RuntimeLibDirective = "link-runtime-library"
	DerivedVerDirective = "derived-version"
)

// Manifest is the result of a successful build.
type Manifest struct {
	// LibDir contains every static library in Libs.
	LibDir string `json:"lib_dir"`
	// IncludeDir contains the exported public headers.
	IncludeDir string `json:"include_dir,omitempty"`
	// Libs are library names in link order.
	Libs []string `json:"libs"`
	// RuntimeLib is the C++ runtime library to link, if any.
	RuntimeLib string `json:"runtime_lib,omitempty"`
	// Version is the Luau version derived from the package version, if any.
	Version string `json:"version,omitempty"`
}

// DeriveVersion returns "0.<release>" for a semantic package version whose
// build metadata starts with "+luau<release>", and false otherwise. A leading
// "v" is accepted.
func DeriveVersion(pkgVersion string) (string, bool) {
	v := pkgVersion
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	// Build is empty for anything that is not a valid semantic version.
	release, ok := strings.CutPrefix(semver.Build(v), VersionMarker)
	if !ok || release == "" {
		return "", false
	}
	return "0." + release, true
}

// Emit writes m as line-oriented directives:
//
//	library-search-path = <LibDir>
//	link-static-library = <lib>     (one per library, in order)
//	link-runtime-library = <lib>    (if RuntimeLib is set)
//	derived-version = <version>     (if Version is set)
func (m *Manifest) Emit(w io.Writer) error {
	bw := bufio.NewWriter(w)
	line := func(directive, value string) {
		bw.WriteString(directive)
		bw.WriteString(" = ")
		bw.WriteString(value)
		bw.WriteByte('\n')
	}

	line(SearchPathDirective, m.LibDir)
	for _, lib := range m.Libs {
		line(StaticLibDirective, lib)
	}
	if m.RuntimeLib != "" {
		line(RuntimeLibDirective, m.RuntimeLib)
	}
	if m.Version != "" {
		line(DerivedVerDirective, m.Version)
	}
	return bw.Flush()
}

// String returns the emitted form of m.
func (m *Manifest) String() string {
	var b strings.Builder
	m.Emit(&b)
	return b.String()
}
