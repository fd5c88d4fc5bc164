package buildsys

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCompilationFailure matches every *CompileError.
var ErrCompilationFailure = errors.New("compilation failed")

// Define is a preprocessor definition. An empty Value defines Name without a
// value.
type Define struct {
	Name  string
	Value string
}

func (d Define) String() string {
	if d.Value == "" {
		return d.Name
	}
	return d.Name + "=" + d.Value
}

// Unit describes one static library to produce.
type Unit struct {
	// Name is the component name, used in diagnostics.
	Name string
	// Library is the library base name, e.g. "luauvm". The file name on disk
	// is chosen by the toolchain.
	Library string
	// Sources are the translation units, compiled and archived in order.
	Sources []string
	// Includes is the include search path, in order.
	Includes []string
	// Defines are layered on top of the toolchain's baseline defines.
	Defines []Define
	// OutDir receives the archive.
	OutDir string
	// ObjDir is scratch space for object files.
	ObjDir string
}

// Artifact is a produced static library.
type Artifact struct {
	Library string
	Dir     string
	Path    string
}

// Compiler captures the one operation the orchestrator needs from a toolchain:
// compile a unit's sources into a static library. Compile blocks until the
// archive is written or the first failure.
type Compiler interface {
	Compile(ctx context.Context, u Unit) (Artifact, error)
}

// CompileError reports a failed toolchain invocation for a component.
// Diagnostic is the toolchain output, verbatim.
type CompileError struct {
	Component  string
	Diagnostic string
	Err        error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compile %s", e.Component)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if d := strings.TrimSpace(e.Diagnostic); d != "" {
		b.WriteString("\n\n")
		b.WriteString(d)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

func (e *CompileError) Is(target error) bool { return target == ErrCompilationFailure }
