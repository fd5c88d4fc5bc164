// Package component holds the fixed table of Luau libraries and the order
// they are built and reported in.
package component

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goplus/luaubuild/internal/config"
	"github.com/goplus/luaubuild/pkgs/buildsys"
)

// ErrUnsupportedPlatformFeature is returned when an optional component is
// requested for a target that cannot build it.
var ErrUnsupportedPlatformFeature = errors.New("unsupported platform feature")

// CommonInclude is the include directory, relative to the source root, that
// is on every component's include path.
var CommonInclude = filepath.Join("Common", "include")

// Part is one source directory and its interface directory, both relative
// to the source root. Include may be empty.
type Part struct {
	Source  string
	Include string
}

// Gate decides whether a component is part of a build.
type Gate int

const (
	// Always builds the component.
	Always Gate = iota
	// Codegen builds the component only when the code generator is enabled.
	// Enabling it on a target without code generator support is an error.
	Codegen
)

// Component is one independently compiled static library.
type Component struct {
	Name    string
	Library string
	Parts   []Part
	// Deps name the components whose include directories are needed.
	Deps []string
	// Internals name the components whose source directories are needed as
	// include directories, for code that reaches into private headers.
	Internals []string
	Defines   []buildsys.Define
	// Headers are public headers, looked up in the component's include
	// directories and exported to the output include directory.
	Headers []string
	Gate    Gate
}

// SourceDirs returns the component's source directories under root.
func (c *Component) SourceDirs(root string) []string {
	dirs := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		dirs = append(dirs, filepath.Join(root, p.Source))
	}
	return dirs
}

// IncludeDirs returns the component's own include directories under root.
func (c *Component) IncludeDirs(root string) []string {
	var dirs []string
	for _, p := range c.Parts {
		if p.Include != "" {
			dirs = append(dirs, filepath.Join(root, p.Include))
		}
	}
	return dirs
}

// CodegenSupported reports whether the code generator can be built for
// target. It generates native code at run time, which WebAssembly targets
// cannot execute.
func CodegenSupported(target string) bool {
	return !strings.Contains(target, "emscripten") &&
		!strings.HasPrefix(target, "wasm32") &&
		!strings.HasPrefix(target, "wasm64")
}

// Enabled reports whether c is part of a build for cfg.
func (c *Component) Enabled(cfg config.Config) (bool, error) {
	switch c.Gate {
	case Always:
		return true, nil
	case Codegen:
		if !cfg.Codegen {
			return false, nil
		}
		if !CodegenSupported(cfg.Target) {
			return false, fmt.Errorf("%w: %s is not supported on %s", ErrUnsupportedPlatformFeature, c.Name, cfg.Target)
		}
		return true, nil
	}
	return false, fmt.Errorf("component %s: unknown gate %d", c.Name, c.Gate)
}

// Table is an ordered list of components, dependencies first.
type Table []Component

// Lookup returns the component called name.
func (t Table) Lookup(name string) (*Component, bool) {
	for i := range t {
		if t[i].Name == name {
			return &t[i], true
		}
	}
	return nil, false
}

// Validate checks the table invariants: names and libraries are unique,
// every dependency names an earlier component, every component has at least
// one part, and gated components come after all ungated ones.
func (t Table) Validate() error {
	seen := make(map[string]bool, len(t))
	libs := make(map[string]bool, len(t))
	gated := false
	for _, c := range t {
		if c.Name == "" || c.Library == "" {
			return fmt.Errorf("component %q: name and library are required", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("component %s: duplicate name", c.Name)
		}
		if libs[c.Library] {
			return fmt.Errorf("component %s: duplicate library %s", c.Name, c.Library)
		}
		if len(c.Parts) == 0 {
			return fmt.Errorf("component %s: no source parts", c.Name)
		}
		for _, deps := range [][]string{c.Deps, c.Internals} {
			for _, dep := range deps {
				if !seen[dep] {
					if _, ok := t.Lookup(dep); ok {
						return fmt.Errorf("component %s: dependency %s is listed after it", c.Name, dep)
					}
					return fmt.Errorf("component %s: unknown dependency %s", c.Name, dep)
				}
			}
		}
		if c.Gate != Always {
			gated = true
		} else if gated {
			return fmt.Errorf("component %s: always-built component listed after an optional one", c.Name)
		}
		seen[c.Name] = true
		libs[c.Library] = true
	}
	return nil
}

// Select returns the components built for cfg, in table order. It fails
// before anything is built if an optional component is requested on a
// target that cannot build it.
func (t Table) Select(cfg config.Config) (Table, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var sel Table
	for _, c := range t {
		ok, err := c.Enabled(cfg)
		if err != nil {
			return nil, err
		}
		if ok {
			sel = append(sel, c)
		}
	}
	return sel, nil
}

// IncludePath returns the include search path for c under root: c's own
// include directories, then each dependency's include directories, then the
// source directories of its internal dependencies, then the common include
// directory. Duplicates are dropped, keeping the first occurrence.
func (t Table) IncludePath(c *Component, root string) ([]string, error) {
	var path []string
	seen := map[string]bool{}
	add := func(dirs ...string) {
		for _, d := range dirs {
			if !seen[d] {
				seen[d] = true
				path = append(path, d)
			}
		}
	}

	add(c.IncludeDirs(root)...)
	for _, name := range c.Deps {
		dep, ok := t.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("component %s: unknown dependency %s", c.Name, name)
		}
		add(dep.IncludeDirs(root)...)
	}
	for _, name := range c.Internals {
		dep, ok := t.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("component %s: unknown dependency %s", c.Name, name)
		}
		add(dep.IncludeDirs(root)...)
		add(dep.SourceDirs(root)...)
	}
	add(filepath.Join(root, CommonInclude))
	return path, nil
}
