// Package build runs a full Luau build and assembles its manifest.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/qiniu/x/log"

	"github.com/goplus/luaubuild/internal/component"
	"github.com/goplus/luaubuild/internal/config"
	"github.com/goplus/luaubuild/internal/env"
	"github.com/goplus/luaubuild/internal/manifest"
	"github.com/goplus/luaubuild/internal/runtimelib"
	"github.com/goplus/luaubuild/internal/sources"
	"github.com/goplus/luaubuild/pkgs/buildsys"
	"github.com/goplus/luaubuild/pkgs/buildsys/cc"
)

// SourceExt is the extension of the translation units in the source tree.
const SourceExt = ".cpp"

// ErrFilesystemFailure matches every *FSError.
var ErrFilesystemFailure = errors.New("filesystem failure")

// FSError reports a failed filesystem operation of the orchestrator.
type FSError struct {
	Op   string
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FSError) Unwrap() error { return e.Err }

func (e *FSError) Is(target error) bool { return target == ErrFilesystemFailure }

// Options customizes a Builder. Zero fields select the defaults.
type Options struct {
	// Components is the component table; nil selects component.Luau().
	Components component.Table
	// Compiler compiles each component; nil selects the cc toolchain for
	// the configured target.
	Compiler buildsys.Compiler
	// Lookup reads runtime-library and toolchain overrides; nil reads the
	// process environment.
	Lookup env.LookupFunc
}

// Builder compiles every selected component of a finalized configuration
// and assembles the manifest.
type Builder struct {
	cfg      config.Config
	table    component.Table
	compiler buildsys.Compiler
	lookup   env.LookupFunc
}

// NewBuilder returns a Builder for cfg.
func NewBuilder(cfg config.Config, opts Options) *Builder {
	b := &Builder{
		cfg:      cfg,
		table:    opts.Components,
		compiler: opts.Compiler,
		lookup:   opts.Lookup,
	}
	if b.table == nil {
		b.table = component.Luau()
	}
	if b.compiler == nil {
		b.compiler = cc.New(cc.Options{
			Target:  cfg.Target,
			Host:    cfg.Host,
			Debug:   cfg.Profile == config.Debug,
			Defines: BaselineDefines(cfg),
			Lookup:  opts.Lookup,
		})
	}
	return b
}

// BaselineDefines returns the defines shared by every component.
func BaselineDefines(cfg config.Config) []buildsys.Define {
	defs := []buildsys.Define{
		{Name: "LUAI_MAXCSTACK", Value: strconv.Itoa(cfg.MaxCStackSize)},
		{Name: "LUA_VECTOR_SIZE", Value: strconv.Itoa(cfg.VectorSize)},
	}
	if cfg.Exceptions == config.Longjmp {
		defs = append(defs, buildsys.Define{Name: "LUA_USE_LONGJMP", Value: "1"})
	}
	return defs
}

// Layout is the directory structure under the output location.
type Layout struct {
	Root       string
	LibDir     string
	IncludeDir string
	ObjDir     string
}

// LayoutOf returns the layout under root.
func LayoutOf(root string) Layout {
	return Layout{
		Root:       root,
		LibDir:     filepath.Join(root, "lib"),
		IncludeDir: filepath.Join(root, "include"),
		ObjDir:     filepath.Join(root, "obj"),
	}
}

// Step is one planned component compilation.
type Step struct {
	Component component.Component
	Unit      buildsys.Unit
}

// Plan selects the components for the configuration and resolves their
// sources and include paths. It does not write to the filesystem.
func (b *Builder) Plan() ([]Step, error) {
	if err := b.cfg.CheckOutDir(); err != nil {
		return nil, err
	}
	selected, err := b.table.Select(b.cfg)
	if err != nil {
		return nil, err
	}
	layout := LayoutOf(b.cfg.OutDir)
	root := b.cfg.SourceDir

	steps := make([]Step, 0, len(selected))
	for _, c := range selected {
		srcs, err := sources.ListAll(c.SourceDirs(root), SourceExt)
		if err != nil {
			return nil, &FSError{Op: "list sources of " + c.Name, Path: root, Err: err}
		}
		includes, err := b.table.IncludePath(&c, root)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{
			Component: c,
			Unit: buildsys.Unit{
				Name:     c.Name,
				Library:  c.Library,
				Sources:  srcs,
				Includes: includes,
				Defines:  c.Defines,
				OutDir:   layout.LibDir,
				ObjDir:   filepath.Join(layout.ObjDir, c.Library),
			},
		})
	}
	return steps, nil
}

// Build runs a full build: plan, reset the output location, compile every
// step in order, export public headers and assemble the manifest. Any
// failure aborts the build and no manifest is returned.
func (b *Builder) Build(ctx context.Context) (*manifest.Manifest, error) {
	steps, err := b.Plan()
	if err != nil {
		return nil, err
	}
	layout := LayoutOf(b.cfg.OutDir)
	if err := PrepareOutput(layout.Root); err != nil {
		return nil, err
	}

	log.Infof("building %d components for %s into %s", len(steps), b.cfg.Target, layout.Root)
	m := &manifest.Manifest{LibDir: layout.LibDir}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Infof("compiling %s (%d files)", step.Unit.Library, len(step.Unit.Sources))
		if _, err := b.compiler.Compile(ctx, step.Unit); err != nil {
			return nil, err
		}
		m.Libs = append(m.Libs, step.Unit.Library)
	}

	exported, err := b.exportHeaders(steps, layout.IncludeDir)
	if err != nil {
		return nil, err
	}
	if exported > 0 {
		m.IncludeDir = layout.IncludeDir
	}

	if lib, ok := runtimelib.ResolveWith(b.lookup, b.cfg.Target, b.cfg.Host); ok {
		m.RuntimeLib = lib
	}
	if v, ok := manifest.DeriveVersion(b.cfg.PackageVersion); ok {
		m.Version = v
	}
	return m, nil
}

// PrepareOutput removes dir and everything under it, then recreates it
// empty. It is idempotent and succeeds when dir does not exist.
func PrepareOutput(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return &FSError{Op: "remove", Path: dir, Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FSError{Op: "create", Path: dir, Err: err}
	}
	return nil
}

// exportHeaders copies the public headers of the built components into dir
// and returns how many were copied.
func (b *Builder) exportHeaders(steps []Step, dir string) (int, error) {
	n := 0
	for _, step := range steps {
		c := step.Component
		for _, h := range c.Headers {
			src, err := findHeader(c.IncludeDirs(b.cfg.SourceDir), h)
			if err != nil {
				return n, &FSError{Op: "find header of " + c.Name, Path: h, Err: err}
			}
			dst := filepath.Join(dir, h)
			if err := copyFile(src, dst); err != nil {
				return n, &FSError{Op: "copy header", Path: dst, Err: err}
			}
			n++
		}
	}
	return n, nil
}

func findHeader(dirs []string, name string) (string, error) {
	for _, dir := range dirs {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", os.ErrNotExist
}

func copyFile(srcPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
