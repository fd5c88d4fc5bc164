// Package cc compiles C++ sources into static libraries by invoking the
// platform compiler once per translation unit and the archiver once per
// library.
package cc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qiniu/x/log"
	"golang.org/x/sys/execabs"

	"github.com/goplus/luaubuild/internal/env"
	"github.com/goplus/luaubuild/internal/par"
	"github.com/goplus/luaubuild/pkgs/buildsys"
)

// Family is the command-line dialect of a compiler.
type Family int

const (
	// GNU covers gcc, clang and emscripten.
	GNU Family = iota
	// MSVC covers cl.exe and clang-cl.
	MSVC
)

func (f Family) String() string {
	if f == MSVC {
		return "msvc"
	}
	return "gnu"
}

// Options configures a Toolchain. Zero fields are filled in by New.
type Options struct {
	Target string
	Host   string
	// Debug selects the debug optimization tier.
	Debug bool
	// Defines are applied to every unit, before the unit's own defines.
	Defines []buildsys.Define
	// Jobs bounds per-file parallelism. Zero means $NUM_JOBS, then the
	// number of CPUs.
	Jobs int
	// Lookup reads toolchain overrides. Nil reads the process environment.
	Lookup func(key string) (string, bool)
}

// Toolchain is a C++ compiler plus archiver for one target.
type Toolchain struct {
	Family Family
	// CXX is the compiler command; extra words are leading arguments
	// (e.g. "ccache c++").
	CXX []string
	// AR is the archiver command.
	AR []string
	// ExtraFlags come from $CXXFLAGS and follow the baseline flags.
	ExtraFlags []string
	Jobs       int

	target  string
	debug   bool
	defines []buildsys.Define
}

var _ buildsys.Compiler = (*Toolchain)(nil)

// New detects the toolchain for opts.Target. Each tool can be overridden
// through env.Chain: CXX, AR and CXXFLAGS.
func New(opts Options) *Toolchain {
	lookup := env.LookupFunc(opts.Lookup)
	if lookup == nil {
		lookup = os.LookupEnv
	}
	chain := func(name string) (string, bool) {
		return env.Chain(lookup, name, opts.Target, opts.Host)
	}

	tc := &Toolchain{
		Family:  familyOf(opts.Target),
		Jobs:    opts.Jobs,
		target:  opts.Target,
		debug:   opts.Debug,
		defines: opts.Defines,
	}

	cxx, ar := defaultTools(opts.Target)
	if v, ok := chain("CXX"); ok && strings.TrimSpace(v) != "" {
		cxx = v
	}
	if v, ok := chain("AR"); ok && strings.TrimSpace(v) != "" {
		ar = v
	}
	tc.CXX = strings.Fields(cxx)
	tc.AR = strings.Fields(ar)
	if v, ok := chain("CXXFLAGS"); ok {
		tc.ExtraFlags = strings.Fields(v)
	}

	if tc.Jobs <= 0 {
		if v, ok := lookup(env.NumJobs); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				tc.Jobs = n
			}
		}
	}
	if tc.Jobs <= 0 {
		tc.Jobs = runtime.NumCPU()
	}
	return tc
}

func familyOf(target string) Family {
	if strings.Contains(target, "msvc") {
		return MSVC
	}
	return GNU
}

func defaultTools(target string) (cxx, ar string) {
	switch {
	case strings.Contains(target, "msvc"):
		return "cl.exe", "lib.exe"
	case strings.Contains(target, "emscripten"):
		return "em++", "emar"
	default:
		return "c++", "ar"
	}
}

// LibraryFile returns the archive file name for lib.
func (tc *Toolchain) LibraryFile(lib string) string {
	if tc.Family == MSVC {
		return lib + ".lib"
	}
	return "lib" + lib + ".a"
}

func (tc *Toolchain) objectExt() string {
	if tc.Family == MSVC {
		return ".obj"
	}
	return ".o"
}

// BaselineFlags returns the flags every unit is compiled with, excluding
// defines.
func (tc *Toolchain) BaselineFlags() []string {
	if tc.Family == MSVC {
		flags := []string{"/nologo", "/std:c++17", "/w", "/EHsc"}
		if tc.debug {
			return append(flags, "/Od", "/Z7")
		}
		return append(flags, "/O2")
	}

	flags := []string{"-std=c++17", "-w"}
	if !strings.Contains(tc.target, "windows") {
		flags = append(flags, "-fPIC", "-ffunction-sections", "-fdata-sections")
	}
	if tc.debug {
		return append(flags, "-O0", "-g")
	}
	// -fno-math-errno lets the compiler lower sqrt() into a single instruction.
	return append(flags, "-O2", "-fno-math-errno")
}

// BaselineDefines returns the defines every unit is compiled with.
func (tc *Toolchain) BaselineDefines() []buildsys.Define {
	defs := append([]buildsys.Define(nil), tc.defines...)
	if tc.debug {
		return append(defs, buildsys.Define{Name: "LUAU_ENABLE_ASSERT", Value: "1"})
	}
	return append(defs, buildsys.Define{Name: "NDEBUG"})
}

// CompileArgs returns the compiler arguments (without the compiler itself)
// that turn src into obj for u.
func (tc *Toolchain) CompileArgs(u buildsys.Unit, src, obj string) []string {
	args := append([]string(nil), tc.CXX[1:]...)
	args = append(args, tc.BaselineFlags()...)
	args = append(args, tc.ExtraFlags...)

	incFlag, defFlag := "-I", "-D"
	if tc.Family == MSVC {
		incFlag, defFlag = "/I", "/D"
	}
	for _, inc := range u.Includes {
		args = append(args, incFlag+inc)
	}
	for _, d := range tc.BaselineDefines() {
		args = append(args, defFlag+d.String())
	}
	for _, d := range u.Defines {
		args = append(args, defFlag+d.String())
	}

	if tc.Family == MSVC {
		return append(args, "/c", src, "/Fo"+obj)
	}
	return append(args, "-c", src, "-o", obj)
}

// objectNames maps sources to object file names. Names derive from the
// source base names only, so archive member names do not depend on where the
// tree is checked out. A name already taken, compared case-insensitively, gets
// the first free numeric suffix.
func (tc *Toolchain) objectNames(sources []string) []string {
	used := make(map[string]bool, len(sources))
	names := make([]string, len(sources))
	for i, src := range sources {
		base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		name := base
		for n := 1; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		used[strings.ToLower(name)] = true
		names[i] = name + tc.objectExt()
	}
	return names
}

// Compile compiles every source of u in parallel, then archives the objects
// in source order. The first failing file cancels the compiles still running
// and is the one reported.
func (tc *Toolchain) Compile(ctx context.Context, u buildsys.Unit) (buildsys.Artifact, error) {
	fail := func(diag string, err error) (buildsys.Artifact, error) {
		return buildsys.Artifact{}, &buildsys.CompileError{Component: u.Name, Diagnostic: diag, Err: err}
	}
	if len(u.Sources) == 0 {
		return fail("", fmt.Errorf("no source files for %s", u.Library))
	}
	for _, dir := range []string{u.ObjDir, u.OutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail("", err)
		}
	}

	objs := tc.objectNames(u.Sources)
	for i, name := range objs {
		objs[i] = filepath.Join(u.ObjDir, name)
	}

	compileCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		mu    sync.Mutex
		first = -1
	)
	outputs := make([][]byte, len(u.Sources))
	errs := par.Each(tc.Jobs, len(u.Sources), func(i int) error {
		if err := compileCtx.Err(); err != nil {
			return err
		}
		out, err := run(compileCtx, tc.CXX[0], tc.CompileArgs(u, u.Sources[i], objs[i]))
		outputs[i] = out
		if err != nil {
			mu.Lock()
			if first < 0 {
				first = i
			}
			mu.Unlock()
			cancel()
		}
		return err
	})
	if err := ctx.Err(); err != nil {
		return buildsys.Artifact{}, err
	}
	if first >= 0 {
		return fail(string(outputs[first]), fmt.Errorf("%s: %w", filepath.Base(u.Sources[first]), errs[first]))
	}

	lib := filepath.Join(u.OutDir, tc.LibraryFile(u.Library))
	if out, err := tc.archive(ctx, lib, objs); err != nil {
		return fail(string(out), fmt.Errorf("archive %s: %w", filepath.Base(lib), err))
	}
	return buildsys.Artifact{Library: u.Library, Dir: u.OutDir, Path: lib}, nil
}

func (tc *Toolchain) archive(ctx context.Context, lib string, objs []string) ([]byte, error) {
	if err := os.Remove(lib); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if tc.Family == MSVC {
		args := append([]string(nil), tc.AR[1:]...)
		args = append(args, "/nologo", "/OUT:"+lib)
		return run(ctx, tc.AR[0], append(args, objs...))
	}

	// ZERO_AR_DATE makes Apple's ar write deterministic member headers.
	const zeroDate = "ZERO_AR_DATE=1"
	args := append([]string(nil), tc.AR[1:]...)
	args = append(args, "cq", lib)
	if out, err := run(ctx, tc.AR[0], append(args, objs...), zeroDate); err != nil {
		return out, err
	}
	args = append(append([]string(nil), tc.AR[1:]...), "s", lib)
	return run(ctx, tc.AR[0], args, zeroDate)
}

// waitDelay bounds how long a canceled command may keep its output open,
// e.g. through a compiler driver's child processes.
const waitDelay = 2 * time.Second

// run executes bin and returns its combined output. extraEnv entries
// ("KEY=value") override the inherited environment.
func run(ctx context.Context, bin string, args []string, extraEnv ...string) ([]byte, error) {
	log.Debugf("%s %s", bin, strings.Join(args, " "))

	cmd := execabs.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay
	if len(extraEnv) > 0 {
		// Later entries win over duplicates.
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	err := cmd.Run()
	return out.Bytes(), err
}
