package cc

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/luaubuild/pkgs/buildsys"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestNewDefaults(t *testing.T) {
	tests := []struct {
		target string
		family Family
		cxx    string
		ar     string
		lib    string
	}{
		{"x86_64-unknown-linux-gnu", GNU, "c++", "ar", "libluauvm.a"},
		{"aarch64-apple-darwin", GNU, "c++", "ar", "libluauvm.a"},
		{"x86_64-pc-windows-msvc", MSVC, "cl.exe", "lib.exe", "luauvm.lib"},
		{"wasm32-unknown-emscripten", GNU, "em++", "emar", "libluauvm.a"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			tc := New(Options{Target: tt.target, Host: tt.target, Jobs: 1, Lookup: lookupMap(nil)})
			if tc.Family != tt.family {
				t.Errorf("Family = %v, want %v", tc.Family, tt.family)
			}
			if tc.CXX[0] != tt.cxx || tc.AR[0] != tt.ar {
				t.Errorf("tools = %v / %v, want %s / %s", tc.CXX, tc.AR, tt.cxx, tt.ar)
			}
			if got := tc.LibraryFile("luauvm"); got != tt.lib {
				t.Errorf("LibraryFile = %q, want %q", got, tt.lib)
			}
		})
	}
}

func TestNewOverrides(t *testing.T) {
	const target, host = "aarch64-linux-android", "x86_64-unknown-linux-gnu"
	tc := New(Options{
		Target: target,
		Host:   host,
		Lookup: lookupMap(map[string]string{
			"CXX_aarch64_linux_android": "ccache aarch64-linux-android-clang++",
			"CXX":                       "g++",
			"TARGET_AR":                 "llvm-ar",
			"CXXFLAGS":                  "-march=armv8-a  -fno-rtti",
			"NUM_JOBS":                  "3",
		}),
	})
	if diff := cmp.Diff([]string{"ccache", "aarch64-linux-android-clang++"}, tc.CXX); diff != "" {
		t.Errorf("CXX mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"llvm-ar"}, tc.AR); diff != "" {
		t.Errorf("AR mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"-march=armv8-a", "-fno-rtti"}, tc.ExtraFlags); diff != "" {
		t.Errorf("ExtraFlags mismatch (-want +got):\n%s", diff)
	}
	if tc.Jobs != 3 {
		t.Errorf("Jobs = %d, want 3", tc.Jobs)
	}
}

func TestBaselineFlags(t *testing.T) {
	release := New(Options{Target: "x86_64-unknown-linux-gnu", Jobs: 1, Lookup: lookupMap(nil)})
	want := []string{"-std=c++17", "-w", "-fPIC", "-ffunction-sections", "-fdata-sections", "-O2", "-fno-math-errno"}
	if diff := cmp.Diff(want, release.BaselineFlags()); diff != "" {
		t.Errorf("release flags mismatch (-want +got):\n%s", diff)
	}
	if !slices.Contains(release.BaselineDefines(), buildsys.Define{Name: "NDEBUG"}) {
		t.Error("release build does not define NDEBUG")
	}

	debug := New(Options{Target: "x86_64-unknown-linux-gnu", Debug: true, Jobs: 1, Lookup: lookupMap(nil)})
	flags := debug.BaselineFlags()
	if !slices.Contains(flags, "-O0") || slices.Contains(flags, "-fno-math-errno") {
		t.Errorf("debug flags = %v", flags)
	}
	if !slices.Contains(debug.BaselineDefines(), buildsys.Define{Name: "LUAU_ENABLE_ASSERT", Value: "1"}) {
		t.Error("debug build does not enable assertions")
	}

	mingw := New(Options{Target: "x86_64-pc-windows-gnu", Jobs: 1, Lookup: lookupMap(nil)})
	if slices.Contains(mingw.BaselineFlags(), "-fPIC") {
		t.Error("-fPIC passed for a windows target")
	}

	msvc := New(Options{Target: "x86_64-pc-windows-msvc", Jobs: 1, Lookup: lookupMap(nil)})
	if diff := cmp.Diff([]string{"/nologo", "/std:c++17", "/w", "/EHsc", "/O2"}, msvc.BaselineFlags()); diff != "" {
		t.Errorf("msvc flags mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileArgs(t *testing.T) {
	tc := New(Options{
		Target:  "x86_64-unknown-linux-gnu",
		Jobs:    1,
		Defines: []buildsys.Define{{Name: "LUA_VECTOR_SIZE", Value: "4"}},
		Lookup:  lookupMap(map[string]string{"CXX": "ccache c++", "CXXFLAGS": "-g1"}),
	})
	u := buildsys.Unit{
		Name:     "VM",
		Library:  "luauvm",
		Includes: []string{"VM/include", "Common/include"},
		Defines:  []buildsys.Define{{Name: "LUA_API", Value: `extern "C"`}},
	}
	got := tc.CompileArgs(u, "VM/src/lapi.cpp", "obj/lapi.o")
	want := []string{
		"c++",
		"-std=c++17", "-w", "-fPIC", "-ffunction-sections", "-fdata-sections", "-O2", "-fno-math-errno",
		"-g1",
		"-IVM/include", "-ICommon/include",
		"-DLUA_VECTOR_SIZE=4", "-DNDEBUG",
		`-DLUA_API=extern "C"`,
		"-c", "VM/src/lapi.cpp", "-o", "obj/lapi.o",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CompileArgs mismatch (-want +got):\n%s", diff)
	}

	msvc := New(Options{Target: "x86_64-pc-windows-msvc", Jobs: 1, Lookup: lookupMap(nil)})
	got = msvc.CompileArgs(u, `VM\src\lapi.cpp`, `obj\lapi.obj`)
	if got[len(got)-1] != `/Foobj\lapi.obj` || !slices.Contains(got, "/IVM/include") || !slices.Contains(got, `/DLUA_API=extern "C"`) {
		t.Errorf("msvc CompileArgs = %v", got)
	}
}

func TestObjectNamesStable(t *testing.T) {
	tc := New(Options{Target: "x86_64-unknown-linux-gnu", Jobs: 1, Lookup: lookupMap(nil)})
	got := tc.objectNames([]string{
		"/a/Require/Navigator/src/Navigator.cpp",
		"/a/Require/Navigator/src/PathUtilities.cpp",
		"/a/Require/Runtime/src/Navigator.cpp",
		"/a/Require/Runtime/src/Require.cpp",
	})
	want := []string{"Navigator.o", "PathUtilities.o", "Navigator-1.o", "Require.o"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("objectNames mismatch (-want +got):\n%s", diff)
	}

	// Same tree at another location yields the same names.
	moved := tc.objectNames([]string{
		"/b/Require/Navigator/src/Navigator.cpp",
		"/b/Require/Navigator/src/PathUtilities.cpp",
		"/b/Require/Runtime/src/Navigator.cpp",
		"/b/Require/Runtime/src/Require.cpp",
	})
	if diff := cmp.Diff(got, moved); diff != "" {
		t.Errorf("objectNames depend on checkout location:\n%s", diff)
	}
}

func TestObjectNamesSkipTakenNames(t *testing.T) {
	tc := New(Options{Target: "x86_64-unknown-linux-gnu", Jobs: 1, Lookup: lookupMap(nil)})
	tests := []struct {
		sources []string
		want    []string
	}{
		{[]string{"x/a-1.cpp", "y/a.cpp", "z/a.cpp"}, []string{"a-1.o", "a.o", "a-2.o"}},
		{[]string{"x/a.cpp", "y/a.cpp", "z/a-1.cpp"}, []string{"a.o", "a-1.o", "a-1-1.o"}},
		{[]string{"x/Lexer.cpp", "y/lexer.cpp"}, []string{"Lexer.o", "lexer-1.o"}},
	}
	for _, tt := range tests {
		got := tc.objectNames(tt.sources)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("objectNames(%v) mismatch (-want +got):\n%s", tt.sources, diff)
		}
		seen := map[string]bool{}
		for _, name := range got {
			if seen[strings.ToLower(name)] {
				t.Errorf("objectNames(%v) reuses %s", tt.sources, name)
			}
			seen[strings.ToLower(name)] = true
		}
	}
}

func TestCompileNoSources(t *testing.T) {
	tc := New(Options{Target: "x86_64-unknown-linux-gnu", Jobs: 1, Lookup: lookupMap(nil)})
	_, err := tc.Compile(context.Background(), buildsys.Unit{Name: "Empty", Library: "empty"})
	if !errors.Is(err, buildsys.ErrCompilationFailure) {
		t.Fatalf("err = %v, want ErrCompilationFailure", err)
	}
}

func requireTools(t *testing.T) {
	t.Helper()
	for _, tool := range []string{"c++", "ar"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found in PATH", tool)
		}
	}
}

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// fakeCompiler writes a compiler script that fails at once for any argument
// ending in bad.cpp and otherwise hangs.
func fakeCompiler(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
	script := filepath.Join(t.TempDir(), "fake-c++")
	body := `#!/bin/sh
for a; do
	case "$a" in
	*bad.cpp) echo "$a:1:1: error: broken" >&2; exit 1 ;;
	esac
done
exec sleep 30
`
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

func TestCompileFailureCancelsRemainingFiles(t *testing.T) {
	cxx := fakeCompiler(t)
	tests := []struct {
		name    string
		jobs    int
		sources []string
	}{
		// The hanging file is already running and must be killed.
		{"in flight", 2, []string{"slow.cpp", "bad.cpp"}},
		// The hanging file must never start.
		{"pending", 1, []string{"bad.cpp", "slow.cpp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := t.TempDir()
			out := t.TempDir()
			u := buildsys.Unit{
				Name:    "Hang",
				Library: "hang",
				OutDir:  filepath.Join(out, "lib"),
				ObjDir:  filepath.Join(out, "obj"),
			}
			for _, name := range tt.sources {
				u.Sources = append(u.Sources, writeSource(t, src, name, "int f();\n"))
			}
			tc := New(Options{
				Target: "x86_64-unknown-linux-gnu",
				Jobs:   tt.jobs,
				Lookup: lookupMap(map[string]string{"CXX": cxx}),
			})

			start := time.Now()
			_, err := tc.Compile(context.Background(), u)
			if elapsed := time.Since(start); elapsed > 15*time.Second {
				t.Errorf("Compile took %v after the first failure", elapsed)
			}
			var ce *buildsys.CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *CompileError", err)
			}
			if !strings.Contains(ce.Err.Error(), "bad.cpp") || !strings.Contains(ce.Diagnostic, "error: broken") {
				t.Errorf("reported %v with diagnostic %q, want the bad.cpp failure", ce.Err, ce.Diagnostic)
			}
		})
	}
}

func TestCompileE2E(t *testing.T) {
	requireTools(t)

	src := t.TempDir()
	out := t.TempDir()
	u := buildsys.Unit{
		Name:    "Demo",
		Library: "demo",
		Sources: []string{
			writeSource(t, src, "add.cpp", "extern \"C\" int demo_add(int a, int b) { return a + b; }\n"),
			writeSource(t, src, "mul.cpp", "extern \"C\" int demo_mul(int a, int b) { return a * b; }\n"),
		},
		OutDir: filepath.Join(out, "lib"),
		ObjDir: filepath.Join(out, "obj", "demo"),
	}
	tc := New(Options{
		Target: "x86_64-unknown-linux-gnu",
		Host:   "x86_64-unknown-linux-gnu",
		Jobs:   2,
		Lookup: lookupMap(nil),
	})

	art, err := tc.Compile(context.Background(), u)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if art.Library != "demo" || art.Dir != u.OutDir {
		t.Errorf("artifact = %+v", art)
	}
	if want := filepath.Join(u.OutDir, "libdemo.a"); art.Path != want {
		t.Errorf("Path = %q, want %q", art.Path, want)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if !strings.HasPrefix(string(data), "!<arch>\n") {
		t.Errorf("%s is not an ar archive", art.Path)
	}
}

func TestCompileFailureCarriesDiagnostic(t *testing.T) {
	requireTools(t)

	src := t.TempDir()
	out := t.TempDir()
	u := buildsys.Unit{
		Name:    "Broken",
		Library: "broken",
		Sources: []string{
			writeSource(t, src, "ok.cpp", "int ok() { return 1; }\n"),
			writeSource(t, src, "typo.cpp", "int broken( { return }\n"),
		},
		OutDir: filepath.Join(out, "lib"),
		ObjDir: filepath.Join(out, "obj"),
	}
	tc := New(Options{Target: "x86_64-unknown-linux-gnu", Jobs: 2, Lookup: lookupMap(nil)})

	_, err := tc.Compile(context.Background(), u)
	if !errors.Is(err, buildsys.ErrCompilationFailure) {
		t.Fatalf("err = %v, want ErrCompilationFailure", err)
	}
	var ce *buildsys.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("err %T is not a *CompileError", err)
	}
	if ce.Component != "Broken" {
		t.Errorf("Component = %q", ce.Component)
	}
	if !strings.Contains(ce.Diagnostic, "typo.cpp") {
		t.Errorf("Diagnostic does not mention the failing file:\n%s", ce.Diagnostic)
	}
	if _, err := os.Stat(filepath.Join(u.OutDir, "libbroken.a")); !os.IsNotExist(err) {
		t.Errorf("archive written despite failure: %v", err)
	}
}
