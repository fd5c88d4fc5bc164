// Package luau builds the Luau native libraries from a build script or any
// other Go program.
//
//	arts, err := luau.New().
//		EnableCodegen(true).
//		VectorSize(4).
//		Build(ctx)
//
// Target, host and output location default to $TARGET, $HOST and
// $OUT_DIR/luau-build. On success Emit prints the link directives for the
// invoking build coordinator.
package luau

import (
	"context"

	"github.com/goplus/luaubuild/internal/build"
	"github.com/goplus/luaubuild/internal/config"
	"github.com/goplus/luaubuild/internal/manifest"
)

// Version is the package version the derived Luau version is taken from.
const Version = "0.12.0+luau653"

// Artifacts lists the libraries and directories of a finished build.
type Artifacts = manifest.Manifest

// Builder configures a Luau build.
type Builder struct {
	b *config.Builder
}

// New returns a Builder with the defaults: codegen disabled, C++ exceptions,
// vector size 3, max C stack size 100000.
func New() *Builder {
	return &Builder{b: config.FromEnv().PackageVersion(Version)}
}

func (l *Builder) Target(target string) *Builder {
	l.b.Target(target)
	return l
}

func (l *Builder) Host(host string) *Builder {
	l.b.Host(host)
	return l
}

// OutDir sets the output location. Its contents are removed by Build.
func (l *Builder) OutDir(dir string) *Builder {
	l.b.OutDir(dir)
	return l
}

// SourceDir sets the root of the Luau source tree.
func (l *Builder) SourceDir(dir string) *Builder {
	l.b.SourceDir(dir)
	return l
}

func (l *Builder) MaxCStackSize(size int) *Builder {
	l.b.MaxCStackSize(size)
	return l
}

// UseLongjmp propagates Lua errors with longjmp instead of C++ exceptions.
func (l *Builder) UseLongjmp(use bool) *Builder {
	l.b.UseLongjmp(use)
	return l
}

// EnableCodegen builds the native code generator. Build fails on targets
// that cannot run it.
func (l *Builder) EnableCodegen(enable bool) *Builder {
	l.b.EnableCodegen(enable)
	return l
}

// VectorSize sets the number of vector components, 3 or 4.
func (l *Builder) VectorSize(size int) *Builder {
	l.b.VectorSize(size)
	return l
}

// Profile selects "release" or "debug".
func (l *Builder) Profile(name string) *Builder {
	l.b.ProfileName(name)
	return l
}

// Config exposes the underlying builder, for callers such as the build file
// loader that set several values at once.
func (l *Builder) Config() *config.Builder {
	return l.b
}

// Build validates the configuration, compiles every selected component and
// returns the artifacts. Nothing is written when the configuration is
// invalid.
func (l *Builder) Build(ctx context.Context) (*Artifacts, error) {
	cfg, err := l.b.Finalize()
	if err != nil {
		return nil, err
	}
	return build.NewBuilder(cfg, build.Options{}).Build(ctx)
}
