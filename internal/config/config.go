// Package config resolves and validates the parameters of a Luau build.
//
// A Builder collects settings through chained setters, falling back to
// environment defaults for the target, host and output location. Finalize
// validates everything once and returns an immutable Config.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/goplus/luaubuild/internal/env"
)

var (
	// ErrMissingConfiguration is returned by Finalize when a required
	// setting has neither been set nor found in the environment.
	ErrMissingConfiguration = errors.New("missing configuration")

	// ErrInvalidConfiguration is returned by Finalize when a setting is out
	// of range.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Default values.
const (
	DefaultMaxCStackSize = 100000
	DefaultVectorSize    = 3
	DefaultSourceDir     = "luau"
)

// Exceptions selects how Lua errors propagate through native frames.
type Exceptions int

const (
	// Unwind uses C++ exceptions.
	Unwind Exceptions = iota
	// Longjmp uses setjmp/longjmp.
	Longjmp
)

func (e Exceptions) String() string {
	if e == Longjmp {
		return "longjmp"
	}
	return "unwind"
}

// Profile selects the optimization tier.
type Profile int

const (
	Release Profile = iota
	Debug
)

func (p Profile) String() string {
	if p == Debug {
		return "debug"
	}
	return "release"
}

// ParseProfile maps "release"/"debug" (case-insensitive) to a Profile.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(s) {
	case "release":
		return Release, nil
	case "debug":
		return Debug, nil
	}
	return Release, fmt.Errorf("%w: unknown profile %q", ErrInvalidConfiguration, s)
}

// Config is a finalized build configuration. It is passed by value and never
// modified after Finalize returns it.
type Config struct {
	Target         string
	Host           string
	OutDir         string
	SourceDir      string
	MaxCStackSize  int
	Exceptions     Exceptions
	Codegen        bool
	VectorSize     int
	Profile        Profile
	PackageVersion string
}

// CrossCompiling reports whether target and host differ.
func (c Config) CrossCompiling() bool {
	return c.Target != c.Host
}

// CheckOutDir fails when resetting OutDir would remove SourceDir, that is
// when OutDir is SourceDir or one of its ancestors.
func (c Config) CheckOutDir() error {
	out, err := filepath.Abs(c.OutDir)
	if err != nil {
		return fmt.Errorf("%w: output directory %s: %w", ErrInvalidConfiguration, c.OutDir, err)
	}
	src, err := filepath.Abs(c.SourceDir)
	if err != nil {
		return fmt.Errorf("%w: source directory %s: %w", ErrInvalidConfiguration, c.SourceDir, err)
	}
	rel, err := filepath.Rel(out, src)
	if err != nil {
		// Different volumes.
		return nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	return fmt.Errorf("%w: output directory %s contains source directory %s and would be removed by the build",
		ErrInvalidConfiguration, out, src)
}

// ValidPackageVersion reports whether v is a full semantic version such as
// "0.12.0+luau653". A leading "v" is accepted.
func ValidPackageVersion(v string) bool {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	// Canonical drops build metadata and expands shorthands like "v0.12".
	return semver.IsValid(v) && semver.Canonical(v)+semver.Build(v) == v
}

// Builder accumulates settings for a Config.
type Builder struct {
	defaults env.Defaults

	target, host, outDir, sourceDir *string

	maxCStackSize  int
	exceptions     Exceptions
	codegen        bool
	vectorSize     int
	profile        *Profile
	profileErr     error
	packageVersion string
}

// New returns a Builder with fixed defaults and no environment fallback.
func New() *Builder {
	return &Builder{
		maxCStackSize: DefaultMaxCStackSize,
		vectorSize:    DefaultVectorSize,
	}
}

// FromEnv returns a Builder that falls back to the process environment.
func FromEnv() *Builder {
	return New().Defaults(env.Load())
}

// Defaults sets the values used for settings that are never set explicitly.
func (b *Builder) Defaults(d env.Defaults) *Builder {
	b.defaults = d
	return b
}

func (b *Builder) Target(target string) *Builder {
	b.target = &target
	return b
}

func (b *Builder) Host(host string) *Builder {
	b.host = &host
	return b
}

// OutDir sets the output location. It is removed and recreated by every
// build.
func (b *Builder) OutDir(dir string) *Builder {
	b.outDir = &dir
	return b
}

// SourceDir sets the root of the Luau source tree.
func (b *Builder) SourceDir(dir string) *Builder {
	b.sourceDir = &dir
	return b
}

// MaxCStackSize sets the maximum number of Lua stack slots a C function can
// use.
func (b *Builder) MaxCStackSize(size int) *Builder {
	b.maxCStackSize = size
	return b
}

func (b *Builder) Exceptions(e Exceptions) *Builder {
	b.exceptions = e
	return b
}

// UseLongjmp selects longjmp instead of C++ exceptions.
func (b *Builder) UseLongjmp(use bool) *Builder {
	if use {
		return b.Exceptions(Longjmp)
	}
	return b.Exceptions(Unwind)
}

// EnableCodegen requests the native code generator.
func (b *Builder) EnableCodegen(enable bool) *Builder {
	b.codegen = enable
	return b
}

// VectorSize sets the number of vector components, 3 or 4. Other values are
// reported by Finalize.
func (b *Builder) VectorSize(size int) *Builder {
	b.vectorSize = size
	return b
}

func (b *Builder) Profile(p Profile) *Builder {
	b.profile = &p
	b.profileErr = nil
	return b
}

// ProfileName is like Profile but parses the name; a bad name is reported by
// Finalize.
func (b *Builder) ProfileName(name string) *Builder {
	p, err := ParseProfile(name)
	b.profile = &p
	b.profileErr = err
	return b
}

// PackageVersion sets the version the derived Luau version is computed from.
func (b *Builder) PackageVersion(v string) *Builder {
	b.packageVersion = v
	return b
}

// Finalize validates the settings and returns the Config.
func (b *Builder) Finalize() (Config, error) {
	cfg := Config{
		Target:         pick(b.target, b.defaults.Target),
		Host:           pick(b.host, b.defaults.Host),
		OutDir:         pick(b.outDir, b.defaults.OutDir),
		SourceDir:      pick(b.sourceDir, b.defaults.SourceDir),
		MaxCStackSize:  b.maxCStackSize,
		Exceptions:     b.exceptions,
		Codegen:        b.codegen,
		VectorSize:     b.vectorSize,
		PackageVersion: b.packageVersion,
	}
	if cfg.SourceDir == "" {
		cfg.SourceDir = DefaultSourceDir
	}

	for _, req := range []struct {
		val, name, env string
	}{
		{cfg.Target, "target", env.Target},
		{cfg.Host, "host", env.Host},
		{cfg.OutDir, "output directory", env.OutDir},
	} {
		if req.val == "" {
			return Config{}, fmt.Errorf("%w: %s not set (set it explicitly or via $%s)", ErrMissingConfiguration, req.name, req.env)
		}
	}

	if cfg.VectorSize != 3 && cfg.VectorSize != 4 {
		return Config{}, fmt.Errorf("%w: vector size must be 3 or 4, got %d", ErrInvalidConfiguration, cfg.VectorSize)
	}
	if cfg.MaxCStackSize <= 0 {
		return Config{}, fmt.Errorf("%w: max C stack size must be positive, got %d", ErrInvalidConfiguration, cfg.MaxCStackSize)
	}
	if cfg.Exceptions != Unwind && cfg.Exceptions != Longjmp {
		return Config{}, fmt.Errorf("%w: unknown exception strategy %d", ErrInvalidConfiguration, cfg.Exceptions)
	}
	if cfg.PackageVersion != "" && !ValidPackageVersion(cfg.PackageVersion) {
		return Config{}, fmt.Errorf("%w: package version %q is not a semantic version", ErrInvalidConfiguration, cfg.PackageVersion)
	}
	if err := cfg.CheckOutDir(); err != nil {
		return Config{}, err
	}

	switch {
	case b.profileErr != nil:
		return Config{}, b.profileErr
	case b.profile != nil:
		cfg.Profile = *b.profile
	case b.defaults.Profile != "":
		p, err := ParseProfile(b.defaults.Profile)
		if err != nil {
			return Config{}, fmt.Errorf("$%s: %w", env.Profile, err)
		}
		cfg.Profile = p
	}
	return cfg, nil
}

func pick(set *string, fallback string) string {
	if set != nil {
		return *set
	}
	return fallback
}
