package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/goplus/luaubuild/internal/buildfile"
	"github.com/goplus/luaubuild/internal/component"
	"github.com/goplus/luaubuild/internal/config"
	"github.com/goplus/luaubuild/pkgs/luau"
)

// Codegen modes accepted by --codegen.
const (
	codegenOn   = "on"
	codegenOff  = "off"
	codegenAuto = "auto"
)

var buildFlags struct {
	target     string
	host       string
	outDir     string
	sourceDir  string
	profile    string
	maxCStack  int
	longjmp    bool
	codegen    string
	vectorSize int
	configFile string
	json       bool
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the Luau libraries",
	Long: `Build removes the output location, compiles every selected component into
a static library and prints the link directives to stdout.

Settings are taken from the environment, then the build file, then flags.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildFlags.target, "target", "", "Target triple (default $TARGET)")
	f.StringVar(&buildFlags.host, "host", "", "Host triple (default $HOST)")
	f.StringVarP(&buildFlags.outDir, "out-dir", "o", "", "Output location, cleared by every build (default $OUT_DIR/luau-build)")
	f.StringVar(&buildFlags.sourceDir, "source", "", "Root of the Luau source tree (default $LUAU_SOURCE_DIR or ./luau)")
	f.StringVar(&buildFlags.profile, "profile", "", "Optimization profile: release or debug (default $PROFILE)")
	f.IntVar(&buildFlags.maxCStack, "max-cstack", config.DefaultMaxCStackSize, "Maximum Lua stack slots a C function can use")
	f.BoolVar(&buildFlags.longjmp, "longjmp", false, "Propagate Lua errors with longjmp instead of C++ exceptions")
	f.StringVar(&buildFlags.codegen, "codegen", codegenOff, "Native code generator: on, off or auto")
	f.IntVar(&buildFlags.vectorSize, "vector-size", config.DefaultVectorSize, "Number of vector components, 3 or 4")
	f.StringVarP(&buildFlags.configFile, "config", "c", "", "HCL build file (default ./"+buildfile.DefaultName+" if present)")
	f.BoolVar(&buildFlags.json, "json", false, "Print the artifacts as JSON")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	l := luau.New()
	if err := configure(l.Config(), cmd.Flags()); err != nil {
		return err
	}
	arts, err := l.Build(cmd.Context())
	if err != nil {
		return err
	}
	return printArtifacts(cmd.OutOrStdout(), arts, buildFlags.json)
}

// configure applies the build file and the flags that were set on b.
func configure(b *config.Builder, flags *pflag.FlagSet) error {
	path := buildFlags.configFile
	if path == "" {
		if _, err := os.Stat(buildfile.DefaultName); err == nil {
			path = buildfile.DefaultName
		}
	}
	if path != "" {
		f, err := buildfile.Load(path)
		if err != nil {
			return err
		}
		f.Apply(b)
	}

	if flags.Changed("target") {
		b.Target(buildFlags.target)
	}
	if flags.Changed("host") {
		b.Host(buildFlags.host)
	}
	if flags.Changed("out-dir") {
		b.OutDir(buildFlags.outDir)
	}
	if flags.Changed("source") {
		b.SourceDir(buildFlags.sourceDir)
	}
	if flags.Changed("profile") {
		b.ProfileName(buildFlags.profile)
	}
	if flags.Changed("max-cstack") {
		b.MaxCStackSize(buildFlags.maxCStack)
	}
	if flags.Changed("longjmp") {
		b.UseLongjmp(buildFlags.longjmp)
	}
	if flags.Changed("vector-size") {
		b.VectorSize(buildFlags.vectorSize)
	}
	if flags.Changed("codegen") {
		return applyCodegen(b, buildFlags.codegen)
	}
	return nil
}

// applyCodegen sets the code generator toggle. In auto mode it is enabled
// exactly when the resolved target supports it.
func applyCodegen(b *config.Builder, mode string) error {
	switch mode {
	case codegenOn:
		b.EnableCodegen(true)
	case codegenOff:
		b.EnableCodegen(false)
	case codegenAuto:
		cfg, err := b.Finalize()
		if err != nil {
			return err
		}
		b.EnableCodegen(component.CodegenSupported(cfg.Target))
	default:
		return fmt.Errorf("%w: --codegen must be on, off or auto, got %q", config.ErrInvalidConfiguration, mode)
	}
	return nil
}

func printArtifacts(w io.Writer, arts *luau.Artifacts, asJSON bool) error {
	if arts == nil {
		return errors.New("no artifacts")
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(arts)
	}
	return arts.Emit(w)
}
