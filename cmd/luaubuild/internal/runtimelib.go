package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/luaubuild/internal/env"
	"github.com/goplus/luaubuild/internal/runtimelib"
)

var runtimeLibFlags struct {
	target string
	host   string
}

var runtimeLibCmd = &cobra.Command{
	Use:   "runtime-lib",
	Short: "Print the C++ runtime library for a target",
	Long: `Runtime-lib prints the C++ runtime library a target links against, honoring
the CXXSTDLIB overrides. Nothing is printed when no library is linked.`,
	Args: cobra.NoArgs,
	RunE: runRuntimeLib,
}

func init() {
	runtimeLibCmd.Flags().StringVar(&runtimeLibFlags.target, "target", "", "Target triple (default $TARGET)")
	runtimeLibCmd.Flags().StringVar(&runtimeLibFlags.host, "host", "", "Host triple (default $HOST, or the target)")
	rootCmd.AddCommand(runtimeLibCmd)
}

func runRuntimeLib(cmd *cobra.Command, args []string) error {
	d := env.Load()
	target, host := runtimeLibFlags.target, runtimeLibFlags.host
	if target == "" {
		target = d.Target
	}
	if host == "" {
		host = d.Host
	}
	if host == "" {
		host = target
	}
	if target == "" {
		return fmt.Errorf("target not set (use --target or $%s)", env.Target)
	}
	if lib, ok := runtimelib.Resolve(target, host); ok {
		fmt.Fprintln(cmd.OutOrStdout(), lib)
	}
	return nil
}
