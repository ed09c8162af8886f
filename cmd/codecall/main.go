// codecall is a sandboxed execution surface for agent-submitted scripts.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "codecall",
	Short: "Validate and execute agent-submitted scripts in a sandbox",
	Long: `codecall runs untrusted JavaScript inside an isolated engine with no
ambient authority. Scripts are statically validated against a rule preset
before execution, and the only way out of the sandbox is callTool, which
enforces a per-run allowlist and returns sanitized errors.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.AddCommand(validateCmd, runCmd, presetsCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
