package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/codecall/internal/sandbox"
)

var (
	runConfigPath string
	runPreset     string
	runAllow      []string
	runSubject    string
	runTimeout    int
	runJSON       bool
)

var runCmd = &cobra.Command{
	Use:   "run <script.js|->",
	Short: "Validate and execute a script in the sandbox",
	Long: `Validate a script against a preset and, when it passes, execute it in
an isolated runtime. Tools become callable from the script only when
named with --allow; everything else is denied. "-" reads the script from
stdin.

Examples:
  codecall run script.js
  codecall run --allow mcp__github__search_issues script.js
  codecall run --preset strict --timeout 10 script.js

Exit codes:
  0  ok
  1  runtime or tool error
  2  rejected (validation, syntax, or illegal access)
  3  timeout`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "config file path (or CODECALL_CONFIG env)")
	runCmd.Flags().StringVar(&runPreset, "preset", "", "validation preset (default from config)")
	runCmd.Flags().StringSliceVar(&runAllow, "allow", nil, "tool names the script may call (repeatable)")
	runCmd.Flags().StringVar(&runSubject, "subject", "", "identity the run is attributed to")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "execution budget in seconds (default from config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit the full outcome as JSON")
}

func runRun(_ *cobra.Command, args []string) error {
	source, err := readSource(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}
	logger := newLogger(verbose)
	c, err := initComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Cleanup()

	req := sandbox.RunRequest{
		Source:    source,
		Preset:    runPreset,
		Allowlist: runAllow,
		Subject:   runSubject,
	}
	if runTimeout > 0 {
		req.Timeout = time.Duration(runTimeout) * time.Second
	}

	outcome, err := c.Sandbox.Run(context.Background(), req)
	if err != nil {
		return err
	}

	printOutcome(outcome)
	os.Exit(exitCodeFor(outcome.Status))
	return nil
}

func printOutcome(outcome sandbox.Outcome) {
	if runJSON {
		out, _ := json.MarshalIndent(outcome, "", "  ")
		fmt.Println(string(out))
		return
	}

	for _, line := range outcome.Logs {
		fmt.Fprintln(os.Stderr, line)
	}
	switch outcome.Status {
	case sandbox.StatusOK:
		if outcome.Value != nil {
			out, _ := json.Marshal(outcome.Value)
			fmt.Println(string(out))
		}
	default:
		fmt.Fprintf(os.Stderr, "%s: %s\n", outcome.Status, outcome.Error)
		for _, issue := range outcome.Issues {
			fmt.Fprintf(os.Stderr, "  %d:%d  %s  %s\n", issue.Line, issue.Column, issue.Code, issue.Message)
		}
		if outcome.ToolError != nil {
			fmt.Fprintf(os.Stderr, "  tool=%s code=%s\n", outcome.ToolError.ToolName, outcome.ToolError.Code)
		}
	}
	fmt.Fprintf(os.Stderr, "[execution_id=%s duration_ms=%d]\n", outcome.ExecutionID, outcome.DurationMS)
}

func exitCodeFor(status sandbox.Status) int {
	switch status {
	case sandbox.StatusOK:
		return ExitSuccess
	case sandbox.StatusTimeout:
		return ExitTimeout
	case sandbox.StatusIllegalAccess, sandbox.StatusSyntaxError:
		return ExitRejected
	default:
		return ExitFailure
	}
}
