package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes shared by the validate and run commands.
const (
	ExitSuccess  = 0
	ExitFailure  = 1
	ExitRejected = 2
	ExitTimeout  = 3
)

var (
	validateConfigPath string
	validatePreset     string
	validateJSON       bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <script.js|->",
	Short: "Statically validate a script without executing it",
	Long: `Parse a script and check it against a validation preset. "-" reads
the script from stdin.

Examples:
  codecall validate script.js
  codecall validate --preset strict script.js
  echo "return 1" | codecall validate -

Exit codes:
  0  script is valid
  1  internal error
  2  script rejected`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the available validation presets",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig("")
		if err != nil {
			return err
		}
		logger := newLogger(verbose)
		c, err := initComponents(cfg, logger)
		if err != nil {
			return err
		}
		defer c.Cleanup()
		for _, name := range c.Sandbox.Presets() {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "", "config file path (or CODECALL_CONFIG env)")
	validateCmd.Flags().StringVar(&validatePreset, "preset", "", "validation preset (default from config)")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "emit the result as JSON")
}

func runValidate(_ *cobra.Command, args []string) error {
	source, err := readSource(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(validateConfigPath)
	if err != nil {
		return err
	}
	logger := newLogger(verbose)
	c, err := initComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Cleanup()

	result, err := c.Sandbox.Validate(source, validatePreset)
	if err != nil {
		return err
	}

	if validateJSON {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	} else if result.Valid {
		fmt.Println("valid")
	} else {
		for _, issue := range result.Issues {
			fmt.Fprintf(os.Stderr, "%d:%d  %s  %s\n", issue.Line, issue.Column, issue.Code, issue.Message)
		}
	}

	if !result.Valid {
		os.Exit(ExitRejected)
	}
	return nil
}
