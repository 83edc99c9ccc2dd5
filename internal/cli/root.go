// Package cli implements the cobra-based CLI commands for solo-cook.
//
// Each subcommand (cook, init) is defined in its own file within this
// package. This file defines the root command that serves as the parent
// for all subcommands, handles global flags and turns errors into exit codes.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/solo-cook/internal/model"
	"github.com/mmr-tortoise/solo-cook/internal/provision"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput switches command results and errors to JSON.
	jsonOutput bool

	// verbosity is the -V count. Any value above zero enables step timing,
	// the rsync command line and chef-solo debug logging.
	verbosity int
)

// Version, Commit and Date are injected from the main package at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff0000")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaa00")).Bold(true)
)

// NewRootCommand creates and configures the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "solo-cook",
		Short: "Provision a host with chef-solo over SSH",
		Long: `solo-cook uploads a Chef solo kitchen to a remote host and runs chef-solo there.

A run checks the kitchen, verifies the remote Chef version, prepares the
node config, syncs the kitchen with rsync, installs the bundled patches and
finally runs chef-solo with its output streamed back to the terminal.`,

		// Errors and usage are printed by Execute so that the exit code and
		// the message format stay under our control.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "V", "More verbose output (repeatable)")

	rootCmd.AddCommand(NewCookCommand())
	rootCmd.AddCommand(NewInitCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code mapped from its error.
func Execute(ctx context.Context, rootCmd *cobra.Command) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		os.Exit(int(ExitCodeOf(err)))
	}
}

// ExitCodeOf translates an error into the process exit code.
// A CLIError carries its own code; pipeline failures map by class;
// anything else is a general error.
func ExitCodeOf(err error) model.ExitCode {
	if err == nil {
		return model.ExitSuccess
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}

	if class, ok := provision.ClassOf(err); ok {
		switch class {
		case provision.ClassVersion:
			return model.ExitVersionMismatch
		case provision.ClassSync:
			return model.ExitSyncFailed
		case provision.ClassRun:
			return model.ExitRunFailed
		}
	}
	return model.ExitGeneralError
}

// printError writes err, its hints and its details to w, either as
// "ERROR: ..." text or as a JSON object when --json is set.
func printError(w io.Writer, err error) {
	hints := nonEmpty(errors.GetAllHints(err))
	details := nonEmpty(errors.GetAllDetails(err))

	if jsonOutput {
		errObj := map[string]any{
			"message": err.Error(),
		}
		if class, ok := provision.ClassOf(err); ok {
			errObj["class"] = string(class)
		}
		if len(hints) > 0 {
			errObj["hints"] = hints
		}
		if len(details) > 0 {
			errObj["details"] = details
		}
		data, _ := json.MarshalIndent(map[string]any{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	fmt.Fprintf(w, "%s %s\n", errorStyle.Render("ERROR:"), err.Error())
	for _, d := range details {
		fmt.Fprintln(w, d)
	}
	for _, h := range hints {
		fmt.Fprintln(w, h)
	}
}

// printWarning writes a "WARNING: ..." line to w.
func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warningStyle.Render("WARNING:"), fmt.Sprintf(format, args...))
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
