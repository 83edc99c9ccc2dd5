// Package model defines the domain types and value objects for the
// solo-cook CLI.
//
// This package contains pure data structures with no external dependencies:
// the provisioning Target, the per-run RunOptions snapshot, and the
// CommandResult returned by every external process.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
