// Package model defines the domain types for the solo-cook CLI.
//
// All entities in this package are constructed fresh for one invocation of
// the provisioning pipeline and discarded when it ends. The remote state the
// pipeline produces is an external effect and is never tracked here.
package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Target identifies the single host a run provisions.
// It is parsed once from the "[user@]hostname" positional argument and
// never modified afterwards.
type Target struct {
	// User is the remote login name. Empty means "let ssh decide"
	// (ssh config, or the local user name).
	User string `json:"user,omitempty"`

	// Host is the hostname or IP address of the target.
	Host string `json:"host"`

	// Port is the SSH port. Zero means the transport default (22).
	Port int `json:"port,omitempty"`
}

// hostRegex accepts DNS names, IPv4 addresses and bracketless IPv6 literals.
// Anything with whitespace, shell metacharacters or an empty label is rejected.
var hostRegex = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._:-]*[A-Za-z0-9])?$`)

// userRegex mirrors the POSIX portable user name character set.
var userRegex = regexp.MustCompile(`^[A-Za-z0-9._][A-Za-z0-9._-]*$`)

// ParseTarget converts a "[user@]hostname[:port]" string into a Target.
//
// The port suffix is only recognized when the host part contains a single
// colon, so IPv6 literals like "fe80::1" are kept intact.
//
// Examples:
//
//	"example.com"           → {Host: "example.com"}
//	"ubuntu@10.0.0.5"       → {User: "ubuntu", Host: "10.0.0.5"}
//	"deploy@web-1:2222"     → {User: "deploy", Host: "web-1", Port: 2222}
func ParseTarget(s string) (Target, error) {
	if s == "" {
		return Target{}, fmt.Errorf("hostname must not be empty")
	}

	var t Target
	hostPart := s
	if user, host, ok := strings.Cut(s, "@"); ok {
		if !userRegex.MatchString(user) {
			return Target{}, fmt.Errorf("invalid user in %q", s)
		}
		t.User = user
		hostPart = host
	}

	if strings.Count(hostPart, ":") == 1 {
		host, portStr, _ := strings.Cut(hostPart, ":")
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return Target{}, fmt.Errorf("invalid port in %q", s)
		}
		t.Port = port
		hostPart = host
	}

	if !hostRegex.MatchString(hostPart) {
		return Target{}, fmt.Errorf("invalid hostname %q: expected [user@]hostname", s)
	}
	t.Host = hostPart
	return t, nil
}

// Login returns the "user@host" (or bare "host") form used on ssh command lines.
func (t Target) Login() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}

// String returns the target in the same form ParseTarget accepts.
func (t Target) String() string {
	if t.Port == 0 {
		return t.Login()
	}
	return fmt.Sprintf("%s:%d", t.Login(), t.Port)
}

// RunOptions is the immutable snapshot of per-invocation switches
// that influence which pipeline steps run and how chef-solo is invoked.
type RunOptions struct {
	// SkipVersionCheck disables the remote Chef version probe.
	SkipVersionCheck bool `json:"skipVersionCheck"`

	// SyncOnly stops the pipeline after the kitchen and patches are synced.
	SyncOnly bool `json:"syncOnly"`

	// WhyRun asks chef-solo to report changes without applying them.
	WhyRun bool `json:"whyRun"`

	// NodeName overrides the chef node name (-N). Empty means unset.
	NodeName string `json:"nodeName,omitempty"`

	// Verbosity is the -V count. Any value above zero enables step timing,
	// command echoing and chef-solo debug logging.
	Verbosity int `json:"verbosity"`
}

// Debug reports whether verbose diagnostics are enabled.
func (o RunOptions) Debug() bool {
	return o.Verbosity > 0
}

// CommandResult is the only data returned by an external process:
// whether it exited successfully and, when captured, what it printed.
// The pipeline branches on Success alone.
type CommandResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
}

// ExitCode defines the process exit codes of the CLI.
// These codes allow scripts and CI systems to tell which step failed.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError covers validation failures (bad hostname, malformed
	// kitchen, unset or conflicting solo_path) and unclassified errors.
	ExitGeneralError ExitCode = 1

	// ExitVersionMismatch indicates the remote Chef toolchain did not
	// satisfy the version constraint.
	ExitVersionMismatch ExitCode = 2

	// ExitSyncFailed indicates the kitchen or patch transfer failed.
	ExitSyncFailed ExitCode = 3

	// ExitRunFailed indicates chef-solo exited non-zero on the target.
	ExitRunFailed ExitCode = 4
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
