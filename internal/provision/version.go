package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	version "github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

// DefaultChefConstraint is the oldest Chef release the pipeline supports.
const DefaultChefConstraint = ">=0.10.4"

// Omnibus installs keep their own Ruby outside the default PATH; the
// probe looks there as well.
var (
	OmnibusBinPaths = []string{"/opt/chef/embedded/bin", "/opt/opscode/embedded/bin"}
	OmnibusGemPaths = []string{"/opt/chef/embedded/lib/ruby/gems/1.9.1", "/opt/opscode/embedded/lib/ruby/gems/1.9.1"}
)

// VersionGate checks that the target's Chef gem satisfies a constraint.
type VersionGate struct {
	constraints version.Constraints
}

// NewVersionGate parses constraint (RubyGems syntax such as ">=0.10.4"
// or "~> 11.0, < 11.8"). Malformed constraints are rejected here rather
// than on the target.
func NewVersionGate(constraint string) (*VersionGate, error) {
	constraints, err := version.NewConstraint(constraint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid Chef version constraint %q", constraint)
	}
	return &VersionGate{constraints: constraints}, nil
}

// Constraint returns the constraint in its original form.
func (g *VersionGate) Constraint() string {
	return g.constraints.String()
}

// Script returns the remote probe. It exits non-zero when no Chef gem
// matching the constraint can be activated.
func (g *VersionGate) Script() string {
	requirements := make([]string, 0, len(g.constraints))
	for _, c := range g.constraints {
		requirements = append(requirements, "'"+strings.TrimSpace(c.String())+"'")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "export PATH=\"%s:$PATH\"\n", strings.Join(OmnibusBinPaths, ":"))
	fmt.Fprintf(&b, "export GEM_PATH=\"%s:$GEM_PATH\"\n", strings.Join(OmnibusGemPaths, ":"))
	fmt.Fprintf(&b, "ruby -e \"require 'rubygems'; gem 'chef', %s\"\n", strings.Join(requirements, ", "))
	return b.String()
}

// Check runs the probe on t. A probe that runs but fails is reported as
// ErrVersionMismatch with a hint to run prepare against the same target.
func (g *VersionGate) Check(ctx context.Context, t Transport, host string, logger *zap.Logger) error {
	logger.Info("Checking Chef version...")

	result, err := t.Run(ctx, g.Script())
	if err != nil {
		return stepError(ClassVersion, StepVersionCheck, errors.Wrap(err, "unable to run the Chef version probe"))
	}
	if !result.Success {
		logger.Debug("version probe failed", zap.String("output", strings.TrimSpace(result.Output)))
		return stepError(ClassVersion, StepVersionCheck, errors.WithHintf(
			errors.Wrapf(ErrVersionMismatch, "couldn't find Chef %s on %s", g.Constraint(), host),
			"Please run \"solo-cook prepare %s\" to ensure Chef is installed and up to date.", t.ConnectionArgs(),
		))
	}
	return nil
}
