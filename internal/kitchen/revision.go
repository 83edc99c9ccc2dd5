package kitchen

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
)

// Revision identifies the git commit a kitchen was cooked from.
type Revision struct {
	Commit string
	// Dirty is set when the work tree has uncommitted changes.
	Dirty bool
}

// String returns the abbreviated commit, suffixed with "-dirty" when needed.
func (r *Revision) String() string {
	commit := r.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if r.Dirty {
		return commit + "-dirty"
	}
	return commit
}

// ReadRevision returns the kitchen's git revision. A kitchen outside a git
// work tree, one without commits, or a missing git binary yields nil, nil.
func ReadRevision(ctx context.Context, root string) (*Revision, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, nil
	}
	if out, err := runGit(ctx, root, "rev-parse", "--is-inside-work-tree"); err != nil || out != "true" {
		return nil, nil
	}

	commit, err := runGit(ctx, root, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		return nil, nil
	}

	status, err := runGit(ctx, root, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return &Revision{Commit: commit, Dirty: status != ""}, nil
}

// runGit runs git against dir and returns its trimmed stdout. Stderr is
// folded into the error on failure.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204 -- args are constructed internally
	cmd := exec.CommandContext(ctx, "git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if s := strings.TrimSpace(stderr.String()); s != "" {
			message = fmt.Sprintf("%s: %s", message, s)
		}
		return "", errors.Wrap(err, message)
	}
	return strings.TrimSpace(stdout.String()), nil
}
