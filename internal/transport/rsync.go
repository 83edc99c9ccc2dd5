package transport

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/solo-cook/internal/model"
)

// TransferRequest describes one rsync invocation.
type TransferRequest struct {
	// Dir is the local working directory; Sources are relative to it.
	Dir string

	// Sources are the local paths to send, e.g. "./" for a whole tree.
	Sources []string

	// Dest is the remote path, already translated for the remote shell.
	Dest string

	// Excludes are passed as --exclude rules in order.
	Excludes []string

	// Delete removes remote files that do not exist locally.
	Delete bool
}

// Rsync runs the system rsync binary.
//
// We shell out rather than reimplement the rsync protocol: the remote side
// needs a stock rsync anyway, and the exclusion semantics kitchens rely on
// are rsync's own.
type Rsync struct {
	// Binary is the rsync executable, looked up on PATH.
	Binary string

	logger *zap.Logger
}

// NewRsync returns an Rsync using the "rsync" binary on PATH.
func NewRsync(logger *zap.Logger) *Rsync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rsync{Binary: "rsync", logger: logger}
}

// Args builds the rsync argument list for req, with rsh as the remote
// shell command. Each exclusion pattern is its own argv element, so
// patterns such as ".*" reach rsync without shell expansion.
//
//	-rL --rsh=<rsh> [--delete] [--exclude <p>]... <sources>... :<dest>
func Args(rsh string, req TransferRequest) []string {
	args := []string{"-rL", "--rsh=" + rsh}
	if req.Delete {
		args = append(args, "--delete")
	}
	for _, p := range req.Excludes {
		args = append(args, "--exclude", p)
	}
	args = append(args, req.Sources...)
	args = append(args, ":"+req.Dest)
	return args
}

// Transfer runs rsync for req. A non-zero exit is reported through
// CommandResult.Success with rsync's combined output; an error is returned
// only when rsync could not be started or ctx was canceled.
func (r *Rsync) Transfer(ctx context.Context, rsh string, req TransferRequest) (model.CommandResult, error) {
	if len(req.Sources) == 0 {
		return model.CommandResult{}, errors.New("transfer has no sources")
	}

	args := Args(rsh, req)
	r.logger.Debug(r.Binary+" "+strings.Join(args, " "), zap.String("dir", req.Dir))

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = req.Dir

	// rsync reports progress and errors on both streams; keep them together
	// so a failure can be shown to the operator as-is.
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err == nil {
		return model.CommandResult{Success: true, Output: output.String()}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.CommandResult{Output: output.String()}, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return model.CommandResult{Success: false, Output: output.String()}, nil
	}
	return model.CommandResult{}, errors.Wrapf(err, "failed to run %s", r.Binary)
}
