package provision

import (
	"context"
	"path"

	"github.com/cockroachdb/errors"

	"github.com/mmr-tortoise/solo-cook/internal/config"
	"github.com/mmr-tortoise/solo-cook/internal/model"
	"github.com/mmr-tortoise/solo-cook/internal/transport"
)

// ChefCommand builds the chef-solo invocation against the synced kitchen:
//
//	sudo chef-solo -c <remote>/solo.rb -j <remote>/<node> [-l debug] [-N name] [-W]
//
// Every argument is shell-quoted for the remote side; a leading ~ in the
// remote path stays expandable.
func ChefCommand(remotePath, nodeConfig string, opts model.RunOptions) (string, error) {
	args := []string{
		"sudo", "chef-solo",
		"-c", path.Join(remotePath, config.SoloFile),
		"-j", path.Join(remotePath, nodeConfig),
	}
	if opts.Debug() {
		args = append(args, "-l", "debug")
	}
	if opts.NodeName != "" {
		args = append(args, "-N", opts.NodeName)
	}
	if opts.WhyRun {
		args = append(args, "-W")
	}
	return transport.Join(args...)
}

// cook runs chef-solo with output streamed to the operator. Because the
// output has already been shown, a failure only points back at it.
func cook(ctx context.Context, t Transport, remotePath, nodeConfig string, opts model.RunOptions) error {
	cmd, err := ChefCommand(remotePath, nodeConfig, opts)
	if err != nil {
		return stepError(ClassRun, StepCook, err)
	}

	result, err := t.Stream(ctx, cmd)
	if err != nil {
		return stepError(ClassRun, StepCook, errors.Mark(errors.Wrap(err, "unable to run chef-solo"), ErrRunFailed))
	}
	if !result.Success {
		return stepError(ClassRun, StepCook, errors.WithStack(ErrRunFailed))
	}
	return nil
}
