package provision

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mmr-tortoise/solo-cook/internal/transport"
)

// syncKitchen mirrors the local kitchen into remotePath.
//
// The remote directory is created and restricted to its owner first,
// then the whole tree is sent in one rsync run with --delete, so files
// removed locally disappear remotely and repeated runs converge to the
// same remote state.
func syncKitchen(ctx context.Context, t Transport, kitchen, remotePath string, exclusions []string) error {
	if err := t.MkdirP(ctx, remotePath); err != nil {
		return syncError(StepSync, errors.Wrapf(err, "failed to create %s", remotePath))
	}
	if err := t.Chmod(ctx, "0700", remotePath); err != nil {
		return syncError(StepSync, errors.Wrapf(err, "failed to restrict %s", remotePath))
	}

	windows, err := t.IsWindowsLike(ctx)
	if err != nil {
		return syncError(StepSync, errors.Wrap(err, "failed to detect the remote platform"))
	}

	result, err := t.Transfer(ctx, transport.TransferRequest{
		Dir:      kitchen,
		Sources:  []string{"./"},
		Dest:     TranslatePath(remotePath, windows),
		Excludes: exclusions,
		Delete:   true,
	})
	return transferError(StepSync, "kitchen", result.Output, err, result.Success)
}

// installPatches copies each file of localDir into remotePatchPath, one
// transfer per file, each timed as its own step. The first failed copy
// aborts; files already copied stay on the target.
func installPatches(ctx context.Context, t Transport, tm *timer, localDir, remotePatchPath string) error {
	if err := t.MkdirP(ctx, remotePatchPath); err != nil {
		return syncError(StepPatches, errors.Wrapf(err, "failed to create %s", remotePatchPath))
	}

	files, err := patchFiles(localDir)
	if err != nil {
		return syncError(StepPatches, err)
	}

	windows, err := t.IsWindowsLike(ctx)
	if err != nil {
		return syncError(StepPatches, errors.Wrap(err, "failed to detect the remote platform"))
	}
	dest := TranslatePath(remotePatchPath, windows)

	for _, name := range files {
		err := tm.Time(ctx, name, func(ctx context.Context) error {
			result, err := t.Transfer(ctx, transport.TransferRequest{
				Dir:     localDir,
				Sources: []string{name},
				Dest:    dest,
			})
			return transferError(StepPatches, name, result.Output, err, result.Success)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// patchFiles lists the regular files directly inside dir, sorted by name.
func patchFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read patch directory %s", dir)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// transferError classifies a finished transfer. Output from a failed
// rsync is attached as detail so the CLI can show it.
func transferError(step, what, output string, err error, success bool) error {
	if err != nil {
		return syncError(step, errors.Mark(errors.Wrapf(err, "failed to sync %s", what), ErrSyncFailed))
	}
	if success {
		return nil
	}
	failure := errors.Wrapf(ErrSyncFailed, "rsync of %s exited non-zero", what)
	if out := strings.TrimSpace(output); out != "" {
		failure = errors.WithDetail(failure, out)
	}
	return syncError(step, failure)
}

func syncError(step string, err error) *StepError {
	if !errors.Is(err, ErrSyncFailed) {
		err = errors.Mark(err, ErrSyncFailed)
	}
	return stepError(ClassSync, step, err)
}
