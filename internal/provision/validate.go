package provision

import (
	"github.com/cockroachdb/errors"

	"github.com/mmr-tortoise/solo-cook/internal/config"
	"github.com/mmr-tortoise/solo-cook/internal/model"
)

// validate runs the fail-fast checks that precede any remote activity,
// in order: destination, kitchen layout, remote path set, remote path
// distinct from the cache path. The first failure is returned.
func validate(req Request, inspector KitchenInspector) (model.Target, error) {
	target, err := model.ParseTarget(req.Destination)
	if err != nil {
		return model.Target{}, validationError(errors.Mark(
			errors.Wrapf(err, "invalid destination %q", req.Destination),
			ErrInvalidHostname,
		))
	}

	if err := inspector.Validate(); err != nil {
		return model.Target{}, validationError(errors.Mark(
			errors.Wrap(err, ErrKitchenStructureInvalid.Error()),
			ErrKitchenStructureInvalid,
		))
	}

	if req.Solo.SoloPath == "" {
		return model.Target{}, validationError(errors.WithHint(
			errors.WithStack(ErrRemotePathUnset),
			"Check that your solo.rb file is present and looks like this example:\n\n"+config.SoloTemplate,
		))
	}

	// Syncing with --delete into chef-solo's own cache would wipe it on
	// every run.
	if req.Solo.SoloPath == req.Solo.FileCachePath {
		return model.Target{}, validationError(errors.WithHint(
			errors.WithStack(ErrRemotePathConflict),
			"Otherwise you may run into errors on subsequent chef-solo runs. "+
				"Please ensure that your solo.rb file looks like this template:\n\n"+config.SoloTemplate,
		))
	}

	return target, nil
}

func validationError(err error) *StepError {
	return stepError(ClassValidation, StepValidate, err)
}
