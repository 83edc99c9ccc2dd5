package provision

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/solo-cook/internal/config"
	"github.com/mmr-tortoise/solo-cook/internal/kitchen"
	"github.com/mmr-tortoise/solo-cook/internal/model"
)

// Step names, as they appear in timing output, reports and errors.
const (
	StepRun          = "Run"
	StepValidate     = "Validate"
	StepConnect      = "Connect"
	StepVersionCheck = "Check Chef version"
	StepNodeConfig   = "Generate node config"
	StepSync         = "Rsync kitchen"
	StepPatches      = "Add patches"
	StepCook         = "Cook"
)

// State is a position in the pipeline's state machine.
type State string

const (
	StateInit            State = "Init"
	StateValidated       State = "Validated"
	StateVersionChecked  State = "VersionChecked"
	StateNodeConfigReady State = "NodeConfigReady"
	StateSynced          State = "Synced"
	StatePatched         State = "Patched"
	StateRan             State = "Ran"
	StateDone            State = "Done"
	StateFailed          State = "Failed"
)

// Request is the immutable input of one pipeline run.
type Request struct {
	// Destination is the raw [USER@]HOSTNAME argument.
	Destination string

	// NodeConfigPath is the optional JSON argument; empty selects
	// nodes/<host>.json.
	NodeConfigPath string

	// Kitchen is the local kitchen directory.
	Kitchen string

	// Solo holds the solo.rb settings: remote path, cache path and
	// cookbook paths.
	Solo config.SoloConfig

	// PatchDir is the local directory whose files are installed as patches.
	PatchDir string

	Options model.RunOptions
}

// Report records what a run did.
type Report struct {
	// States lists every state entered, in order, starting with Init.
	States []State

	// Timings holds the duration of each timed step in completion order.
	Timings []Timing

	// FailedStep names the step that failed; empty on success.
	FailedStep string

	// NodeConfig is the kitchen-relative node document used for the run.
	NodeConfig string
}

// Final returns the last state entered.
func (r *Report) Final() State {
	if len(r.States) == 0 {
		return StateInit
	}
	return r.States[len(r.States)-1]
}

func (r *Report) enter(s State) {
	r.States = append(r.States, s)
}

// Pipeline provisions one target: validate, check the Chef version,
// prepare the node config, sync the kitchen, install patches and run
// chef-solo. The first failing step ends the run.
type Pipeline struct {
	Inspector  KitchenInspector
	NodeConfig NodeConfigGenerator
	Connect    Connector
	Gate       *VersionGate

	Logger *zap.Logger
	Clock  Clock
	Tracer trace.Tracer
}

// Run executes the pipeline for req. The returned report is always
// non-nil. On failure the error is a *StepError, returned as produced by
// the failing step.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	report := &Report{}
	report.enter(StateInit)
	tm := newTimer(req.Options.Debug(), p.Clock, logger, p.Tracer, report)

	var failedStep string
	err := tm.Time(ctx, StepRun, func(ctx context.Context) error {
		var stepErr *StepError
		err := p.run(ctx, req, tm, report, logger)
		if errors.As(err, &stepErr) {
			failedStep = stepErr.Step
		}
		return err
	})
	if err != nil {
		report.FailedStep = failedStep
		report.enter(StateFailed)
		return report, err
	}

	report.enter(StateDone)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, tm *timer, report *Report, logger *zap.Logger) error {
	// Step 1: Validate. Nothing below runs, and no connection is opened,
	// unless these checks pass.
	target, err := validate(req, p.Inspector)
	if err != nil {
		return err
	}
	report.enter(StateValidated)

	t, err := p.Connect(target)
	if err != nil {
		return stepError(ClassValidation, StepConnect, errors.Wrapf(err, "failed to set up a connection to %s", target.Host))
	}

	// Step 2: Check the Chef version unless told to skip it.
	if !req.Options.SkipVersionCheck {
		gate := p.Gate
		if gate == nil {
			if gate, err = NewVersionGate(DefaultChefConstraint); err != nil {
				return stepError(ClassVersion, StepVersionCheck, err)
			}
		}
		err := tm.Time(ctx, StepVersionCheck, func(ctx context.Context) error {
			return gate.Check(ctx, t, target.Host, logger)
		})
		if err != nil {
			return err
		}
	}
	report.enter(StateVersionChecked)

	// Step 3: Make sure the node document exists locally so it is synced
	// along with the kitchen.
	err = tm.Time(ctx, StepNodeConfig, func(ctx context.Context) error {
		name, err := p.NodeConfig.Generate(ctx, target, req.NodeConfigPath)
		if err != nil {
			return stepError(ClassValidation, StepNodeConfig, err)
		}
		report.NodeConfig = name
		return nil
	})
	if err != nil {
		return err
	}
	report.enter(StateNodeConfigReady)

	// Step 4: Sync the kitchen.
	exclusions, err := kitchen.BuildExclusions(p.Inspector)
	if err != nil {
		return syncError(StepSync, errors.Wrap(err, "failed to read chefignore"))
	}
	if kitchen.Excluded(report.NodeConfig, exclusions) {
		logger.Warn("node config is excluded from sync; chef-solo will not find it on the target",
			zap.String("path", report.NodeConfig))
	}
	err = tm.Time(ctx, StepSync, func(ctx context.Context) error {
		return syncKitchen(ctx, t, req.Kitchen, req.Solo.SoloPath, exclusions)
	})
	if err != nil {
		return err
	}
	report.enter(StateSynced)

	// Step 5: Install patches. Each file is timed on its own.
	if err := installPatches(ctx, t, tm, req.PatchDir, req.Solo.PatchPath()); err != nil {
		return err
	}
	report.enter(StatePatched)

	// Step 6: Run chef-solo unless only syncing.
	if req.Options.SyncOnly {
		return nil
	}
	err = tm.Time(ctx, StepCook, func(ctx context.Context) error {
		return cook(ctx, t, req.Solo.SoloPath, report.NodeConfig, req.Options)
	})
	if err != nil {
		return err
	}
	report.enter(StateRan)
	return nil
}
