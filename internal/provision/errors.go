package provision

import (
	"github.com/cockroachdb/errors"
)

// Class groups step failures by how the operator should react to them.
// The CLI maps each class to its own exit code.
type Class string

const (
	// ClassValidation covers problems with the local invocation: bad
	// destination, malformed kitchen, bad solo.rb settings.
	ClassValidation Class = "ValidationError"

	// ClassVersion means the target lacks a compatible Chef.
	ClassVersion Class = "VersionError"

	// ClassSync covers failures while copying the kitchen or patches.
	ClassSync Class = "SyncError"

	// ClassRun means chef-solo itself failed on the target.
	ClassRun Class = "RunError"
)

// Sentinel causes, matchable with errors.Is on any error the pipeline returns.
var (
	ErrInvalidHostname         = errors.New("first argument must be [USER@]HOSTNAME")
	ErrKitchenStructureInvalid = errors.New("this command must be run inside a Chef solo kitchen")
	ErrRemotePathUnset         = errors.New("knife[:solo_path] needs to be set in solo.rb")
	ErrRemotePathConflict      = errors.New("knife[:solo_path] should be different from file_cache_path in solo.rb")
	ErrVersionMismatch         = errors.New("chef version mismatch")
	ErrSyncFailed              = errors.New("sync failed")
	ErrRunFailed               = errors.New("chef-solo failed. See output above.")
)

// StepError is the terminal error of a pipeline run: which step failed,
// its class, and the cause.
type StepError struct {
	Class Class
	Step  string
	Err   error
}

// Error returns the cause's message; the step name is carried separately
// so the CLI can print the cause as the operator-facing message.
func (e *StepError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the cause so errors.Is and errors.As see through StepError.
func (e *StepError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of the StepError in err's chain, if any.
func ClassOf(err error) (Class, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Class, true
	}
	return "", false
}

func stepError(class Class, step string, err error) *StepError {
	return &StepError{Class: class, Step: step, Err: err}
}
