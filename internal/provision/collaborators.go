package provision

import (
	"context"

	"github.com/mmr-tortoise/solo-cook/internal/model"
	"github.com/mmr-tortoise/solo-cook/internal/transport"
)

// Transport is everything the pipeline needs from the connection to the
// target. transport.SSH is the production implementation.
type Transport interface {
	MkdirP(ctx context.Context, path string) error
	Chmod(ctx context.Context, mode, path string) error

	// Run executes a script and captures its output.
	Run(ctx context.Context, script string) (model.CommandResult, error)

	// Stream executes a script, relaying output to the operator live.
	Stream(ctx context.Context, script string) (model.CommandResult, error)

	Transfer(ctx context.Context, req transport.TransferRequest) (model.CommandResult, error)

	// IsWindowsLike reports whether remote paths need /cygdrive translation.
	IsWindowsLike(ctx context.Context) (bool, error)

	// ConnectionArgs formats the target for ssh command lines and hints.
	ConnectionArgs() string
}

// Connector opens a Transport to target. The pipeline calls it only after
// validation has passed, so invalid invocations never touch the network.
type Connector func(target model.Target) (Transport, error)

// KitchenInspector reports on the local kitchen. kitchen.Inspector is the
// production implementation.
type KitchenInspector interface {
	Validate() error
	IgnorePatterns() ([]string, error)
}

// NodeConfigGenerator makes sure the node document exists and returns its
// kitchen-relative path. nodeconfig.Generator is the production implementation.
type NodeConfigGenerator interface {
	Generate(ctx context.Context, target model.Target, jsonPath string) (string, error)
}
