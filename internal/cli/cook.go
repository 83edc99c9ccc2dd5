// Package cli: cook.go implements the "solo-cook cook" command.
//
// Orchestration steps:
//  1. Resolve options from flags, environment and .solo-cook.yaml
//  2. Read solo.rb for the remote path and cache path
//  3. Unpack the bundled patches to a temporary directory
//  4. Set up logging and tracing, note the kitchen's git revision
//  5. Run the provisioning pipeline against the target
//  6. Output results (text or JSON)
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/solo-cook/internal/config"
	"github.com/mmr-tortoise/solo-cook/internal/kitchen"
	"github.com/mmr-tortoise/solo-cook/internal/logging"
	"github.com/mmr-tortoise/solo-cook/internal/model"
	"github.com/mmr-tortoise/solo-cook/internal/nodeconfig"
	"github.com/mmr-tortoise/solo-cook/internal/provision"
	"github.com/mmr-tortoise/solo-cook/internal/provision/patches"
	"github.com/mmr-tortoise/solo-cook/internal/telemetry"
	"github.com/mmr-tortoise/solo-cook/internal/transport"
)

// NewCookCommand creates the "cook" cobra command.
func NewCookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cook [USER@]HOSTNAME [JSON]",
		Short: "Upload the kitchen and run chef-solo on a host",
		Long: `Upload the current kitchen to HOSTNAME and run chef-solo there.

JSON is the node config to use, relative to the kitchen. It defaults to
nodes/HOSTNAME.json and is generated from --run-list and --json-attributes
when it does not exist yet.

Examples:
  solo-cook cook ubuntu@10.0.0.5
  solo-cook cook deploy@web-1:2222 nodes/web.json -W
  solo-cook cook web-1 --sync-only -VV
  solo-cook cook web-1 -r 'recipe[nginx]' -j '{"nginx": {"port": 8080}}'`,

		Args: cobra.RangeArgs(1, 2),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runCook(cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.Bool("skip-chef-check", false, "Skip the Chef version check on the host")
	flags.Bool("sync-only", false, "Only sync the kitchen, do not run chef-solo")
	flags.BoolP("why-run", "W", false, "Run chef-solo in why-run mode")
	flags.StringP("node-name", "N", "", "Chef node name")
	flags.StringSliceP("run-list", "r", nil, "Run list for a generated node config")
	flags.StringP("json-attributes", "j", "", "JSON attributes for a generated node config")
	flags.StringP("identity-file", "i", "", "SSH identity file")
	flags.IntP("ssh-port", "p", 0, "SSH port")
	flags.StringP("ssh-config-file", "F", "", "ssh config file passed to rsync's ssh")
	flags.StringP("ssh-password", "P", "", "SSH password")
	flags.Bool("no-host-key-verify", false, "Disable known_hosts verification")
	flags.String("kitchen", ".", "Kitchen directory")
	flags.String("trace-file", "", "Write step spans as JSON lines to this file")

	return cmd
}

// runCook is the main orchestration function for the cook command.
func runCook(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stderr := cmd.ErrOrStderr()

	opts, err := config.LoadOptions(cmd.Flags())
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid options", err)
	}

	logger := logging.New(opts.Verbosity, stderr)
	defer func() { _ = logger.Sync() }()

	solo, err := config.LoadSolo(opts.Kitchen)
	switch {
	case errors.Is(err, config.ErrSoloNotFound):
		printWarning(stderr, "%s not found in %s", config.SoloFile, opts.Kitchen)
	case err != nil:
		return model.WrapCLIError(model.ExitGeneralError, "failed to read solo.rb", err)
	}

	patchDir, cleanup, err := patches.Extract()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to prepare patches", err)
	}
	defer cleanup()

	tracer, shutdown, err := telemetry.Setup("solo-cook", opts.TraceFile)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush trace spans", zap.Error(err))
		}
	}()

	runID := uuid.NewString()
	logger.Debug("Starting cook",
		zap.String("run_id", runID),
		zap.String("destination", args[0]),
		zap.String("kitchen", opts.Kitchen),
	)

	revision, err := kitchen.ReadRevision(ctx, opts.Kitchen)
	if err != nil {
		logger.Debug("Could not read kitchen revision", zap.Error(err))
	} else if revision != nil {
		logger.Debug("Kitchen revision", zap.Stringer("revision", revision))
	}

	connector := newConnector(opts, logger, cmd.OutOrStdout(), stderr)
	defer connector.close()

	pipeline := &provision.Pipeline{
		Inspector: kitchen.NewInspector(opts.Kitchen),
		NodeConfig: &nodeconfig.Generator{
			Root:       opts.Kitchen,
			RunList:    opts.RunList,
			Attributes: opts.JSONAttributes,
			Logger:     logger,
		},
		Connect: connector.connect,
		Logger:  logger,
		Clock:   provision.RealClock(),
		Tracer:  tracer,
	}

	req := provision.Request{
		Destination: args[0],
		Kitchen:     opts.Kitchen,
		Solo:        solo,
		PatchDir:    patchDir,
		Options:     opts.RunOptions(),
	}
	if len(args) > 1 {
		req.NodeConfigPath = args[1]
	}

	report, err := pipeline.Run(ctx, req)
	logger.Debug("Cook finished",
		zap.String("run_id", runID),
		zap.String("state", string(report.Final())),
	)
	if err != nil {
		return err
	}

	printCookResult(cmd.OutOrStdout(), runID, revision, report)
	return nil
}

// connector opens SSH transports for the pipeline and closes them
// when the command returns.
type connector struct {
	opts   config.Options
	logger *zap.Logger
	stdout io.Writer
	stderr io.Writer

	opened []*transport.SSH
}

func newConnector(opts config.Options, logger *zap.Logger, stdout, stderr io.Writer) *connector {
	return &connector{opts: opts, logger: logger, stdout: stdout, stderr: stderr}
}

func (c *connector) connect(target model.Target) (provision.Transport, error) {
	if target.Port == 0 {
		target.Port = c.opts.SSHPort
	}

	client, err := transport.NewSSH(&transport.Config{
		Target:          target,
		IdentityFile:    c.opts.IdentityFile,
		SSHConfigFile:   c.opts.SSHConfigFile,
		Password:        c.opts.SSHPassword,
		NoHostKeyVerify: c.opts.NoHostKeyVerify,
	}, nil, c.logger)
	if err != nil {
		return nil, err
	}
	client.Stdout = c.stdout
	client.Stderr = c.stderr
	client.Stdin = os.Stdin

	c.opened = append(c.opened, client)
	return client, nil
}

func (c *connector) close() {
	for _, client := range c.opened {
		if err := client.Close(); err != nil {
			c.logger.Debug("Failed to close SSH connection", zap.Error(err))
		}
	}
	c.opened = nil
}

// printCookResult outputs the run summary in text or JSON format.
func printCookResult(w io.Writer, runID string, revision *kitchen.Revision, report *provision.Report) {
	if IsJSONOutput() {
		printCookResultJSON(w, runID, revision, report)
	} else {
		printCookResultText(w, report)
	}
}

func printCookResultJSON(w io.Writer, runID string, revision *kitchen.Revision, report *provision.Report) {
	type timingJSON struct {
		Step    string  `json:"step"`
		Seconds float64 `json:"seconds"`
	}

	type resultJSON struct {
		RunID           string       `json:"runId"`
		KitchenRevision string       `json:"kitchenRevision,omitempty"`
		NodeConfig      string       `json:"nodeConfig"`
		States          []string     `json:"states"`
		Timings         []timingJSON `json:"timings"`
	}

	result := resultJSON{RunID: runID, NodeConfig: report.NodeConfig}
	if revision != nil {
		result.KitchenRevision = revision.String()
	}
	for _, s := range report.States {
		result.States = append(result.States, string(s))
	}
	for _, t := range report.Timings {
		result.Timings = append(result.Timings, timingJSON{Step: t.Step, Seconds: t.Duration.Seconds()})
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(w, string(data))
}

// printCookResultText prints a one-line summary. chef-solo's own output has
// already been streamed, so this stays short.
func printCookResultText(w io.Writer, report *provision.Report) {
	states := make([]string, 0, len(report.States))
	for _, s := range report.States {
		states = append(states, string(s))
	}
	fmt.Fprintf(w, "Cooked with %s (%s)\n", report.NodeConfig, strings.Join(states, " -> "))
}
