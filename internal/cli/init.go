// Package cli: init.go implements the "solo-cook init" command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/solo-cook/internal/kitchen"
	"github.com/mmr-tortoise/solo-cook/internal/model"
)

// NewInitCommand creates the "init" cobra command.
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [DIRECTORY]",
		Short: "Create a kitchen layout with a solo.rb template",
		Long: `Create the directories of a Chef solo kitchen and a solo.rb template.

Existing files and directories are left untouched, so init can be run on a
partially built kitchen.

Examples:
  solo-cook init
  solo-cook init ~/kitchens/web`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd.OutOrStdout(), dir)
		},
	}
}

func runInit(w io.Writer, dir string) error {
	result, err := kitchen.Scaffold(dir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to initialize kitchen", err)
	}

	if IsJSONOutput() {
		created := result.Created
		if created == nil {
			created = []string{}
		}
		data, _ := json.MarshalIndent(map[string]any{"directory": dir, "created": created}, "", "  ")
		fmt.Fprintln(w, string(data))
		return nil
	}

	if len(result.Created) == 0 {
		fmt.Fprintf(w, "Kitchen in %s is already initialized\n", dir)
		return nil
	}
	for _, name := range result.Created {
		fmt.Fprintf(w, "Created %s\n", name)
	}
	return nil
}
