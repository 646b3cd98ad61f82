package uninstall

import (
	"fmt"

	"github.com/spf13/cobra"

	protocmd "github.com/mmiszy/proto/cmd/internal/cmd"
	"github.com/mmiszy/proto/cmd/setup/hooks"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall TOOL[@SPEC]...",
		Short: "Remove installed tool versions",
		Example: `  proto uninstall node@20.1.0
  proto uninstall rust@stable`,
		Aliases:           []string{"rm"},
		Args:              cobra.MinimumNArgs(1),
		RunE:              UninstallTools,
		DisableAutoGenTag: true,
	}
}

func UninstallTools(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := hooks.Session(cmd)
	if err != nil {
		return err
	}
	toolArgs, err := protocmd.ParseToolArgs(args)
	if err != nil {
		return err
	}

	for _, a := range toolArgs {
		r, err := protocmd.Resolve(ctx, session, a, false)
		if err != nil {
			return err
		}
		removed, err := session.Pipeline.Uninstall(ctx, r)
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s has been uninstalled\n", r.Name(), r.Version())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is not installed\n", r.Name(), r.Version())
		}
	}
	return nil
}
