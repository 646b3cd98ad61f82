package install

import (
	"fmt"

	"github.com/spf13/cobra"

	protocmd "github.com/mmiszy/proto/cmd/internal/cmd"
	"github.com/mmiszy/proto/cmd/setup/hooks"
	"github.com/mmiszy/proto/internal/tool"
)

const FlagPin = "pin"

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [TOOL[@SPEC]...]",
		Short: "Download and install tool versions",
		Long: `Install resolves every given tool specifier to a concrete version, then downloads,
verifies and unpacks it and creates its shims. Tools without a specifier use the version
detected in the working directory, or the latest release. Without arguments every tool
pinned in .prototools is installed.`,
		Example: `  # Install the latest Node.js 20 release
  proto install node@20

  # Install the versions pinned in the current project
  proto install`,
		Aliases:           []string{"i"},
		RunE:              InstallTools,
		DisableAutoGenTag: true,
	}
	cmd.Flags().Bool(FlagPin, false, "record the installed versions as the default of their tools")
	return cmd
}

func InstallTools(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := hooks.Session(cmd)
	if err != nil {
		return err
	}
	pin, err := cmd.Flags().GetBool(FlagPin)
	if err != nil {
		return err
	}

	toolArgs, err := protocmd.ParseToolArgs(args)
	if err != nil {
		return err
	}
	if len(toolArgs) == 0 {
		toolArgs = protocmd.ProjectToolArgs(session)
	}
	if len(toolArgs) == 0 {
		return fmt.Errorf("no tools given and none pinned in %s", session.Project.Path)
	}

	resolved := make([]*tool.Resolved, 0, len(toolArgs))
	for _, a := range toolArgs {
		r, err := protocmd.Resolve(ctx, session, a, true)
		if err != nil {
			return err
		}
		resolved = append(resolved, r)
	}

	installed, err := session.Pipeline.SetupAll(ctx, resolved)
	if err != nil {
		return err
	}

	for i, r := range resolved {
		if pin {
			resolver, err := session.Resolver(ctx, r.ID())
			if err != nil {
				return err
			}
			if err := resolver.SetDefault(ctx, r.Version()); err != nil {
				return err
			}
		}
		if installed[i] {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s has been installed\n", r.Name(), r.Version())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is already installed\n", r.Name(), r.Version())
		}
	}
	return nil
}
