package alias

import (
	"fmt"

	"github.com/spf13/cobra"

	protocmd "github.com/mmiszy/proto/cmd/internal/cmd"
	"github.com/mmiszy/proto/cmd/setup/hooks"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "alias TOOL NAME SPEC",
		Short: "Store a named alias for a tool version",
		Long: `Alias resolves SPEC and records the concrete version under NAME in the manifest of
the tool. Aliases in the manifest take precedence over aliases provided by the tool.`,
		Example:           `  proto alias node work 18`,
		Args:              cobra.ExactArgs(3),
		RunE:              SetAlias,
		DisableAutoGenTag: true,
	}
}

func SetAlias(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := hooks.Session(cmd)
	if err != nil {
		return err
	}
	a, err := protocmd.ParseToolArg(args[0])
	if err != nil {
		return err
	}
	resolver, err := session.Resolver(ctx, a.ID)
	if err != nil {
		return err
	}
	version, err := resolver.SetAlias(ctx, args[1], args[2])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "alias %s of %s points to %s\n", args[1], a.ID, version)
	return err
}
