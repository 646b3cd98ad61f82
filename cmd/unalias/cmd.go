package unalias

import (
	"fmt"

	"github.com/spf13/cobra"

	protocmd "github.com/mmiszy/proto/cmd/internal/cmd"
	"github.com/mmiszy/proto/cmd/setup/hooks"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:               "unalias TOOL NAME",
		Short:             "Remove an alias from the manifest of a tool",
		Args:              cobra.ExactArgs(2),
		RunE:              RemoveAlias,
		DisableAutoGenTag: true,
	}
}

func RemoveAlias(cmd *cobra.Command, args []string) error {
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
	removed, err := resolver.RemoveAlias(ctx, args[1])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%s has no alias %s", a.ID, args[1])
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "alias %s of %s removed\n", args[1], a.ID)
	return err
}
