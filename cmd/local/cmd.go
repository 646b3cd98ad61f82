package local

import (
	"fmt"

	"github.com/spf13/cobra"

	protocmd "github.com/mmiszy/proto/cmd/internal/cmd"
	"github.com/mmiszy/proto/cmd/setup/hooks"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "local TOOL SPEC",
		Short: "Pin a tool version in the .prototools file of the working directory",
		Long: `Local checks that SPEC resolves and writes it unchanged into .prototools, so the
project follows the specifier rather than the version it currently resolves to.`,
		Example:           `  proto local node 20`,
		Args:              cobra.ExactArgs(2),
		RunE:              PinLocal,
		DisableAutoGenTag: true,
	}
}

func PinLocal(cmd *cobra.Command, args []string) error {
	session, err := hooks.Session(cmd)
	if err != nil {
		return err
	}
	a, err := protocmd.ParseToolArg(args[0])
	if err != nil {
		return err
	}
	a.Spec = args[1]
	r, err := protocmd.Resolve(cmd.Context(), session, a, false)
	if err != nil {
		return err
	}

	session.Project.Set(a.ID, a.Spec)
	if err := session.Project.Save(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "pinned %s to %s (currently %s) in %s\n", a.ID, a.Spec, r.Version(), session.Project.Path)
	return err
}
