package resolve

import (
	"fmt"

	"github.com/spf13/cobra"

	protocmd "github.com/mmiszy/proto/cmd/internal/cmd"
	"github.com/mmiszy/proto/cmd/setup/hooks"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve TOOL[@SPEC]",
		Short: "Print the concrete version a specifier resolves to",
		Example: `  proto resolve node@lts
  proto resolve deno@^1.30`,
		Args:              cobra.ExactArgs(1),
		RunE:              ResolveTool,
		DisableAutoGenTag: true,
	}
}

func ResolveTool(cmd *cobra.Command, args []string) error {
	session, err := hooks.Session(cmd)
	if err != nil {
		return err
	}
	a, err := protocmd.ParseToolArg(args[0])
	if err != nil {
		return err
	}
	r, err := protocmd.Resolve(cmd.Context(), session, a, true)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), r.Version())
	return err
}
