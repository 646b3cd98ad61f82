package hooks

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/mmiszy/proto/cmd/global"
	"github.com/mmiszy/proto/cmd/setup"
	"github.com/mmiszy/proto/log"
)

func loadFlagFromCommand(cmd *cobra.Command, flagName string) string {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil || !flag.Changed {
		return ""
	}
	value, err := cmd.Flags().GetString(flagName)
	if err != nil {
		slog.DebugContext(cmd.Context(), "could not read flag value",
			slog.String("flag", flagName),
			slog.String("error", err.Error()))
	}
	return value
}

// PreRunE sets up logging and the session shared by all commands.
func PreRunE(cmd *cobra.Command, _ []string) error {
	logger, err := log.GetBaseLogger(cmd)
	if err != nil {
		return fmt.Errorf("could not retrieve logger: %w", err)
	}
	slog.SetDefault(logger)
	ctx := slogcontext.NewCtx(cmd.Context(), logger)

	session, err := setup.New(ctx, setup.Options{
		Root:       loadFlagFromCommand(cmd, global.RootFlag),
		ConfigFile: loadFlagFromCommand(cmd, global.ConfigFlag),
		WorkDir:    loadFlagFromCommand(cmd, global.WorkingDirectoryFlag),
	})
	if err != nil {
		return fmt.Errorf("could not set up session: %w", err)
	}
	cmd.SetContext(setup.WithSession(ctx, session))

	if parent := cmd.Parent(); parent != nil {
		cmd.SetOut(parent.OutOrStdout())
		cmd.SetErr(parent.ErrOrStderr())
	}
	return nil
}

// Session returns the session of cmd or an error when PreRunE did not run.
func Session(cmd *cobra.Command) (*setup.Session, error) {
	session := setup.FromContext(cmd.Context())
	if session == nil {
		return nil, fmt.Errorf("no session found, the command was not set up")
	}
	return session, nil
}
