package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmiszy/proto/cmd/alias"
	"github.com/mmiszy/proto/cmd/global"
	"github.com/mmiszy/proto/cmd/install"
	"github.com/mmiszy/proto/cmd/list"
	"github.com/mmiszy/proto/cmd/local"
	"github.com/mmiszy/proto/cmd/resolve"
	"github.com/mmiszy/proto/cmd/setup"
	"github.com/mmiszy/proto/cmd/setup/hooks"
	"github.com/mmiszy/proto/cmd/unalias"
	"github.com/mmiszy/proto/cmd/uninstall"
	"github.com/mmiszy/proto/log"
)

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := Run(New()); err != nil {
		os.Exit(1)
	}
}

// Run executes root and closes the session of the executed command afterwards, also
// when the command failed.
func Run(root *cobra.Command) (err error) {
	executed, err := root.ExecuteC()
	defer func() {
		if executed == nil {
			return
		}
		if session := setup.FromContext(executed.Context()); session != nil {
			err = errors.Join(err, session.Close(executed.Context()))
		}
	}()
	return err
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proto [sub-command]",
		Short: "A pluggable multi-language version manager",
		Long: `proto installs and switches between versions of developer tools. Every tool is
provided by a plugin: a sandboxed WebAssembly module, a declarative schema file or a
builtin, and resolves version specifiers such as 20, ^1.2, lts or custom aliases.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: hooks.PreRunE,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().String(global.RootFlag, "", `Directory holding installed tools, shims and caches (default $PROTO_ROOT or ~/.proto).`)
	cmd.PersistentFlags().String(global.ConfigFlag, "", `Configuration file to use instead of config.yaml in the root directory.`)
	cmd.PersistentFlags().String(global.WorkingDirectoryFlag, "", `Directory to detect versions and read .prototools from (default the current directory).`)
	log.RegisterLoggingFlags(cmd.PersistentFlags())
	cmd.AddCommand(install.New())
	cmd.AddCommand(uninstall.New())
	cmd.AddCommand(resolve.New())
	cmd.AddCommand(alias.New())
	cmd.AddCommand(unalias.New())
	cmd.AddCommand(local.New())
	cmd.AddCommand(list.New())
	return cmd
}
