package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/phuongdnguyen/dapbridge/pkg/config"
	"github.com/phuongdnguyen/dapbridge/pkg/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dapbridge",
		Short:         "dapbridge serves DAP stack traces for a program running under delve",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand(), newVersionCommand())
	return root
}

func newServeCommand() *cobra.Command {
	opts := config.NewOptions()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for DAP clients and answer stackTrace requests from delve",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Bind(cmd, opts.ConfigFile); err != nil {
				return err
			}
			return opts.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.New(opts.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), opts, log)
		},
	}
	opts.BindFlags(cmd.Flags())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dapbridge version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dapbridge %s\n", version)
		},
	}
}
