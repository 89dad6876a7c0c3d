package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "pkgctl",
		Short:         "Query and drive the package service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig(cmd.ErrOrStderr())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.repo, "repo", "main", "Repository URL or alias")
	flags.StringVar(&ctx.target, "target", "system", "Install target (system or user)")
	flags.DurationVar(&ctx.timeout, "timeout", 0, "Per-call timeout (default PKGSVC_REQUEST_TIMEOUT)")
	flags.StringVar(&ctx.transport, "transport", "", "Transport: nats, ws or embedded (default PKGSVC_TRANSPORT)")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newInstallCommand(ctx))
	rootCmd.AddCommand(newUninstallCommand(ctx))
	rootCmd.AddCommand(newRepoCommand(ctx))
	rootCmd.AddCommand(newRepoStatusCommand(ctx))
	rootCmd.AddCommand(newUpdatesCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newEventsCommand(ctx))
	rootCmd.AddCommand(newHealthCommand(ctx))

	return rootCmd
}

// settleInterval is how often install --wait polls while a package is busy.
const settleInterval = 100 * time.Millisecond
