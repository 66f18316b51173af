package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command of the auth service CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "auth-core",
		Short:        "Account and credential lifecycle service",
		SilenceUsage: true,
	}
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	return cmd
}
