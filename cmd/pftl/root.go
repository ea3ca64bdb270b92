// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the PFTL CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pftl",
		Short: "PFTL - fleet battle simulation server",
		Long: `PFTL runs deterministic turn-based fleet battles. Clients create games,
configure ships from the catalog and watch battles as ordered event streams.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/pftl/pftl.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewSimulateCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCatalogCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd prints build information.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("pftl %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		},
	}
}
