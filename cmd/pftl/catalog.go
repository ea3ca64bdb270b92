// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pftl/pftl/internal/catalog"
)

// NewCatalogCmd creates the catalog command group.
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and validate ship catalogs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Check a catalog file against the schema and budget rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s: valid (version %s, budget %d, %d archetypes, %d upgrades)\n",
				args[0], c.Version, c.Budget, len(c.Archetypes), len(c.Upgrades))
			return nil
		},
	})

	var schemaOut string
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the catalog JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := catalog.GenerateSchema()
			if err != nil {
				return err
			}
			if schemaOut == "" {
				_, err := cmd.OutOrStdout().Write(schema)
				return err
			}
			if err := os.WriteFile(schemaOut, schema, 0o600); err != nil {
				return oops.With("path", schemaOut).Wrapf(err, "write schema")
			}
			cmd.Printf("Generated %s\n", schemaOut)
			return nil
		},
	}
	schemaCmd.Flags().StringVarP(&schemaOut, "output", "o", "", "write the schema to a file instead of stdout")
	cmd.AddCommand(schemaCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the built-in catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(catalog.DefaultYAML())
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archetypes and upgrades with their token cost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalog(catalogPath(cmd))
			if err != nil {
				return err
			}
			cmd.Printf("Budget: %d tokens\n\nArchetypes:\n", c.Budget)
			for _, a := range c.Archetypes {
				cmd.Printf("  %-18s %3d  hull %-4d shields %-4d speed %d\n", a.Name, a.Cost, a.Health, a.Shields, a.Speed)
			}
			cmd.Println("\nUpgrades:")
			for _, u := range c.Upgrades {
				cmd.Printf("  %-18s %3d\n", u.Name, u.Cost)
			}
			return nil
		},
	})
	cmd.PersistentFlags().String("file", "", "catalog file for list (default: built-in catalog)")

	return cmd
}

func catalogPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("file") //nolint:errcheck // flag is registered above
	return path
}
