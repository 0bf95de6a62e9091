package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sfc/internal/chartfile"
	"github.com/nerrad567/gray-logic-sfc/internal/design"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/database"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <chart.hcl>",
		Short: "Create a design from an HCL chart file",
		Long: `Create a design from an HCL chart file.

Each step block becomes a node; "after" lists become edges. Node
positions are laid out by dependency depth. Prints the new design id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := chartfile.ParseFile(args[0])
			if err != nil {
				for _, diag := range chartfile.Diagnostics(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), diag.Error())
				}
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			d, err := file.Design()
			if err != nil {
				return err
			}

			return withDatabase(cmd, opts, func(db *database.DB) error {
				if err := db.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				if err := design.NewSQLiteRepository(db.DB).Create(cmd.Context(), d); err != nil {
					return fmt.Errorf("creating design: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d nodes\n", d.ID, d.Name, len(file.Chart.Nodes))
				return nil
			})
		},
	}
}
