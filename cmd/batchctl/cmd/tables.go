package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTablesCommand(opts *options) *cobra.Command {
	tables := &cobra.Command{
		Use:   "tables",
		Short: "Manage storage schema",
	}

	tables.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the jobs and records tables, indexes and TTL if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			// EnsureSchema below is the explicit step; skip the implicit one
			cfg.Storage.EnsureSchema = false

			store, err := openStorage(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("failed to ensure schema: %w", err)
			}

			logger.Info().
				Str("storage", cfg.Storage.Type).
				Str("jobs_table", cfg.Storage.JobsTable).
				Str("records_table", cfg.Storage.RecordsTable).
				Msg("schema ready")
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready on %s\n", cfg.Storage.Type)
			return nil
		},
	})

	return tables
}
