package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cyderes/employee-batch-service/internal/config"
	"github.com/cyderes/employee-batch-service/internal/storage"
)

// openStorage is replaced in tests
var openStorage = func(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	return storage.NewStorage(ctx, cfg)
}

type options struct {
	storageType string
	logLevel    string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "batchctl",
		Short: "Operate the employee batch ingestion service",
		Long: `batchctl manages the storage behind the batch ingestion service and inspects
ingestion jobs. Configuration comes from the same environment variables as the service.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.storageType, "storage", "", "storage backend override (dynamodb, mongodb, postgresql)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newTablesCommand(opts))
	root.AddCommand(newJobsCommand(opts))
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *options) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if o.storageType != "" {
		cfg.Storage.Type = o.storageType
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, config.NewLogger(cfg.Logging), nil
}
