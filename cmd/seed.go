package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lumos-Labs-HQ/sprout/internal/config"
	"github.com/Lumos-Labs-HQ/sprout/internal/seeder"
)

var (
	seedCount    int
	seedSeed     int64
	seedTruncate bool
	seedVerbose  bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate and insert synthetic rows",
	Long: `Parse the schema directory, build a generation plan and populate the
database. Foreign key references are resolved across batches: a row that
references a not-yet-inserted row is deferred and flushed once its target
has landed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		ctx := context.Background()

		s, err := seeder.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		return s.Seed(ctx, seeder.Options{
			Count:    seedCount,
			Seed:     seedSeed,
			Truncate: seedTruncate,
			Verbose:  seedVerbose,
		})
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVar(&seedCount, "count", 0, "Rows per table (overrides config default)")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "RNG seed for reproducible data (0 = random)")
	seedCmd.Flags().BoolVar(&seedTruncate, "truncate", false, "Empty tables before seeding")
	seedCmd.Flags().BoolVar(&seedVerbose, "verbose", false, "Print per-batch progress")
}
