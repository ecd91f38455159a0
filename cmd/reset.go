package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Lumos-Labs-HQ/sprout/internal/config"
	"github.com/Lumos-Labs-HQ/sprout/internal/seeder"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Truncate all schema tables",
	Long: `
Empty every table found in the schema directory, in reverse dependency
order so foreign key constraints hold.

⚠️  WARNING: This permanently deletes all data in those tables!

Use --force to skip the confirmation prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if !resetForce {
			color.Yellow("⚠️  This will delete all rows from every schema table.")
			fmt.Print("Continue? [y/N]: ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				color.Cyan("Aborted.")
				return nil
			}
		}

		ctx := context.Background()

		s, err := seeder.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		return s.Reset(ctx)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
}
