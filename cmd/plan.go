package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Lumos-Labs-HQ/sprout/internal/config"
	"github.com/Lumos-Labs-HQ/sprout/internal/schema"
	"github.com/Lumos-Labs-HQ/sprout/internal/seeder"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show tables, insertion order and row counts without seeding",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		files, err := cfg.GetSchemaFiles()
		if err != nil {
			return err
		}
		tables, err := schema.ParseFiles(files)
		if err != nil {
			return err
		}
		if len(tables) == 0 {
			color.Yellow("⚠️  No tables found in %s", cfg.SchemaDir)
			return nil
		}

		order, err := seeder.NewDependencyGraph(tables).BuildInsertionOrder()
		if err != nil {
			return err
		}

		plan, err := seeder.LoadPlan(cfg.PlanFile)
		if err != nil {
			return err
		}
		if err := plan.Validate(tables); err != nil {
			return err
		}

		color.Cyan("📋 Insertion order: %s", strings.Join(order, " → "))
		fmt.Println()
		for _, name := range order {
			table := tables[name]
			count := plan.Count(name, cfg.Seed.DefaultCount)
			fmt.Printf("  %-24s %5d rows, %d columns", name, count, len(table.Columns))
			if len(table.Dependencies) > 0 {
				fmt.Printf("  (depends on %s)", strings.Join(table.Dependencies, ", "))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
