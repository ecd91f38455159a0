package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Lumos-Labs-HQ/sprout/internal/config"
)

const starterPlan = `# sprout generation plan
#
# default_count: 50
# tables:
#   users:
#     count: 200
#     columns:
#       role:
#         choices: [admin, member, guest]
#       bio:
#         null_rate: 0.5
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter sprout.config.json and seed.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault("."); err != nil {
			return err
		}
		color.Green("✅ Created sprout.config.json")

		if _, err := os.Stat("seed.yaml"); os.IsNotExist(err) {
			if err := os.WriteFile("seed.yaml", []byte(starterPlan), 0644); err != nil {
				return fmt.Errorf("failed to write seed.yaml: %w", err)
			}
			color.Green("✅ Created seed.yaml")
		}

		color.Cyan("📁 Put your CREATE TABLE files under db/schema/ and run: sprout seed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
