package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	Version = "0.3.1"
)

var rootCmd = &cobra.Command{
	Use:   "sprout",
	Short: "Populate a relational database with realistic synthetic data",
	Long: `
Sprout fills PostgreSQL, MySQL and SQLite databases with synthetic rows
derived from your SQL schema files. Foreign keys are honored through
deferred reference resolution: rows that point at not-yet-inserted rows
are parked and flushed as soon as their targets land, in parameter-bounded
batches.`,

	Run: func(cmd *cobra.Command, args []string) {
		showVersion, _ := cmd.Flags().GetBool("version")
		if showVersion {
			fmt.Printf("sprout version %s\n", Version)
			return
		}
		cmd.Help()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sprout.config.json)")
	rootCmd.Flags().BoolP("version", "v", false, "Show CLI version")
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		godotenv.Load(".env.local")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("json")
		viper.SetConfigName("sprout.config")
	}

	viper.AutomaticEnv()
	viper.ReadInConfig()
}
