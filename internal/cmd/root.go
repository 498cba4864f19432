package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drover-sh/drover/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Filesystem-backed work-item approval pipeline",
	Long: `Drover routes inbound work items through a human-approval pipeline
built on a shared directory tree: agents race to claim intake items,
a decision engine gates them, approved items are published per
channel, and cross-channel actions fan out and join.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/drover/config.yaml)")
	rootCmd.PersistentFlags().String("root", "", "store root directory (overrides store.root)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("store.root", rootCmd.PersistentFlags().Lookup("root"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DROVER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., DROVER_AGENT_NAME for agent.name
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
