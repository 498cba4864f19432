package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the item store directory tree",
	Long: `Initialize the drover store: the state directories (intake, claimed,
review, approved, rejected, done, errors) plus the audit and
coordinator directories, under the configured store root.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(cfg.Store.ExpandedRoot())
	if err := st.Init(); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	fmt.Printf("Store initialized at %s\n", st.Root())
	return nil
}
