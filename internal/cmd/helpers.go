package cmd

import (
	"fmt"

	"github.com/drover-sh/drover/internal/audit"
	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/store"
)

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the item store named by the configuration. The store
// tree must already exist; run "drover init" first.
func openStore(cfg *config.Config) (*store.Store, error) {
	st := store.New(cfg.Store.ExpandedRoot())
	if _, err := st.List(store.StateIntake); err != nil {
		return nil, fmt.Errorf("store at %s is not initialized (run \"drover init\"): %w",
			st.Root(), err)
	}
	return st, nil
}

// newLogger builds the configured logger.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
}

// newAuditLog opens the audit log for one acting identity.
func newAuditLog(st *store.Store, agent string) *audit.Log {
	return audit.NewLog(st.AuditDir(), agent)
}
