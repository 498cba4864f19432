package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/coordinator"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/event"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the cross-channel coordinator",
	Long: `Run the coordinator: expand approved cross_post parents into
per-channel children and complete each parent once all its children
are done. Only one coordinator may run against a store; a second
instance is refused by the tracking-store lock.`,
	RunE: runCoordinator,
}

var (
	coordinatorOnce    bool
	coordinatorRebuild bool
)

func init() {
	rootCmd.AddCommand(coordinatorCmd)
	coordinatorCmd.Flags().BoolVar(&coordinatorOnce, "once", false, "run one expand/poll cycle and exit")
	coordinatorCmd.Flags().BoolVar(&coordinatorRebuild, "rebuild", false, "rebuild tracking state from the store before running")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	tracking, err := coordinator.OpenFileTracking(st.CoordinatorDir())
	if err != nil {
		if !errors.Is(err, errors.ErrCorruptTracking) {
			return err
		}
		// A corrupt log is unrecoverable as-is: discard it and rebuild
		// from the store, which is the durable source of truth.
		fmt.Println("Tracking state corrupted; rebuilding from the store")
		if err := coordinator.DiscardTracking(st.CoordinatorDir()); err != nil {
			return err
		}
		if tracking, err = coordinator.OpenFileTracking(st.CoordinatorDir()); err != nil {
			return err
		}
		coordinatorRebuild = true
	}
	defer func() { _ = tracking.Close() }()

	log := newAuditLog(st, coordinator.Agent)
	c := coordinator.New(st, tracking, log, event.NewBus(), logger)
	c.SetStaleAfter(cfg.Coordinator.StaleAfter())

	if coordinatorRebuild {
		if err := c.Rebuild(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if coordinatorOnce {
		return c.RunOnce(ctx)
	}

	err = c.Run(ctx, cfg.Coordinator.PollInterval())
	if err == context.Canceled {
		return nil
	}
	return err
}
