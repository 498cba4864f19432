package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/config"
	"github.com/drover-sh/drover/internal/event"
	"github.com/drover-sh/drover/internal/monitor"
	"github.com/drover-sh/drover/internal/retry"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [channel]",
	Short: "Run approval monitors",
	Long: `Run the publish monitor for one configured channel, or for every
configured channel when no argument is given. Each monitor polls the
approved state for its channel and hands items to the channel's
publisher command.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

var monitorOnce bool

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "poll each channel once and exit")
}

func runMonitor(cmd *cobra.Command, args []string) error {
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

	channels := cfg.Channels
	if len(args) == 1 {
		ch, ok := cfg.Channels[args[0]]
		if !ok {
			return fmt.Errorf("channel %q is not configured", args[0])
		}
		channels = map[string]config.ChannelConfig{args[0]: ch}
	}
	if len(channels) == 0 {
		return fmt.Errorf("no channels configured")
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay(),
		MaxDelay:    cfg.Retry.MaxDelay(),
		Jitter:      cfg.Retry.Jitter,
	}
	bus := event.NewBus()

	monitors := make([]*monitor.Monitor, 0, len(channels))
	intervals := make(map[string]config.ChannelConfig, len(channels))
	for name, ch := range channels {
		pub := monitor.NewCommandPublisher(ch.Command, ch.Timeout())
		log := newAuditLog(st, "monitor-"+name)
		monitors = append(monitors, monitor.New(name, st, pub, log, &policy, bus, logger))
		intervals[name] = ch
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if monitorOnce {
		for _, m := range monitors {
			if err := m.RunOnce(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	for _, m := range monitors {
		wg.Add(1)
		go func(m *monitor.Monitor) {
			defer wg.Done()
			ch := intervals[m.Channel()]
			_ = m.Run(ctx, ch.PollInterval())
		}(m)
	}
	wg.Wait()
	return nil
}
