package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/agent"
	"github.com/drover-sh/drover/internal/claim"
	"github.com/drover-sh/drover/internal/decision"
	"github.com/drover-sh/drover/internal/event"
	"github.com/drover-sh/drover/internal/gate"
	"github.com/drover-sh/drover/internal/policy"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the decision agent loop",
	Long: `Run this machine's decision agent: claim intake items, decide each
one via the classifier or the rule table, and route it through the
approval gate. Multiple agents with distinct names may share one
store; the claim protocol guarantees each item is decided once.`,
	RunE: runAgent,
}

var agentOnce bool

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.Flags().BoolVar(&agentOnce, "once", false, "drain the intake once and exit")
}

func runAgent(cmd *cobra.Command, args []string) error {
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

	pol := policy.Default()
	if cfg.Policy.Path != "" {
		if pol, err = policy.Load(cfg.Policy.Path); err != nil {
			return err
		}
	}

	var classifier decision.Classifier
	if cfg.Classifier.Command != "" {
		classifier = decision.NewCommandClassifier(cfg.Classifier.Command, cfg.Classifier.Timeout())
	}

	bus := event.NewBus()
	log := newAuditLog(st, cfg.Agent.Name)
	claims := claim.NewManager(cfg.Agent.Name, st, log, bus, logger)
	engine := decision.NewEngine(pol, classifier, logger)
	g := gate.New(claims, st, engine, log, bus, logger)
	runner := agent.NewRunner(claims, g, st, cfg.Agent.PollInterval(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if agentOnce {
		return runner.RunOnce(ctx)
	}

	if cfg.Agent.Watch {
		if err := runner.Watch(); err != nil {
			logger.Warn("intake watch unavailable, polling only", "error", err)
		}
	}

	err = runner.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
