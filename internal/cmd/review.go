package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/audit"
	"github.com/drover-sh/drover/internal/gate"
	"github.com/drover-sh/drover/internal/store"
	"github.com/drover-sh/drover/internal/util"
	"github.com/drover-sh/drover/internal/workitem"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List and resolve items parked for human review",
	Long: `Commands for the human side of the approval gate: list the items
waiting in review, then approve or reject each by identity. Review
items may only resolve to approved or rejected.`,
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items waiting for review",
	RunE:  runReviewList,
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <item-id>",
	Short: "Approve a review item for publishing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveReview(args[0], store.StateApproved)
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <item-id>",
	Short: "Reject a review item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveReview(args[0], store.StateRejected)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
}

func runReviewList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	ids, err := st.List(store.StateReview)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("Nothing waiting for review.")
		return nil
	}

	for _, id := range ids {
		it, err := st.Read(id, store.StateReview)
		if err != nil {
			fmt.Printf("%s  (unreadable: %v)\n", id, err)
			continue
		}
		fmt.Printf("%s\n  %s/%s  decision=%s\n", id, it.Kind, it.Service, it.Decision())
		if reasoning := it.Reasoning(); reasoning != "" {
			fmt.Printf("  %s\n", util.TruncateString(reasoning, 100))
		}
		if draft := it.Draft(); draft != "" {
			fmt.Printf("  draft: %s\n", util.TruncateString(draft, 100))
		}
	}
	return nil
}

func resolveReview(id string, dest store.State) error {
	if err := gate.ReviewDestination(dest); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	it, err := st.Read(id, store.StateReview)
	if err != nil {
		return err
	}
	it.Set(workitem.KeyStatus, string(dest))
	if err := st.Rewrite(it, store.StateReview, ""); err != nil {
		return err
	}
	if err := st.Move(id, store.StateReview, dest); err != nil {
		return err
	}

	log := newAuditLog(st, "reviewer")
	_ = log.Transition(id, audit.ActionReleased, string(store.StateReview), string(dest))

	fmt.Printf("%s -> %s\n", id, dest)
	return nil
}
