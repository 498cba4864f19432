package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/coordinator"
	"github.com/drover-sh/drover/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline state counts and pending cross-channel parents",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true)
	statusStateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	statusWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	counts, err := st.Counts()
	if err != nil {
		return err
	}

	fmt.Println(statusTitleStyle.Render("Store " + st.Root()))
	for _, state := range store.States() {
		line := fmt.Sprintf("  %-10s %d", state, counts[state])
		if state == store.StateError && counts[state] > 0 {
			line = statusErrStyle.Render(line)
		} else {
			line = statusStateStyle.Render(line)
		}
		fmt.Println(line)
	}

	agents, err := st.ClaimAgents()
	if err != nil {
		return err
	}
	if len(agents) > 0 {
		fmt.Println(statusTitleStyle.Render("Claims"))
		sort.Strings(agents)
		for _, agent := range agents {
			held, err := st.ListClaimed(agent)
			if err != nil {
				return err
			}
			fmt.Printf("  %-12s %d held\n", agent, len(held))
		}
	}

	parents, err := coordinator.ReadTracking(st.CoordinatorDir())
	if err != nil {
		fmt.Println(statusErrStyle.Render("  tracking state unreadable: " + err.Error()))
		return nil
	}
	if len(parents) > 0 {
		fmt.Println(statusTitleStyle.Render("Cross-channel parents"))
		staleCutoff := time.Now().Add(-cfg.Coordinator.StaleAfter())
		for _, p := range parents {
			var done, rejected, failed int
			for _, status := range p.Children {
				switch status {
				case coordinator.ChildDone:
					done++
				case coordinator.ChildRejected:
					rejected++
				case coordinator.ChildFailed:
					failed++
				}
			}
			line := fmt.Sprintf("  %s  %d/%d done", p.ID, done, len(p.Children))
			if rejected > 0 {
				line += fmt.Sprintf(", %d rejected", rejected)
			}
			if failed > 0 {
				line += fmt.Sprintf(", %d failed", failed)
			}
			var notes []string
			if failed > 0 {
				notes = append(notes, "blocked")
			}
			if !p.ExpandedAt.IsZero() && p.ExpandedAt.Before(staleCutoff) {
				notes = append(notes, "stale since "+p.ExpandedAt.Format(time.RFC3339))
			}
			if len(notes) > 0 {
				line = statusWarnStyle.Render(line + "  [" + strings.Join(notes, ", ") + "]")
			}
			fmt.Println(line)
		}
	}

	return nil
}
