package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drover-sh/drover/internal/store"
	"github.com/drover-sh/drover/internal/workitem"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new work item into the intake",
	Long: `Submit a work item for decision. The body is read from --body-file,
or from stdin when no file is given. A cross_post item's body must be
a YAML list of {channel, payload} sub-actions.`,
	RunE: runSubmit,
}

var (
	submitType     string
	submitService  string
	submitPriority string
	submitSubject  string
	submitBodyFile string
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitType, "type", string(workitem.KindMessage), "item type: message, request, social_post, cross_post")
	submitCmd.Flags().StringVar(&submitService, "service", "", "originating channel (email, twitter, ...)")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "", "priority: low, normal, high, urgent")
	submitCmd.Flags().StringVar(&submitSubject, "subject", "", "subject line; becomes the identity slug")
	submitCmd.Flags().StringVar(&submitBodyFile, "body-file", "", "file holding the item body (default stdin)")
	_ = submitCmd.MarkFlagRequired("service")
	_ = submitCmd.MarkFlagRequired("subject")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	body, err := readBody()
	if err != nil {
		return err
	}

	fields := []workitem.Field{
		{Key: workitem.KeyType, Value: submitType},
		{Key: workitem.KeyService, Value: submitService},
	}
	if submitPriority != "" {
		fields = append(fields, workitem.Field{Key: workitem.KeyPriority, Value: submitPriority})
	}

	it := &workitem.Item{
		ID:     workitem.NewID(submitService, time.Now(), submitSubject),
		Fields: fields,
		Body:   body,
	}

	// Cross-post bodies must parse before they enter the pipeline.
	if err := it.Validate(); err != nil {
		return err
	}
	if it.Kind == workitem.KindCrossPost {
		if _, err := workitem.SubActions(it); err != nil {
			return err
		}
	}

	if err := st.Write(it, store.StateIntake); err != nil {
		return fmt.Errorf("failed to submit item: %w", err)
	}

	fmt.Printf("Submitted %s\n", it.ID)
	return nil
}

func readBody() (string, error) {
	if submitBodyFile != "" {
		data, err := os.ReadFile(submitBodyFile)
		if err != nil {
			return "", fmt.Errorf("read body file: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read body from stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
