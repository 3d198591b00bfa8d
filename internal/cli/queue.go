package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// QueueCmd returns the queue command group.
func QueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the offline scan queue",
	}
	cmd.AddCommand(queueListCmd(), queueDrainCmd())
	return cmd
}

func queueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending submissions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			w := cmd.OutOrStdout()
			pending := a.Queue.Pending()
			if wantJSON(cmd) {
				return printJSON(w, pending)
			}
			if len(pending) == 0 {
				fmt.Fprintln(w, "queue is empty")
				return nil
			}
			for _, q := range pending {
				at := time.UnixMilli(q.EnqueuedAtEpochMs).In(a.Config.ReferenceTimezone)
				fmt.Fprintf(w, "%s  %s  %s  retries=%d\n", q.ID, at.Format("2006-01-02 15:04"), q.Payload.ImagePath, q.RetryCount)
			}
			return nil
		},
	}
}

func queueDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Attempt delivery of every pending submission now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := a.Reconciler.DrainNow(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(w, report)
			}
			fmt.Fprintf(w, "attempted %d: %s, %s, %s\n", report.Attempted,
				color.New(color.FgGreen).Sprintf("%d delivered", len(report.Delivered)),
				color.New(color.FgYellow).Sprintf("%d retried", len(report.Retried)),
				color.New(color.FgRed).Sprintf("%d dropped", len(report.Dropped)))
			for _, rec := range report.Delivered {
				printRecord(w, rec)
			}
			return nil
		},
	}
}
