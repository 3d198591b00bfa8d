package cli

import (
	"fmt"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/scan"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ScanCmd returns the scan command group.
func ScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Submit crop scans and inspect results",
	}
	cmd.AddCommand(scanSubmitCmd(), scanLatestCmd(), scanFailuresCmd())
	return cmd
}

func scanSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one leaf image for classification",
		Long: `Submit one leaf image. One scan is accepted per day. Without network
access the scan is queued and delivered later.

Usage:
  sprayctl scan submit --image leaf.jpg --crop tomato
  sprayctl scan submit --image dim.jpg --crop tomato --force`,
		RunE: runScanSubmit,
	}
	cmd.Flags().String("image", "", "image file")
	cmd.Flags().String("crop", "", "crop type")
	cmd.Flags().String("field", "", "field id")
	cmd.Flags().Bool("force", false, "submit even if the image fails the quality check")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("crop")
	return cmd
}

func runScanSubmit(cmd *cobra.Command, _ []string) error {
	image, _ := cmd.Flags().GetString("image")
	crop, _ := cmd.Flags().GetString("crop")
	fieldID, _ := cmd.Flags().GetString("field")
	force, _ := cmd.Flags().GetBool("force")

	a, closeFn, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := a.Scans.SubmitScan(cmd.Context(), scan.Request{
		ImagePath: image,
		FieldID:   fieldID,
		CropType:  crop,
		Force:     force,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(w, out)
	}
	switch out.Status {
	case domain.OutcomeLowQuality:
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("image rejected by quality check:"))
		for _, issue := range out.Issues {
			fmt.Fprintf(w, "  - %s\n", issue)
		}
		fmt.Fprintln(w, "retake the photo or pass --force")
	case domain.OutcomeQueued:
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("offline: scan queued for delivery"))
		printRecord(w, *out.Record)
	default:
		printRecord(w, *out.Record)
	}
	return nil
}

func scanLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the most recent scan result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			w := cmd.OutOrStdout()
			rec, ok := a.Scans.LatestScan()
			if !ok {
				fmt.Fprintln(w, "no scan recorded")
				return nil
			}
			if wantJSON(cmd) {
				return printJSON(w, rec)
			}
			printRecord(w, rec)
			if !a.Scans.CanScanToday() {
				fmt.Fprintln(w, "  today's scan is used")
			}
			return nil
		},
	}
}

func scanFailuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List queued scans that could not be delivered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ack, _ := cmd.Flags().GetBool("ack")

			a, closeFn, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			w := cmd.OutOrStdout()
			failures := a.Slot.Failures()
			if wantJSON(cmd) {
				if err := printJSON(w, failures); err != nil {
					return err
				}
			} else {
				if len(failures) == 0 {
					fmt.Fprintln(w, "no failed submissions")
				}
				for _, d := range failures {
					at := time.UnixMilli(d.DroppedAtEpochMs).In(a.Config.ReferenceTimezone)
					fmt.Fprintf(w, "%s  %s  %s after %d attempts: %s\n",
						d.Submission.ID, at.Format("2006-01-02 15:04"), d.Submission.Payload.ImagePath,
						d.Submission.RetryCount, color.New(color.FgRed).Sprint(d.LastError))
				}
			}

			if !ack {
				return nil
			}
			n, err := a.Slot.AcknowledgeFailures(cmd.Context())
			if err != nil {
				return err
			}
			if !wantJSON(cmd) {
				fmt.Fprintf(w, "acknowledged %d\n", n)
			}
			return nil
		},
	}
	cmd.Flags().Bool("ack", false, "clear the list after printing")
	return cmd
}
