package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AdviseCmd returns the advise command.
func AdviseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advise",
		Short: "Fetch the forecast for the active location and print the spray advisory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			rep, err := a.Advisor.Current(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, rep)
			}
			fmt.Fprintf(out, "%s (%s)\n", rep.Location.PlaceText, rep.Location.Source)
			printAdvisory(out, rep.Advisory, rep.Recommendation)
			return nil
		},
	}
}
