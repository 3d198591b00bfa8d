package cli

import "github.com/spf13/cobra"

// NewRootCmd assembles the sprayctl command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sprayctl",
		Short: "sprayctl - spray advisories and crop scans for one field",
		Long: `sprayctl reads and edits the local advisory store: the registered
field, the spray advisory for its location, the daily crop scan and the
offline scan queue. It uses the same environment as advisord.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Bool("json", false, "print JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log at LOG_LEVEL to stderr")

	rootCmd.AddCommand(AdviseCmd())
	rootCmd.AddCommand(ClassifyCmd())
	rootCmd.AddCommand(FieldCmd())
	rootCmd.AddCommand(ScanCmd())
	rootCmd.AddCommand(QueueCmd())

	// Developer tools
	rootCmd.AddCommand(ForecastCmd())

	return rootCmd
}
