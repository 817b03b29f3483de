// Repaird is the hardware fault diagnosis daemon.
//
// It drives adaptive diagnostic sessions over HTTP, ranks repair
// tutorials with hybrid dense/sparse retrieval and mines finished
// sessions for new diagnostic patterns.
//
// Usage:
//
//	# Start the daemon with the default config
//	repaird serve
//
//	# Start with an explicit config file
//	repaird serve --config /etc/repaird/config.yaml
//
//	# One-shot pattern mining from exported session outcomes
//	repaird learn --outcomes outcomes.json --out learned.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "repaird",
	Short: "Hardware fault diagnosis daemon",
	Long: `repaird diagnoses hardware faults from reported symptoms, asks
clarifying questions until confident, and ranks repair tutorials for
the diagnosed cause.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("repaird\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default ~/.config/repaird/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
