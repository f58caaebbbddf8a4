package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string // Log verbosity level

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "torsynth",
	Short: "Synthesize Tor consensus documents at modified network scales",
	Long: "torsynth fits growth models against a time series of historical Tor " +
		"consensus documents and synthesizes internally consistent synthetic " +
		"consensuses at a requested target scale.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
}

// readConsensusFiles loads the given consensus files as pipeline inputs.
func readConsensusFiles(paths []string) ([]string, []string) {
	names := make([]string, len(paths))
	texts := make([]string, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logrus.Fatalf("Failed to read consensus %s: %v", path, err)
		}
		names[i] = path
		texts[i] = string(data)
	}
	return names, texts
}
