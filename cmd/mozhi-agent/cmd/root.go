package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mozhi-agent",
	Short: "Mozhi is a voice bridge from a paired phone to your desktop",
	Long: `Mozhi accepts an encrypted audio stream from a paired mobile device,
transcribes it locally, screens the transcript for destructive intent, and
types the result into the target application.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
