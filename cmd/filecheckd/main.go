// filecheckd is a file-integrity monitoring daemon.
//
// Usage:
//
//	filecheckd run -p <dir> -i <seconds> -j <report.json> [--config file.yaml]
//	filecheckd check <report.json>
//
// Settings may also come from FILECHECK_PATH, FILECHECK_INTERVAL and
// FILECHECK_REPORT. Send SIGUSR1 for an immediate re-verification and
// SIGTERM or SIGINT to stop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "filecheckd",
	Short:         "File-integrity monitoring daemon",
	Long:          "filecheckd records a CRC-32 baseline for every file in a directory\nand re-verifies it on a timer and on filesystem changes.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
