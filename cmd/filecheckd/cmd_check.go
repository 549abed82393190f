package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shuakami/filecheck"
)

var checkQuiet bool

var checkCmd = &cobra.Command{
	Use:   "check <report.json>",
	Short: "Summarize a report and fail unless every entry is OK",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVarP(&checkQuiet, "quiet", "q", false, "Only print entries that are not OK")
}

func runCheck(cmd *cobra.Command, args []string) error {
	entries, err := filecheck.ReadReport(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	failed := 0
	for _, e := range entries {
		if e.Status != filecheck.StatusOK {
			failed++
		} else if checkQuiet {
			continue
		}
		if e.BaselineCRC32 != "" {
			fmt.Fprintf(out, "%-8s %s (%s -> %s)\n", e.Status, e.Path, e.BaselineCRC32, e.CurrentCRC32)
		} else {
			fmt.Fprintf(out, "%-8s %s\n", e.Status, e.Path)
		}
	}
	fmt.Fprintf(out, "%d entries, %d not OK\n", len(entries), failed)
	if failed > 0 {
		return fmt.Errorf("integrity check failed: %d of %d entries", failed, len(entries))
	}
	return nil
}
