package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/doctor"
)

var doctorFix bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the dataset for inconsistencies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		report, err := doctor.Run(w.root, doctorFix)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			w.printJSON(report)
			if !report.Healthy() {
				os.Exit(1)
			}
			return
		}

		for _, f := range report.Findings {
			mark := color.YellowString("!")
			if f.Severity == doctor.SeverityError {
				mark = color.RedString("✗")
			}
			if f.Fixed {
				mark = color.GreenString("✓")
			}
			fmt.Printf("%s [%s] %s\n", mark, f.Check, f.Detail)
			if f.Fixable && !f.Fixed {
				fmt.Println("  fixable: re-run with --fix")
			}
		}

		if report.Healthy() {
			color.Green("✓ All checks passed (%d issue(s) scanned)\n", report.Checked)
			return
		}
		os.Exit(1)
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Apply safe repairs")
	rootCmd.AddCommand(doctorCmd)
}
