package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/identity"
	"github.com/jlevy/tbd/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import issues from a JSONL export",
	Long: `Reads one JSON issue per line. A line may carry "external_id" with the
foreign tracker's short ID; when its tail fits the code alphabet it is kept
verbatim (TEST-001 imports as 001), so existing references stay valid.
Re-running the same import is a no-op.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()

		f, err := os.Open(args[0])
		if err != nil {
			fatal(err)
		}
		defer f.Close()

		records, parseFailures, err := importer.ReadJSONL(f)
		if err != nil {
			fatal(err)
		}

		table := w.mappingTable()
		res, err := importer.Import(w.store, table, identity.NewGenerator(), records)
		if err != nil {
			fatal(err)
		}
		if err := table.Save(w.root); err != nil {
			fatal(err)
		}
		res.Failures = append(parseFailures, res.Failures...)

		if jsonOutput {
			w.printJSON(res)
			if len(res.Failures) > 0 {
				os.Exit(1)
			}
			return
		}
		for _, failure := range res.Failures {
			fmt.Fprintf(os.Stderr, "Error: %s\n", failure.Msg)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Imported %d issue(s), skipped %d already present\n",
			green("✓"), res.Imported, res.Skipped)
		if len(res.Failures) > 0 {
			fmt.Fprintf(os.Stderr, "%d record(s) failed\n", len(res.Failures))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
