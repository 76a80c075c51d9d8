package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"incmgr/internal/inspection"
)

// NewParseLSTCommand creates the parse-lst command, a dry run of the
// worklist import.
func NewParseLSTCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:          "parse-lst <file.lst>",
		Short:        "Print the rows a receiving report would import",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := inspection.ParseLST(f)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return printRows(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as JSON")
	return cmd
}

func printRows(w io.Writer, rows []inspection.Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NOTICE\tDATE\tITEM\tQTY\tSUPPLIER\tPO\tDESCRIPTION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Notice, r.EntryDate, r.Item, r.QtyReceived.String(), r.Supplier, r.PurchaseOrder, r.Description)
	}
	fmt.Fprintf(tw, "\n%d rows\n", len(rows))
	return tw.Flush()
}
