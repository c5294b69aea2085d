package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/srv6nat/internal/localsid"
)

var behaviorsCmd = &cobra.Command{
	Use:   "behaviors",
	Short: "List the registered SRv6 endpoint behaviors",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runBehaviors(os.Stdout); err != nil {
			exitWithError("failed to list behaviors", err)
		}
	},
}

func runBehaviors(w io.Writer) error {
	reg := localsid.NewRegistry()
	if _, err := localsid.NewTable(reg); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tName\tKeyword\tParameters\tNode\tDescription")
	for _, b := range reg.List() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.Name, b.Keyword, b.Params, b.NodeName, b.Description)
	}
	return tw.Flush()
}
