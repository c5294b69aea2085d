package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/srv6nat/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without processing any traffic.

Every local SID is parsed and added to a scratch table, so duplicate
addresses and malformed End.NAT strings are reported.

Examples:
  srv6nat validate -c /etc/srv6nat/config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(w io.Writer) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	_, tbl, err := buildTable(cfg, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "VALID: %d local SID(s), %d worker(s), frame size %d\n",
		tbl.Len(), cfg.Dataplane.Workers, cfg.Dataplane.FrameSize)
	return nil
}
