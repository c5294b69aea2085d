package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/srv6nat/internal/config"
	"firestige.xyz/srv6nat/internal/srv6"
)

// sidCmd represents the sid command group
var sidCmd = &cobra.Command{
	Use:   "sid",
	Short: "Inspect local SIDs",
	Long: `Inspect End.NAT local SIDs.

Subcommands:
  list   - List the configured local SIDs
  parse  - Parse an End.NAT configuration string`,
}

var sidListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured local SIDs",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSIDList(sidListOutput, sidListLocalSIDs, os.Stdout); err != nil {
			exitWithError("failed to list local SIDs", err)
		}
	},
}

var sidParseCmd = &cobra.Command{
	Use:   "parse <end.nat from <ip4> to <ip4>>",
	Short: "Parse an End.NAT configuration string",
	Long: `Parse an End.NAT configuration string and print the resulting
translation record.

Example:
  srv6nat sid parse end.nat from 10.0.5.6 to 10.1.7.8`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSIDParse(strings.Join(args, " "), os.Stdout); err != nil {
			exitWithError("invalid configuration", err)
		}
	},
}

var (
	sidListOutput    string
	sidListLocalSIDs []string
)

func init() {
	sidListCmd.Flags().StringVarP(&sidListOutput, "output", "o", "text", "output format: text or yaml")
	sidListCmd.Flags().StringArrayVar(&sidListLocalSIDs, "localsid", nil, `extra local SID "<ipv6> end.nat from <ip4> to <ip4>"`)

	sidCmd.AddCommand(sidListCmd)
	sidCmd.AddCommand(sidParseCmd)
}

type sidView struct {
	Address  string `yaml:"address"`
	Index    uint32 `yaml:"index"`
	Behavior string `yaml:"behavior"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Mask     string `yaml:"mask"`
}

func runSIDList(format string, extra []string, w io.Writer) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	_, tbl, err := buildTable(cfg, extra)
	if err != nil {
		return err
	}

	switch format {
	case "text":
		for i, e := range tbl.List() {
			if i > 0 {
				fmt.Fprintln(w, "--------------------")
			}
			fmt.Fprintln(w, e.String())
		}
		return nil
	case "yaml":
		views := make([]sidView, 0, tbl.Len())
		for _, e := range tbl.List() {
			views = append(views, sidView{
				Address:  e.Address.String(),
				Index:    e.Index,
				Behavior: e.Behavior.Keyword,
				From:     e.NAT.FromAddr().String(),
				To:       e.NAT.ToAddr().String(),
				Mask:     e.NAT.MaskAddr().String(),
			})
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (must be text or yaml)", format)
	}
}

func runSIDParse(spec string, w io.Writer) error {
	rec, err := srv6.ParseRecord(spec)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n\t%s\n", rec.Spec(), rec)
	return nil
}
