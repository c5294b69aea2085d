// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "srv6nat",
	Short: "srv6nat - SRv6 End.NAT endpoint",
	Long: `srv6nat runs the SRv6 End.NAT endpoint behavior over captured traffic.

A packet addressed to a local SID carries an IPv4 packet behind its Segment
Routing Header. End.NAT translates the /16 prefix of that inner packet
(source "from" -> "to", or destination "to" -> "from"), fixes the IPv4, TCP
and UDP checksums incrementally and advances the SRH to the next segment.

Local SIDs come from the configuration file or from --localsid flags in the
form "<ipv6> end.nat from <ipv4> to <ipv4>".`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when empty)")

	// Add subcommands
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(sidCmd)
	rootCmd.AddCommand(behaviorsCmd)
	rootCmd.AddCommand(validateCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
