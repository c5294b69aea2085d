// Package main is the entry point for the srv6nat End.NAT endpoint.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/srv6nat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
