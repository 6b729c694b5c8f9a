// Package main is the entry point for the lodemill CLI.
package main

import (
	"os"

	"github.com/lodemill/lodemill/cmd/lodemill/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
