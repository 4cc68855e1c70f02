// Package main provides the entry point for the oc CLI.
package main

import (
	"os"

	"github.com/opencontext/opencontext/cmd/oc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
