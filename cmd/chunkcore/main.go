// Package main provides the entry point for the chunkcore CLI.
package main

import (
	"os"

	"github.com/aman-cerp/chunkcore/cmd/chunkcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
