// Package main is the entry point for the hren CLI tool.
package main

import (
	"os"

	"github.com/hassrename/hren/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
