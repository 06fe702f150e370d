// Package main provides the entry point for the gocorpus CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/gocorpus/cmd/gocorpus/commands"
	"github.com/Sumatoshi-tech/gocorpus/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
