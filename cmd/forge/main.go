// Package main provides the entry point for the forge agent CLI.
package main

import (
	"context"
	"os"

	"github.com/mrz1836/forge/internal/cli"
)

// Build metadata injected via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	ctx := context.Background()
	info := cli.BuildInfo{Version: version, Commit: commit, Date: date}
	if err := cli.Execute(ctx, info); err != nil {
		os.Exit(1)
	}
}
